package model

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// Template is reusable notification content with {name} substitution tokens
// resolved at send time.
type Template struct {
	UUID    uuid.UUID
	Content string
}

func NewTemplate(content string) (*Template, error) {
	if content == "" {
		return nil, errors.New("template content is required")
	}
	return &Template{UUID: uuid.New(), Content: content}, nil
}

// Render substitutes every {name} token with its named argument. Tokens
// without a matching argument are left in place so the omission is visible
// in the rendered text.
func (t *Template) Render(args map[string]string) string {
	out := t.Content
	for name, value := range args {
		out = strings.ReplaceAll(out, "{"+name+"}", value)
	}
	return out
}
