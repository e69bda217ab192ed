package model

import (
	"errors"

	"github.com/google/uuid"
)

// Audience is a named group of member targets. Members are shared references,
// not owned copies; removing an audience never removes its targets.
type Audience struct {
	UUID    uuid.UUID
	Name    string
	members map[uuid.UUID]*Target
}

func NewAudience(name string) (*Audience, error) {
	if name == "" {
		return nil, errors.New("audience name is required")
	}
	return &Audience{UUID: uuid.New(), Name: name, members: make(map[uuid.UUID]*Target)}, nil
}

// ReconstituteAudience rebuilds an audience from storage without validation
// side effects.
func ReconstituteAudience(id uuid.UUID, name string) *Audience {
	return &Audience{UUID: id, Name: name, members: make(map[uuid.UUID]*Target)}
}

func (a *Audience) AddMember(t *Target) {
	if t == nil {
		return
	}
	a.members[t.UUID] = t
}

func (a *Audience) RemoveMember(id uuid.UUID) {
	delete(a.members, id)
}

func (a *Audience) HasMember(id uuid.UUID) bool {
	_, ok := a.members[id]
	return ok
}

// Members returns a defensive snapshot of the member set.
func (a *Audience) Members() []*Target {
	out := make([]*Target, 0, len(a.members))
	for _, t := range a.members {
		out = append(out, t.Copy())
	}
	return out
}

func (a *Audience) MemberIDs() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(a.members))
	for id := range a.members {
		out = append(out, id)
	}
	return out
}

func (a *Audience) Size() int { return len(a.members) }
