package model

import (
	"errors"

	"github.com/google/uuid"
)

// Target is a direct recipient. It is shared by reference between
// notifications and audiences; association rows carry the links.
type Target struct {
	UUID  uuid.UUID
	Name  string
	Phone PhoneNumber
}

func NewTarget(name string, phone PhoneNumber) (*Target, error) {
	if name == "" {
		return nil, errors.New("target name is required")
	}
	if phone.IsZero() {
		return nil, ErrInvalidPhoneNumber
	}
	return &Target{UUID: uuid.New(), Name: name, Phone: phone}, nil
}

// Copy returns a detached snapshot for handing across aggregate boundaries.
func (t *Target) Copy() *Target {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
