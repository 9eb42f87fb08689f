// Package store holds the local user model and its persistence.
package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ldapgate/ldapgate/internal/directory"
)

// User is the local account a directory entry is imported into.
type User struct {
	ID           string            `json:"id"`
	Email        string            `json:"email"`
	Name         string            `json:"name"`
	PasswordHash string            `json:"-"`
	ObjectGUID   string            `json:"object_guid,omitempty"`
	Domain       string            `json:"domain,omitempty"`
	Phone        string            `json:"phone,omitempty"`
	Department   string            `json:"department,omitempty"`
	Title        string            `json:"title,omitempty"`
	Attributes   map[string]string `json:"attributes,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`

	// Entry is the directory entry this user was resolved from during the
	// current request. Never persisted.
	Entry *directory.Entry `json:"-"`
}

// NewUser creates an unsaved user with a fresh id
func NewUser() *User {
	return &User{
		ID:         uuid.New().String(),
		Attributes: make(map[string]string),
	}
}

// Trashed reports whether the account is soft-deleted
func (u *User) Trashed() bool {
	return u.DeletedAt != nil
}

// Saved reports whether the account has ever been persisted
func (u *User) Saved() bool {
	return !u.CreatedAt.IsZero()
}

// settable columns a sync mapping may target
var settableFields = map[string]bool{
	"email":      true,
	"name":       true,
	"domain":     true,
	"phone":      true,
	"department": true,
	"title":      true,
}

// IsSettableField reports whether a sync mapping may target the field
func IsSettableField(field string) bool {
	return settableFields[field]
}

// SettableFields returns the set of sync mapping targets
func SettableFields() map[string]bool {
	out := make(map[string]bool, len(settableFields))
	for k := range settableFields {
		out[k] = true
	}
	return out
}

// SetField assigns a scalar value to a named column. Unknown fields are a
// configuration mistake and error out rather than landing in Attributes
// silently.
func (u *User) SetField(field, value string) error {
	switch field {
	case "email":
		u.Email = value
	case "name":
		u.Name = value
	case "domain":
		u.Domain = value
	case "phone":
		u.Phone = value
	case "department":
		u.Department = value
	case "title":
		u.Title = value
	default:
		return fmt.Errorf("unknown user field %q", field)
	}
	return nil
}

// GetField reads a scalar column by name
func (u *User) GetField(field string) (string, error) {
	switch field {
	case "email":
		return u.Email, nil
	case "name":
		return u.Name, nil
	case "domain":
		return u.Domain, nil
	case "phone":
		return u.Phone, nil
	case "department":
		return u.Department, nil
	case "title":
		return u.Title, nil
	default:
		return "", fmt.Errorf("unknown user field %q", field)
	}
}
