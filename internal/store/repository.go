package store

import (
	"context"
)

// Repository defines persistence for local user accounts. Lookups return
// (nil, nil) when no row matches; absence is not an error.
type Repository interface {
	// FindByField retrieves a user by a settable column. includeTrashed
	// controls whether soft-deleted rows are visible; the importer must
	// see them so a returning user is restored, not duplicated.
	FindByField(ctx context.Context, field, value string, includeTrashed bool) (*User, error)

	// FindByGUID retrieves a user by its directory identifier,
	// including soft-deleted rows
	FindByGUID(ctx context.Context, guid string) (*User, error)

	// Create inserts a new user
	Create(ctx context.Context, user *User) error

	// Save updates an existing user
	Save(ctx context.Context, user *User) error

	// SoftDelete marks a user deleted without removing the row
	SoftDelete(ctx context.Context, id string) error

	// Restore clears a user's soft delete
	Restore(ctx context.Context, id string) error

	// Ping checks the backing store is alive
	Ping(ctx context.Context) error
}
