package directory

import "context"

// Client is the directory access boundary. The production implementation
// talks go-ldap; tests substitute an in-memory fake.
type Client interface {
	// Connect establishes the service connection used for searches
	Connect(ctx context.Context) error

	// Close releases the service connection
	Close() error

	// Search runs a paged search and returns detached entries
	Search(ctx context.Context, query Query) ([]*Entry, error)

	// Bind verifies credentials on a fresh connection so the service
	// connection keeps its own bind. A wrong password returns
	// ErrInvalidCredentials, not a transport error.
	Bind(ctx context.Context, bindDN, password string) error

	// FindByGUID locates a single entry by its immutable identifier
	FindByGUID(ctx context.Context, guid string) (*Entry, error)
}
