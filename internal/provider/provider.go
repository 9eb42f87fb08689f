// Package provider implements the authentication strategies selected by
// the auth.provider setting. Each strategy resolves a candidate user from
// submitted credentials and then validates those credentials against its
// backing source.
package provider

import (
	"context"

	"github.com/ldapgate/ldapgate/internal/resolver"
	"github.com/ldapgate/ldapgate/internal/store"
)

// AuthProvider retrieves a candidate user for a credential set and then
// validates the set against it. Retrieval misses are (nil, nil); a failed
// validation is (false, nil). Errors are reserved for infrastructure
// faults such as an unreachable directory or database.
type AuthProvider interface {
	RetrieveByCredentials(ctx context.Context, creds resolver.Credentials) (*store.User, error)
	ValidateCredentials(ctx context.Context, user *store.User, creds resolver.Credentials) (bool, error)
}

// Authenticate runs the full retrieve-then-validate cycle and returns the
// authenticated user, or nil when the credentials are rejected.
func Authenticate(ctx context.Context, p AuthProvider, creds resolver.Credentials) (*store.User, error) {
	user, err := p.RetrieveByCredentials(ctx, creds)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}
	ok, err := p.ValidateCredentials(ctx, user, creds)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return user, nil
}
