package provider

import (
	"context"

	"go.uber.org/zap"

	"github.com/ldapgate/ldapgate/internal/importer"
	"github.com/ldapgate/ldapgate/internal/resolver"
	"github.com/ldapgate/ldapgate/internal/store"
)

// LocalOptions tune the database-only strategy.
type LocalOptions struct {
	// UsernameKey and PasswordKey index into the credential set.
	// DatabaseKey names the local field the username is matched against.
	UsernameKey string
	PasswordKey string
	DatabaseKey string
}

// LocalProvider authenticates against the local store alone. It also
// serves as the explicit fallback for the directory strategy.
type LocalProvider struct {
	repo     store.Repository
	verifier importer.PasswordVerifier
	opts     LocalOptions
	logger   *zap.Logger
}

func NewLocalProvider(repo store.Repository, opts LocalOptions, logger *zap.Logger) *LocalProvider {
	if opts.UsernameKey == "" {
		opts.UsernameKey = "email"
	}
	if opts.PasswordKey == "" {
		opts.PasswordKey = "password"
	}
	if opts.DatabaseKey == "" {
		opts.DatabaseKey = "email"
	}
	return &LocalProvider{
		repo:     repo,
		verifier: importer.BcryptHasher{},
		opts:     opts,
		logger:   logger.With(zap.String("component", "provider.local")),
	}
}

// SetVerifier overrides the password verifier.
func (p *LocalProvider) SetVerifier(v importer.PasswordVerifier) {
	p.verifier = v
}

func (p *LocalProvider) RetrieveByCredentials(ctx context.Context, creds resolver.Credentials) (*store.User, error) {
	if len(creds) == 0 {
		return nil, nil
	}
	username, ok := creds[p.opts.UsernameKey]
	if !ok {
		return nil, resolver.ErrMissingUsernameKey
	}
	return p.repo.FindByField(ctx, p.opts.DatabaseKey, username, false)
}

func (p *LocalProvider) ValidateCredentials(ctx context.Context, user *store.User, creds resolver.Credentials) (bool, error) {
	if user == nil || user.PasswordHash == "" {
		return false, nil
	}
	password := creds[p.opts.PasswordKey]
	if password == "" {
		return false, nil
	}
	return p.verifier.Verify(user.PasswordHash, password), nil
}
