// Package resolver locates directory entries for submitted credentials and
// verifies passwords against the directory.
package resolver

import (
	"context"
	"fmt"

	"github.com/go-ldap/ldap/v3"
	"go.uber.org/zap"

	apperrors "github.com/ldapgate/ldapgate/internal/common/errors"
	"github.com/ldapgate/ldapgate/internal/common/events"
	"github.com/ldapgate/ldapgate/internal/directory"
	"github.com/ldapgate/ldapgate/internal/store"
)

// ErrMissingUsernameKey indicates the credential set lacks the configured
// username key. That is a wiring mistake, not a failed login.
var ErrMissingUsernameKey = apperrors.Configuration("credential set is missing the configured username key")

// Credentials is the submitted credential set, keyed by configured names
type Credentials map[string]string

// Options tunes discovery and bind behavior
type Options struct {
	// UsernameKey and PasswordKey index into the credential set
	UsernameKey string
	PasswordKey string

	// DiscoverAttribute locates the entry. Empty means the directory
	// flavor's default.
	DiscoverAttribute string

	// BindAttribute is bound against during Authenticate. The literal
	// "dn" uses the entry's distinguished name.
	BindAttribute string

	// Scopes narrow every query, applied in order
	Scopes []directory.Scope
}

// Resolver discovers and authenticates directory entries
type Resolver struct {
	client directory.Client
	dirCfg directory.Config
	opts   Options
	bus    events.Bus
	logger *zap.Logger
}

// New creates a resolver
func New(client directory.Client, dirCfg directory.Config, opts Options, bus events.Bus, logger *zap.Logger) *Resolver {
	if opts.UsernameKey == "" {
		opts.UsernameKey = "email"
	}
	if opts.PasswordKey == "" {
		opts.PasswordKey = "password"
	}
	if opts.BindAttribute == "" {
		opts.BindAttribute = "dn"
	}
	return &Resolver{
		client: client,
		dirCfg: dirCfg,
		opts:   opts,
		bus:    bus,
		logger: logger.With(zap.String("component", "resolver")),
	}
}

// DiscoverAttribute returns the attribute used to locate entries
func (r *Resolver) DiscoverAttribute() string {
	if r.opts.DiscoverAttribute != "" {
		return r.opts.DiscoverAttribute
	}
	return r.dirCfg.DefaultDiscoverAttribute()
}

// Query returns the base entry query with every configured scope applied.
// The wildcard keeps operational attributes like objectGUID in the result;
// servers omit them unless named.
func (r *Resolver) Query() directory.Query {
	q := directory.Query{
		Filter:     r.dirCfg.ObjectFilter(),
		Attributes: []string{"*", r.dirCfg.GUIDAttribute()},
	}
	for _, s := range r.opts.Scopes {
		s.Apply(&q)
	}
	return q
}

// ByCredentials locates the entry matching the submitted username. An empty
// credential set resolves to nothing; a credential set without the username
// key is a configuration error.
func (r *Resolver) ByCredentials(ctx context.Context, creds Credentials) (*directory.Entry, error) {
	if len(creds) == 0 {
		return nil, nil
	}

	username, ok := creds[r.opts.UsernameKey]
	if !ok {
		return nil, ErrMissingUsernameKey
	}
	if username == "" {
		return nil, nil
	}

	return r.ByUsername(ctx, username)
}

// ByUsername locates the entry whose discovery attribute equals username
func (r *Resolver) ByUsername(ctx context.Context, username string) (*directory.Entry, error) {
	q := r.Query()
	q.And(fmt.Sprintf("(%s=%s)",
		ldap.EscapeFilter(r.DiscoverAttribute()),
		ldap.EscapeFilter(username),
	))
	q.SizeLimit = 1

	entries, err := r.client.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("discover %q: %w", username, err)
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return entries[0], nil
}

// List returns every entry matching the scoped query, optionally narrowed
// by an extra raw filter
func (r *Resolver) List(ctx context.Context, extraFilter string) ([]*directory.Entry, error) {
	q := r.Query()
	if extraFilter != "" {
		q.And(extraFilter)
	}
	return r.client.Search(ctx, q)
}

// ByID locates the entry with the given immutable identifier
func (r *Resolver) ByID(ctx context.Context, guid string) (*directory.Entry, error) {
	return r.client.FindByGUID(ctx, guid)
}

// ByModel locates the entry a local user was imported from
func (r *Resolver) ByModel(ctx context.Context, user *store.User) (*directory.Entry, error) {
	if user == nil || user.ObjectGUID == "" {
		return nil, nil
	}
	return r.ByID(ctx, user.ObjectGUID)
}

// Authenticate verifies the submitted password by binding as the entry.
// The return value is a decision, not an error; directory failures are
// logged and count as a failed authentication.
func (r *Resolver) Authenticate(ctx context.Context, entry *directory.Entry, creds Credentials) bool {
	if entry == nil {
		return false
	}

	username := creds[r.opts.UsernameKey]
	password := creds[r.opts.PasswordKey]

	bindDN := entry.DN
	if r.opts.BindAttribute != "dn" {
		bindDN = entry.First(r.opts.BindAttribute)
	}

	r.publish(ctx, events.EventAuthenticating, map[string]interface{}{
		"username": username,
		"dn":       entry.DN,
	})

	if bindDN == "" {
		r.logger.Warn("entry has no bind value",
			zap.String("dn", entry.DN),
			zap.String("bind_attribute", r.opts.BindAttribute))
		r.publish(ctx, events.EventAuthenticationFailed, map[string]interface{}{
			"username": username,
			"dn":       entry.DN,
		})
		return false
	}

	if err := r.client.Bind(ctx, bindDN, password); err != nil {
		if err != directory.ErrInvalidCredentials {
			r.logger.Error("directory bind error", zap.String("dn", bindDN), zap.Error(err))
		}
		r.publish(ctx, events.EventAuthenticationFailed, map[string]interface{}{
			"username": username,
			"dn":       entry.DN,
		})
		return false
	}

	r.publish(ctx, events.EventAuthenticated, map[string]interface{}{
		"username": username,
		"dn":       entry.DN,
	})
	return true
}

func (r *Resolver) publish(ctx context.Context, eventType string, payload map[string]interface{}) {
	if r.bus == nil {
		return
	}
	if err := r.bus.Publish(ctx, events.NewEvent(eventType, "resolver", payload)); err != nil {
		r.logger.Debug("event publish failed", zap.String("type", eventType), zap.Error(err))
	}
}
