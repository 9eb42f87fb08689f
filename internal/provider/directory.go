package provider

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ldapgate/ldapgate/internal/common/events"
	"github.com/ldapgate/ldapgate/internal/importer"
	"github.com/ldapgate/ldapgate/internal/resolver"
	"github.com/ldapgate/ldapgate/internal/rules"
	"github.com/ldapgate/ldapgate/internal/store"
)

// DirectoryOptions tune the directory-backed strategy.
type DirectoryOptions struct {
	// Fallback, when set, handles sign-in for records that are already
	// persisted locally whenever the directory rejects or cannot be
	// reached. It never creates local accounts.
	Fallback *LocalProvider

	// BindEntryToModel keeps the directory entry attached to the user
	// after a successful validation.
	BindEntryToModel bool
}

// DirectoryProvider authenticates against the directory and keeps the
// local store synchronized on every successful sign-in.
type DirectoryProvider struct {
	resolver  *resolver.Resolver
	importer  *importer.Importer
	validator *rules.Validator
	repo      store.Repository
	opts      DirectoryOptions
	bus       events.Bus
	logger    *zap.Logger
}

func NewDirectoryProvider(res *resolver.Resolver, imp *importer.Importer, validator *rules.Validator, repo store.Repository, opts DirectoryOptions, bus events.Bus, logger *zap.Logger) *DirectoryProvider {
	return &DirectoryProvider{
		resolver:  res,
		importer:  imp,
		validator: validator,
		repo:      repo,
		opts:      opts,
		bus:       bus,
		logger:    logger.With(zap.String("component", "provider.directory")),
	}
}

// RetrieveByCredentials resolves the directory entry for the credential
// set and imports it into an unsaved user carrying the entry. When the
// directory misses or fails and a fallback is configured, retrieval is
// handed to the fallback so previously imported users can still sign in.
func (p *DirectoryProvider) RetrieveByCredentials(ctx context.Context, creds resolver.Credentials) (*store.User, error) {
	entry, err := p.resolver.ByCredentials(ctx, creds)
	if err != nil {
		if p.opts.Fallback == nil {
			return nil, err
		}
		p.logger.Warn("directory lookup failed, using fallback", zap.Error(err))
		return p.opts.Fallback.RetrieveByCredentials(ctx, creds)
	}
	if entry == nil {
		if p.opts.Fallback == nil {
			return nil, nil
		}
		return p.opts.Fallback.RetrieveByCredentials(ctx, creds)
	}

	user, err := p.importer.Run(ctx, entry, creds)
	if err != nil {
		return nil, err
	}

	p.publish(ctx, events.EventDiscoveredWithCredentials, map[string]interface{}{
		"dn":      entry.DN,
		"user_id": user.ID,
	})
	return user, nil
}

// ValidateCredentials binds as the discovered entry. A successful bind
// runs the validation rules, persists the imported user and reports the
// sign-in. A rejected bind falls back to the local hash for records that
// already exist locally.
func (p *DirectoryProvider) ValidateCredentials(ctx context.Context, user *store.User, creds resolver.Credentials) (bool, error) {
	if user == nil {
		return false, nil
	}
	if user.Entry == nil {
		// Retrieval came from the fallback; validate there too
		return p.fallbackValidate(ctx, user, creds)
	}

	if !p.resolver.Authenticate(ctx, user.Entry, creds) {
		return p.fallbackValidate(ctx, user, creds)
	}

	if p.validator != nil && !p.validator.Passes(ctx, user.Entry, user) {
		return false, nil
	}

	if err := p.persist(ctx, user); err != nil {
		return false, err
	}

	p.publish(ctx, events.EventAuthenticatedWithCredentials, map[string]interface{}{
		"dn":      user.Entry.DN,
		"user_id": user.ID,
	})

	if !p.opts.BindEntryToModel {
		user.Entry = nil
	}
	return true, nil
}

func (p *DirectoryProvider) fallbackValidate(ctx context.Context, user *store.User, creds resolver.Credentials) (bool, error) {
	if p.opts.Fallback == nil || !user.Saved() {
		return false, nil
	}
	// The in-flight user carries the import's attribute refresh, and with
	// password sync on its hash is already rewritten from the submitted
	// password. The local check must run against the persisted record.
	stored, err := p.opts.Fallback.RetrieveByCredentials(ctx, creds)
	if err != nil || stored == nil {
		return false, err
	}
	return p.opts.Fallback.ValidateCredentials(ctx, stored, creds)
}

func (p *DirectoryProvider) persist(ctx context.Context, user *store.User) error {
	if user.Saved() {
		if err := p.repo.Save(ctx, user); err != nil {
			return fmt.Errorf("save user: %w", err)
		}
		return nil
	}
	if err := p.repo.Create(ctx, user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (p *DirectoryProvider) publish(ctx context.Context, eventType string, payload map[string]interface{}) {
	if p.bus == nil {
		return
	}
	if err := p.bus.Publish(ctx, events.NewEvent(eventType, "provider", payload)); err != nil {
		p.logger.Warn("event publish failed", zap.String("event", eventType), zap.Error(err))
	}
}
