package provider

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ldapgate/ldapgate/internal/common/events"
	"github.com/ldapgate/ldapgate/internal/importer"
	"github.com/ldapgate/ldapgate/internal/resolver"
	"github.com/ldapgate/ldapgate/internal/store"
)

// NoDatabaseProvider authenticates purely against the directory. The user
// it returns is synthesized from the entry and never persisted, so
// deployments without a local account table can still issue sessions.
type NoDatabaseProvider struct {
	resolver *resolver.Resolver
	attrs    map[string]string
	bus      events.Bus
	logger   *zap.Logger
}

// NewNoDatabaseProvider builds the strategy. attrs maps local fields to
// directory attributes the same way the sync attribute map does; handler
// references are skipped since there is no stored record to enrich.
func NewNoDatabaseProvider(res *resolver.Resolver, attrs map[string]string, bus events.Bus, logger *zap.Logger) *NoDatabaseProvider {
	return &NoDatabaseProvider{
		resolver: res,
		attrs:    attrs,
		bus:      bus,
		logger:   logger.With(zap.String("component", "provider.nodb")),
	}
}

func (p *NoDatabaseProvider) RetrieveByCredentials(ctx context.Context, creds resolver.Credentials) (*store.User, error) {
	entry, err := p.resolver.ByCredentials(ctx, creds)
	if err != nil || entry == nil {
		return nil, err
	}

	user := store.NewUser()
	user.ObjectGUID = entry.ObjectGUID
	user.Entry = entry

	fields := make([]string, 0, len(p.attrs))
	for field := range p.attrs {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		attr := p.attrs[field]
		if strings.HasPrefix(attr, importer.HandlerRefPrefix) || !store.IsSettableField(field) {
			continue
		}
		if value := entry.First(attr); value != "" {
			if err := user.SetField(field, value); err != nil {
				return nil, err
			}
		}
	}

	p.publish(ctx, events.EventDiscoveredWithCredentials, map[string]interface{}{
		"dn":      entry.DN,
		"user_id": user.ID,
	})
	return user, nil
}

func (p *NoDatabaseProvider) ValidateCredentials(ctx context.Context, user *store.User, creds resolver.Credentials) (bool, error) {
	if user == nil || user.Entry == nil {
		return false, nil
	}
	if !p.resolver.Authenticate(ctx, user.Entry, creds) {
		return false, nil
	}
	p.publish(ctx, events.EventAuthenticatedWithCredentials, map[string]interface{}{
		"dn":      user.Entry.DN,
		"user_id": user.ID,
	})
	return true, nil
}

func (p *NoDatabaseProvider) publish(ctx context.Context, eventType string, payload map[string]interface{}) {
	if p.bus == nil {
		return
	}
	if err := p.bus.Publish(ctx, events.NewEvent(eventType, "provider", payload)); err != nil {
		p.logger.Warn("event publish failed", zap.String("event", eventType), zap.Error(err))
	}
}
