// Package rules gates directory sign-in after the bind has succeeded.
// A rule inspects the directory entry together with the local record and
// votes; every configured rule must pass before a session is issued.
package rules

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ldapgate/ldapgate/internal/common/events"
	"github.com/ldapgate/ldapgate/internal/directory"
	"github.com/ldapgate/ldapgate/internal/store"
)

// Rule is a single post-authentication check.
type Rule interface {
	Name() string
	Passes(ctx context.Context, entry *directory.Entry, user *store.User) bool
}

// Validator runs rules in order and short-circuits on the first failure.
// An empty chain passes.
type Validator struct {
	rules  []Rule
	logger *zap.Logger
}

func NewValidator(logger *zap.Logger, rules ...Rule) *Validator {
	return &Validator{
		rules:  rules,
		logger: logger.With(zap.String("component", "rules")),
	}
}

// Passes reports whether every rule accepts the authenticated pair.
func (v *Validator) Passes(ctx context.Context, entry *directory.Entry, user *store.User) bool {
	for _, rule := range v.rules {
		if !rule.Passes(ctx, entry, user) {
			v.logger.Info("validation rule rejected sign-in",
				zap.String("rule", rule.Name()),
				zap.String("dn", entryDN(entry)))
			return false
		}
	}
	return true
}

func entryDN(entry *directory.Entry) string {
	if entry == nil {
		return ""
	}
	return entry.DN
}

// DenyTrashed rejects accounts whose local record is soft deleted.
type DenyTrashed struct {
	bus events.Bus
}

func NewDenyTrashed(bus events.Bus) *DenyTrashed {
	return &DenyTrashed{bus: bus}
}

func (r *DenyTrashed) Name() string { return "deny_trashed" }

func (r *DenyTrashed) Passes(ctx context.Context, entry *directory.Entry, user *store.User) bool {
	if user == nil || !user.Trashed() {
		return true
	}
	if r.bus != nil {
		payload := map[string]interface{}{"user_id": user.ID, "dn": entryDN(entry)}
		_ = r.bus.Publish(ctx, events.NewEvent(events.EventAuthenticatedModelTrashed, "rules", payload))
	}
	return false
}

// OnlyImported rejects accounts that have never been persisted locally,
// which restricts sign-in to users brought in by a prior import run.
type OnlyImported struct{}

func (r OnlyImported) Name() string { return "only_imported" }

func (r OnlyImported) Passes(ctx context.Context, entry *directory.Entry, user *store.User) bool {
	return user != nil && user.Saved()
}

// Build resolves configured rule identifiers into a Validator. Unknown
// identifiers are a configuration error surfaced at startup.
func Build(names []string, bus events.Bus, logger *zap.Logger) (*Validator, error) {
	chain := make([]Rule, 0, len(names))
	for _, name := range names {
		rule, ok := byName(name, bus)
		if !ok {
			return nil, fmt.Errorf("unknown validation rule %q", name)
		}
		chain = append(chain, rule)
	}
	return NewValidator(logger, chain...), nil
}

// Names lists the rule identifiers Build accepts.
func Names() []string {
	return []string{"deny_trashed", "only_imported"}
}

func byName(name string, bus events.Bus) (Rule, bool) {
	switch name {
	case "deny_trashed":
		return NewDenyTrashed(bus), true
	case "only_imported":
		return OnlyImported{}, true
	default:
		return nil, false
	}
}
