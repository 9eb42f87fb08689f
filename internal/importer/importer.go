// Package importer turns directory entries into local user records and
// keeps the two in sync.
package importer

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	apperrors "github.com/ldapgate/ldapgate/internal/common/errors"
	"github.com/ldapgate/ldapgate/internal/common/events"
	"github.com/ldapgate/ldapgate/internal/directory"
	"github.com/ldapgate/ldapgate/internal/resolver"
	"github.com/ldapgate/ldapgate/internal/store"
)

// HandlerRefPrefix marks a sync mapping value as a handler reference
const HandlerRefPrefix = "@"

// Config tunes the import of a single entry
type Config struct {
	// DatabaseKey is the local column entries are matched on
	DatabaseKey string

	// Attributes maps local fields to directory attributes. Values
	// prefixed with "@" name a registered handler.
	Attributes map[string]string

	// SyncPasswords stores the submitted password locally. Off means a
	// random placeholder.
	SyncPasswords bool

	// PasswordKey indexes the password in the credential set
	PasswordKey string
}

// Importer maps one directory entry onto a local user. It never persists;
// callers decide when the record is written.
type Importer struct {
	repo     store.Repository
	registry *Registry
	hasher   PasswordHasher
	cfg      Config
	bus      events.Bus
	logger   *zap.Logger
}

// New creates an importer
func New(repo store.Repository, registry *Registry, cfg Config, bus events.Bus, logger *zap.Logger) *Importer {
	if cfg.DatabaseKey == "" {
		cfg.DatabaseKey = "email"
	}
	if cfg.PasswordKey == "" {
		cfg.PasswordKey = "password"
	}
	return &Importer{
		repo:     repo,
		registry: registry,
		hasher:   BcryptHasher{},
		cfg:      cfg,
		bus:      bus,
		logger:   logger.With(zap.String("component", "importer")),
	}
}

// SetHasher swaps the password hasher. Tests use a cheap one.
func (i *Importer) SetHasher(h PasswordHasher) {
	i.hasher = h
}

// LookupAttribute returns the directory attribute matched against the
// local database key.
func (i *Importer) LookupAttribute() string {
	if attr, ok := i.cfg.Attributes[i.cfg.DatabaseKey]; ok {
		if _, isHandler := refName(attr); !isHandler {
			return attr
		}
	}
	return "mail"
}

// Run imports an entry: locate or create the local record, refresh the
// lookup field, set the password, then apply the sync mapping. The lookup
// includes soft-deleted rows so a returning user is revived, never
// duplicated.
func (i *Importer) Run(ctx context.Context, entry *directory.Entry, creds resolver.Credentials) (*store.User, error) {
	if entry == nil {
		return nil, fmt.Errorf("cannot import a nil entry")
	}

	lookupValue := entry.First(i.LookupAttribute())
	if lookupValue == "" {
		return nil, fmt.Errorf("entry %s has no %s value to match on", entry.DN, i.LookupAttribute())
	}

	i.publish(ctx, events.EventImporting, map[string]interface{}{
		"dn":  entry.DN,
		"key": lookupValue,
	})

	user, err := i.repo.FindByField(ctx, i.cfg.DatabaseKey, lookupValue, true)
	if err != nil {
		return nil, apperrors.DatabaseError("find user for import", err)
	}
	if user == nil {
		user = store.NewUser()
	}

	if err := user.SetField(i.cfg.DatabaseKey, lookupValue); err != nil {
		return nil, apperrors.Configuration(err.Error())
	}
	user.ObjectGUID = entry.ObjectGUID
	user.Entry = entry

	if err := i.setPassword(user, creds); err != nil {
		return nil, err
	}

	if err := i.applyMapping(entry, user); err != nil {
		return nil, err
	}

	i.publish(ctx, events.EventImported, map[string]interface{}{
		"dn":      entry.DN,
		"user_id": user.ID,
		"new":     !user.Saved(),
	})

	return user, nil
}

// setPassword is the single place a local password hash is written. With
// sync enabled the submitted password is stored; otherwise a random
// placeholder fills the column once.
func (i *Importer) setPassword(user *store.User, creds resolver.Credentials) error {
	password := ""
	if creds != nil {
		password = creds[i.cfg.PasswordKey]
	}

	switch {
	case i.cfg.SyncPasswords && password != "":
		return i.assignPassword(user, password)
	case user.PasswordHash == "":
		return i.assignPassword(user, placeholderPassword())
	}
	return nil
}

// assignPassword writes the password exactly once. Record types that hash
// on their own receive the raw value; everything else gets the hash.
func (i *Importer) assignPassword(user *store.User, password string) error {
	if setter, ok := any(user).(RawPasswordSetter); ok {
		setter.SetRawPassword(password)
		return nil
	}
	hash, err := i.hasher.Hash(password)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	return nil
}

func (i *Importer) applyMapping(entry *directory.Entry, user *store.User) error {
	// Map iteration order is random; keep imports deterministic
	fields := make([]string, 0, len(i.cfg.Attributes))
	for field := range i.cfg.Attributes {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		value := i.cfg.Attributes[field]

		if name, ok := refName(value); ok {
			handler, found := i.registry.Get(name)
			if !found {
				return apperrors.Configuration(fmt.Sprintf("unknown attribute handler %q", name))
			}
			if err := handler(entry, user); err != nil {
				return apperrors.AttributeHandlerError(name, err)
			}
			continue
		}

		if field == i.cfg.DatabaseKey {
			// Already refreshed from the lookup value
			continue
		}
		if err := user.SetField(field, entry.First(value)); err != nil {
			return apperrors.Configuration(err.Error())
		}
	}
	return nil
}

func refName(value string) (string, bool) {
	if len(value) > 1 && value[:1] == HandlerRefPrefix {
		return value[1:], true
	}
	return "", false
}

func (i *Importer) publish(ctx context.Context, eventType string, payload map[string]interface{}) {
	if i.bus == nil {
		return
	}
	if err := i.bus.Publish(ctx, events.NewEvent(eventType, "importer", payload)); err != nil {
		i.logger.Debug("event publish failed", zap.String("type", eventType), zap.Error(err))
	}
}
