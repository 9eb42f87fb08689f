package importer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ldapgate/ldapgate/internal/common/events"
	"github.com/ldapgate/ldapgate/internal/directory"
	"github.com/ldapgate/ldapgate/internal/resolver"
	"github.com/ldapgate/ldapgate/internal/store"
)

// SyncOptions selects what a bulk run imports and how account state is
// reconciled.
type SyncOptions struct {
	// Username imports a single user instead of the whole directory
	Username string

	// Filter narrows the directory query with a raw LDAP filter
	Filter string

	// SoftDeleteDisabled soft-deletes local accounts whose entry is
	// disabled in the directory
	SoftDeleteDisabled bool

	// RestoreEnabled restores soft-deleted local accounts whose entry
	// is enabled again
	RestoreEnabled bool
}

// SyncResult summarizes a bulk run. Per-record failures never abort the
// run; they are counted and reported.
type SyncResult struct {
	Created  int
	Updated  int
	Skipped  int
	Disabled int
	Restored int
	Errors   []string
	Duration time.Duration
}

// Total returns the number of records that were persisted
func (r *SyncResult) Total() int {
	return r.Created + r.Updated
}

// SyncEngine imports directory entries in bulk
type SyncEngine struct {
	resolver *resolver.Resolver
	importer *Importer
	repo     store.Repository
	bus      events.Bus
	logger   *zap.Logger
}

// NewSyncEngine creates a bulk sync engine
func NewSyncEngine(res *resolver.Resolver, imp *Importer, repo store.Repository, bus events.Bus, logger *zap.Logger) *SyncEngine {
	return &SyncEngine{
		resolver: res,
		importer: imp,
		repo:     repo,
		bus:      bus,
		logger:   logger.With(zap.String("component", "sync")),
	}
}

// Run imports every matching entry. Only transport-level failures return
// an error; anything per-record lands in the result.
func (s *SyncEngine) Run(ctx context.Context, opts SyncOptions) (*SyncResult, error) {
	start := time.Now()
	result := &SyncResult{}

	entries, err := s.collect(ctx, opts)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.EventSynchronizing, map[string]interface{}{
		"entries": len(entries),
	})

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.syncOne(ctx, entry, opts, result)
	}

	result.Duration = time.Since(start)

	s.publish(ctx, events.EventSynchronized, map[string]interface{}{
		"created":  result.Created,
		"updated":  result.Updated,
		"skipped":  result.Skipped,
		"disabled": result.Disabled,
		"restored": result.Restored,
		"errors":   len(result.Errors),
	})

	s.logger.Info("directory sync completed",
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("skipped", result.Skipped),
		zap.Int("disabled", result.Disabled),
		zap.Int("restored", result.Restored),
		zap.Duration("duration", result.Duration),
	)

	return result, nil
}

func (s *SyncEngine) collect(ctx context.Context, opts SyncOptions) ([]*directory.Entry, error) {
	if opts.Username != "" {
		entry, err := s.resolver.ByUsername(ctx, opts.Username)
		if err != nil {
			return nil, err
		}
		if entry == nil {
			return nil, fmt.Errorf("user %q not found in the directory", opts.Username)
		}
		return []*directory.Entry{entry}, nil
	}
	return s.resolver.List(ctx, opts.Filter)
}

func (s *SyncEngine) syncOne(ctx context.Context, entry *directory.Entry, opts SyncOptions, result *SyncResult) {
	user, err := s.importer.Run(ctx, entry, nil)
	if err != nil {
		result.Skipped++
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", entry.DN, err))
		s.logger.Warn("entry skipped", zap.String("dn", entry.DN), zap.Error(err))
		return
	}

	isNew := !user.Saved()
	if isNew {
		err = s.repo.Create(ctx, user)
	} else {
		err = s.repo.Save(ctx, user)
	}
	if err != nil {
		// Uniqueness violations are ordinary failures here; the row is
		// reported and the run continues
		result.Skipped++
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", entry.DN, err))
		s.logger.Warn("persist failed", zap.String("dn", entry.DN), zap.Error(err))
		return
	}
	if isNew {
		result.Created++
	} else {
		result.Updated++
	}

	disabled := entry.AccountDisabled()

	if disabled && opts.SoftDeleteDisabled && !user.Trashed() {
		if err := s.repo.SoftDelete(ctx, user.ID); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: soft delete: %v", entry.DN, err))
			return
		}
		result.Disabled++
		return
	}

	if !disabled && opts.RestoreEnabled && user.Trashed() {
		if err := s.repo.Restore(ctx, user.ID); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: restore: %v", entry.DN, err))
			return
		}
		result.Restored++
	}
}

func (s *SyncEngine) publish(ctx context.Context, eventType string, payload map[string]interface{}) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, events.NewEvent(eventType, "sync", payload)); err != nil {
		s.logger.Debug("event publish failed", zap.String("type", eventType), zap.Error(err))
	}
}
