package rules

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ldapgate/ldapgate/internal/common/events"
	"github.com/ldapgate/ldapgate/internal/directory"
	"github.com/ldapgate/ldapgate/internal/store"
)

type spyRule struct {
	name   string
	result bool
	calls  int
}

func (r *spyRule) Name() string { return r.name }

func (r *spyRule) Passes(ctx context.Context, entry *directory.Entry, user *store.User) bool {
	r.calls++
	return r.result
}

func savedUser() *store.User {
	u := store.NewUser()
	u.Email = "jdoe@acme.org"
	u.CreatedAt = time.Now()
	return u
}

func TestValidatorShortCircuits(t *testing.T) {
	ctx := context.Background()
	first := &spyRule{name: "first", result: false}
	second := &spyRule{name: "second", result: true}

	v := NewValidator(zap.NewNop(), first, second)
	assert.False(t, v.Passes(ctx, nil, savedUser()))
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 0, second.calls)
}

func TestValidatorEmptyChainPasses(t *testing.T) {
	v := NewValidator(zap.NewNop())
	assert.True(t, v.Passes(context.Background(), nil, nil))
}

func TestValidatorAllMustPass(t *testing.T) {
	ctx := context.Background()
	first := &spyRule{name: "first", result: true}
	second := &spyRule{name: "second", result: true}

	v := NewValidator(zap.NewNop(), first, second)
	assert.True(t, v.Passes(ctx, nil, savedUser()))
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
}

func TestDenyTrashed(t *testing.T) {
	ctx := context.Background()
	bus := events.NewMemoryBus()
	var published []events.Event
	bus.SubscribeAll(func(ctx context.Context, e events.Event) error {
		published = append(published, e)
		return nil
	})

	rule := NewDenyTrashed(bus)

	t.Run("active user passes", func(t *testing.T) {
		assert.True(t, rule.Passes(ctx, nil, savedUser()))
		assert.Empty(t, published)
	})

	t.Run("nil user passes", func(t *testing.T) {
		assert.True(t, rule.Passes(ctx, nil, nil))
	})

	t.Run("trashed user is rejected and reported", func(t *testing.T) {
		u := savedUser()
		now := time.Now()
		u.DeletedAt = &now

		assert.False(t, rule.Passes(ctx, nil, u))
		require.Len(t, published, 1)
		assert.Equal(t, events.EventAuthenticatedModelTrashed, published[0].Type)
		assert.Equal(t, u.ID, published[0].Payload["user_id"])
	})
}

func TestOnlyImported(t *testing.T) {
	ctx := context.Background()
	rule := OnlyImported{}

	assert.True(t, rule.Passes(ctx, nil, savedUser()))

	unsaved := store.NewUser()
	assert.False(t, rule.Passes(ctx, nil, unsaved))
	assert.False(t, rule.Passes(ctx, nil, nil))
}

func TestBuild(t *testing.T) {
	bus := events.NewMemoryBus()
	logger := zap.NewNop()

	v, err := Build([]string{"deny_trashed", "only_imported"}, bus, logger)
	require.NoError(t, err)
	assert.True(t, v.Passes(context.Background(), nil, savedUser()))

	_, err = Build([]string{"nope"}, bus, logger)
	assert.Error(t, err)
}
