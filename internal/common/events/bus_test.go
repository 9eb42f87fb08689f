package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMemoryBusPublish(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus()

	var typed, all []string
	bus.Subscribe(EventAuthenticated, func(ctx context.Context, e Event) error {
		typed = append(typed, e.Type)
		return nil
	})
	bus.SubscribeAll(func(ctx context.Context, e Event) error {
		all = append(all, e.Type)
		return nil
	})

	require.NoError(t, bus.Publish(ctx, NewEvent(EventAuthenticated, "test", nil)))
	require.NoError(t, bus.Publish(ctx, NewEvent(EventImported, "test", nil)))

	assert.Equal(t, []string{EventAuthenticated}, typed)
	assert.Equal(t, []string{EventAuthenticated, EventImported}, all)
}

func TestMemoryBusUnsubscribe(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus()

	calls := 0
	sub := bus.Subscribe(EventImporting, func(ctx context.Context, e Event) error {
		calls++
		return nil
	})

	require.NoError(t, bus.Publish(ctx, NewEvent(EventImporting, "test", nil)))
	bus.Unsubscribe(sub)
	require.NoError(t, bus.Publish(ctx, NewEvent(EventImporting, "test", nil)))

	assert.Equal(t, 1, calls)
}

func TestMemoryBusHandlerErrorPropagates(t *testing.T) {
	bus := NewMemoryBus()
	want := errors.New("handler failed")
	bus.Subscribe(EventImported, func(ctx context.Context, e Event) error {
		return want
	})

	err := bus.Publish(context.Background(), NewEvent(EventImported, "test", nil))
	assert.ErrorIs(t, err, want)
}

func TestMemoryBusFilter(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus()

	calls := 0
	bus.SubscribeWithFilter(EventImported, func(ctx context.Context, e Event) error {
		calls++
		return nil
	}, func(e Event) bool {
		return e.Payload["new"] == true
	})

	require.NoError(t, bus.Publish(ctx, NewEvent(EventImported, "test", map[string]interface{}{"new": true})))
	require.NoError(t, bus.Publish(ctx, NewEvent(EventImported, "test", map[string]interface{}{"new": false})))

	assert.Equal(t, 1, calls)
}

func TestMemoryBusClosedRejectsPublish(t *testing.T) {
	bus := NewMemoryBus()
	require.NoError(t, bus.Close())
	assert.Error(t, bus.Publish(context.Background(), NewEvent(EventImported, "test", nil)))
}

func TestLoggingSubscriber(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	bus := NewMemoryBus()
	sub := NewLoggingSubscriber(bus, logger)

	require.NoError(t, bus.Publish(ctx, NewEvent(EventAuthenticated, "resolver", map[string]interface{}{"dn": "cn=jdoe"})))
	require.NoError(t, bus.Publish(ctx, NewEvent(EventAuthenticationFailed, "resolver", nil)))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, EventAuthenticated, entries[0].Message)
	assert.Equal(t, zap.InfoLevel, entries[0].Level)
	assert.Equal(t, EventAuthenticationFailed, entries[1].Message)
	assert.Equal(t, zap.WarnLevel, entries[1].Level)

	// Detached subscriber logs nothing further
	sub.Detach(bus)
	require.NoError(t, bus.Publish(ctx, NewEvent(EventAuthenticated, "resolver", nil)))
	assert.Len(t, logs.All(), 2)
}
