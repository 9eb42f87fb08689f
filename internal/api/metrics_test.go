package api

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ldapgate/ldapgate/internal/common/events"
)

func TestObserveImports(t *testing.T) {
	ctx := context.Background()
	bus := events.NewMemoryBus()
	sub := ObserveImports(bus)
	defer bus.Unsubscribe(sub)

	created := testutil.ToFloat64(ImportedUsersTotal.WithLabelValues("created"))
	updated := testutil.ToFloat64(ImportedUsersTotal.WithLabelValues("updated"))

	require.NoError(t, bus.Publish(ctx, events.NewEvent(events.EventImported, "importer", map[string]interface{}{"new": true})))
	require.NoError(t, bus.Publish(ctx, events.NewEvent(events.EventImported, "importer", map[string]interface{}{"new": false})))
	require.NoError(t, bus.Publish(ctx, events.NewEvent(events.EventImported, "importer", map[string]interface{}{"new": false})))

	assert.Equal(t, created+1, testutil.ToFloat64(ImportedUsersTotal.WithLabelValues("created")))
	assert.Equal(t, updated+2, testutil.ToFloat64(ImportedUsersTotal.WithLabelValues("updated")))
}
