package api

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ldapgate/ldapgate/internal/common/events"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ldapgate",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"service", "method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ldapgate",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"service", "method", "path"},
	)

	// AuthAttemptsTotal counts sign-in attempts by strategy and outcome
	AuthAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ldapgate",
			Name:      "auth_attempts_total",
			Help:      "Total number of authentication attempts",
		},
		[]string{"strategy", "outcome"},
	)

	// ImportedUsersTotal counts users imported from the directory,
	// fed from the event bus by ObserveImports
	ImportedUsersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ldapgate",
			Name:      "imported_users_total",
			Help:      "Total number of users created or updated by directory imports",
		},
		[]string{"result"},
	)
)

// ObserveImports counts directory import results on the event bus. The
// importer publishes one import.imported event per processed entry.
func ObserveImports(bus events.Bus) *events.Subscription {
	return bus.Subscribe(events.EventImported, func(ctx context.Context, e events.Event) error {
		result := "updated"
		if isNew, ok := e.Payload["new"].(bool); ok && isNew {
			result = "created"
		}
		ImportedUsersTotal.WithLabelValues(result).Inc()
		return nil
	})
}

// PrometheusMetrics returns a Gin middleware that records HTTP metrics.
// serviceName is used as the "service" label on all metrics.
func PrometheusMetrics(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = "unknown"
		}

		// Skip metrics endpoint itself to avoid recursion
		if path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method

		httpRequestsTotal.WithLabelValues(serviceName, method, path, status).Inc()
		httpRequestDuration.WithLabelValues(serviceName, method, path).Observe(duration)
	}
}

// MetricsHandler returns a handler that serves Prometheus metrics.
// Register this on the "/metrics" route.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
