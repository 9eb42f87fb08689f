package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func rateLimitedRouter(t *testing.T, cfg RateLimitConfig) (*gin.Engine, *miniredis.Miniredis) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	r := gin.New()
	r.Use(RateLimit(client, cfg, zap.NewNop()))
	r.POST("/api/v1/auth/login", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r, mr
}

func doPost(r *gin.Engine, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	req.RemoteAddr = "10.1.2.3:54321"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitBlocksAfterLimit(t *testing.T) {
	r, _ := rateLimitedRouter(t, RateLimitConfig{Requests: 3, Window: time.Minute})

	for i := 0; i < 3; i++ {
		w := doPost(r, "/api/v1/auth/login")
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := doPost(r, "/api/v1/auth/login")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestRateLimitSkipsProbes(t *testing.T) {
	r, _ := rateLimitedRouter(t, RateLimitConfig{Requests: 1, Window: time.Minute})

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRateLimitFailsOpenWhenRedisDown(t *testing.T) {
	r, mr := rateLimitedRouter(t, RateLimitConfig{Requests: 1, Window: time.Minute})
	mr.Close()

	for i := 0; i < 3; i++ {
		w := doPost(r, "/api/v1/auth/login")
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRateLimitNilClientAllows(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimit(nil, RateLimitConfig{Requests: 1, Window: time.Minute}, zap.NewNop()))
	r.POST("/api/v1/auth/login", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 3; i++ {
		w := doPost(r, "/api/v1/auth/login")
		assert.Equal(t, http.StatusOK, w.Code)
	}
}
