package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ldapgate/ldapgate/internal/common/events"
	"github.com/ldapgate/ldapgate/internal/directory"
	"github.com/ldapgate/ldapgate/internal/importer"
	"github.com/ldapgate/ldapgate/internal/provider"
	"github.com/ldapgate/ldapgate/internal/resolver"
	"github.com/ldapgate/ldapgate/internal/rules"
	"github.com/ldapgate/ldapgate/internal/store"
)

type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "plain:" + password, nil }

func (plainHasher) Verify(hash, password string) bool { return hash == "plain:"+password }

type apiFixture struct {
	server   *Server
	router   *gin.Engine
	fake     *directory.FakeClient
	repo     *store.MemoryRepository
	bus      *events.MemoryBus
	tokens   *TokenService
	recorded *[]string
}

func newAPIFixture(t *testing.T, opts Options) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	fake := directory.NewFakeClient()
	repo := store.NewMemoryRepository()
	bus := events.NewMemoryBus()
	var recorded []string
	bus.SubscribeAll(func(ctx context.Context, e events.Event) error {
		recorded = append(recorded, e.Type)
		return nil
	})

	dirCfg := directory.Config{Flavor: directory.FlavorActiveDirectory, BaseDN: "dc=acme,dc=org"}
	res := resolver.New(fake, dirCfg, resolver.Options{DiscoverAttribute: "sAMAccountName"}, bus, logger)
	imp := importer.New(repo, importer.NewRegistry(), importer.Config{
		Attributes: map[string]string{"email": "mail", "name": "cn"},
	}, bus, logger)
	imp.SetHasher(plainHasher{})

	validator, err := rules.Build([]string{"deny_trashed"}, bus, logger)
	require.NoError(t, err)

	dp := provider.NewDirectoryProvider(res, imp, validator, repo, provider.DirectoryOptions{}, bus, logger)
	tokens := NewTokenService("test-secret", time.Minute, logger)

	if opts.ServiceName == "" {
		opts.ServiceName = "ldapgate-service"
	}
	server := NewServer(dp, res, imp, validator, repo, tokens, bus, opts, logger)

	router := gin.New()
	server.Register(router)

	return &apiFixture{
		server:   server,
		router:   router,
		fake:     fake,
		repo:     repo,
		bus:      bus,
		tokens:   tokens,
		recorded: &recorded,
	}
}

func (f *apiFixture) addUser(sam, mail, cn, password string) {
	e := directory.NewEntry("cn="+sam+",ou=people,dc=acme,dc=org", map[string][]string{
		"sAMAccountName": {sam},
		"mail":           {mail},
		"cn":             {cn},
	})
	e.ObjectGUID = "guid-" + sam
	f.fake.AddEntry(e, password)
}

func (f *apiFixture) postLogin(t *testing.T, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestLogin(t *testing.T) {
	f := newAPIFixture(t, Options{})
	f.addUser("jdoe", "jdoe@acme.org", "John Doe", "hunter2")

	t.Run("valid credentials issue a token", func(t *testing.T) {
		w := f.postLogin(t, gin.H{"username": "jdoe", "password": "hunter2"})
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Token     string      `json:"token"`
			ExpiresIn int         `json:"expires_in"`
			User      *store.User `json:"user"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.NotEmpty(t, resp.Token)
		assert.Equal(t, 60, resp.ExpiresIn)
		assert.Equal(t, "jdoe@acme.org", resp.User.Email)

		claims, err := f.tokens.Validate(resp.Token)
		require.NoError(t, err)
		assert.Equal(t, "jdoe@acme.org", claims.Email)
		assert.Equal(t, resp.User.ID, claims.Subject)

		assert.Equal(t, 1, f.repo.Count())
	})

	t.Run("wrong password is rejected", func(t *testing.T) {
		w := f.postLogin(t, gin.H{"username": "jdoe", "password": "wrong"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown user is rejected", func(t *testing.T) {
		w := f.postLogin(t, gin.H{"username": "ghost", "password": "hunter2"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("missing fields are a bad request", func(t *testing.T) {
		w := f.postLogin(t, gin.H{"username": "jdoe"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestLoginPasswordNeverSerialized(t *testing.T) {
	f := newAPIFixture(t, Options{})
	f.addUser("jdoe", "jdoe@acme.org", "John Doe", "hunter2")

	w := f.postLogin(t, gin.H{"username": "jdoe", "password": "hunter2"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "password")
	assert.NotContains(t, w.Body.String(), "hunter2")
}

func TestMe(t *testing.T) {
	f := newAPIFixture(t, Options{})
	f.addUser("jdoe", "jdoe@acme.org", "John Doe", "hunter2")

	w := f.postLogin(t, gin.H{"username": "jdoe", "password": "hunter2"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp loginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	t.Run("valid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
		req.Header.Set("Authorization", "Bearer "+resp.Token)
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "jdoe@acme.org")
	})

	t.Run("missing token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
		req.Header.Set("Authorization", "Bearer not-a-token")
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestWindowsLogin(t *testing.T) {
	f := newAPIFixture(t, Options{WindowsHeader: "X-Remote-User"})
	f.addUser("jdoe", "jdoe@acme.org", "John Doe", "hunter2")

	sso := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/sso", nil)
		if header != "" {
			req.Header.Set("X-Remote-User", header)
		}
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		return rec
	}

	t.Run("trusted header signs in without a bind", func(t *testing.T) {
		rec := sso("jdoe")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp loginResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "jdoe@acme.org", resp.User.Email)
		assert.Empty(t, f.fake.BindCalls)
		assert.Equal(t, 1, f.repo.Count())
		assert.Contains(t, *f.recorded, events.EventAuthenticatedWithWindows)
	})

	t.Run("down-level domain prefix is stripped", func(t *testing.T) {
		rec := sso(`ACME\jdoe`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, f.repo.Count())
	})

	t.Run("missing header is unauthorized", func(t *testing.T) {
		rec := sso("")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown account is not found", func(t *testing.T) {
		rec := sso("ghost")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestWindowsLoginDisabled(t *testing.T) {
	f := newAPIFixture(t, Options{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/sso", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndReady(t *testing.T) {
	f := newAPIFixture(t, Options{ServiceName: "ldapgate-service"})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ldapgate-service")

	req = httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
