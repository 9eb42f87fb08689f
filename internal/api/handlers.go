// Package api exposes the HTTP surface of the gateway: credential login,
// trusted-header sign-in, health probes and Prometheus metrics.
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/ldapgate/ldapgate/internal/common/errors"
	"github.com/ldapgate/ldapgate/internal/common/events"
	"github.com/ldapgate/ldapgate/internal/importer"
	"github.com/ldapgate/ldapgate/internal/provider"
	"github.com/ldapgate/ldapgate/internal/resolver"
	"github.com/ldapgate/ldapgate/internal/rules"
	"github.com/ldapgate/ldapgate/internal/store"
)

// Options tune the HTTP handlers.
type Options struct {
	ServiceName string
	UsernameKey string
	PasswordKey string

	// WindowsHeader names the trusted header carrying the upstream
	// authenticated account. Empty disables the single sign-on route.
	WindowsHeader string
}

// Server bundles the authentication pipeline behind gin handlers.
type Server struct {
	provider  provider.AuthProvider
	resolver  *resolver.Resolver
	importer  *importer.Importer
	validator *rules.Validator
	repo      store.Repository
	tokens    *TokenService
	bus       events.Bus
	opts      Options
	logger    *zap.Logger
}

func NewServer(p provider.AuthProvider, res *resolver.Resolver, imp *importer.Importer, validator *rules.Validator, repo store.Repository, tokens *TokenService, bus events.Bus, opts Options, logger *zap.Logger) *Server {
	if opts.UsernameKey == "" {
		opts.UsernameKey = "email"
	}
	if opts.PasswordKey == "" {
		opts.PasswordKey = "password"
	}
	return &Server{
		provider:  p,
		resolver:  res,
		importer:  imp,
		validator: validator,
		repo:      repo,
		tokens:    tokens,
		bus:       bus,
		opts:      opts,
		logger:    logger.With(zap.String("component", "api")),
	}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginResponse struct {
	Token     string      `json:"token"`
	ExpiresIn int         `json:"expires_in"`
	User      *store.User `json:"user"`
}

// Login authenticates a credential pair and issues an access token.
func (s *Server) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.HandleError(c, apperrors.BadRequest("username and password are required"))
		return
	}

	creds := resolver.Credentials{
		s.opts.UsernameKey: req.Username,
		s.opts.PasswordKey: req.Password,
	}

	user, err := provider.Authenticate(c.Request.Context(), s.provider, creds)
	if err != nil {
		AuthAttemptsTotal.WithLabelValues("credentials", "error").Inc()
		apperrors.HandleError(c, err)
		return
	}
	if user == nil {
		AuthAttemptsTotal.WithLabelValues("credentials", "failure").Inc()
		apperrors.HandleError(c, apperrors.InvalidCredentials())
		return
	}

	token, err := s.tokens.Generate(user)
	if err != nil {
		apperrors.HandleError(c, apperrors.Internal("failed to issue token", err))
		return
	}

	AuthAttemptsTotal.WithLabelValues("credentials", "success").Inc()
	c.JSON(http.StatusOK, loginResponse{
		Token:     token,
		ExpiresIn: int(s.tokens.TTL().Seconds()),
		User:      user,
	})
}

// WindowsLogin signs in the account named by the trusted upstream header.
// The reverse proxy in front has already authenticated the client, so no
// bind is performed; the account is resolved, imported and persisted.
func (s *Server) WindowsLogin(c *gin.Context) {
	account := c.GetHeader(s.opts.WindowsHeader)
	if account == "" {
		apperrors.HandleError(c, apperrors.Unauthorized("missing trusted authentication header"))
		return
	}
	// Strip a DOMAIN\ prefix when the proxy forwards down-level names
	if i := strings.LastIndex(account, `\`); i >= 0 {
		account = account[i+1:]
	}

	ctx := c.Request.Context()
	entry, err := s.resolver.ByUsername(ctx, account)
	if err != nil {
		AuthAttemptsTotal.WithLabelValues("windows", "error").Inc()
		apperrors.HandleError(c, err)
		return
	}
	if entry == nil {
		AuthAttemptsTotal.WithLabelValues("windows", "failure").Inc()
		apperrors.HandleError(c, apperrors.UserNotFound(account))
		return
	}

	user, err := s.importer.Run(ctx, entry, nil)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}

	if s.validator != nil && !s.validator.Passes(ctx, entry, user) {
		AuthAttemptsTotal.WithLabelValues("windows", "failure").Inc()
		apperrors.HandleError(c, apperrors.InvalidCredentials())
		return
	}

	if user.Saved() {
		err = s.repo.Save(ctx, user)
	} else {
		err = s.repo.Create(ctx, user)
	}
	if err != nil {
		apperrors.HandleError(c, apperrors.DatabaseError("persist user", err))
		return
	}

	s.publish(ctx, events.EventAuthenticatedWithWindows, map[string]interface{}{
		"dn":      entry.DN,
		"user_id": user.ID,
	})

	token, err := s.tokens.Generate(user)
	if err != nil {
		apperrors.HandleError(c, apperrors.Internal("failed to issue token", err))
		return
	}

	AuthAttemptsTotal.WithLabelValues("windows", "success").Inc()
	user.Entry = nil
	c.JSON(http.StatusOK, loginResponse{
		Token:     token,
		ExpiresIn: int(s.tokens.TTL().Seconds()),
		User:      user,
	})
}

// Me returns the claims of the presented access token.
func (s *Server) Me(c *gin.Context) {
	claims, ok := c.Get("claims")
	if !ok {
		apperrors.HandleError(c, apperrors.Unauthorized("missing token"))
		return
	}
	c.JSON(http.StatusOK, claims)
}

// Health reports process liveness.
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": s.opts.ServiceName,
	})
}

// Ready reports whether the backing store answers.
func (s *Server) Ready(c *gin.Context) {
	if s.repo != nil {
		if err := s.repo.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "degraded",
				"error":  err.Error(),
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// AuthRequired validates the bearer token and stores its claims.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || token == "" {
			apperrors.HandleError(c, apperrors.Unauthorized("missing bearer token"))
			c.Abort()
			return
		}
		claims, err := s.tokens.Validate(token)
		if err != nil {
			apperrors.HandleError(c, apperrors.InvalidToken(err.Error()))
			c.Abort()
			return
		}
		c.Set("claims", claims)
		c.Set("user_id", claims.Subject)
		c.Next()
	}
}

func (s *Server) publish(ctx context.Context, eventType string, payload map[string]interface{}) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, events.NewEvent(eventType, "api", payload)); err != nil {
		s.logger.Warn("event publish failed", zap.String("event", eventType), zap.Error(err))
	}
}
