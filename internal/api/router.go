package api

import (
	"github.com/gin-gonic/gin"
)

// Register mounts the service routes on the engine. Middleware such as
// request logging, recovery, metrics and rate limiting is attached by the
// caller so tests can wire only what they exercise.
func (s *Server) Register(r *gin.Engine) {
	r.GET("/health", s.Health)
	r.GET("/ready", s.Ready)
	r.GET("/metrics", MetricsHandler())

	auth := r.Group("/api/v1/auth")
	auth.POST("/login", s.Login)
	auth.GET("/me", s.AuthRequired(), s.Me)
	if s.opts.WindowsHeader != "" {
		auth.GET("/sso", s.WindowsLogin)
	}
}
