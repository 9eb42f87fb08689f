// Package main is the entry point for the ldapgate service.
// It authenticates credentials against an LDAP directory and keeps a
// local user store synchronized with the entries that sign in.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ldapgate/ldapgate/internal/api"
	"github.com/ldapgate/ldapgate/internal/common/config"
	"github.com/ldapgate/ldapgate/internal/common/database"
	apperrors "github.com/ldapgate/ldapgate/internal/common/errors"
	"github.com/ldapgate/ldapgate/internal/common/events"
	"github.com/ldapgate/ldapgate/internal/common/logger"
	"github.com/ldapgate/ldapgate/internal/directory"
	"github.com/ldapgate/ldapgate/internal/importer"
	"github.com/ldapgate/ldapgate/internal/provider"
	"github.com/ldapgate/ldapgate/internal/resolver"
	"github.com/ldapgate/ldapgate/internal/rules"
	"github.com/ldapgate/ldapgate/internal/store"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	log := logger.New()
	defer log.Sync()

	log.Info("Starting ldapgate service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
	)

	cfg, err := config.Load("ldapgate-service")
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}
	cfg.LogSecurityWarnings(log)

	registry := importer.NewRegistry()

	scopes, err := directory.BuildScopes(cfg.Auth.Scopes)
	if err != nil {
		log.Fatal("Failed to parse query scopes", zap.Error(err))
	}
	if err := cfg.ValidateIdentifiers(registry.Names(), nameSet(rules.Names())); err != nil {
		log.Fatal("Invalid configuration", zap.Error(err))
	}

	// The nodb strategy runs without a database; imports land in a
	// process-local store so header sign-on still works
	var repo store.Repository
	if cfg.Auth.Provider == "directory-nodb" {
		repo = store.NewMemoryRepository()
	} else {
		db, err := database.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			log.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()
		repo = store.NewPostgresRepository(db.Pool)
	}

	var redis *database.RedisClient
	if cfg.EnableRateLimit {
		redis, err = database.NewRedis(cfg.RedisURL)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redis.Close()
	}

	bus := events.NewMemoryBus()
	events.NewLoggingSubscriber(bus, log)
	api.ObserveImports(bus)

	dirCfg := directoryConfig(cfg)
	client := directory.NewLDAPClient(dirCfg, log)
	if cfg.Auth.Provider != "local" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := client.Connect(ctx); err != nil {
			// The client redials per operation; startup continues so the
			// fallback path can serve while the directory is down
			log.Error("Directory connection failed", zap.Error(err))
		}
		cancel()
		defer client.Close()
	}

	res := resolver.New(client, dirCfg, resolver.Options{
		UsernameKey:       cfg.Auth.UsernameKey,
		PasswordKey:       cfg.Auth.PasswordKey,
		DiscoverAttribute: cfg.Auth.DiscoverAttribute,
		BindAttribute:     cfg.Auth.BindAttribute,
		Scopes:            scopes,
	}, bus, log)

	imp := importer.New(repo, registry, importer.Config{
		DatabaseKey:   cfg.Auth.DatabaseKey,
		Attributes:    cfg.Sync.Attributes,
		SyncPasswords: cfg.Sync.SyncPasswords,
		PasswordKey:   cfg.Auth.PasswordKey,
	}, bus, log)

	validator, err := rules.Build(cfg.Auth.Rules, bus, log)
	if err != nil {
		log.Fatal("Failed to build validation rules", zap.Error(err))
	}

	authProvider, err := buildProvider(cfg, res, imp, validator, repo, bus, log)
	if err != nil {
		log.Fatal("Failed to build auth provider", zap.Error(err))
	}

	tokens := api.NewTokenService(cfg.JWTSecret, time.Duration(cfg.JWTTTLMinutes)*time.Minute, log)

	windowsHeader := ""
	if cfg.WindowsAuth.Enabled {
		windowsHeader = cfg.WindowsAuth.Header
	}
	server := api.NewServer(authProvider, res, imp, validator, repo, tokens, bus, api.Options{
		ServiceName:   cfg.ServiceName,
		UsernameKey:   cfg.Auth.UsernameKey,
		PasswordKey:   cfg.Auth.PasswordKey,
		WindowsHeader: windowsHeader,
	}, log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(apperrors.ErrorHandler())
	router.Use(logger.GinMiddleware(log))
	if cfg.EnableRateLimit {
		router.Use(api.RateLimit(redis.Client, api.RateLimitConfig{
			Requests: cfg.RateLimitRequests,
			Window:   time.Duration(cfg.RateLimitWindow) * time.Second,
		}, log))
	}
	router.Use(api.PrometheusMetrics(cfg.ServiceName))

	server.Register(router)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("Server listening", zap.Int("port", cfg.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	log.Info("Server exited")
}

func buildProvider(cfg *config.Config, res *resolver.Resolver, imp *importer.Importer, validator *rules.Validator, repo store.Repository, bus events.Bus, log *zap.Logger) (provider.AuthProvider, error) {
	localOpts := provider.LocalOptions{
		UsernameKey: cfg.Auth.UsernameKey,
		PasswordKey: cfg.Auth.PasswordKey,
		DatabaseKey: cfg.Auth.DatabaseKey,
	}
	switch cfg.Auth.Provider {
	case "directory":
		opts := provider.DirectoryOptions{BindEntryToModel: cfg.Auth.BindEntryToModel}
		if cfg.Auth.Fallback {
			opts.Fallback = provider.NewLocalProvider(repo, localOpts, log)
		}
		return provider.NewDirectoryProvider(res, imp, validator, repo, opts, bus, log), nil
	case "local":
		return provider.NewLocalProvider(repo, localOpts, log), nil
	case "directory-nodb":
		return provider.NewNoDatabaseProvider(res, cfg.Sync.Attributes, bus, log), nil
	default:
		return nil, fmt.Errorf("unknown auth provider %q", cfg.Auth.Provider)
	}
}

func directoryConfig(cfg *config.Config) directory.Config {
	return directory.Config{
		Host:          cfg.LDAP.Host,
		Port:          cfg.LDAP.Port,
		UseTLS:        cfg.LDAP.UseTLS,
		StartTLS:      cfg.LDAP.StartTLS,
		SkipTLSVerify: cfg.LDAP.SkipTLSVerify,
		BindDN:        cfg.LDAP.BindDN,
		BindPassword:  cfg.LDAP.BindPassword,
		BaseDN:        cfg.LDAP.BaseDN,
		UserFilter:    cfg.LDAP.UserFilter,
		PageSize:      cfg.LDAP.PageSize,
		TimeoutSecs:   cfg.LDAP.TimeoutSecs,
		Flavor:        cfg.LDAP.Flavor,
	}
}

func nameSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	return set
}
