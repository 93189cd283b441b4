package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/meditrust/hospital-core/internal/api"
	"github.com/meditrust/hospital-core/internal/api/handlers"
	"github.com/meditrust/hospital-core/internal/bootstrap"
	"github.com/meditrust/hospital-core/internal/config"
	"github.com/meditrust/hospital-core/internal/events"
	"github.com/meditrust/hospital-core/internal/identity"
	"github.com/meditrust/hospital-core/internal/rbac"
	"github.com/meditrust/hospital-core/internal/token"
	"github.com/meditrust/hospital-core/pkg/cache"
	"github.com/meditrust/hospital-core/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logg := logger.New(cfg.LogLevel, "auth-service")
	logg.Info("Starting auth service", "environment", cfg.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := bootstrap.OpenDatabase(cfg.Database)
	if err != nil {
		logg.Fatal("Failed to connect to database", "error", err)
	}
	defer db.Close()

	tokens, err := token.NewService(cfg.JWT)
	if err != nil {
		logg.Fatal("Failed to initialize token service", "error", err)
	}

	publisher, err := bootstrap.NewPublisher(cfg, logg)
	if err != nil {
		logg.Fatal("Failed to connect to broker", "error", err)
	}
	defer publisher.Close()

	resolver := rbac.NewResolver(rbac.NewPostgresRepository(db), cache.NewLocal(), logg)
	identitySvc := identity.NewService(identity.NewPostgresRepository(db), resolver,
		tokens, publisher, cfg.Lockout, logg)

	// RBAC resolutions are cached per replica; user mutations and broadcast
	// flushes arriving on the fabric evict them.
	err = bootstrap.StartConsumer(ctx, cfg, events.AuthCacheQueue, func(_ context.Context, event events.Event) error {
		switch e := event.(type) {
		case *events.UserUpdated:
			resolver.InvalidateUser(e.TenantID, e.UserID)
		case *events.CacheInvalidate:
			resolver.InvalidateAll()
		}
		return nil
	}, logg)
	if err != nil {
		logg.Fatal("Failed to start cache consumer", "error", err)
	}

	router := api.NewRouter(cfg, logg)
	handlers.NewHealthHandler("auth-service", map[string]handlers.Probe{
		"database": db.PingContext,
	}).RegisterRoutes(router)
	handlers.NewAuthHandler(identitySvc, resolver, logg).RegisterRoutes(router, cfg.DefaultTenantID)

	if err := bootstrap.RunHTTPServer(ctx, cfg.Port, router, logg); err != nil {
		logg.Fatal("Auth service failed", "error", err)
	}
	logg.Info("Auth service shutdown complete")
}
