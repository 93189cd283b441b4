package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/meditrust/hospital-core/internal/api"
	"github.com/meditrust/hospital-core/internal/api/handlers"
	"github.com/meditrust/hospital-core/internal/audit"
	"github.com/meditrust/hospital-core/internal/bootstrap"
	"github.com/meditrust/hospital-core/internal/config"
	"github.com/meditrust/hospital-core/internal/events"
	"github.com/meditrust/hospital-core/internal/rbac"
	"github.com/meditrust/hospital-core/pkg/cache"
	"github.com/meditrust/hospital-core/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logg := logger.New(cfg.LogLevel, "audit-service")
	logg.Info("Starting audit service", "environment", cfg.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := bootstrap.OpenDatabase(cfg.Database)
	if err != nil {
		logg.Fatal("Failed to connect to database", "error", err)
	}
	defer db.Close()

	repo := audit.NewPostgresRepository(db)
	journal := audit.NewJournal(repo, logg)

	if err := bootstrap.StartConsumer(ctx, cfg, events.AuditQueue, journal.HandleEvent, logg); err != nil {
		logg.Fatal("Failed to start audit consumer", "error", err)
	}

	resolver := rbac.NewResolver(rbac.NewPostgresRepository(db), cache.NewLocal(), logg)

	router := api.NewRouter(cfg, logg)
	handlers.NewHealthHandler("audit-service", map[string]handlers.Probe{
		"database": db.PingContext,
	}).RegisterRoutes(router)
	handlers.NewAuditHandler(repo, resolver, logg).RegisterRoutes(router)

	if err := bootstrap.RunHTTPServer(ctx, cfg.Port, router, logg); err != nil {
		logg.Fatal("Audit service failed", "error", err)
	}
	logg.Info("Audit service shutdown complete")
}
