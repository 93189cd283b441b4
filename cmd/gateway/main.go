package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/meditrust/hospital-core/internal/bootstrap"
	"github.com/meditrust/hospital-core/internal/config"
	"github.com/meditrust/hospital-core/internal/gateway"
	"github.com/meditrust/hospital-core/internal/token"
	"github.com/meditrust/hospital-core/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logg := logger.New(cfg.LogLevel, "gateway")
	logg.Info("Starting edge gateway", "environment", cfg.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tokens, err := token.NewService(cfg.JWT)
	if err != nil {
		logg.Fatal("Failed to initialize token service", "error", err)
	}

	store, err := bootstrap.NewCacheStore(cfg, logg)
	if err != nil {
		logg.Fatal("Failed to connect to cache", "error", err)
	}

	server, err := gateway.NewServer(cfg, tokens, store, logg)
	if err != nil {
		logg.Fatal("Failed to build gateway", "error", err)
	}
	server.StartDiscovery(ctx, cfg.Gateway, logg)
	watchRateLimit(ctx, server, logg)

	if err := bootstrap.RunHTTPServer(ctx, cfg.Port, server.Handler(), logg); err != nil {
		logg.Fatal("Gateway server failed", "error", err)
	}
	logg.Info("Gateway shutdown complete")
}

// watchRateLimit reloads rate-limit settings when the config file changes.
// No config file means no watcher; env-only deployments restart to change
// limits.
func watchRateLimit(ctx context.Context, server *gateway.Server, logg logger.Logger) {
	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = "./configs/config.yaml"
	}
	if _, err := os.Stat(path); err != nil {
		return
	}

	watcher := config.NewWatcher(path, logg)
	watcher.OnChange(func(cfg *config.Config) {
		server.UpdateRateLimit(cfg.RateLimit)
		logg.Info("Rate limit settings reloaded",
			"enabled", cfg.RateLimit.Enabled, "burst", cfg.RateLimit.Burst)
	})
	go func() {
		if err := watcher.Start(ctx); err != nil {
			logg.Error("Config watcher stopped", "error", err)
		}
	}()
}
