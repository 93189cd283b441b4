// Package bootstrap holds the wiring shared by every service binary:
// database pools, cache stores, broker consumers and the HTTP server
// lifecycle.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/meditrust/hospital-core/internal/config"
	"github.com/meditrust/hospital-core/internal/events"
	"github.com/meditrust/hospital-core/pkg/cache"
	"github.com/meditrust/hospital-core/pkg/logger"
)

const shutdownGrace = 10 * time.Second

// OpenDatabase opens the Postgres pool with the configured limits and
// verifies connectivity before returning.
func OpenDatabase(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	}
	return db, nil
}

// NewCacheStore connects to Redis. In development a connection failure falls
// back to the in-process store so the service still boots on a laptop; in
// every other environment the failure is fatal to the caller.
func NewCacheStore(cfg *config.Config, log logger.Logger) (cache.Store, error) {
	store, err := cache.NewRedisStore(cfg.Cache.Nodes, cfg.Cache.Password, cfg.Cache.DB,
		time.Duration(cfg.Cache.TTL)*time.Second, log)
	if err != nil {
		if cfg.Environment == "development" {
			log.Warn("Redis unavailable, using in-memory store", "error", err)
			return cache.NewMemoryStore(log), nil
		}
		return nil, err
	}
	return store, nil
}

// NewPublisher connects the AMQP publisher, with the same development-only
// fallback as the cache store.
func NewPublisher(cfg *config.Config, log logger.Logger) (events.Publisher, error) {
	pub, err := events.NewAMQPPublisher(cfg.Broker.URL, cfg.Broker.PublishRetries,
		cfg.Broker.DeadLetterDir, log)
	if err != nil {
		if cfg.Environment == "development" {
			log.Warn("Broker unavailable, events recorded in memory only", "error", err)
			return events.NewMemoryPublisher(), nil
		}
		return nil, err
	}
	return pub, nil
}

// ConsumerOptions maps the consumer config section onto the event fabric's
// options.
func ConsumerOptions(cfg config.ConsumerConfig) events.ConsumerOptions {
	return events.ConsumerOptions{
		Prefetch:       cfg.Prefetch,
		Handlers:       cfg.Handlers,
		HandlerTimeout: time.Duration(cfg.HandlerTimeout) * time.Second,
	}
}

// StartConsumer declares the queue and begins draining it in a goroutine.
// Consumer failure is fatal: a service that silently stops consuming would
// serve stale reads forever.
func StartConsumer(ctx context.Context, cfg *config.Config, queue events.QueueSpec, handler events.Handler, log logger.Logger) error {
	consumer, err := events.NewConsumer(cfg.Broker.URL, queue, handler, ConsumerOptions(cfg.Consumer), log)
	if err != nil {
		return err
	}
	go func() {
		if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
			log.Fatal("Consumer stopped unexpectedly", "queue", queue.Name, "error", err)
		}
	}()
	return nil
}

// RunHTTPServer serves handler on the port until the context is cancelled,
// then drains in-flight requests within the shutdown grace period.
func RunHTTPServer(ctx context.Context, port int, handler http.Handler, log logger.Logger) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
