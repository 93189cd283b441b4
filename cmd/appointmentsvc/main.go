package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/meditrust/hospital-core/internal/api"
	"github.com/meditrust/hospital-core/internal/api/handlers"
	"github.com/meditrust/hospital-core/internal/appointment"
	"github.com/meditrust/hospital-core/internal/bootstrap"
	"github.com/meditrust/hospital-core/internal/config"
	"github.com/meditrust/hospital-core/internal/events"
	"github.com/meditrust/hospital-core/internal/rbac"
	"github.com/meditrust/hospital-core/internal/snapshot"
	"github.com/meditrust/hospital-core/pkg/cache"
	"github.com/meditrust/hospital-core/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logg := logger.New(cfg.LogLevel, "appointment-service")
	logg.Info("Starting appointment service", "environment", cfg.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := bootstrap.OpenDatabase(cfg.Database)
	if err != nil {
		logg.Fatal("Failed to connect to database", "error", err)
	}
	defer db.Close()

	publisher, err := bootstrap.NewPublisher(cfg, logg)
	if err != nil {
		logg.Fatal("Failed to connect to broker", "error", err)
	}
	defer publisher.Close()

	local := cache.NewLocal()
	facts := snapshot.NewPostgresRepository(db)
	projection := snapshot.NewProjection(facts, local, logg)

	for _, c := range []struct {
		queue   events.QueueSpec
		handler events.Handler
	}{
		{events.AppointmentPatientQueue, projection.HandlePatientEvent},
		{events.AppointmentDoctorQueue, projection.HandleDoctorEvent},
		{events.AppointmentCacheQueue, projection.HandleCacheEvent},
	} {
		if err := bootstrap.StartConsumer(ctx, cfg, c.queue, c.handler, logg); err != nil {
			logg.Fatal("Failed to start consumer", "queue", c.queue.Name, "error", err)
		}
	}

	resolver := rbac.NewResolver(rbac.NewPostgresRepository(db), cache.NewLocal(), logg)
	svc := appointment.NewService(appointment.NewPostgresRepository(db), facts, publisher, local, logg)

	router := api.NewRouter(cfg, logg)
	handlers.NewHealthHandler("appointment-service", map[string]handlers.Probe{
		"database": db.PingContext,
	}).RegisterRoutes(router)
	handlers.NewAppointmentHandler(svc, resolver, logg).RegisterRoutes(router)

	if err := bootstrap.RunHTTPServer(ctx, cfg.Port, router, logg); err != nil {
		logg.Fatal("Appointment service failed", "error", err)
	}
	logg.Info("Appointment service shutdown complete")
}
