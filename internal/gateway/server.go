// Package gateway implements the edge: authentication, rate limiting, header
// injection and routing to backend services.
package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/meditrust/hospital-core/internal/api"
	"github.com/meditrust/hospital-core/internal/api/handlers"
	"github.com/meditrust/hospital-core/internal/config"
	"github.com/meditrust/hospital-core/internal/discovery"
	"github.com/meditrust/hospital-core/internal/token"
	"github.com/meditrust/hospital-core/pkg/cache"
	"github.com/meditrust/hospital-core/pkg/logger"
)

// Server is the assembled edge gateway.
type Server struct {
	router    *gin.Engine
	registry  *discovery.Registry
	rateLimit *RateLimitSettings
}

// NewServer wires the gateway pipeline. Middleware order matters: CORS
// first, then rate limiting, then authentication, then routing; health and
// metrics are mounted outside the proxied namespace.
func NewServer(cfg *config.Config, tokens *token.Service, store cache.Store, log logger.Logger) (*Server, error) {
	registry, err := discovery.NewRegistry(cfg.Gateway.Balancer, log)
	if err != nil {
		return nil, err
	}
	for name, svc := range cfg.Gateway.Services {
		registry.Register(name, svc.Endpoints)
	}

	rateLimit := NewRateLimitSettings(cfg.RateLimit)
	router := api.NewRouter(cfg, log)
	router.Use(RateLimitMiddleware(store, rateLimit, log))
	router.Use(AuthMiddleware(tokens, cfg.DefaultTenantID, log))

	health := handlers.NewHealthHandler("gateway", map[string]handlers.Probe{
		"cache":        store.HealthCheck,
		"auth-service": authServiceProbe(registry),
	})
	health.RegisterRoutes(router)

	proxy := NewProxy(registry, cfg.Gateway, log)
	router.NoRoute(proxy.Handle)

	return &Server{router: router, registry: registry, rateLimit: rateLimit}, nil
}

// UpdateRateLimit swaps the live rate-limit settings; wired to the config
// watcher.
func (s *Server) UpdateRateLimit(cfg config.RateLimitConfig) {
	s.rateLimit.Store(cfg)
}

// StartDiscovery launches DNS discovery for every service that enables it.
func (s *Server) StartDiscovery(ctx context.Context, cfg config.GatewayConfig, log logger.Logger) {
	for name, svc := range cfg.Services {
		if svc.Discovery.Enabled {
			discovery.StartDNSDiscovery(ctx, svc.Discovery, s.registry.SinkFor(name), log)
		}
	}
}

// Handler exposes the underlying router.
func (s *Server) Handler() http.Handler { return s.router }

// authServiceProbe reports ready only when the auth service answers its
// liveness endpoint; a gateway that cannot reach auth cannot serve logins.
func authServiceProbe(registry *discovery.Registry) handlers.Probe {
	return func(ctx context.Context) error {
		endpoint, release, err := registry.Pick("auth-service")
		if err != nil {
			return err
		}
		defer release()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/q/health/live", nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("auth-service liveness returned %d", resp.StatusCode)
		}
		return nil
	}
}
