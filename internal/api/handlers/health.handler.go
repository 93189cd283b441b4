package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// readinessTimeout bounds each dependency probe so a hung dependency cannot
// stall the readiness endpoint.
const readinessTimeout = 2 * time.Second

// Probe checks one dependency.
type Probe func(ctx context.Context) error

// HealthHandler serves the /q/health endpoints.
type HealthHandler struct {
	service string
	probes  map[string]Probe
}

func NewHealthHandler(service string, probes map[string]Probe) *HealthHandler {
	return &HealthHandler{service: service, probes: probes}
}

// RegisterRoutes mounts the health endpoints under /q/health.
func (h *HealthHandler) RegisterRoutes(router gin.IRouter) {
	group := router.Group("/q/health")
	group.GET("", h.Summary)
	group.GET("/live", h.Live)
	group.GET("/ready", h.Ready)
}

// Summary reports overall health. A responding process is live, so the
// dependency probes decide the aggregate.
func (h *HealthHandler) Summary(c *gin.Context) {
	h.Ready(c)
}

// Live reports process liveness. It never probes dependencies; a live but
// degraded process must not be restarted by the orchestrator.
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "UP",
		"service": h.service,
	})
}

// Ready probes every dependency with a short deadline and reports 503 when
// any probe fails.
func (h *HealthHandler) Ready(c *gin.Context) {
	checks := make(map[string]string, len(h.probes))
	healthy := true

	for name, probe := range h.probes {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
		err := probe(ctx)
		cancel()
		if err != nil {
			checks[name] = "DOWN: " + err.Error()
			healthy = false
		} else {
			checks[name] = "UP"
		}
	}

	status := http.StatusOK
	overall := "UP"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "DOWN"
	}
	c.JSON(status, gin.H{
		"status":  overall,
		"service": h.service,
		"checks":  checks,
	})
}
