// Package api assembles the HTTP routers shared by the hospital-core
// services.
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/meditrust/hospital-core/internal/api/middleware"
	"github.com/meditrust/hospital-core/internal/config"
	"github.com/meditrust/hospital-core/internal/monitoring"
	"github.com/meditrust/hospital-core/pkg/logger"
)

// NewRouter builds the base gin engine every service starts from: error
// envelope rendering, structured request logging, CORS and the metrics
// endpoint.
func NewRouter(cfg *config.Config, log logger.Logger) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.ErrorHandler(log))
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.CORSMiddleware(cfg.CORS))

	monitoring.SetupPrometheusMetrics(router)

	return router
}
