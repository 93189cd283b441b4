package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/meditrust/hospital-core/internal/monitoring"
	"github.com/meditrust/hospital-core/pkg/logger"
)

// RequestLogger logs one structured line per request and feeds the HTTP
// metrics.
func RequestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		monitoring.IncActiveConnections()
		defer monitoring.DecActiveConnections()

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		tenantID := c.GetString("tenantId")
		if tenantID == "" {
			tenantID = c.Request.Header.Get("X-Tenant-Id")
		}

		monitoring.RecordHTTPRequest(c.Request.Method, c.FullPath(), status, tenantID, latency)

		fields := []interface{}{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency", latency,
			"client_ip", c.ClientIP(),
			"request_id", c.Request.Header.Get("X-Request-Id"),
			"tenant_id", tenantID,
		}

		switch {
		case status >= 500:
			log.Error("HTTP request", fields...)
		case status >= 400:
			log.Warn("HTTP request", fields...)
		default:
			log.Info("HTTP request", fields...)
		}
	}
}
