package gateway

import (
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/meditrust/hospital-core/internal/apperr"
	"github.com/meditrust/hospital-core/internal/config"
	"github.com/meditrust/hospital-core/internal/monitoring"
	"github.com/meditrust/hospital-core/pkg/cache"
	"github.com/meditrust/hospital-core/pkg/logger"
)

const rateLimitWindow = time.Minute

// RateLimitSettings holds the live rate-limit configuration. The config
// watcher swaps it at runtime so limits change without restarting the edge.
type RateLimitSettings struct {
	v atomic.Value
}

func NewRateLimitSettings(cfg config.RateLimitConfig) *RateLimitSettings {
	s := &RateLimitSettings{}
	s.v.Store(cfg)
	return s
}

func (s *RateLimitSettings) Load() config.RateLimitConfig {
	return s.v.Load().(config.RateLimitConfig)
}

func (s *RateLimitSettings) Store(cfg config.RateLimitConfig) {
	s.v.Store(cfg)
}

// RateLimitMiddleware implements a per-client token bucket in the shared
// cache: SetNX seeds the bucket with burst-1 tokens and the window TTL, then
// each request decrements. A negative counter means the bucket is empty.
// Cache failures fail open so the edge never drops traffic on a cache
// outage.
func RateLimitMiddleware(store cache.Store, settings *RateLimitSettings, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		cfg := settings.Load()
		if !cfg.Enabled || IsPublicPath(c.Request.URL.Path) {
			c.Next()
			return
		}

		key := fmt.Sprintf("ratelimit:%s", clientKey(c))
		ctx := c.Request.Context()

		created, err := store.SetNX(ctx, key, cfg.Burst-1, rateLimitWindow)
		if err != nil {
			log.Warn("Rate limit store unavailable, failing open", "error", err)
			monitoring.RecordRateLimitDecision("fail_open")
			c.Next()
			return
		}
		if created {
			monitoring.RecordRateLimitDecision("allowed")
			setRateLimitHeaders(c, cfg, int64(cfg.Burst-1))
			c.Next()
			return
		}

		remaining, err := store.Decr(ctx, key)
		if err != nil {
			log.Warn("Rate limit store unavailable, failing open", "error", err)
			monitoring.RecordRateLimitDecision("fail_open")
			c.Next()
			return
		}
		if remaining < 0 {
			monitoring.RecordRateLimitDecision("rejected")
			setRateLimitHeaders(c, cfg, 0)
			c.Header("Retry-After", strconv.Itoa(int(rateLimitWindow.Seconds())))
			renderError(c, apperr.RateLimited())
			return
		}

		monitoring.RecordRateLimitDecision("allowed")
		setRateLimitHeaders(c, cfg, remaining)
		c.Next()
	}
}

// clientKey identifies the bucket owner. The limiter runs before
// authentication so identity is never available here; buckets key on the
// client IP.
func clientKey(c *gin.Context) string {
	return "ip:" + c.ClientIP()
}

func setRateLimitHeaders(c *gin.Context, cfg config.RateLimitConfig, remaining int64) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.RequestsPerMinute))
	c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
}
