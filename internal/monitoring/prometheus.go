// Package monitoring provides Prometheus metrics for the hospital platform
// services.
//
// Usage:
//
//  1. Mount the scrape endpoint on your router:
//     monitoring.SetupPrometheusMetrics(router)
//
//  2. Record operational metrics from services:
//     monitoring.RecordDBOperation("insert", "appointments", time.Since(start), true)
//     monitoring.RecordCacheOperation("get", "hit")
//     monitoring.RecordAuthAttempt("password", "success")
//     monitoring.RecordEventPublished("appointment.created", true)
//     monitoring.RecordEventConsumed("audit-service.events", "appointment.created", "processed")
//     monitoring.RecordDeadLetter("appointment.created")
//     monitoring.RecordRateLimitDecision("allowed")
package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hospital_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code", "tenant_id"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hospital_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "tenant_id"},
	)

	dbOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hospital_db_operations_total",
			Help: "Total number of database operations",
		},
		[]string{"operation", "table", "status"},
	)

	dbOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hospital_db_operation_duration_seconds",
			Help:    "Database operation duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation", "table"},
	)

	cacheOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hospital_cache_operations_total",
			Help: "Total number of cache operations",
		},
		[]string{"operation", "result"},
	)

	authAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hospital_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"method", "result"},
	)

	eventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hospital_events_published_total",
			Help: "Total number of domain events published to the broker",
		},
		[]string{"routing_key", "status"},
	)

	eventsConsumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hospital_events_consumed_total",
			Help: "Total number of domain events consumed from the broker",
		},
		[]string{"queue", "routing_key", "outcome"},
	)

	deadLettersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hospital_dead_letters_total",
			Help: "Total number of events routed to a dead-letter queue",
		},
		[]string{"routing_key"},
	)

	rateLimitDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hospital_rate_limit_decisions_total",
			Help: "Rate limiter decisions at the edge gateway",
		},
		[]string{"decision"},
	)

	upstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hospital_gateway_upstream_requests_total",
			Help: "Requests proxied to backend services by the gateway",
		},
		[]string{"service", "status_code"},
	)

	activeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hospital_active_connections",
			Help: "Number of in-flight HTTP requests",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		dbOperationsTotal,
		dbOperationDuration,
		cacheOperationsTotal,
		authAttemptsTotal,
		eventsPublishedTotal,
		eventsConsumedTotal,
		deadLettersTotal,
		rateLimitDecisionsTotal,
		upstreamRequestsTotal,
		activeConnections,
	)
}

// SetupPrometheusMetrics mounts the scrape endpoint at /q/metrics.
func SetupPrometheusMetrics(router *gin.Engine) {
	router.GET("/q/metrics", gin.WrapH(promhttp.Handler()))
}

// RecordHTTPRequest records a completed HTTP request.
func RecordHTTPRequest(method, endpoint string, statusCode int, tenantID string, duration time.Duration) {
	code := strconv.Itoa(statusCode)
	httpRequestsTotal.WithLabelValues(method, endpoint, code, tenantID).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint, tenantID).Observe(duration.Seconds())
}

// RecordDBOperation records a database round-trip.
func RecordDBOperation(operation, table string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	dbOperationsTotal.WithLabelValues(operation, table, status).Inc()
	dbOperationDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordCacheOperation records a cache operation outcome (hit/miss/error/success).
func RecordCacheOperation(operation, result string) {
	cacheOperationsTotal.WithLabelValues(operation, result).Inc()
}

// RecordAuthAttempt records a login or token verification attempt.
func RecordAuthAttempt(method, result string) {
	authAttemptsTotal.WithLabelValues(method, result).Inc()
}

// RecordEventPublished records a broker publish attempt.
func RecordEventPublished(routingKey string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	eventsPublishedTotal.WithLabelValues(routingKey, status).Inc()
}

// RecordEventConsumed records the outcome of one consumed delivery
// (processed, duplicate, dropped, requeued, dead_lettered).
func RecordEventConsumed(queue, routingKey, outcome string) {
	eventsConsumedTotal.WithLabelValues(queue, routingKey, outcome).Inc()
}

// RecordDeadLetter records an event routed to a dead-letter queue.
func RecordDeadLetter(routingKey string) {
	deadLettersTotal.WithLabelValues(routingKey).Inc()
}

// RecordRateLimitDecision records allowed / limited / fail_open decisions.
func RecordRateLimitDecision(decision string) {
	rateLimitDecisionsTotal.WithLabelValues(decision).Inc()
}

// RecordUpstreamRequest records a proxied backend response.
func RecordUpstreamRequest(service string, statusCode int) {
	upstreamRequestsTotal.WithLabelValues(service, strconv.Itoa(statusCode)).Inc()
}

// IncActiveConnections / DecActiveConnections track in-flight requests.
func IncActiveConnections() { activeConnections.Inc() }
func DecActiveConnections() { activeConnections.Dec() }
