// Package metrics collects and exposes Prometheus metrics for the API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for auth attempts.
const (
	OutcomeSuccess            = "success"
	OutcomeInvalidInput       = "invalid_input"
	OutcomeConflict           = "conflict"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeError              = "error"
)

// Collector holds the Prometheus metrics of the service.
type Collector struct {
	authAttempts  *prometheus.CounterVec
	publishFail   *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	rateLimitHits prometheus.Counter
}

// NewCollector creates a Collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teamboard_auth_attempts_total",
			Help: "Registration and login attempts by outcome.",
		}, []string{"operation", "outcome"}),
		publishFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teamboard_event_publish_failures_total",
			Help: "User events that could not be published.",
		}, []string{"channel"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teamboard_http_requests_total",
			Help: "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status_code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "teamboard_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		rateLimitHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "teamboard_rate_limited_requests_total",
			Help: "Requests rejected by the auth rate limiter.",
		}),
	}

	reg.MustRegister(
		c.authAttempts,
		c.publishFail,
		c.httpRequests,
		c.httpDuration,
		c.rateLimitHits,
	)

	return c
}

// RecordAuth counts one register or login attempt.
func (c *Collector) RecordAuth(operation, outcome string) {
	c.authAttempts.WithLabelValues(operation, outcome).Inc()
}

// RecordPublishFailure counts an event that was dropped.
func (c *Collector) RecordPublishFailure(channel string) {
	c.publishFail.WithLabelValues(channel).Inc()
}

// RecordRateLimited counts a request rejected with 429.
func (c *Collector) RecordRateLimited() {
	c.rateLimitHits.Inc()
}

// Middleware records request counts and latency per matched route.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		c.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		c.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Handler returns the HTTP handler for Prometheus scrapes.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
