// Package metrics provides Prometheus metrics for the live preview server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors registered on one registry. A nil *Metrics
// records nothing, so components can take it as an optional dependency.
type Metrics struct {
	gatherer prometheus.Gatherer

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	previewRequestsTotal *prometheus.CounterVec
	previewBytesServed   prometheus.Counter

	prefChangesTotal *prometheus.CounterVec
	prefReloadsTotal *prometheus.CounterVec

	stateWritesTotal prometheus.Counter
}

// New registers the collectors on reg. Pass prometheus.NewRegistry() in
// tests to keep them isolated.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: reg,

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "livefs_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "status"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "livefs_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),

		previewRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "livefs_preview_requests_total",
				Help: "Live preview requests by outcome",
			},
			[]string{"outcome"},
		),

		previewBytesServed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "livefs_preview_bytes_served_total",
				Help: "Total file bytes served to live preview",
			},
		),

		prefChangesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "livefs_preference_changes_total",
				Help: "Preference change events by scope",
			},
			[]string{"scope"},
		),

		prefReloadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "livefs_preference_reloads_total",
				Help: "Settings file reloads by scope and result",
			},
			[]string{"scope", "result"},
		),

		stateWritesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "livefs_state_writes_total",
				Help: "Total view state writes",
			},
		),
	}
}

// Handler returns the Prometheus metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records an HTTP request metric. Paths are not used as
// a label since preview URLs are unbounded.
func (m *Metrics) RecordHTTPRequest(method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordPreview records the outcome of one routed preview request
// (file, dir, stat, redirect, not_found, error) and the body bytes sent.
func (m *Metrics) RecordPreview(outcome string, bytes int) {
	if m == nil {
		return
	}
	m.previewRequestsTotal.WithLabelValues(outcome).Inc()
	if outcome == "file" {
		m.previewBytesServed.Add(float64(bytes))
	}
}

// RecordPreferenceChange records a change event emitted by a scope.
func (m *Metrics) RecordPreferenceChange(scope string) {
	if m == nil {
		return
	}
	m.prefChangesTotal.WithLabelValues(scope).Inc()
}

// RecordPreferenceReload records a settings file reload.
func (m *Metrics) RecordPreferenceReload(scope string, success bool) {
	if m == nil {
		return
	}
	result := "success"
	if !success {
		result = "error"
	}
	m.prefReloadsTotal.WithLabelValues(scope, result).Inc()
}

// RecordStateWrite records a view state write.
func (m *Metrics) RecordStateWrite() {
	if m == nil {
		return
	}
	m.stateWritesTotal.Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		m.RecordHTTPRequest(r.Method, rw.statusCode, time.Since(start))
	})
}
