// Package metrics exposes the gate's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultNamespace = "agency_platform"

// Metrics holds the collectors and the registry they are registered with.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	GateDecisions       *prometheus.CounterVec
	RateLimitDecisions  *prometheus.CounterVec
	RateLimitStoreErrs  *prometheus.CounterVec
	AuthAttempts        *prometheus.CounterVec
	StoreReadDuration   *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry. An empty namespace
// selects the default.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = defaultNamespace
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		GateDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_decisions_total",
			Help:      "Request gate outcomes by the last stage reached",
		}, []string{"stage", "outcome"}),
		RateLimitDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_decisions_total",
			Help:      "Rate limiter decisions by policy",
		}, []string{"policy", "allowed"}),
		RateLimitStoreErrs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_store_errors_total",
			Help:      "Rate limiter store failures; the request was let through",
		}, []string{"policy"}),
		AuthAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_attempts_total",
			Help:      "Credential and token exchange attempts by result",
		}, []string{"operation", "result"}),
		StoreReadDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_read_duration_seconds",
			Help:      "Duration of principal and tenant store reads in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordGate counts a gate outcome at stage.
func (m *Metrics) RecordGate(stage, outcome string) {
	if m == nil {
		return
	}
	m.GateDecisions.WithLabelValues(stage, outcome).Inc()
}

func (m *Metrics) RecordRateLimit(policy string, allowed bool) {
	if m == nil {
		return
	}
	m.RateLimitDecisions.WithLabelValues(policy, strconv.FormatBool(allowed)).Inc()
}

func (m *Metrics) RecordRateLimitStoreError(policy string) {
	if m == nil {
		return
	}
	m.RateLimitStoreErrs.WithLabelValues(policy).Inc()
}

func (m *Metrics) RecordAuth(operation, result string) {
	if m == nil {
		return
	}
	m.AuthAttempts.WithLabelValues(operation, result).Inc()
}

// TrackStoreRead returns a function that records the duration of a store read
func (m *Metrics) TrackStoreRead(operation string) func() {
	start := time.Now()
	return func() {
		if m == nil {
			return
		}
		m.StoreReadDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

// Middleware tracks request count and latency by route template.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			status := strconv.Itoa(c.Response().Status)
			method := c.Request().Method

			m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
			m.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}
