package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the Prometheus collectors for the client and the reference
// backend. Each instance owns a private registry.
type Metrics struct {
	registry *prometheus.Registry

	// API client metrics.
	APIRequestsTotal        *prometheus.CounterVec
	APIRequestDuration      *prometheus.HistogramVec
	APITransportErrorsTotal *prometheus.CounterVec

	// Session metrics.
	SessionTransitionsTotal *prometheus.CounterVec
	AuthFailuresTotal       *prometheus.CounterVec

	// Account controller metrics.
	AccountOpsTotal *prometheus.CounterVec

	// Reference backend metrics.
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	RateLimitRejectsTotal *prometheus.CounterVec

	StartTime prometheus.Gauge
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		APIRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edusync_api_requests_total",
			Help: "Total number of backend API requests issued by the client.",
		}, []string{"method", "route", "status"}),

		APIRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "edusync_api_request_duration_seconds",
			Help:    "Backend API round trip duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),

		APITransportErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edusync_api_transport_errors_total",
			Help: "Total number of API requests that failed before a response was received.",
		}, []string{"kind"}),

		SessionTransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edusync_session_transitions_total",
			Help: "Total number of session state transitions.",
		}, []string{"from", "to"}),

		AuthFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edusync_auth_failures_total",
			Help: "Total number of authentication failures by kind.",
		}, []string{"kind"}),

		AccountOpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edusync_account_ops_total",
			Help: "Total number of account operations by result.",
		}, []string{"op", "result"}),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edusync_http_requests_total",
			Help: "Total number of HTTP requests served by the reference backend.",
		}, []string{"method", "path_pattern", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "edusync_http_request_duration_seconds",
			Help:    "Reference backend request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path_pattern"}),

		RateLimitRejectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edusync_rate_limit_rejections_total",
			Help: "Total number of requests rejected by the reference backend's rate limiter.",
		}, []string{"scope"}),

		StartTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "edusync_start_time_seconds",
			Help: "Unix timestamp when the process started.",
		}),
	}

	reg.MustRegister(
		m.APIRequestsTotal,
		m.APIRequestDuration,
		m.APITransportErrorsTotal,
		m.SessionTransitionsTotal,
		m.AuthFailuresTotal,
		m.AccountOpsTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.RateLimitRejectsTotal,
		m.StartTime,
	)

	m.StartTime.Set(float64(time.Now().Unix()))

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Registry returns the private Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveAPIRequest records one completed API round trip. status is 0 when
// no response was received.
func (m *Metrics) ObserveAPIRequest(method, route string, status int, elapsed time.Duration) {
	m.APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.APIRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// IncTransportError increments the transport error counter.
func (m *Metrics) IncTransportError(kind string) {
	m.APITransportErrorsTotal.WithLabelValues(kind).Inc()
}

// ObserveTransition records a session state change.
func (m *Metrics) ObserveTransition(from, to string) {
	m.SessionTransitionsTotal.WithLabelValues(from, to).Inc()
}

// IncAuthFailure increments the auth failure counter for the given kind.
func (m *Metrics) IncAuthFailure(kind string) {
	m.AuthFailuresTotal.WithLabelValues(kind).Inc()
}

// IncAccountOp records the outcome of an account operation.
func (m *Metrics) IncAccountOp(op string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	m.AccountOpsTotal.WithLabelValues(op, result).Inc()
}

// ObserveHTTP records one request served by the reference backend.
func (m *Metrics) ObserveHTTP(method, pathPattern string, status int, elapsed time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(elapsed.Seconds())
}

// IncRateLimitRejection increments the rejection counter for scope.
func (m *Metrics) IncRateLimitRejection(scope string) {
	m.RateLimitRejectsTotal.WithLabelValues(scope).Inc()
}
