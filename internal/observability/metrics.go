package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the Prometheus collectors for the service. All recording
// methods are safe on a nil receiver.
type Metrics struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errors          *prometheus.CounterVec
	lookups         *prometheus.CounterVec
	escalations     prometheus.Counter
	resolutions     prometheus.Counter
	expirations     prometheus.Counter
	turns           *prometheus.CounterVec
}

// NewMetrics registers collectors on a dedicated registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "escalation_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"path", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "escalation_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "escalation_http_errors_total",
			Help: "HTTP errors by route, method and error code.",
		}, []string{"path", "method", "code"}),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "escalation_knowledge_lookups_total",
			Help: "Knowledge lookups by outcome (exact, partial, miss).",
		}, []string{"outcome"}),
		escalations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "escalation_help_requests_created_total",
			Help: "Help requests created.",
		}),
		resolutions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "escalation_help_requests_resolved_total",
			Help: "Help requests resolved by a supervisor.",
		}),
		expirations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "escalation_help_requests_expired_total",
			Help: "Help requests moved to UNRESOLVED by the timeout sweep.",
		}),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "escalation_agent_turns_total",
			Help: "Conversation turns by outcome.",
		}, []string{"outcome"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.requestDuration,
		m.errors,
		m.lookups,
		m.escalations,
		m.resolutions,
		m.expirations,
		m.turns,
	)
	return m
}

// Registry exposes the registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(path, method, code).Inc()
}

// RecordLookup counts a knowledge lookup outcome.
func (m *Metrics) RecordLookup(outcome string) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(outcome).Inc()
}

// RecordEscalation counts a created help request.
func (m *Metrics) RecordEscalation() {
	if m == nil {
		return
	}
	m.escalations.Inc()
}

// RecordResolution counts a supervisor resolution.
func (m *Metrics) RecordResolution() {
	if m == nil {
		return
	}
	m.resolutions.Inc()
}

// RecordExpired counts requests expired by a sweep.
func (m *Metrics) RecordExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.expirations.Add(float64(n))
}

// RecordTurn counts a conversation turn outcome.
func (m *Metrics) RecordTurn(outcome string) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(outcome).Inc()
}
