package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the prometheus collectors used across the service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	transitions    *prometheus.CounterVec
	sweeps         *prometheus.CounterVec
	flagged        prometheus.Counter
	notifyDropped  prometheus.Counter
	notifyFailed   *prometheus.CounterVec
	requestCount   *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	errorCount     *prometheus.CounterVec
}

// NewMetrics registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "supportbot_ticket_transitions_total",
			Help: "Successful ticket mutations by audit action.",
		}, []string{"action"}),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "supportbot_watchdog_sweeps_total",
			Help: "Watchdog sweeps by result.",
		}, []string{"result"}),
		flagged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "supportbot_watchdog_flagged_total",
			Help: "Tickets flagged as missed response.",
		}),
		notifyDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "supportbot_notifications_dropped_total",
			Help: "Events dropped because the delivery queue was full.",
		}),
		notifyFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "supportbot_notification_failures_total",
			Help: "Failed deliveries by event type.",
		}, []string{"event"}),
		requestCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "supportbot_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"path", "method", "status"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "supportbot_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method"}),
		errorCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "supportbot_http_errors_total",
			Help: "HTTP errors by domain code.",
		}, []string{"path", "method", "code"}),
	}
	reg.MustRegister(
		m.transitions, m.sweeps, m.flagged, m.notifyDropped, m.notifyFailed,
		m.requestCount, m.requestLatency, m.errorCount,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RecordTransition counts a committed ticket mutation.
func (m *Metrics) RecordTransition(action string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(action).Inc()
}

// RecordSweep counts a finished sweep and the tickets it flagged.
func (m *Metrics) RecordSweep(flagged int, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.sweeps.WithLabelValues(result).Inc()
	m.flagged.Add(float64(flagged))
}

// RecordNotificationDropped counts an event dropped on a full queue.
func (m *Metrics) RecordNotificationDropped() {
	if m == nil {
		return
	}
	m.notifyDropped.Inc()
}

// RecordNotificationFailure counts a failed delivery.
func (m *Metrics) RecordNotificationFailure(event string) {
	if m == nil {
		return
	}
	m.notifyFailed.WithLabelValues(event).Inc()
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestCount.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.requestLatency.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errorCount.WithLabelValues(path, method, code).Inc()
}
