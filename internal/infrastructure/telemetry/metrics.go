package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pharmastock"

// Metrics holds the service collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	movements        *prometheus.CounterVec
	movementDuration *prometheus.HistogramVec
	outboxPublished  prometheus.Counter
	outboxDLQ        prometheus.Counter
}

// NewMetrics creates and registers all collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		movements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "movements_total",
			Help:      "Movement attempts by type and result code (ok on success).",
		}, []string{"type", "result"}),
		movementDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "movement_duration_seconds",
			Help:      "Time to execute one movement, including lock waits and retries.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"type"}),
		outboxPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "published_total",
			Help:      "Outbox messages delivered to the broker.",
		}),
		outboxDLQ: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "dead_lettered_total",
			Help:      "Outbox messages moved to the dead letter table.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.movements,
		m.movementDuration,
		m.outboxPublished,
		m.outboxDLQ,
	)
	return m
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// ObserveMovement records one movement attempt. result is "ok" or an error code.
func (m *Metrics) ObserveMovement(movementType, result string, d time.Duration) {
	m.movements.WithLabelValues(movementType, result).Inc()
	m.movementDuration.WithLabelValues(movementType).Observe(d.Seconds())
}

// OutboxPublished adds n delivered messages.
func (m *Metrics) OutboxPublished(n int) {
	m.outboxPublished.Add(float64(n))
}

// OutboxDeadLettered adds n dead-lettered messages.
func (m *Metrics) OutboxDeadLettered(n int64) {
	m.outboxDLQ.Add(float64(n))
}

// RegisterGauge exposes fn as a gauge, e.g. pool statistics.
func (m *Metrics) RegisterGauge(subsystem, name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, fn))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
