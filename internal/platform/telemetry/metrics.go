// Package telemetry wires Prometheus metrics and OpenTelemetry tracing.
package telemetry

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "clinic"

// Metrics holds every collector the server exports. A nil *Metrics is valid
// and records nothing, so services can run without instrumentation in tests.
type Metrics struct {
	registry *prometheus.Registry

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	ordersCreated       prometheus.Counter
	orderFailures       *prometheus.CounterVec
	lockRetries         prometheus.Counter
	fulfillmentDuration *prometheus.HistogramVec

	auditEnqueued prometheus.Counter
	auditDropped  prometheus.Counter
	auditWritten  *prometheus.CounterVec
	auditFailed   *prometheus.CounterVec
}

// NewMetrics registers all collectors on a private registry together with
// the Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_in_flight_requests",
			Help:      "In-flight HTTP requests.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latencies in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),

		ordersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Orders committed by the fulfillment engine.",
		}),
		orderFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_failures_total",
			Help:      "Order creations that failed, by error kind.",
		}, []string{"kind"}),
		lockRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_lock_retries_total",
			Help:      "Fulfillment attempts retried after a lock timeout, deadlock or serialization failure.",
		}),
		fulfillmentDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fulfillment_duration_seconds",
			Help:      "Wall time of CreateOrder including retries.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"outcome"}),

		auditEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_enqueued_total",
			Help:      "Audit entries accepted by the recorder queue.",
		}),
		auditDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_dropped_total",
			Help:      "Audit entries dropped because the queue was full or closed.",
		}),
		auditWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_written_total",
			Help:      "Audit entries written, by sink.",
		}, []string{"sink"}),
		auditFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_write_failures_total",
			Help:      "Audit entries a sink failed to write after all retries.",
		}, []string{"sink"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpInFlight, m.httpRequestsTotal, m.httpRequestDuration,
		m.ordersCreated, m.orderFailures, m.lockRetries, m.fulfillmentDuration,
		m.auditEnqueued, m.auditDropped, m.auditWritten, m.auditFailed,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

func (m *Metrics) HTTPStarted() {
	if m == nil {
		return
	}
	m.httpInFlight.Inc()
}

func (m *Metrics) HTTPFinished(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpInFlight.Dec()
	code := strconv.Itoa(status)
	m.httpRequestsTotal.WithLabelValues(method, route, code).Inc()
	m.httpRequestDuration.WithLabelValues(method, route, code).Observe(d.Seconds())
}

// OrderCreated records a committed order and its end-to-end duration.
func (m *Metrics) OrderCreated(d time.Duration) {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
	m.fulfillmentDuration.WithLabelValues("success").Observe(d.Seconds())
}

// OrderFailed records a failed creation under its error kind.
func (m *Metrics) OrderFailed(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.orderFailures.WithLabelValues(kind).Inc()
	m.fulfillmentDuration.WithLabelValues("failure").Observe(d.Seconds())
}

func (m *Metrics) LockRetry() {
	if m == nil {
		return
	}
	m.lockRetries.Inc()
}

func (m *Metrics) AuditEnqueued() {
	if m == nil {
		return
	}
	m.auditEnqueued.Inc()
}

func (m *Metrics) AuditDropped() {
	if m == nil {
		return
	}
	m.auditDropped.Inc()
}

func (m *Metrics) AuditWritten(sink string) {
	if m == nil {
		return
	}
	m.auditWritten.WithLabelValues(sink).Inc()
}

func (m *Metrics) AuditFailed(sink string) {
	if m == nil {
		return
	}
	m.auditFailed.WithLabelValues(sink).Inc()
}
