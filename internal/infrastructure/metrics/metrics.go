// Package metrics exposes arbiter counters and latencies in Prometheus
// format.
//
// Metrics live in a private registry rather than the global default one,
// so tests and multiple arbiters in one process do not collide.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "graylogic_arbiter"

// Metrics holds every collector the arbiter exports.
type Metrics struct {
	registry *prometheus.Registry

	LockEvents      *prometheus.CounterVec   // action=lock.select|lock.block|lock.delete|lock.conflict
	DispatchTotal   *prometheus.CounterVec   // status=SUCCESS|FAILURE|TIMEOUT|NOT_AUTHORIZED|UNAVAILABLE
	DispatchLatency *prometheus.HistogramVec // status
	HTTPRequests    *prometheus.CounterVec   // method, route, status
	HTTPDuration    *prometheus.HistogramVec // method, route
}

// New creates and registers the arbiter collectors plus the Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		LockEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "lock",
				Name:      "events_total",
				Help:      "Lock grants, deletions and conflicts by action.",
			},
			[]string{"action"},
		),
		DispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "commands_total",
				Help:      "Issued commands by result status.",
			},
			[]string{"status"},
		),
		DispatchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "duration_seconds",
				Help:      "Time from issue to result.",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms .. ~8s
			},
			[]string{"status"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests by route and status.",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	m.registry.MustRegister(
		m.LockEvents,
		m.DispatchTotal,
		m.DispatchLatency,
		m.HTTPRequests,
		m.HTTPDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Gauge registers a gauge whose value is read from fn at scrape time.
func (m *Metrics) Gauge(subsystem, name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, fn))
}

// ObserveLock counts one lock event.
func (m *Metrics) ObserveLock(action string) {
	m.LockEvents.WithLabelValues(action).Inc()
}

// ObserveDispatch counts one issued command and records its latency.
func (m *Metrics) ObserveDispatch(status string, d time.Duration) {
	m.DispatchTotal.WithLabelValues(status).Inc()
	m.DispatchLatency.WithLabelValues(status).Observe(d.Seconds())
}

// ObserveHTTP records one served request. route is the pattern, not the
// raw path, to keep cardinality bounded.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
