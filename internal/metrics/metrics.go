// Package metrics holds the Prometheus collectors for the aggregator UI.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "aggui"

// Metrics groups the collectors registered on one registry. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	loads         *prometheus.CounterVec
	loadDuration  *prometheus.HistogramVec
	staleResults  prometheus.Counter
	conflicts     prometheus.Counter
	divergences   *prometheus.CounterVec
	notifications *prometheus.CounterVec
	sessions      prometheus.Gauge
	requests      *prometheus.CounterVec
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		loads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "page",
				Name:      "loads_total",
				Help:      "Page loads by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		loadDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "page",
				Name:      "load_duration_seconds",
				Help:      "Duration of a full page load including per-record fetches.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
			},
			[]string{"kind"},
		),
		staleResults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "page",
			Name:      "stale_results_total",
			Help:      "Load results discarded because a newer load started.",
		}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "records",
			Name:      "update_conflicts_total",
			Help:      "Updates rejected with 412 Precondition Failed.",
		}),
		divergences: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "records",
				Name:      "reconcile_divergences_total",
				Help:      "Optimistic patches contradicted by the next refresh.",
			},
			[]string{"op"},
		),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "notify",
				Name:      "messages_total",
				Help:      "Change notifications received per route.",
			},
			[]string{"route"},
		),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Browser sessions with a live application root.",
		}),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests served by method and status.",
			},
			[]string{"method", "status"},
		),
	}

	m.registry.MustRegister(
		m.loads,
		m.loadDuration,
		m.staleResults,
		m.conflicts,
		m.divergences,
		m.notifications,
		m.sessions,
		m.requests,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveLoad(kind string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.loads.WithLabelValues(kind, outcome).Inc()
	m.loadDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

func (m *Metrics) StaleResult() {
	if m == nil {
		return
	}
	m.staleResults.Inc()
}

func (m *Metrics) Conflict() {
	if m == nil {
		return
	}
	m.conflicts.Inc()
}

func (m *Metrics) Divergence(op string) {
	if m == nil {
		return
	}
	m.divergences.WithLabelValues(op).Inc()
}

func (m *Metrics) Notification(route string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(route).Inc()
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessions.Dec()
}

func (m *Metrics) Request(method, status string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, status).Inc()
}
