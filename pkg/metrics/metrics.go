// Package metrics provides Prometheus metrics for tropa.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application collectors. A nil *Metrics is valid and
// records nothing, so packages can take it as an optional dependency.
type Metrics struct {
	registry *prometheus.Registry

	transitions    *prometheus.CounterVec
	submissions    *prometheus.CounterVec
	submitDuration prometheus.Histogram
	lookups        *prometheus.CounterVec
	connections    prometheus.Gauge
	events         *prometheus.CounterVec
	panics         prometheus.Counter
}

// NewMetrics creates collectors registered on a private registry.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wizard_transitions_total",
			Help:      "Wizard navigation attempts by kind and outcome",
		}, []string{"kind", "outcome"}),
		submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wizard_submissions_total",
			Help:      "Wizard submissions by outcome",
		}, []string{"outcome"}),
		submitDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "wizard_submit_duration_seconds",
			Help:      "Time spent in the persistence collaborator",
			Buckets:   prometheus.DefBuckets,
		}),
		lookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookup_requests_total",
			Help:      "Lookup option loads by level and cache result",
		}, []string{"level", "cache"}),
		connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_connections_active",
			Help:      "Number of connected live sessions",
		}),
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_events_total",
			Help:      "Client events handled by live components",
		}, []string{"event"}),
		panics: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_panics_total",
			Help:      "Component panics recovered by the live runtime",
		}),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Transition records a navigation attempt (next, previous, jump, submit).
func (m *Metrics) Transition(kind, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(kind, outcome).Inc()
}

// Submission records the outcome of a call to the persistence collaborator.
func (m *Metrics) Submission(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome).Inc()
	if d > 0 {
		m.submitDuration.Observe(d.Seconds())
	}
}

// Lookup records an option load; cache is "hit", "miss" or "error".
func (m *Metrics) Lookup(level, cache string) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(level, cache).Inc()
}

// ConnectionOpened increments the active connection gauge.
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

// ConnectionClosed decrements the active connection gauge.
func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

// Event counts a client event.
func (m *Metrics) Event(name string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(name).Inc()
}

// Panic counts a recovered component panic.
func (m *Metrics) Panic() {
	if m == nil {
		return
	}
	m.panics.Inc()
}
