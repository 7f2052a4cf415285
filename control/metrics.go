// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics for the dispatch substrate, exported through a private
// prometheus registry. A nil *Metrics is valid and records nothing.

package control

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "hioload_dispatch"

// Metrics holds the collectors shared by reactors, dispatch threads and multiplexers.
type Metrics struct {
	registry      *prometheus.Registry
	dispatches    prometheus.Counter
	watches       prometheus.Gauge
	reclaims      *prometheus.CounterVec
	retiring      prometheus.Gauge
	threads       prometheus.Gauge
	notifications prometheus.Counter
}

// NewMetrics creates and registers all collectors under namespace.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		dispatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Child dispatch calls made by multiplexing reactors.",
		}),
		watches: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "watches",
			Help:      "Currently registered fd watches.",
		}),
		reclaims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reclaims_total",
			Help:      "Removed watches reclaimed, by path.",
		}, []string{"path"}),
		retiring: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "retiring_watches",
			Help:      "Removed watches waiting for in-flight dispatches to drain.",
		}),
		threads: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dispatch_threads",
			Help:      "Running dispatch threads.",
		}),
		notifications: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observer_notifications_total",
			Help:      "Observer invocations spawned by multiplexers.",
		}),
	}
	m.registry.MustRegister(
		m.dispatches,
		m.watches,
		m.reclaims,
		m.retiring,
		m.threads,
		m.notifications,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Dispatched() {
	if m != nil {
		m.dispatches.Inc()
	}
}

func (m *Metrics) WatchAdded() {
	if m != nil {
		m.watches.Inc()
	}
}

func (m *Metrics) WatchRemoved() {
	if m != nil {
		m.watches.Dec()
	}
}

// Reclaimed counts n released watches on the given path ("immediate" or "deferred").
func (m *Metrics) Reclaimed(path string, n int) {
	if m != nil && n > 0 {
		m.reclaims.WithLabelValues(path).Add(float64(n))
	}
}

// SetRetiring records the retire queue depth.
func (m *Metrics) SetRetiring(n int) {
	if m != nil {
		m.retiring.Set(float64(n))
	}
}

func (m *Metrics) ThreadStarted() {
	if m != nil {
		m.threads.Inc()
	}
}

func (m *Metrics) ThreadStopped() {
	if m != nil {
		m.threads.Dec()
	}
}

func (m *Metrics) Notified() {
	if m != nil {
		m.notifications.Inc()
	}
}

// GetSnapshot returns the current value of every substrate metric, keyed by name.
func (m *Metrics) GetSnapshot() map[string]any {
	out := make(map[string]any)
	if m == nil {
		return out
	}
	families, err := m.registry.Gather()
	if err != nil {
		return out
	}
	for _, fam := range families {
		for _, metric := range fam.GetMetric() {
			name := fam.GetName()
			for _, lp := range metric.GetLabel() {
				name += "{" + lp.GetName() + "=" + lp.GetValue() + "}"
			}
			switch {
			case metric.GetCounter() != nil:
				out[name] = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				out[name] = metric.GetGauge().GetValue()
			}
		}
	}
	return out
}
