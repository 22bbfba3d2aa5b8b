// Package metrics exposes prometheus collectors for the entity cache.
//
// Every method is safe on a nil *Metrics, so the cache can run without
// instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "entitycache"

// Fetch results
const (
	FetchOK        = "ok"
	FetchForbidden = "forbidden"
	FetchError     = "error"
	FetchCanceled  = "canceled"
)

// Metrics holds the cache collectors and the registry they live in
type Metrics struct {
	registry *prometheus.Registry

	Events    *prometheus.CounterVec
	Created   *prometheus.CounterVec
	Changes   *prometheus.CounterVec
	Fetches   *prometheus.CounterVec
	Demotions prometheus.Counter
	Swept     prometheus.Counter
	Entities  *prometheus.GaugeVec
	REST      *prometheus.HistogramVec
}

// New creates the collectors on a fresh registry, with Go runtime metrics
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		Events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Gateway events synchronized, by event kind",
			},
			[]string{"kind"},
		),

		Created: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "entities_created_total",
				Help:      "Entities created from payloads, by entity kind",
			},
			[]string{"kind"},
		),

		Changes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "changes_total",
				Help:      "Field changes recorded by incremental updates, by entity kind",
			},
			[]string{"kind"},
		),

		Fetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "history",
				Name:      "fetches_total",
				Help:      "History pages requested upstream, by result",
			},
			[]string{"result"},
		),

		Demotions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "history",
				Name:      "demotions_total",
				Help:      "Grown history buffers demoted back to their capacity",
			},
		),

		Swept: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "registry",
				Name:      "swept_total",
				Help:      "Registry entries dropped after their entity was collected",
			},
		),

		Entities: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "registry",
				Name:      "entities",
				Help:      "Registered entities, by entity kind",
			},
			[]string{"kind"},
		),

		REST: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "rest",
				Name:      "request_duration_seconds",
				Help:      "Upstream REST round trips, by HTTP method",
				Buckets:   []float64{.025, .05, .1, .25, .5, 1, 2.5, 5, 15},
			},
			[]string{"method"},
		),
	}

	m.registry.MustRegister(
		m.Events,
		m.Created,
		m.Changes,
		m.Fetches,
		m.Demotions,
		m.Swept,
		m.Entities,
		m.REST,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry returns the underlying prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Event(kind string) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(kind).Inc()
}

func (m *Metrics) EntityCreated(kind string) {
	if m == nil {
		return
	}
	m.Created.WithLabelValues(kind).Inc()
}

// FieldsChanged adds n recorded changes
func (m *Metrics) FieldsChanged(kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.Changes.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) HistoryFetch(result string) {
	if m == nil {
		return
	}
	m.Fetches.WithLabelValues(result).Inc()
}

func (m *Metrics) HistoryDemoted(n int) {
	if m == nil || n == 0 {
		return
	}
	m.Demotions.Add(float64(n))
}

func (m *Metrics) RegistrySwept(n int) {
	if m == nil || n == 0 {
		return
	}
	m.Swept.Add(float64(n))
}

// SetEntities publishes the per-kind registry sizes
func (m *Metrics) SetEntities(counts map[string]int) {
	if m == nil {
		return
	}
	for kind, n := range counts {
		m.Entities.WithLabelValues(kind).Set(float64(n))
	}
}

// ObserveREST records one upstream round trip
func (m *Metrics) ObserveREST(method string, d time.Duration) {
	if m == nil {
		return
	}
	m.REST.WithLabelValues(method).Observe(d.Seconds())
}
