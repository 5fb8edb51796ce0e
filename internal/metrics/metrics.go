// Package metrics exposes Prometheus instrumentation for queries and index rebuilds.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "kotae"

// Query outcomes.
const (
	OutcomeAnswered = "answered"
	OutcomeFallback = "fallback"
)

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	queries        *prometheus.CounterVec
	fallbacks      *prometheus.CounterVec
	fragments      prometheus.Counter
	firstFragment  prometheus.Histogram
	unitsIndexed   prometheus.Counter
	runs           *prometheus.CounterVec
	rebuildSeconds prometheus.Histogram
	documents      prometheus.Gauge
	units          prometheus.Gauge
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		queries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Queries handled, by outcome.",
		}, []string{"outcome"}),
		fallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_fallbacks_total",
			Help:      "Queries answered with the fallback message, by reason.",
		}, []string{"reason"}),
		fragments: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streamed_fragments_total",
			Help:      "Answer fragments relayed to callers.",
		}),
		firstFragment: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_first_fragment_seconds",
			Help:      "Time from query start to the first relayed fragment.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		unitsIndexed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "indexed_units_total",
			Help:      "Units embedded and written to the vector index.",
		}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_runs_total",
			Help:      "Index rebuilds, by final status.",
		}, []string{"status"}),
		rebuildSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "index_rebuild_duration_seconds",
			Help:      "Wall time of index rebuilds.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		documents: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "corpus_documents",
			Help:      "Documents in the published corpus.",
		}),
		units: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "corpus_units",
			Help:      "Units in the published corpus.",
		}),
	}
}

// QueryAnswered counts a query whose answer came from the model.
func (m *Metrics) QueryAnswered() {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(OutcomeAnswered).Inc()
}

// QueryFallback counts a query answered with the fallback message.
func (m *Metrics) QueryFallback(reason string) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(OutcomeFallback).Inc()
	m.fallbacks.WithLabelValues(reason).Inc()
}

// FragmentRelayed counts one relayed fragment.
func (m *Metrics) FragmentRelayed() {
	if m == nil {
		return
	}
	m.fragments.Inc()
}

// ObserveFirstFragment records the latency to the first fragment.
func (m *Metrics) ObserveFirstFragment(d time.Duration) {
	if m == nil {
		return
	}
	m.firstFragment.Observe(d.Seconds())
}

// UnitsIndexed adds n indexed units.
func (m *Metrics) UnitsIndexed(n int) {
	if m == nil {
		return
	}
	m.unitsIndexed.Add(float64(n))
}

// RunFinished records a finished rebuild.
func (m *Metrics) RunFinished(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status).Inc()
	m.rebuildSeconds.Observe(d.Seconds())
}

// SetCorpus publishes the size of the current corpus.
func (m *Metrics) SetCorpus(documents, units int) {
	if m == nil {
		return
	}
	m.documents.Set(float64(documents))
	m.units.Set(float64(units))
}
