// Package metrics exposes Prometheus instrumentation for hierarchy
// operations. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for operation metrics.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Metrics holds the collectors registered for one process.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	repathed   prometheus.Counter
	treeCache  *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
// Panics if registration fails (following prometheus convention).
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taxonomy_operations_total",
				Help: "Total number of hierarchy operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "taxonomy_operation_duration_seconds",
				Help:    "Hierarchy operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		repathed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "taxonomy_repathed_nodes_total",
				Help: "Total number of descendant paths rewritten by moves and slug changes",
			},
		),
		treeCache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taxonomy_tree_cache_lookups_total",
				Help: "Tree cache lookups by result",
			},
			[]string{"result"},
		),
	}

	reg.MustRegister(m.operations, m.duration, m.repathed, m.treeCache)
	return m
}

// ObserveOperation records one finished operation.
func (m *Metrics) ObserveOperation(operation string, err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.duration.WithLabelValues(operation).Observe(d.Seconds())
}

// AddRepathed counts descendant rows whose path was rewritten.
func (m *Metrics) AddRepathed(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.repathed.Add(float64(n))
}

// ObserveTreeCache records a tree cache hit or miss.
func (m *Metrics) ObserveTreeCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.treeCache.WithLabelValues(result).Inc()
}
