// Package metrics exposes Prometheus instrumentation for the retrieval
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the pipeline's Prometheus collectors. Construct once and
// share; collectors are safe for concurrent use.
type Metrics struct {
	StageLatency  *prometheus.HistogramVec
	StageFailures *prometheus.CounterVec
	Retrievals    prometheus.Counter
	Candidates    prometheus.Histogram
	BudgetUsed    prometheus.Histogram
	Truncations   prometheus.Counter
}

// New registers the pipeline collectors on reg and returns them. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in
// tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		StageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "engram_stage_duration_seconds",
			Help:    "Latency of each retrieval stage.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		StageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engram_stage_failures_total",
			Help: "Retrieval stage errors, tolerated or not.",
		}, []string{"stage"}),
		Retrievals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engram_retrievals_total",
			Help: "Completed retrieval requests.",
		}),
		Candidates: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "engram_fused_candidates",
			Help:    "Fused candidate count per retrieval.",
			Buckets: []float64{0, 5, 10, 25, 50, 100, 250},
		}),
		BudgetUsed: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "engram_pack_budget_used_tokens",
			Help:    "Estimated tokens consumed by the packed bundle.",
			Buckets: []float64{64, 256, 1024, 4096, 16384, 65536},
		}),
		Truncations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engram_pack_truncations_total",
			Help: "Packed bundles cut short by the token budget.",
		}),
	}

	reg.MustRegister(
		m.StageLatency,
		m.StageFailures,
		m.Retrievals,
		m.Candidates,
		m.BudgetUsed,
		m.Truncations,
	)
	return m
}
