package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "combolift_runs_total",
			Help: "Count of analysis runs by analysis_type and final status.",
		},
		[]string{"analysis_type", "status"},
	)

	RunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "combolift_run_duration_seconds",
			Help:    "Wall-clock duration of analysis runs.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		},
		[]string{"analysis_type"},
	)

	CombinationsEvaluated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "combolift_combinations_evaluated_total",
			Help: "Combinations fitted and scored, by analysis_type.",
		},
		[]string{"analysis_type"},
	)

	CombinationsKept = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "combolift_combinations_kept_total",
			Help: "Combinations that passed the exposure/conversion keep rule, by analysis_type.",
		},
		[]string{"analysis_type"},
	)

	SearchCoverage = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "combolift_search_coverage_ratio",
			Help: "Fraction of the combination space covered by the latest run.",
		},
		[]string{"analysis_type"},
	)
)

func init() {
	prometheus.MustRegister(RunsTotal, RunDuration, CombinationsEvaluated, CombinationsKept, SearchCoverage)
}
