package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Batch run instrumentation. The 15-minute aggregation and 1-minute
// evaluation budgets are alerting SLAs wired to these histograms, not
// correctness constraints.
var (
	AggregationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nudge_aggregation_run_duration_seconds",
		Help:    "Duration of full-population daily signal aggregation runs",
		Buckets: []float64{10, 30, 60, 120, 300, 600, 900, 1800},
	})

	EvaluationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nudge_evaluation_run_duration_seconds",
		Help:    "Duration of full-population rule evaluation runs",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
	})

	UsersProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nudge_users_processed_total",
		Help: "Users processed by batch runs",
	}, []string{"run"})

	UsersSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nudge_users_skipped_total",
		Help: "Users skipped by batch runs",
	}, []string{"run", "reason"})

	DeliveriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nudge_deliveries_total",
		Help: "Nudges delivered",
	})

	SuppressionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nudge_suppressions_total",
		Help: "Candidates suppressed before delivery",
	}, []string{"reason"})

	RenderFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nudge_render_failures_total",
		Help: "Candidates dropped due to unresolved template placeholders",
	})

	RuleConfigErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nudge_rule_config_errors_total",
		Help: "Malformed rules skipped during catalog load",
	})

	LiveEventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nudge_live_events_dropped_total",
		Help: "Live nudge events dropped due to absent or slow subscribers",
	})

	InteractionsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nudge_interactions_recorded_total",
		Help: "Interaction feedback records appended",
	}, []string{"action"})
)
