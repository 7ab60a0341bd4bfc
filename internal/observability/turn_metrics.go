package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/carchat/carchat/internal/chat"
	"github.com/carchat/carchat/internal/query"
)

var (
	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carchat_turns_total",
			Help: "Total number of chat turns by outcome.",
		},
		[]string{"outcome"},
	)
	turnStageFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carchat_turn_stage_failures_total",
			Help: "Total number of chat turns that failed, by the stage that was running.",
		},
		[]string{"stage"},
	)
	turnDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "carchat_turn_duration_seconds",
			Help:    "Wall time of a chat turn including both model calls.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		},
	)
	queryRows = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "carchat_query_rows",
			Help:    "Rows returned by generated queries.",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000, 10000},
		},
	)
	queryExecutionFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carchat_query_execution_failures_total",
			Help: "Total number of generated queries that failed or were rejected.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		turnsTotal,
		turnStageFailuresTotal,
		turnDurationSeconds,
		queryRows,
		queryExecutionFailuresTotal,
	)
}

// TurnMetrics feeds the orchestrator and the executor into the process-wide
// Prometheus registry.
type TurnMetrics struct{}

func (TurnMetrics) ObserveTurn(stage chat.Stage, outcome string, elapsed time.Duration) {
	turnsTotal.WithLabelValues(outcome).Inc()
	if stage != chat.StageDone && stage != chat.StageIdle {
		turnStageFailuresTotal.WithLabelValues(string(stage)).Inc()
	}
	if elapsed > 0 {
		turnDurationSeconds.Observe(elapsed.Seconds())
	}
}

func (TurnMetrics) ObserveExecution(outcome query.Outcome, rows int, _ time.Duration) {
	switch outcome {
	case query.OutcomeFailed, query.OutcomeRejected:
		queryExecutionFailuresTotal.WithLabelValues(string(outcome)).Inc()
	default:
		queryRows.Observe(float64(rows))
	}
}
