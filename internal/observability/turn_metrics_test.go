package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/carchat/carchat/internal/chat"
	"github.com/carchat/carchat/internal/query"
)

func TestTurnMetricsCountsOutcomesAndStageFailures(t *testing.T) {
	m := TurnMetrics{}
	answered := testutil.ToFloat64(turnsTotal.WithLabelValues(chat.OutcomeAnswered))
	genFailures := testutil.ToFloat64(turnStageFailuresTotal.WithLabelValues(string(chat.StageAwaitingQuery)))

	m.ObserveTurn(chat.StageDone, chat.OutcomeAnswered, time.Second)
	m.ObserveTurn(chat.StageAwaitingQuery, chat.OutcomeGenerationFailed, time.Millisecond)

	if got := testutil.ToFloat64(turnsTotal.WithLabelValues(chat.OutcomeAnswered)); got != answered+1 {
		t.Fatalf("answered turns = %v, want %v", got, answered+1)
	}
	if got := testutil.ToFloat64(turnStageFailuresTotal.WithLabelValues(string(chat.StageAwaitingQuery))); got != genFailures+1 {
		t.Fatalf("generation stage failures = %v, want %v", got, genFailures+1)
	}
}

func TestTurnMetricsCountsExecutionFailures(t *testing.T) {
	m := TurnMetrics{}
	before := testutil.ToFloat64(queryExecutionFailuresTotal.WithLabelValues(string(query.OutcomeRejected)))

	m.ObserveExecution(query.OutcomeRejected, 0, time.Millisecond)
	m.ObserveExecution(query.OutcomeRows, 3, time.Millisecond)

	if got := testutil.ToFloat64(queryExecutionFailuresTotal.WithLabelValues(string(query.OutcomeRejected))); got != before+1 {
		t.Fatalf("rejected executions = %v, want %v", got, before+1)
	}
}
