// Package chat runs one conversational turn: record the question, ask the
// model for SQL, run it, and ask the model to phrase the rows as an answer.
package chat

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/carchat/carchat/internal/apperr"
	"github.com/carchat/carchat/internal/nl2sql"
	"github.com/carchat/carchat/internal/query"
	"github.com/carchat/carchat/internal/schema"
	"github.com/carchat/carchat/internal/session"
)

type Stage string

const (
	StageIdle                Stage = "idle"
	StageAwaitingQuery       Stage = "awaiting_query"
	StageAwaitingExecution   Stage = "awaiting_execution"
	StageAwaitingComposition Stage = "awaiting_composition"
	StageDone                Stage = "done"
	StageFailed              Stage = "failed"
)

const (
	OutcomeAnswered          = "answered"
	OutcomeAnsweredNoRows    = "answered_without_rows"
	OutcomeRejected          = "rejected"
	OutcomeGenerationFailed  = "generation_failed"
	OutcomeCompositionFailed = "composition_failed"
)

type QueryGenerator interface {
	Generate(ctx context.Context, question string, description schema.Description, history []string) (string, error)
}

type QueryExecutor interface {
	Execute(ctx context.Context, sqlText string) query.Result
}

type AnswerComposer interface {
	Compose(ctx context.Context, question, sqlText string, result query.Result) (string, error)
}

type TurnObserver interface {
	ObserveTurn(stage Stage, outcome string, elapsed time.Duration)
}

type TurnResult struct {
	Question string
	SQL      string
	Result   query.Result
	Answer   string
	Stage    Stage
	// FailedAt is the stage that was running when the turn failed.
	FailedAt   Stage
	HistoryLen int
}

type Orchestrator struct {
	Schema    schema.Description
	Generator QueryGenerator
	Sanitizer *nl2sql.Sanitizer
	Executor  QueryExecutor
	Composer  AnswerComposer
	Logger    *slog.Logger
	Metrics   TurnObserver
}

// Turn handles one utterance for s. The question is appended to the session
// history before any remote call and stays there whatever happens next. An
// execution failure does not end the turn; the composer sees an empty result.
func (o *Orchestrator) Turn(ctx context.Context, s *session.Session, utterance string) (TurnResult, error) {
	question := strings.TrimSpace(utterance)
	if question == "" {
		o.observe(StageIdle, OutcomeRejected, 0)
		return TurnResult{Stage: StageIdle}, apperr.New(apperr.KindInput, "question is empty")
	}

	s.Lock()
	defer func() {
		s.Touch(time.Now().UTC())
		s.Unlock()
	}()

	start := time.Now()
	s.Touch(start.UTC())
	out := TurnResult{Question: question}
	out.HistoryLen = s.History.Append(question)

	out.Stage = StageAwaitingQuery
	raw, err := o.Generator.Generate(ctx, question, o.Schema, s.History.Questions())
	if err != nil {
		return o.fail(ctx, s, out, start, OutcomeGenerationFailed, err)
	}
	sqlText, fired := o.sanitizer().Apply(raw)
	out.SQL = sqlText
	if len(fired) > 0 {
		o.logger().DebugContext(ctx, "sql_sanitized",
			slog.String("session_id", s.ID),
			slog.Any("rules", fired),
		)
	}

	out.Stage = StageAwaitingExecution
	out.Result = o.Executor.Execute(ctx, sqlText)

	out.Stage = StageAwaitingComposition
	answer, err := o.Composer.Compose(ctx, question, sqlText, out.Result)
	if err != nil {
		return o.fail(ctx, s, out, start, OutcomeCompositionFailed, err)
	}
	out.Answer = answer
	out.Stage = StageDone

	outcome := OutcomeAnswered
	if out.Result.Failed() {
		outcome = OutcomeAnsweredNoRows
	}
	elapsed := time.Since(start)
	o.observe(StageDone, outcome, elapsed)
	o.logger().InfoContext(ctx, "turn_completed",
		slog.String("session_id", s.ID),
		slog.Int("history_len", out.HistoryLen),
		slog.String("execution_outcome", string(out.Result.Outcome)),
		slog.Int("rows", len(out.Result.Rows)),
		slog.String("duration", elapsed.String()),
	)
	return out, nil
}

func (o *Orchestrator) fail(ctx context.Context, s *session.Session, out TurnResult, start time.Time, outcome string, err error) (TurnResult, error) {
	out.FailedAt = out.Stage
	out.Stage = StageFailed
	elapsed := time.Since(start)
	o.observe(out.FailedAt, outcome, elapsed)
	o.logger().WarnContext(ctx, "turn_failed",
		slog.String("session_id", s.ID),
		slog.String("stage", string(out.FailedAt)),
		slog.Int("history_len", out.HistoryLen),
		slog.Any("error", err),
	)
	return out, err
}

func (o *Orchestrator) observe(stage Stage, outcome string, elapsed time.Duration) {
	if o.Metrics != nil {
		o.Metrics.ObserveTurn(stage, outcome, elapsed)
	}
}

func (o *Orchestrator) sanitizer() *nl2sql.Sanitizer {
	if o.Sanitizer == nil {
		return nl2sql.NewSanitizer()
	}
	return o.Sanitizer
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}
