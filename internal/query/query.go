// Package query runs model-generated SQL against the configured store.
//
// Every call opens its own connection, runs the statement inside a
// transaction, fetches all rows, commits and closes. Failures never surface as
// returned errors; they are recorded on the Result so a turn can continue with
// an empty row set.
package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/carchat/carchat/internal/apperr"
	"github.com/carchat/carchat/internal/store"
)

type Outcome string

const (
	OutcomeRows     Outcome = "rows"
	OutcomeEmpty    Outcome = "empty"
	OutcomeFailed   Outcome = "failed"
	OutcomeRejected Outcome = "rejected"
)

type Result struct {
	Columns  []string
	Rows     [][]any
	Outcome  Outcome
	Err      error
	Duration time.Duration
}

// Failed reports whether the statement did not run to completion. Rows is
// always empty in that case.
func (r Result) Failed() bool {
	return r.Outcome == OutcomeFailed || r.Outcome == OutcomeRejected
}

type Opener func(ctx context.Context, target store.Target) (*sql.DB, error)

// Observer receives one call per Execute.
type Observer interface {
	ObserveExecution(outcome Outcome, rows int, elapsed time.Duration)
}

type Executor struct {
	Target store.Target
	// ReadOnly rejects anything that is not a single read statement before it
	// reaches the store, and opens the store so that it refuses writes too.
	ReadOnly bool
	Logger   *slog.Logger
	Opener   Opener
	Observer Observer
}

func NewExecutor(target store.Target, readOnly bool, logger *slog.Logger) *Executor {
	return &Executor{Target: target, ReadOnly: readOnly, Logger: logger}
}

func (e *Executor) Execute(ctx context.Context, sqlText string) Result {
	start := time.Now()
	result := e.execute(ctx, sqlText)
	result.Duration = time.Since(start)

	if result.Failed() {
		result.Rows = [][]any{}
		if e.Logger != nil {
			e.Logger.WarnContext(ctx, "query_execution_failed",
				slog.String("driver", string(e.Target.Driver)),
				slog.String("outcome", string(result.Outcome)),
				slog.String("error", result.Err.Error()),
			)
		}
	}
	if e.Observer != nil {
		e.Observer.ObserveExecution(result.Outcome, len(result.Rows), result.Duration)
	}
	return result
}

func (e *Executor) execute(ctx context.Context, sqlText string) Result {
	sqlText = stripTrailingSemicolons(sqlText)
	if sqlText == "" {
		return failed(OutcomeFailed, errors.New("sql is required"))
	}
	if e.ReadOnly {
		if err := checkReadOnly(sqlText); err != nil {
			return failed(OutcomeRejected, err)
		}
	}

	opener := e.Opener
	if opener == nil {
		opener = store.Open
		if e.ReadOnly {
			opener = store.OpenReadOnly
		}
	}
	db, err := opener(ctx, e.Target)
	if err != nil {
		return failed(OutcomeFailed, err)
	}
	defer func() { _ = db.Close() }()

	tx, err := db.BeginTx(ctx, store.TxOptions(e.Target, e.ReadOnly))
	if err != nil {
		return failed(OutcomeFailed, fmt.Errorf("begin transaction: %w", err))
	}

	columns, rows, err := fetchAll(ctx, tx, sqlText)
	if err != nil {
		_ = tx.Rollback()
		return failed(OutcomeFailed, err)
	}
	if err := tx.Commit(); err != nil {
		return failed(OutcomeFailed, fmt.Errorf("commit: %w", err))
	}

	outcome := OutcomeRows
	if len(rows) == 0 {
		outcome = OutcomeEmpty
	}
	return Result{Columns: columns, Rows: rows, Outcome: outcome}
}

func fetchAll(ctx context.Context, tx *sql.Tx, sqlText string) ([]string, [][]any, error) {
	rows, err := tx.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, nil, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("query columns: %w", err)
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, nil, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate rows: %w", err)
	}
	return columns, resultRows, nil
}

func failed(outcome Outcome, err error) Result {
	return Result{
		Rows:    [][]any{},
		Outcome: outcome,
		Err:     apperr.Wrap(apperr.KindExecution, "query did not run", err),
	}
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
