package query

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/carchat/carchat/internal/apperr"
	"github.com/carchat/carchat/internal/store"
)

func seedCars(t *testing.T) store.Target {
	t.Helper()
	target := store.Target{Driver: store.DriverSQLite, DSN: filepath.Join(t.TempDir(), "car_ds.db")}
	db, err := store.Create(context.Background(), target)
	if err != nil {
		t.Fatalf("store.Create() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	statements := []string{
		`CREATE TABLE cars (name TEXT, year INTEGER, selling_price INTEGER, km_driven INTEGER, fuel TEXT)`,
		`INSERT INTO cars VALUES ('Maruti Wagon R LXI Minor', 2007, 135000, 50000, 'Petrol')`,
		`INSERT INTO cars VALUES ('Hyundai i20 Asta', 2015, 520000, 40000, 'Petrol')`,
		`INSERT INTO cars VALUES ('Renault KWID RXT', 2015, 250000, 35000, 'Petrol')`,
	}
	for _, statement := range statements {
		if _, err := db.Exec(statement); err != nil {
			t.Fatalf("seed %q: %v", statement, err)
		}
	}
	return target
}

type recordingObserver struct {
	outcome Outcome
	rows    int
	calls   int
}

func (o *recordingObserver) ObserveExecution(outcome Outcome, rows int, _ time.Duration) {
	o.outcome = outcome
	o.rows = rows
	o.calls++
}

func TestExecuteReturnsRows(t *testing.T) {
	observer := &recordingObserver{}
	executor := NewExecutor(seedCars(t), false, nil)
	executor.Observer = observer

	result := executor.Execute(context.Background(), "SELECT name FROM cars WHERE year = 2007;")
	if result.Failed() {
		t.Fatalf("Execute() failed: %v", result.Err)
	}
	if result.Outcome != OutcomeRows || len(result.Rows) != 1 {
		t.Fatalf("result = %#v", result)
	}
	if result.Rows[0][0] != "Maruti Wagon R LXI Minor" {
		t.Fatalf("name = %#v", result.Rows[0][0])
	}
	if len(result.Columns) != 1 || result.Columns[0] != "name" {
		t.Fatalf("columns = %v", result.Columns)
	}
	if observer.calls != 1 || observer.outcome != OutcomeRows || observer.rows != 1 {
		t.Fatalf("observer = %#v", observer)
	}
}

func TestExecuteCheapestCarFrom2015(t *testing.T) {
	executor := NewExecutor(seedCars(t), true, nil)

	result := executor.Execute(context.Background(), "SELECT name, selling_price FROM cars WHERE year = 2015 ORDER BY selling_price ASC LIMIT 1")
	if result.Failed() || len(result.Rows) != 1 {
		t.Fatalf("result = %#v", result)
	}
	if result.Rows[0][0] != "Renault KWID RXT" || result.Rows[0][1] != int64(250000) {
		t.Fatalf("row = %#v", result.Rows[0])
	}
}

func TestExecuteEmptyResultIsNotFailure(t *testing.T) {
	executor := NewExecutor(seedCars(t), false, nil)

	result := executor.Execute(context.Background(), "SELECT name FROM cars WHERE year = 1990")
	if result.Failed() || result.Outcome != OutcomeEmpty || result.Err != nil {
		t.Fatalf("result = %#v", result)
	}
	if len(result.Rows) != 0 {
		t.Fatalf("rows = %#v", result.Rows)
	}
}

func TestExecuteInvalidSQLYieldsEmptyFailedResult(t *testing.T) {
	var logs bytes.Buffer
	executor := NewExecutor(seedCars(t), false, slog.New(slog.NewTextHandler(&logs, nil)))

	result := executor.Execute(context.Background(), "SELEC name FRM cars")
	if result.Outcome != OutcomeFailed || !result.Failed() {
		t.Fatalf("outcome = %q", result.Outcome)
	}
	if result.Rows == nil || len(result.Rows) != 0 {
		t.Fatalf("rows = %#v", result.Rows)
	}
	if apperr.KindOf(result.Err) != apperr.KindExecution {
		t.Fatalf("Err = %v", result.Err)
	}
	if !strings.Contains(logs.String(), "query_execution_failed") {
		t.Fatalf("expected warning log, got %q", logs.String())
	}
}

func TestExecuteMissingStoreFails(t *testing.T) {
	executor := NewExecutor(store.Target{Driver: store.DriverSQLite, DSN: filepath.Join(t.TempDir(), "absent.db")}, false, nil)

	result := executor.Execute(context.Background(), "SELECT 1")
	if result.Outcome != OutcomeFailed {
		t.Fatalf("outcome = %q", result.Outcome)
	}
}

func TestExecuteUnrestrictedCommitsWrites(t *testing.T) {
	target := seedCars(t)
	executor := NewExecutor(target, false, nil)

	result := executor.Execute(context.Background(), "DELETE FROM cars WHERE year = 2007")
	if result.Failed() {
		t.Fatalf("Execute(DELETE) failed: %v", result.Err)
	}

	result = executor.Execute(context.Background(), "SELECT COUNT(*) FROM cars")
	if result.Failed() || result.Rows[0][0] != int64(2) {
		t.Fatalf("count = %#v", result.Rows)
	}
}

func TestExecuteReadOnlyRejectsWrites(t *testing.T) {
	executor := NewExecutor(seedCars(t), true, nil)

	for _, statement := range []string{
		"DELETE FROM cars",
		"DROP TABLE cars",
		"SELECT 1; DELETE FROM cars",
		"WITH x AS (SELECT 1) DELETE FROM cars RETURNING name",
		"PRAGMA user_version = 42",
		"",
	} {
		result := executor.Execute(context.Background(), statement)
		if !result.Failed() {
			t.Fatalf("Execute(%q) expected failure", statement)
		}
	}

	result := executor.Execute(context.Background(), "SELECT COUNT(*) FROM cars")
	if result.Failed() || result.Rows[0][0] != int64(3) {
		t.Fatalf("count = %#v", result.Rows)
	}
	result = executor.Execute(context.Background(), "PRAGMA user_version")
	if result.Failed() || result.Rows[0][0] != int64(0) {
		t.Fatalf("user_version = %#v", result.Rows)
	}
}

func TestCheckReadOnly(t *testing.T) {
	allowed := []string{
		"SELECT 1",
		"  select name from cars",
		"WITH c AS (SELECT 1) SELECT * FROM c",
		"-- newest first\nSELECT name FROM cars ORDER BY year DESC",
		"/* hint */ (SELECT 1)",
		"SELECT name FROM cars WHERE name = 'a;b'",
		"PRAGMA table_info(cars)",
		"PRAGMA user_version",
		"SELECT name FROM cars WHERE fuel = 'delete'",
		`SELECT "update" FROM cars`,
		"SELECT replace(name, 'Maruti ', '') FROM cars",
		"SELECT updated_at FROM cars -- drop later",
	}
	for _, statement := range allowed {
		if err := checkReadOnly(statement); err != nil {
			t.Fatalf("checkReadOnly(%q) error = %v", statement, err)
		}
	}

	rejected := []string{
		"INSERT INTO cars VALUES (1)",
		"update cars set year = 1",
		"SELECT 1; DROP TABLE cars",
		"-- only a comment",
		"ATTACH DATABASE 'x.db' AS x",
		"WITH x AS (SELECT 1) DELETE FROM cars RETURNING name",
		"WITH x AS (DELETE FROM cars RETURNING name) SELECT * FROM x",
		"with x as (select 1) insert into cars select * from x",
		"PRAGMA user_version = 42",
		"pragma journal_mode=delete",
		"SELECT 1 /* ; */; DELETE FROM cars",
		"REPLACE INTO cars (name) VALUES ('x')",
	}
	for _, statement := range rejected {
		if err := checkReadOnly(statement); err == nil {
			t.Fatalf("checkReadOnly(%q) expected error", statement)
		}
	}
}

func TestExecuteCommitsThroughTransaction(t *testing.T) {
	db, mock := newSQLMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT name FROM cars`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow([]byte("Maruti Wagon R LXI Minor")))
	mock.ExpectCommit()
	mock.ExpectClose()

	executor := &Executor{Target: store.Target{Driver: store.DriverDuckDB, DSN: "cars.duckdb"}, Opener: mockOpener(db)}
	result := executor.Execute(context.Background(), "SELECT name FROM cars")
	if result.Failed() {
		t.Fatalf("Execute() failed: %v", result.Err)
	}
	if result.Rows[0][0] != "Maruti Wagon R LXI Minor" {
		t.Fatalf("row = %#v", result.Rows[0])
	}
	assertSQLMock(t, mock)
}

func TestExecuteRollsBackOnQueryError(t *testing.T) {
	db, mock := newSQLMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT nme FROM cars`).WillReturnError(errors.New("no such column: nme"))
	mock.ExpectRollback()
	mock.ExpectClose()

	executor := &Executor{Target: store.Target{Driver: store.DriverDuckDB, DSN: "cars.duckdb"}, Opener: mockOpener(db)}
	result := executor.Execute(context.Background(), "SELECT nme FROM cars")
	if result.Outcome != OutcomeFailed || !strings.Contains(result.Err.Error(), "no such column") {
		t.Fatalf("result = %#v", result)
	}
	assertSQLMock(t, mock)
}

func TestExecuteReportsCommitFailure(t *testing.T) {
	db, mock := newSQLMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT 1`).WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(int64(1)))
	mock.ExpectCommit().WillReturnError(errors.New("disk I/O error"))
	mock.ExpectClose()

	executor := &Executor{Target: store.Target{Driver: store.DriverSQLite, DSN: "x.db"}, Opener: mockOpener(db)}
	result := executor.Execute(context.Background(), "SELECT 1")
	if result.Outcome != OutcomeFailed || len(result.Rows) != 0 {
		t.Fatalf("result = %#v", result)
	}
	assertSQLMock(t, mock)
}

func mockOpener(db *sql.DB) Opener {
	return func(context.Context, store.Target) (*sql.DB, error) { return db, nil }
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestEncodableRows(t *testing.T) {
	when := time.Date(2015, 6, 1, 0, 0, 0, 0, time.UTC)
	rows := [][]any{{math.Inf(-1), math.NaN(), 2.5, int64(250000), "KWID", nil, when, map[any]any{"k": 1}}}

	got := EncodableRows(rows)
	want := []any{"-Inf", "NaN", 2.5, int64(250000), "KWID", nil, when, "map[k:1]"}
	if !reflect.DeepEqual(got[0], want) {
		t.Fatalf("EncodableRows() = %#v, want %#v", got[0], want)
	}
	if _, err := json.Marshal(got); err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	if len(EncodableRows(nil)) != 0 {
		t.Fatalf("EncodableRows(nil) should be empty")
	}
}
