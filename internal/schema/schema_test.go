package schema

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"reflect"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/carchat/carchat/internal/apperr"
	"github.com/carchat/carchat/internal/store"
)

func TestDescribeEnumeratesTablesInStoreOrder(t *testing.T) {
	target := seedStore(t,
		`CREATE TABLE T1 (colA INTEGER, colB TEXT)`,
		`CREATE TABLE T2 (colX REAL)`,
	)

	got, err := Describe(context.Background(), target)
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	want := Description{Tables: []Table{
		{Name: "T1", Columns: []Column{{Name: "colA", Type: "INTEGER"}, {Name: "colB", Type: "TEXT"}}},
		{Name: "T2", Columns: []Column{{Name: "colX", Type: "REAL"}}},
	}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Describe() = %#v, want %#v", got, want)
	}
}

func TestDescribeIsIdempotent(t *testing.T) {
	target := seedStore(t,
		`CREATE TABLE cars ("index" INTEGER, name TEXT, year INTEGER, selling_price INTEGER)`,
		`CREATE TABLE `+MigrationTable+` (version BIGINT PRIMARY KEY)`,
	)

	first, err := Describe(context.Background(), target)
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	second, err := Describe(context.Background(), target)
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("descriptions differ: %#v vs %#v", first, second)
	}
	if names := first.TableNames(); len(names) != 1 || names[0] != "cars" {
		t.Fatalf("TableNames() = %v, migration table must be hidden", names)
	}
}

func TestDescribeKeepsTablesThatOnlyStartWithSqlite(t *testing.T) {
	target := seedStore(t,
		`CREATE TABLE sqliteX (name TEXT)`,
		`CREATE TABLE counters (id INTEGER PRIMARY KEY AUTOINCREMENT)`,
	)

	got, err := Describe(context.Background(), target)
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	names := got.TableNames()
	if !reflect.DeepEqual(names, []string{"sqliteX", "counters"}) {
		t.Fatalf("TableNames() = %v, want user tables only", names)
	}
}

func TestDescribeMissingStoreIsSchemaError(t *testing.T) {
	target := store.Target{Driver: store.DriverSQLite, DSN: filepath.Join(t.TempDir(), "missing.db")}
	_, err := Describe(context.Background(), target)
	if err == nil {
		t.Fatal("Describe() error = nil, want schema error")
	}
	if kind := apperr.KindOf(err); kind != apperr.KindSchema {
		t.Fatalf("KindOf() = %q", kind)
	}
}

func TestDescribeDBUsesDialectQueries(t *testing.T) {
	db, mock := newSQLMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT table_name FROM information_schema.tables WHERE table_schema = 'main'`)).
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("cars"))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT column_name, data_type FROM information_schema.columns WHERE table_schema = 'main' AND table_name = $1`)).
		WithArgs("cars").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type"}).
			AddRow("name", "VARCHAR").
			AddRow("year", "BIGINT"))

	got, err := DescribeDB(context.Background(), db, store.DriverDuckDB)
	if err != nil {
		t.Fatalf("DescribeDB() error = %v", err)
	}
	if len(got.Tables) != 1 || len(got.Tables[0].Columns) != 2 {
		t.Fatalf("DescribeDB() = %#v", got)
	}
	assertSQLMock(t, mock)
}

func TestDescribeDBWrapsColumnErrors(t *testing.T) {
	db, mock := newSQLMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT name FROM sqlite_master`)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("cars"))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT name, type FROM pragma_table_info($1)`)).
		WithArgs("cars").
		WillReturnError(errors.New("disk I/O error"))

	_, err := DescribeDB(context.Background(), db, store.DriverSQLite)
	if err == nil {
		t.Fatal("DescribeDB() error = nil")
	}
	if kind := apperr.KindOf(err); kind != apperr.KindSchema {
		t.Fatalf("KindOf() = %q", kind)
	}
	assertSQLMock(t, mock)
}

func TestDescriptionString(t *testing.T) {
	d := Description{Tables: []Table{
		{Name: "cars", Columns: []Column{{Name: "name", Type: "TEXT"}, {Name: "year", Type: "INTEGER"}, {Name: "extra", Type: ""}}},
		{Name: "dealers", Columns: []Column{{Name: "id", Type: "BIGINT"}}},
	}}
	want := "Table: cars\n  - name (TEXT)\n  - year (INTEGER)\n  - extra (NULL)\nTable: dealers\n  - id (BIGINT)"
	if got := d.String(); got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func seedStore(t *testing.T, statements ...string) store.Target {
	t.Helper()
	target := store.Target{Driver: store.DriverSQLite, DSN: filepath.Join(t.TempDir(), "cars.db")}
	db, err := store.Create(context.Background(), target)
	if err != nil {
		t.Fatalf("store.Create() error = %v", err)
	}
	defer func() { _ = db.Close() }()
	for _, statement := range statements {
		if _, err := db.ExecContext(context.Background(), statement); err != nil {
			t.Fatalf("exec %q: %v", statement, err)
		}
	}
	return target
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
