package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"
	_ "github.com/mattn/go-sqlite3"
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverDuckDB   Driver = "duckdb"
	DriverPostgres Driver = "postgres"
)

// Target names the relational store a session queries.
type Target struct {
	Driver Driver
	DSN    string
}

func (t Target) String() string {
	switch t.Driver {
	case DriverPostgres:
		return t.DSN
	default:
		return string(t.Driver) + "://" + t.DSN
	}
}

func ParseTarget(raw string) (Target, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Target{}, fmt.Errorf("store target is required")
	}

	switch {
	case strings.HasPrefix(raw, "postgres://"), strings.HasPrefix(raw, "postgresql://"):
		return Target{Driver: DriverPostgres, DSN: raw}, nil
	case strings.HasPrefix(raw, "sqlite://"):
		return fileTarget(DriverSQLite, strings.TrimPrefix(raw, "sqlite://"))
	case strings.HasPrefix(raw, "sqlite3://"):
		return fileTarget(DriverSQLite, strings.TrimPrefix(raw, "sqlite3://"))
	case strings.HasPrefix(raw, "duckdb://"):
		return fileTarget(DriverDuckDB, strings.TrimPrefix(raw, "duckdb://"))
	case strings.Contains(raw, "://"):
		return Target{}, fmt.Errorf("unsupported store target scheme: %q", raw)
	}

	switch strings.ToLower(filepath.Ext(raw)) {
	case ".db", ".sqlite", ".sqlite3":
		return fileTarget(DriverSQLite, raw)
	case ".duckdb", ".ddb":
		return fileTarget(DriverDuckDB, raw)
	default:
		return Target{}, fmt.Errorf("cannot infer store driver from %q", raw)
	}
}

func fileTarget(driver Driver, path string) (Target, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Target{}, fmt.Errorf("%s target path is required", driver)
	}
	return Target{Driver: driver, DSN: path}, nil
}

func driverName(driver Driver) (string, error) {
	switch driver {
	case DriverSQLite:
		return "sqlite3", nil
	case DriverDuckDB:
		return "duckdb", nil
	case DriverPostgres:
		return "pgx", nil
	default:
		return "", fmt.Errorf("unsupported store driver %q", driver)
	}
}

// Open connects to an existing store with a single-connection handle. Callers
// own the handle and close it when the call that needed it returns.
func Open(ctx context.Context, target Target) (*sql.DB, error) {
	if strings.TrimSpace(target.DSN) == "" {
		return nil, fmt.Errorf("store dsn is required")
	}
	if path, ok := filePath(target); ok {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("open %s store: %w", target.Driver, err)
		}
	}
	return open(ctx, target)
}

// OpenReadOnly is Open with the store itself refusing writes: SQLite files are
// opened with mode=ro and DuckDB files with access_mode=read_only. Postgres
// has no connection-level switch here; callers begin transactions with
// TxOptions instead.
func OpenReadOnly(ctx context.Context, target Target) (*sql.DB, error) {
	if strings.TrimSpace(target.DSN) == "" {
		return nil, fmt.Errorf("store dsn is required")
	}
	if path, ok := filePath(target); ok {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("open %s store: %w", target.Driver, err)
		}
	}
	target.DSN = readOnlyDSN(target)
	return open(ctx, target)
}

func readOnlyDSN(target Target) string {
	if _, ok := filePath(target); !ok {
		return target.DSN
	}
	switch target.Driver {
	case DriverSQLite:
		dsn := target.DSN
		if !strings.HasPrefix(dsn, "file:") {
			dsn = "file:" + dsn
		}
		return withParam(dsn, "mode", "ro")
	case DriverDuckDB:
		return withParam(target.DSN, "access_mode", "read_only")
	default:
		return target.DSN
	}
}

func withParam(dsn, key, value string) string {
	if i := strings.IndexByte(dsn, '?'); i >= 0 {
		kept := make([]string, 0)
		for _, pair := range strings.Split(dsn[i+1:], "&") {
			if pair == "" || strings.HasPrefix(pair, key+"=") {
				continue
			}
			kept = append(kept, pair)
		}
		kept = append(kept, key+"="+value)
		return dsn[:i] + "?" + strings.Join(kept, "&")
	}
	return dsn + "?" + key + "=" + value
}

// TxOptions returns the options a caller should begin a transaction with.
// Only Postgres is asked for a read-only transaction; the file drivers are
// already read-only at the handle when opened with OpenReadOnly.
func TxOptions(target Target, readOnly bool) *sql.TxOptions {
	if readOnly && target.Driver == DriverPostgres {
		return &sql.TxOptions{ReadOnly: true}
	}
	return nil
}

// Create is Open for file-backed stores that may not exist yet.
func Create(ctx context.Context, target Target) (*sql.DB, error) {
	if strings.TrimSpace(target.DSN) == "" {
		return nil, fmt.Errorf("store dsn is required")
	}
	return open(ctx, target)
}

func open(ctx context.Context, target Target) (*sql.DB, error) {
	name, err := driverName(target.Driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(name, target.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", target.Driver, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s store: %w", target.Driver, err)
	}

	return db, nil
}

func filePath(target Target) (string, bool) {
	switch target.Driver {
	case DriverSQLite, DriverDuckDB:
	default:
		return "", false
	}
	path := target.DSN
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	path = strings.TrimPrefix(path, "file:")
	if path == "" || path == ":memory:" {
		return "", false
	}
	return path, true
}

// Placeholder returns the n-th (1-based) bind parameter marker for driver.
// SQLite, DuckDB and Postgres all accept $n.
func Placeholder(_ Driver, n int) string {
	return "$" + strconv.Itoa(n)
}

func QuoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}
