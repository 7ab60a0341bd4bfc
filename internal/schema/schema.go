// Package schema enumerates the tables and columns of a relational store and
// renders them as the text handed to the remote model.
package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/carchat/carchat/internal/apperr"
	"github.com/carchat/carchat/internal/migrations"
	"github.com/carchat/carchat/internal/store"
)

// MigrationTable never reaches the model.
const MigrationTable = migrations.TableName

type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// Description is built once at startup and read-only afterwards.
type Description struct {
	Tables []Table `json:"tables"`
}

// String renders one "Table: <name>" line per table followed by one
// "  - <column> (<TYPE>)" line per column.
func (d Description) String() string {
	lines := make([]string, 0, len(d.Tables)*4)
	for _, table := range d.Tables {
		lines = append(lines, "Table: "+table.Name)
		for _, column := range table.Columns {
			columnType := column.Type
			if columnType == "" {
				columnType = "NULL"
			}
			lines = append(lines, fmt.Sprintf("  - %s (%s)", column.Name, columnType))
		}
	}
	return strings.Join(lines, "\n")
}

func (d Description) TableNames() []string {
	names := make([]string, 0, len(d.Tables))
	for _, table := range d.Tables {
		names = append(names, table.Name)
	}
	return names
}

type dialect struct {
	tablesSQL  string
	columnsSQL string
}

var dialects = map[store.Driver]dialect{
	store.DriverSQLite: {
		tablesSQL:  `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite\_%' ESCAPE '\'`,
		columnsSQL: `SELECT name, type FROM pragma_table_info($1)`,
	},
	store.DriverDuckDB: {
		tablesSQL:  `SELECT table_name FROM information_schema.tables WHERE table_schema = 'main' AND table_type = 'BASE TABLE' ORDER BY table_name`,
		columnsSQL: `SELECT column_name, data_type FROM information_schema.columns WHERE table_schema = 'main' AND table_name = $1 ORDER BY ordinal_position`,
	},
	store.DriverPostgres: {
		tablesSQL:  `SELECT table_name FROM information_schema.tables WHERE table_schema = 'public' AND table_type = 'BASE TABLE' ORDER BY table_name`,
		columnsSQL: `SELECT column_name, data_type FROM information_schema.columns WHERE table_schema = 'public' AND table_name = $1 ORDER BY ordinal_position`,
	},
}

// Describe opens target, reads its schema and releases the connection.
func Describe(ctx context.Context, target store.Target) (Description, error) {
	db, err := store.Open(ctx, target)
	if err != nil {
		return Description{}, apperr.Wrap(apperr.KindSchema, "open store "+target.String(), err)
	}
	defer func() { _ = db.Close() }()

	return DescribeDB(ctx, db, target.Driver)
}

func DescribeDB(ctx context.Context, db *sql.DB, driver store.Driver) (Description, error) {
	d, ok := dialects[driver]
	if !ok {
		return Description{}, apperr.New(apperr.KindSchema, fmt.Sprintf("unsupported store driver %q", driver))
	}

	names, err := listTables(ctx, db, d.tablesSQL)
	if err != nil {
		return Description{}, apperr.Wrap(apperr.KindSchema, "list tables", err)
	}

	description := Description{Tables: make([]Table, 0, len(names))}
	for _, name := range names {
		columns, err := listColumns(ctx, db, d.columnsSQL, name)
		if err != nil {
			return Description{}, apperr.Wrap(apperr.KindSchema, fmt.Sprintf("list columns of %q", name), err)
		}
		description.Tables = append(description.Tables, Table{Name: name, Columns: columns})
	}
	return description, nil
}

func listTables(ctx context.Context, db *sql.DB, query string) ([]string, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		if name == MigrationTable {
			continue
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return names, nil
}

func listColumns(ctx context.Context, db *sql.DB, query, table string) ([]Column, error) {
	rows, err := db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var columns []Column
	for rows.Next() {
		var column Column
		if err := rows.Scan(&column.Name, &column.Type); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columns = append(columns, column)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return columns, nil
}
