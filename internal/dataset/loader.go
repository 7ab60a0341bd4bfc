package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/carchat/carchat/internal/store"
)

// Loader writes and reads listings through database/sql. All three store
// drivers accept $n placeholders.
type Loader struct {
	Table  string
	Driver store.Driver
}

func NewLoader(driver store.Driver) *Loader {
	return &Loader{Table: "cars", Driver: driver}
}

// Insert writes listings in one transaction; any failure leaves the table
// unchanged.
func (l *Loader) Insert(ctx context.Context, db *sql.DB, listings []Listing) (int, error) {
	if len(listings) == 0 {
		return 0, nil
	}
	quoted := make([]string, len(Columns))
	placeholders := make([]string, len(Columns))
	for i, column := range Columns {
		quoted[i] = store.QuoteIdent(column)
		placeholders[i] = store.Placeholder(l.Driver, i+1)
	}
	statement := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		store.QuoteIdent(l.table()), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, statement)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, listing := range listings {
		if err := listing.Validate(); err != nil {
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx, listing.values()...); err != nil {
			return 0, fmt.Errorf("insert listing %d: %w", listing.Index, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit listings: %w", err)
	}
	return len(listings), nil
}

// Dump reads every listing ordered by index.
func (l *Loader) Dump(ctx context.Context, db *sql.DB) ([]Listing, error) {
	quoted := make([]string, len(Columns))
	for i, column := range Columns {
		quoted[i] = store.QuoteIdent(column)
	}
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		strings.Join(quoted, ", "), store.QuoteIdent(l.table()), store.QuoteIdent("index"))

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query listings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var listings []Listing
	for rows.Next() {
		var item Listing
		if err := rows.Scan(&item.Index, &item.Name, &item.Year, &item.SellingPrice, &item.KmDriven,
			&item.Fuel, &item.SellerType, &item.Transmission, &item.Owner); err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		listings = append(listings, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return listings, nil
}

func (l *Loader) Count(ctx context.Context, db *sql.DB) (int64, error) {
	var n int64
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+store.QuoteIdent(l.table())).Scan(&n); err != nil {
		return 0, fmt.Errorf("count listings: %w", err)
	}
	return n, nil
}

func (l *Loader) table() string {
	if strings.TrimSpace(l.Table) == "" {
		return "cars"
	}
	return l.Table
}
