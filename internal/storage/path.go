package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

const (
	FormatParquet = "parquet"
	FormatCSV     = "csv"
)

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// SnapshotKey lays snapshots out as <table>/date=YYYY-MM-DD/<table>-<stamp>.<format>.
// Keys sort chronologically within a table.
func SnapshotKey(table string, at time.Time, format string) (string, error) {
	if !tableNamePattern.MatchString(table) {
		return "", fmt.Errorf("invalid table name: %q", table)
	}
	switch format {
	case FormatParquet, FormatCSV:
	default:
		return "", fmt.Errorf("unsupported snapshot format %q", format)
	}
	ts := at.UTC()
	return path.Join(
		table,
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		fmt.Sprintf("%s-%s.%s", table, ts.Format("20060102T150405Z"), format),
	), nil
}

// FormatOf infers a snapshot format from its key extension.
func FormatOf(key string) (string, error) {
	switch strings.ToLower(path.Ext(key)) {
	case ".parquet":
		return FormatParquet, nil
	case ".csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("cannot infer snapshot format from %q", key)
	}
}

func contentType(format string) string {
	if format == FormatCSV {
		return "text/csv"
	}
	return "application/vnd.apache.parquet"
}
