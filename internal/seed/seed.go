// Package seed fills a store with car listings from one source and can export
// what it loaded as a snapshot.
package seed

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/carchat/carchat/internal/dataset"
	"github.com/carchat/carchat/internal/migrations"
	"github.com/carchat/carchat/internal/storage"
	"github.com/carchat/carchat/internal/store"
)

type Config struct {
	Generate    int
	Seed        int64
	CSVPath     string
	ParquetPath string
	// ObjectKey imports a snapshot from the object store; "latest" picks the
	// newest one.
	ObjectKey    string
	ExportFormat string
	Migrate      bool
}

type Report struct {
	Source     string
	Migrations int
	Loaded     int
	Total      int64
	ExportKey  string
}

type Service struct {
	DB        *sql.DB
	Driver    store.Driver
	Snapshots *storage.Snapshots
	Logger    *slog.Logger
}

// Validate requires exactly one source. Object store access is needed only
// for an object source or an export.
func (c Config) Validate() error {
	sources := 0
	if c.Generate > 0 {
		sources++
	}
	for _, v := range []string{c.CSVPath, c.ParquetPath, c.ObjectKey} {
		if strings.TrimSpace(v) != "" {
			sources++
		}
	}
	if sources != 1 {
		return fmt.Errorf("exactly one of -generate, -csv, -parquet or -object is required")
	}
	if c.Generate < 0 {
		return fmt.Errorf("-generate must be >= 0")
	}
	switch c.ExportFormat {
	case "", storage.FormatParquet, storage.FormatCSV:
	default:
		return fmt.Errorf("unsupported export format %q", c.ExportFormat)
	}
	return nil
}

func (c Config) NeedsObjectStore() bool {
	return strings.TrimSpace(c.ObjectKey) != "" || c.ExportFormat != ""
}

func (s *Service) Run(ctx context.Context, cfg Config) (Report, error) {
	if err := cfg.Validate(); err != nil {
		return Report{}, err
	}
	if cfg.NeedsObjectStore() && s.Snapshots == nil {
		return Report{}, fmt.Errorf("object store is not configured")
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var report Report
	if cfg.Migrate {
		applied, err := migrations.NewRunner().Up(ctx, s.DB, 0)
		if err != nil {
			return report, err
		}
		report.Migrations = applied
	}

	listings, source, err := s.read(ctx, cfg)
	if err != nil {
		return report, err
	}
	report.Source = source

	loader := dataset.NewLoader(s.Driver)
	loaded, err := loader.Insert(ctx, s.DB, listings)
	if err != nil {
		return report, err
	}
	report.Loaded = loaded
	if report.Total, err = loader.Count(ctx, s.DB); err != nil {
		return report, err
	}
	logger.Info("listings_loaded",
		slog.String("source", source),
		slog.Int("loaded", loaded),
		slog.Int64("total", report.Total),
	)

	if cfg.ExportFormat != "" {
		all, err := loader.Dump(ctx, s.DB)
		if err != nil {
			return report, err
		}
		info, err := s.Snapshots.Export(ctx, all, cfg.ExportFormat)
		if err != nil {
			return report, err
		}
		report.ExportKey = info.Key
		logger.Info("snapshot_exported", slog.String("key", info.Key), slog.Int64("size", info.Size))
	}
	return report, nil
}

func (s *Service) read(ctx context.Context, cfg Config) ([]dataset.Listing, string, error) {
	switch {
	case cfg.Generate > 0:
		return dataset.NewGenerator(cfg.Seed).Generate(cfg.Generate), fmt.Sprintf("generated(seed=%d)", cfg.Seed), nil
	case cfg.CSVPath != "":
		f, err := os.Open(cfg.CSVPath)
		if err != nil {
			return nil, "", fmt.Errorf("open csv: %w", err)
		}
		defer func() { _ = f.Close() }()
		listings, err := dataset.ReadCSV(f)
		return listings, cfg.CSVPath, err
	case cfg.ParquetPath != "":
		data, err := os.ReadFile(cfg.ParquetPath)
		if err != nil {
			return nil, "", fmt.Errorf("read parquet: %w", err)
		}
		listings, err := dataset.DecodeParquet(data)
		return listings, cfg.ParquetPath, err
	default:
		listings, err := s.Snapshots.Import(ctx, cfg.ObjectKey)
		return listings, "object:" + cfg.ObjectKey, err
	}
}
