package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carchat/carchat/internal/config"
	"github.com/carchat/carchat/internal/observability"
	"github.com/carchat/carchat/internal/seed"
	"github.com/carchat/carchat/internal/storage"
	s3store "github.com/carchat/carchat/internal/storage/s3"
	"github.com/carchat/carchat/internal/store"
)

func main() {
	var opts seed.Config
	flag.IntVar(&opts.Generate, "generate", 0, "generate N synthetic listings")
	flag.Int64Var(&opts.Seed, "seed", time.Now().UTC().UnixNano(), "generator seed")
	flag.StringVar(&opts.CSVPath, "csv", "", "load listings from a CSV file")
	flag.StringVar(&opts.ParquetPath, "parquet", "", "load listings from a parquet file")
	flag.StringVar(&opts.ObjectKey, "object", "", "load a snapshot from the object store (key or \"latest\")")
	flag.StringVar(&opts.ExportFormat, "export", "", "after loading, export the table to the object store as parquet|csv")
	flag.BoolVar(&opts.Migrate, "migrate", true, "apply migrations before loading")
	flag.Parse()

	if err := opts.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadFromEnv("carchat-seed")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	target, err := store.ParseTarget(cfg.Store.Target)
	if err != nil {
		logger.Error("invalid store target", slog.Any("error", err))
		os.Exit(1)
	}
	db, err := store.Create(ctx, target)
	if err != nil {
		logger.Error("failed to open store", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	svc := &seed.Service{DB: db, Driver: target.Driver, Logger: logger}
	if opts.NeedsObjectStore() {
		objects, err := s3store.New(ctx, cfg.ObjectStore)
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		svc.Snapshots = storage.NewSnapshots(objects, "cars")
	}

	report, err := svc.Run(ctx, opts)
	if err != nil {
		logger.Error("seed failed", slog.Any("error", err))
		os.Exit(1)
	}
	fmt.Printf("loaded %d listing(s) from %s into %s (%d total)\n", report.Loaded, report.Source, target, report.Total)
	if report.ExportKey != "" {
		fmt.Printf("exported snapshot %s\n", report.ExportKey)
	}
}
