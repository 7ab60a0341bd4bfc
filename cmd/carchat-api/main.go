package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/carchat/carchat/internal/api"
	"github.com/carchat/carchat/internal/app"
	"github.com/carchat/carchat/internal/apperr"
	"github.com/carchat/carchat/internal/config"
	"github.com/carchat/carchat/internal/observability"
	"github.com/carchat/carchat/internal/session"
)

func main() {
	lookup, err := config.WithDotEnv(envFile(), os.LookupEnv)
	if err != nil {
		slog.Error("failed to read env file", slog.Any("error", err))
		os.Exit(1)
	}
	cfg, err := config.Load("carchat-api", lookup)
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	built, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup_failed", slog.String("kind", string(apperr.KindOf(err))), slog.Any("error", err))
		_, _ = fmt.Fprintln(os.Stderr, apperr.UserMessage(err))
		os.Exit(1)
	}

	registry := session.NewRegistry(nil)
	handler := api.NewHandler(cfg, api.Dependencies{
		Logger:   logger,
		Sessions: registry,
		Chat:     built.Orchestrator,
		Schema:   built.Schema,
		Readiness: api.CombineReadinessChecks(
			api.CheckStore(built.Target),
			api.CheckSchemaLoaded(built.Schema),
		),
		DependencyTimeout: time.Second,
	})
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go sweepSessions(ctx, registry, cfg.Session.IdleTimeout, logger)

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

// sweepSessions ends idle sessions until ctx is done. A zero idle timeout
// keeps sessions until they are deleted.
func sweepSessions(ctx context.Context, registry *session.Registry, idle time.Duration, logger *slog.Logger) {
	if idle <= 0 {
		return
	}
	interval := idle / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ended := registry.Sweep(idle); ended > 0 {
				logger.Info("sessions_expired", slog.Int("count", ended), slog.Int("live", registry.Len()))
			}
		}
	}
}

func envFile() string {
	if raw, ok := os.LookupEnv("CARCHAT_ENV_FILE"); ok {
		return strings.TrimSpace(raw)
	}
	return ".env"
}
