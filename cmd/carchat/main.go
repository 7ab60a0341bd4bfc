package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/carchat/carchat/internal/app"
	"github.com/carchat/carchat/internal/apperr"
	"github.com/carchat/carchat/internal/config"
	"github.com/carchat/carchat/internal/console"
	"github.com/carchat/carchat/internal/observability"
	"github.com/carchat/carchat/internal/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		fatal(apperr.Wrap(apperr.KindInitialization, "configuration", err))
	}

	// Logs go to stderr so they never interleave with the conversation.
	logger := observability.NewLogger(cfg, os.Stderr)
	built, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup_failed", slog.Any("error", err))
		fatal(err)
	}

	s := session.New("console", time.Now().UTC())
	c := &console.Console{
		Chat:    built.Orchestrator,
		Session: s,
		Schema:  built.Schema,
		In:      os.Stdin,
		Out:     os.Stdout,
	}
	if err := c.Run(ctx); err != nil {
		logger.Error("console_failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("session_ended", slog.Int("history_len", s.History.Len()))
}

func loadConfig() (config.Config, error) {
	envFile := ".env"
	if raw, ok := os.LookupEnv("CARCHAT_ENV_FILE"); ok {
		envFile = strings.TrimSpace(raw)
	}
	lookup, err := config.WithDotEnv(envFile, os.LookupEnv)
	if err != nil {
		return config.Config{}, err
	}
	return config.Load("carchat", lookup)
}

func fatal(err error) {
	_, _ = fmt.Fprintln(os.Stderr, apperr.UserMessage(err))
	os.Exit(1)
}
