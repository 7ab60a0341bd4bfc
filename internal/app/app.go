// Package app assembles a chat pipeline from configuration. Both the console
// and the HTTP server start through Build.
package app

import (
	"context"
	"log/slog"
	"strings"

	"github.com/carchat/carchat/internal/answer"
	"github.com/carchat/carchat/internal/apperr"
	"github.com/carchat/carchat/internal/chat"
	"github.com/carchat/carchat/internal/config"
	"github.com/carchat/carchat/internal/llm"
	"github.com/carchat/carchat/internal/nl2sql"
	"github.com/carchat/carchat/internal/observability"
	"github.com/carchat/carchat/internal/query"
	"github.com/carchat/carchat/internal/schema"
	"github.com/carchat/carchat/internal/store"
)

type App struct {
	Target       store.Target
	Schema       schema.Description
	Model        llm.Completer
	Orchestrator *chat.Orchestrator
}

// Build returns an initialization error for a missing credential or a bad
// configuration, and a schema error when the store cannot be introspected.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := config.RequireCredential(cfg); err != nil {
		return nil, err
	}
	target, err := store.ParseTarget(cfg.Store.Target)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInitialization, "invalid store target", err)
	}
	model, err := llm.New(llm.Config{
		Provider:    cfg.AI.Provider,
		BaseURL:     cfg.AI.BaseURL,
		APIKey:      cfg.AI.APIKey,
		Model:       cfg.AI.Model,
		Temperature: cfg.AI.Temperature,
		Timeout:     cfg.AI.Timeout,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInitialization, "model client", err)
	}

	description, err := schema.Describe(ctx, target)
	if err != nil {
		return nil, err
	}
	logger.Info("schema_loaded",
		slog.String("store", target.String()),
		slog.Any("tables", description.TableNames()),
		slog.String("model", model.Name()),
	)

	metrics := observability.TurnMetrics{}
	executor := query.NewExecutor(target, cfg.Executor.ReadOnly, logger)
	executor.Observer = metrics

	return &App{
		Target: target,
		Schema: description,
		Model:  model,
		Orchestrator: &chat.Orchestrator{
			Schema:    description,
			Generator: nl2sql.NewGenerator(model, DomainNote(cfg, target.Driver)),
			Sanitizer: nl2sql.NewSanitizer(),
			Executor:  executor,
			Composer:  answer.NewComposer(model),
			Logger:    logger,
			Metrics:   metrics,
		},
	}, nil
}

// DomainNote adapts the default dataset description to the store dialect and
// the configured currency.
func DomainNote(cfg config.Config, driver store.Driver) nl2sql.DomainNote {
	note := nl2sql.DefaultDomainNote()
	note.Dialect = nl2sql.DialectName(driver)
	if currency := strings.TrimSpace(cfg.Domain.Currency); currency != "" {
		note.Currency = currency
	}
	return note
}
