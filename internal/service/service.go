// Package service wires configuration into the collaborators shared by the
// HTTP server and the CLI.
package service

import (
	"context"
	"database/sql"
	"net/http"

	"go.uber.org/zap"

	"searchchat/backend/internal/assistant"
	"searchchat/backend/internal/brave"
	"searchchat/backend/internal/config"
	"searchchat/backend/internal/googlesearch"
	"searchchat/backend/internal/ollama"
	"searchchat/backend/internal/runlog"
	"searchchat/backend/internal/search"
)

type ModelLister interface {
	ListModels(ctx context.Context) ([]ollama.Model, error)
}

type Service struct {
	Orchestrator *assistant.Orchestrator
	Models       ModelLister
	Runs         runlog.Store
}

// New builds the service. database may be nil, which disables the run log.
func New(cfg config.Config, database *sql.DB, logger *zap.Logger) Service {
	backend := ollama.NewClient(cfg, nil)
	orchestrator := assistant.NewOrchestrator(backend, NewSearchProvider(cfg), assistant.Options{
		SliceSize:  cfg.DraftSliceSize,
		MaxRetries: cfg.AdequacyMaxRetries,
	}, logger.Named("assistant"))

	return Service{
		Orchestrator: orchestrator,
		Models:       backend,
		Runs:         runlog.NewStore(database),
	}
}

// NewSearchProvider picks the configured provider. Missing credentials yield
// a provider that fails closed with search.ErrNotConfigured.
func NewSearchProvider(cfg config.Config) search.Provider {
	if !cfg.SearchConfigured() {
		return search.Unconfigured{}
	}

	var provider search.Provider
	switch cfg.SearchProvider {
	case config.SearchProviderBrave:
		provider = brave.NewClient(cfg, &http.Client{Timeout: cfg.UpstreamTimeout})
	default:
		provider = googlesearch.NewClient(cfg)
	}
	return search.RateLimited(provider, cfg.SearchMinInterval)
}
