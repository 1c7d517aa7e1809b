package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/spherical/slide-pipeline/internal/cache"
	"github.com/spherical/slide-pipeline/internal/catalog"
	"github.com/spherical/slide-pipeline/internal/convert"
	"github.com/spherical/slide-pipeline/internal/embedding"
	"github.com/spherical/slide-pipeline/internal/extract"
	"github.com/spherical/slide-pipeline/internal/httpclient"
	"github.com/spherical/slide-pipeline/internal/llm"
	"github.com/spherical/slide-pipeline/internal/pdf"
	"github.com/spherical/slide-pipeline/internal/storage"
)

// app holds the process-wide collaborators built once per command.
type app struct {
	store      *storage.Store
	httpClient *http.Client
	cache      cache.Client
}

func openApp(ctx context.Context) (*app, error) {
	db, dialect, err := storage.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("database connection: %w", err)
	}
	store := storage.NewStore(db, dialect)

	if autoMigrate {
		if err := store.EnsureSchema(ctx, cfg.Embedding.Dimension); err != nil {
			store.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
	}

	cacheClient, err := cache.New(cfg.Cache)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("page cache: %w", err)
	}

	logger.Debug().
		Str("database", string(dialect)).
		Str("cache", cfg.Cache.Driver).
		Msg("Pipeline dependencies ready")

	return &app{
		store:      store,
		httpClient: httpclient.New(httpclient.OptionsFromConfig(cfg.HTTP, logger)),
		cache:      cacheClient,
	}, nil
}

func (a *app) Close() {
	if err := a.cache.Close(); err != nil {
		logger.Warn().Err(err).Msg("Failed to close cache")
	}
	if err := a.store.Close(); err != nil {
		logger.Warn().Err(err).Msg("Failed to close database")
	}
}

func (a *app) extractionService() *extract.Service {
	counter := pdf.NewPageCounter(pdf.NewValidator(logger))
	return extract.NewService(extract.Dependencies{
		Store:     a.store,
		Renderer:  pdf.NewRenderer(logger),
		Counter:   counter,
		Converter: convert.NewClient(cfg.Converter, a.httpClient),
		Vision:    llm.NewClient(llm.ConfigFromVision(cfg.Vision), a.httpClient),
		Cache:     cache.NewPageCache(a.cache, cfg.Cache.TTL, logger),
		Logger:    logger,
	}, extract.OptionsFromConfig(cfg))
}

func (a *app) embeddingEngine() *embedding.Engine {
	client := embedding.NewClient(embedding.ConfigFromEmbedding(cfg.Embedding), a.httpClient)
	return embedding.NewEngine(a.store, client, cfg.Embedding, logger)
}

func (a *app) catalog() *catalog.Catalog {
	return catalog.New(a.store, pdf.NewPageCounter(pdf.NewValidator(logger)), logger)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
