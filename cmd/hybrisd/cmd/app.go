package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/rezkaaufar/hybrid-search-service/internal/config"
	"github.com/rezkaaufar/hybrid-search-service/internal/embed"
	"github.com/rezkaaufar/hybrid-search-service/internal/logging"
	"github.com/rezkaaufar/hybrid-search-service/internal/rerank"
	"github.com/rezkaaufar/hybrid-search-service/internal/store"
)

// appStack holds the wired storage and model dependencies shared by
// serve and ingest.
type appStack struct {
	Config   *config.Config
	Docs     *store.DocumentStore
	Lexical  store.LexicalIndex
	Vector   *store.HNSWIndex
	Embedder embed.Embedder
}

// setupLogging loads config and installs the default logger. Returns
// config, the logging cleanup, and error.
func setupLogging(opts *rootOptions) (*config.Config, func(), error) {
	cfg, err := config.Load(opts.configDir)
	if err != nil {
		return nil, nil, err
	}

	level := cfg.Server.LogLevel
	if opts.debug {
		level = "debug"
	}
	cleanup, err := logging.SetupDefault(logging.Config{
		Level:         level,
		FilePath:      cfg.Server.LogFile,
		WriteToStderr: true,
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, cleanup, nil
}

// buildStack opens the document store, lexical index, vector index,
// and embedding provider per cfg. The vector index sidecar is loaded
// when present; a missing sidecar starts empty.
func buildStack(ctx context.Context, cfg *config.Config) (*appStack, error) {
	if err := os.MkdirAll(cfg.Paths.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	docs, err := store.OpenDocumentStore(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("failed to open document store: %w", err)
	}

	lexical, err := store.NewLexicalIndex(cfg.Search.LexicalBackend, docs.DB(), cfg.Paths.DataDir)
	if err != nil {
		_ = docs.Close()
		return nil, fmt.Errorf("failed to open lexical index: %w", err)
	}

	embedder, err := embed.NewEmbedder(ctx, embed.Config{
		Provider: cfg.Embeddings.Provider,
		Ollama: embed.OllamaConfig{
			Host:       cfg.Embeddings.OllamaHost,
			Model:      cfg.Embeddings.Model,
			Dimensions: cfg.Embeddings.Dimensions,
			BatchSize:  cfg.Embeddings.BatchSize,
		},
		CacheSize: cfg.Embeddings.CacheSize,
	})
	if err != nil {
		_ = lexical.Close()
		_ = docs.Close()
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	vector, err := openVectorIndex(cfg, embedder.Dimensions())
	if err != nil {
		_ = embedder.Close()
		_ = lexical.Close()
		_ = docs.Close()
		return nil, err
	}

	return &appStack{
		Config:   cfg,
		Docs:     docs,
		Lexical:  lexical,
		Vector:   vector,
		Embedder: embedder,
	}, nil
}

func openVectorIndex(cfg *config.Config, dims int) (*store.HNSWIndex, error) {
	path := cfg.VectorIndexPath()

	// A persisted sidecar fixes the dimensions; otherwise use the
	// active embedder's width.
	if persisted, err := store.ReadHNSWIndexDimensions(path); err == nil && persisted > 0 {
		dims = persisted
	}

	index, err := store.NewHNSWIndex(store.VectorIndexConfig{Dimensions: dims})
	if err != nil {
		return nil, fmt.Errorf("failed to create vector index: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		if err := index.Load(path); err != nil {
			slog.Warn("vector_index_load_failed_starting_empty",
				slog.String("path", path),
				slog.String("error", err.Error()))
		} else {
			slog.Info("vector_index_loaded",
				slog.String("path", path),
				slog.Int("vectors", index.Count()))
		}
	}
	return index, nil
}

// newScorer builds the configured rerank scorer. An unreachable HTTP
// sidecar degrades to the lexical scorer so the service stays up.
func newScorer(ctx context.Context, cfg *config.Config) rerank.Scorer {
	if cfg.Rerank.Scorer != "http" {
		return rerank.NewLexicalScorer()
	}

	scorer, err := rerank.NewHTTPScorer(ctx, rerank.HTTPScorerConfig{
		Endpoint: cfg.Rerank.Endpoint,
		Model:    cfg.Rerank.Model,
		Timeout:  cfg.Rerank.Timeout,
	})
	if err != nil {
		slog.Warn("rerank_sidecar_unavailable_using_lexical_scorer",
			slog.String("endpoint", cfg.Rerank.Endpoint),
			slog.String("error", err.Error()))
		return rerank.NewLexicalScorer()
	}
	return scorer
}

// Close releases all stack resources.
func (a *appStack) Close() {
	if err := a.Vector.Close(); err != nil {
		slog.Warn("vector_index_close_failed", slog.String("error", err.Error()))
	}
	if err := a.Embedder.Close(); err != nil {
		slog.Warn("embedder_close_failed", slog.String("error", err.Error()))
	}
	if err := a.Lexical.Close(); err != nil {
		slog.Warn("lexical_index_close_failed", slog.String("error", err.Error()))
	}
	if err := a.Docs.Close(); err != nil {
		slog.Warn("document_store_close_failed", slog.String("error", err.Error()))
	}
}
