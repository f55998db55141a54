package embed

import (
	"context"
	"fmt"
	"log/slog"
)

// Provider names accepted by NewEmbedder.
const (
	ProviderOllama = "ollama"
	ProviderStatic = "static"
	ProviderAuto   = "auto"
)

// Config selects and configures an embedding provider.
type Config struct {
	// Provider is "ollama", "static" or "auto" (try Ollama, fall back to
	// static).
	Provider string

	// Ollama holds remote provider settings; ignored for static.
	Ollama OllamaConfig

	// CacheSize is the query-embedding LRU size (0 = default).
	CacheSize int
}

// NewEmbedder builds the configured provider wrapped in the LRU cache.
// In auto mode an unreachable Ollama degrades to the static embedder with a
// warning rather than failing startup.
func NewEmbedder(ctx context.Context, cfg Config) (Embedder, error) {
	inner, err := newProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewCachedEmbedder(inner, cfg.CacheSize), nil
}

func newProvider(ctx context.Context, cfg Config) (Embedder, error) {
	switch cfg.Provider {
	case ProviderOllama:
		return NewOllamaEmbedder(ctx, cfg.Ollama)

	case ProviderStatic:
		return NewStaticEmbedder(), nil

	case ProviderAuto, "":
		e, err := NewOllamaEmbedder(ctx, cfg.Ollama)
		if err != nil {
			slog.Warn("ollama_unavailable_using_static_embedder",
				slog.String("error", err.Error()))
			return NewStaticEmbedder(), nil
		}
		return e, nil

	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (valid options: ollama, static, auto)", cfg.Provider)
	}
}
