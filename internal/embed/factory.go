package embed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Aman-CERP/ragpipe/internal/config"
	ragerrors "github.com/Aman-CERP/ragpipe/internal/errors"
)

// ProviderType represents an embedding provider
type ProviderType string

const (
	// ProviderAuto uses Ollama when reachable, the static embedder otherwise
	ProviderAuto ProviderType = "auto"

	// ProviderStatic uses hash-based embeddings
	ProviderStatic ProviderType = "static"

	// ProviderOllama uses a local Ollama server
	ProviderOllama ProviderType = "ollama"

	// ProviderOpenAI uses the OpenAI embeddings API or a compatible server
	ProviderOpenAI ProviderType = "openai"
)

// Pair holds the document and query embedders. They are the same value in
// the single-model setup.
type Pair struct {
	Document Embedder
	Query    Embedder
}

// Close closes both embedders once each.
func (p Pair) Close() error {
	err := p.Document.Close()
	if p.Query != p.Document {
		if qerr := p.Query.Close(); err == nil {
			err = qerr
		}
	}
	return err
}

// NewFromConfig builds the document embedder and, when QueryModel differs
// from Model, a second query embedder of the same provider. Both are
// wrapped in an LRU cache unless cache_size is 0. The two must agree on
// dimensions.
func NewFromConfig(ctx context.Context, cfg config.EmbeddingsConfig) (Pair, error) {
	provider := ProviderType(cfg.Provider)
	doc, resolved, err := NewEmbedder(ctx, provider, cfg.Model, cfg)
	if err != nil {
		return Pair{}, err
	}

	query := doc
	if cfg.QueryModel != "" && cfg.QueryModel != cfg.Model && resolved != ProviderStatic {
		query, _, err = NewEmbedder(ctx, resolved, cfg.QueryModel, cfg)
		if err != nil {
			_ = doc.Close()
			return Pair{}, err
		}
		if query.Dimensions() != doc.Dimensions() {
			_ = doc.Close()
			_ = query.Close()
			return Pair{}, ragerrors.New(ragerrors.ErrCodeDimensionMismatch,
				fmt.Sprintf("query model %s produces %d dimensions, document model %s produces %d",
					query.ModelName(), query.Dimensions(), doc.ModelName(), doc.Dimensions()), nil).
				WithSuggestion("choose query and document models from the same family")
		}
	}

	if cfg.CacheSize > 0 {
		cachedDoc := NewCachedEmbedder(doc, cfg.CacheSize)
		if query == doc {
			return Pair{Document: cachedDoc, Query: cachedDoc}, nil
		}
		return Pair{Document: cachedDoc, Query: NewCachedEmbedder(query, cfg.CacheSize)}, nil
	}
	return Pair{Document: doc, Query: query}, nil
}

// NewEmbedder creates one embedder for the provider and model. With
// ProviderAuto a failed Ollama probe falls back to the static embedder.
// The provider actually used is returned alongside.
func NewEmbedder(ctx context.Context, provider ProviderType, model string, cfg config.EmbeddingsConfig) (Embedder, ProviderType, error) {
	switch provider {
	case ProviderStatic:
		return NewStaticEmbedder(), ProviderStatic, nil

	case ProviderOllama:
		e, err := NewOllamaEmbedder(ctx, ollamaConfig(model, cfg))
		if err != nil {
			return nil, "", err
		}
		return e, ProviderOllama, nil

	case ProviderOpenAI:
		e, err := NewOpenAIEmbedder(ctx, OpenAIConfig{
			BaseURL:    cfg.OpenAIBaseURL,
			APIKeyEnv:  cfg.OpenAIAPIKeyEnv,
			Model:      model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
			Timeout:    cfg.Timeout,
		})
		if err != nil {
			return nil, "", err
		}
		return e, ProviderOpenAI, nil

	case ProviderAuto, "":
		e, err := NewOllamaEmbedder(ctx, ollamaConfig(model, cfg))
		if err != nil {
			slog.Warn("embedder_fallback_static",
				slog.String("reason", err.Error()),
				slog.String("host", cfg.OllamaHost))
			return NewStaticEmbedder(), ProviderStatic, nil
		}
		return e, ProviderOllama, nil
	}

	return nil, "", ragerrors.ConfigError(fmt.Sprintf("unknown embeddings provider %q", provider), nil)
}

func ollamaConfig(model string, cfg config.EmbeddingsConfig) OllamaConfig {
	oc := DefaultOllamaConfig()
	if cfg.OllamaHost != "" {
		oc.Host = cfg.OllamaHost
	}
	if model != "" {
		oc.Model = model
		// An explicit model is not silently replaced.
		oc.FallbackModels = []string{}
	}
	oc.Dimensions = cfg.Dimensions
	if cfg.BatchSize > 0 {
		oc.BatchSize = cfg.BatchSize
	}
	if cfg.Timeout > 0 {
		oc.Timeout = cfg.Timeout
	}
	return oc
}
