package embed

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	ragerrors "github.com/Aman-CERP/ragpipe/internal/errors"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "text-embedding-3-small"

// knownOpenAIDimensions lists native sizes of hosted embedding models.
var knownOpenAIDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// OpenAIConfig configures an embedder for the OpenAI embeddings API or any
// server that speaks it.
type OpenAIConfig struct {
	// BaseURL overrides the API endpoint (empty = api.openai.com)
	BaseURL string

	// APIKeyEnv names the environment variable holding the key
	APIKeyEnv string

	// Model is the embedding model (default: text-embedding-3-small)
	Model string

	// Dimensions requests shortened vectors when non-zero
	Dimensions int

	// BatchSize caps inputs per request (default: 32)
	BatchSize int

	// Timeout for each API request (default: 60s)
	Timeout time.Duration

	// SkipHealthCheck skips the dimension probe for unknown models
	SkipHealthCheck bool
}

// OpenAIEmbedder generates embeddings through the openai-go client.
type OpenAIEmbedder struct {
	client openaisdk.Client
	config OpenAIConfig
	dims   int

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an OpenAI-compatible embedder. The SDK's own
// retry loop is disabled; a failed request surfaces to the caller.
func NewOpenAIEmbedder(ctx context.Context, cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	opts := []option.RequestOption{
		option.WithMaxRetries(0),
		option.WithRequestTimeout(cfg.Timeout),
	}
	if key := os.Getenv(cfg.APIKeyEnv); key != "" {
		opts = append(opts, option.WithAPIKey(key))
	} else if cfg.BaseURL == "" {
		return nil, ragerrors.ConfigError(fmt.Sprintf("openai embeddings need an API key in $%s", cfg.APIKeyEnv), nil).
			WithSuggestion("export " + cfg.APIKeyEnv + " or set embeddings.openai_base_url to a local server")
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"))
	}

	e := &OpenAIEmbedder{
		client: openaisdk.NewClient(opts...),
		config: cfg,
		dims:   cfg.Dimensions,
	}

	if e.dims == 0 {
		if d, ok := knownOpenAIDimensions[cfg.Model]; ok {
			e.dims = d
		}
	}
	if e.dims == 0 && !cfg.SkipHealthCheck {
		vecs, err := e.request(ctx, []string{"dimension detection"})
		if err != nil {
			return nil, ragerrors.New(ragerrors.ErrCodeEmbeddingFailed, "failed to detect embedding dimensions", err).
				WithDetail("model", cfg.Model)
		}
		e.dims = len(vecs[0])
	}
	if e.dims == 0 {
		e.dims = DefaultDimensions
	}

	slog.Debug("openai_embedder_ready",
		slog.String("base_url", cfg.BaseURL),
		slog.String("model", cfg.Model),
		slog.Int("dimensions", e.dims))
	return e, nil
}

// request performs one embeddings call and returns vectors in input order.
func (e *OpenAIEmbedder) request(ctx context.Context, texts []string) ([][]float32, error) {
	params := openaisdk.EmbeddingNewParams{
		Input: openaisdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openaisdk.EmbeddingModel(e.config.Model),
	}
	if e.config.Dimensions > 0 {
		params.Dimensions = openaisdk.Int(int64(e.config.Dimensions))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	data := slices.Clone(resp.Data)
	slices.SortFunc(data, func(a, b openaisdk.Embedding) int {
		return int(a.Index - b.Index)
	})

	out := make([][]float32, len(data))
	for i, d := range data {
		if int(d.Index) != i {
			return nil, fmt.Errorf("embedding index %d out of sequence", d.Index)
		}
		if len(d.Embedding) == 0 {
			return nil, fmt.Errorf("empty embedding returned at index %d", i)
		}
		out[i] = Normalize(toFloat32(d.Embedding))
	}
	return out, nil
}

// Embed generates embedding for a single text
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in requests of at most BatchSize inputs.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	results := make([][]float32, len(texts))
	var nonEmpty []string
	var positions []int
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			results[i] = make([]float32, e.dims)
			continue
		}
		nonEmpty = append(nonEmpty, t)
		positions = append(positions, i)
	}

	done := 0
	for _, batch := range batches(nonEmpty, e.config.BatchSize) {
		vecs, err := e.request(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, ragerrors.New(ragerrors.ErrCodeEmbeddingFailed, "openai embedding request failed", err).
				WithDetail("model", e.config.Model)
		}
		for j, v := range vecs {
			results[positions[done+j]] = v
		}
		done += len(batch)
	}
	return results, nil
}

func (e *OpenAIEmbedder) checkOpen() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ragerrors.New(ragerrors.ErrCodeEmbeddingFailed, "embedder is closed", nil)
	}
	return nil
}

// Dimensions returns the embedding dimension
func (e *OpenAIEmbedder) Dimensions() int { return e.dims }

// ModelName returns the model identifier
func (e *OpenAIEmbedder) ModelName() string { return e.config.Model }

// Available reports whether the embedder is open. No request is made.
func (e *OpenAIEmbedder) Available(_ context.Context) bool {
	return e.checkOpen() == nil
}

// Close marks the embedder closed.
func (e *OpenAIEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
