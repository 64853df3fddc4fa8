package search

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Aman-CERP/ragpipe/internal/config"
	ragerrors "github.com/Aman-CERP/ragpipe/internal/errors"
)

// RerankResult is one passage with its relevance score.
type RerankResult struct {
	// Index is the position of the passage in the input slice
	Index int
	// Passage is the input passage at Index
	Passage string
	// Score is the relevance oracle's score, unmodified
	Score float64
}

// Reranker reorders candidate passages with a relevance oracle.
type Reranker interface {
	// Rerank asks the oracle once and returns its ordering verbatim, each
	// entry mapped back to its passage. An empty input returns an empty
	// result without consulting the oracle.
	Rerank(ctx context.Context, query string, passages []string) ([]RerankResult, error)

	// Name identifies the oracle in stats and logs
	Name() string

	// Available checks if the oracle can be reached
	Available(ctx context.Context) bool

	// Close releases resources
	Close() error
}

// oracleScore is one (index, score) pair as ranked by an oracle.
type oracleScore struct {
	Index int
	Score float64
}

// mapOracleResults attaches passages to the oracle's ranking, keeping its
// order. An index outside the passage range, or one seen twice, is a
// protocol error.
func mapOracleResults(passages []string, ranked []oracleScore) ([]RerankResult, error) {
	results := make([]RerankResult, len(ranked))
	seen := make(map[int]struct{}, len(ranked))
	for i, r := range ranked {
		if r.Index < 0 || r.Index >= len(passages) {
			return nil, ragerrors.New(ragerrors.ErrCodeOracleProtocol,
				fmt.Sprintf("relevance oracle returned index %d for %d passages", r.Index, len(passages)), nil).
				WithDetail("position", fmt.Sprint(i))
		}
		if _, dup := seen[r.Index]; dup {
			return nil, ragerrors.New(ragerrors.ErrCodeOracleProtocol,
				fmt.Sprintf("relevance oracle returned index %d more than once", r.Index), nil).
				WithDetail("position", fmt.Sprint(i))
		}
		seen[r.Index] = struct{}{}
		results[i] = RerankResult{Index: r.Index, Passage: passages[r.Index], Score: r.Score}
	}
	return results, nil
}

// rerankError wraps an oracle failure, keeping the cause reachable.
func rerankError(oracle string, err error) error {
	return ragerrors.New(ragerrors.ErrCodeRerankFailed, oracle+" rerank failed", err)
}

// NewRerankerFromConfig builds the configured relevance oracle. "auto"
// probes the HTTP cross-encoder once and falls back to lexical scoring.
func NewRerankerFromConfig(ctx context.Context, cfg config.RerankerConfig) (Reranker, error) {
	httpCfg := HTTPRerankerConfig{
		Endpoint:        cfg.Endpoint,
		Model:           cfg.Model,
		Timeout:         cfg.Timeout,
		SkipHealthCheck: cfg.SkipHealthCheck,
	}

	switch cfg.Provider {
	case "lexical":
		return NewLexicalReranker(), nil
	case "http":
		return NewHTTPReranker(ctx, httpCfg)
	case "auto", "":
		httpCfg.SkipHealthCheck = false
		r, err := NewHTTPReranker(ctx, httpCfg)
		if err != nil {
			slog.Warn("reranker_fallback_lexical",
				slog.String("endpoint", cfg.Endpoint),
				slog.String("reason", err.Error()))
			return NewLexicalReranker(), nil
		}
		return r, nil
	}
	return nil, ragerrors.ConfigError(fmt.Sprintf("unknown reranker provider %q", cfg.Provider), nil)
}
