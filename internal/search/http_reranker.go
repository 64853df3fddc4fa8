package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	ragerrors "github.com/Aman-CERP/ragpipe/internal/errors"
)

// HTTP reranker configuration defaults
const (
	DefaultRerankerEndpoint = "http://localhost:9659"
	DefaultRerankerModel    = "BAAI/bge-reranker-v2-m3"
	DefaultRerankerTimeout  = 30 * time.Second
)

// HTTPRerankerConfig holds configuration for the cross-encoder client
type HTTPRerankerConfig struct {
	// Endpoint is the rerank server URL (default: http://localhost:9659)
	Endpoint string

	// Model is the cross-encoder model name (default: BAAI/bge-reranker-v2-m3)
	Model string

	// Timeout is the request timeout (default: 30s)
	Timeout time.Duration

	// SkipHealthCheck skips the /health probe during creation
	SkipHealthCheck bool
}

// HTTPReranker scores query-passage pairs with a cross-encoder served over HTTP.
type HTTPReranker struct {
	client   *http.Client
	config   HTTPRerankerConfig
	mu       sync.RWMutex
	closed   bool
	endpoint string
}

var _ Reranker = (*HTTPReranker)(nil)

// NewHTTPReranker creates a cross-encoder client
func NewHTTPReranker(ctx context.Context, cfg HTTPRerankerConfig) (*HTTPReranker, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultRerankerEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultRerankerModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRerankerTimeout
	}

	r := &HTTPReranker{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		config:   cfg,
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
	}

	if !cfg.SkipHealthCheck {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if err := r.healthCheck(checkCtx); err != nil {
			return nil, ragerrors.NetworkError("reranker health check failed", err).
				WithDetail("endpoint", r.endpoint)
		}
	}

	slog.Debug("http_reranker_created",
		slog.String("endpoint", r.endpoint),
		slog.String("model", cfg.Model),
		slog.Duration("timeout", cfg.Timeout))

	return r, nil
}

// healthCheck verifies the server answers GET /health
func (r *HTTPReranker) healthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to rerank server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("rerank server unhealthy (status %d): %s", resp.StatusCode, string(body))
	}
	return nil
}

// rerankRequest is the JSON request to /rerank
type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model,omitempty"`
	TopK      int      `json:"top_k,omitempty"`
}

// rerankResponse is the JSON response from /rerank
type rerankResponse struct {
	Results []struct {
		Index    int     `json:"index"`
		Score    float64 `json:"score"`
		Document string  `json:"document"`
	} `json:"results"`
	Model            string  `json:"model"`
	Count            int     `json:"count"`
	ProcessingTimeMs float64 `json:"processing_time_ms"`
}

// Rerank sends all passages in one request and keeps the server's order.
func (r *HTTPReranker) Rerank(ctx context.Context, query string, passages []string) ([]RerankResult, error) {
	start := time.Now()

	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, rerankError(r.Name(), fmt.Errorf("reranker is closed"))
	}

	if len(passages) == 0 {
		return []RerankResult{}, nil
	}

	body, err := json.Marshal(rerankRequest{
		Query:     query,
		Documents: passages,
		Model:     r.config.Model,
		TopK:      len(passages),
	})
	if err != nil {
		return nil, rerankError(r.Name(), fmt.Errorf("failed to marshal rerank request: %w", err))
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodPost, r.endpoint+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, rerankError(r.Name(), fmt.Errorf("failed to create rerank request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	httpStart := time.Now()
	resp, err := r.client.Do(req)
	httpDuration := time.Since(httpStart)
	if err != nil {
		return nil, rerankError(r.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, rerankError(r.Name(), fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody)))
	}

	var result rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, ragerrors.New(ragerrors.ErrCodeOracleProtocol, "failed to decode rerank response", err)
	}

	ranked := make([]oracleScore, len(result.Results))
	for i, res := range result.Results {
		ranked[i] = oracleScore{Index: res.Index, Score: res.Score}
	}
	results, err := mapOracleResults(passages, ranked)
	if err != nil {
		return nil, err
	}

	slog.Debug("rerank_http_timing",
		slog.String("query", truncateQuery(query, 50)),
		slog.Int("doc_count", len(passages)),
		slog.Int("payload_bytes", len(body)),
		slog.Duration("http_request", httpDuration),
		slog.Duration("total", time.Since(start)),
		slog.Float64("server_time_ms", result.ProcessingTimeMs))

	return results, nil
}

// Name returns the model served by the endpoint
func (r *HTTPReranker) Name() string {
	return "http:" + r.config.Model
}

// Available checks if the rerank service answers its health probe
func (r *HTTPReranker) Available(ctx context.Context) bool {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return false
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return r.healthCheck(checkCtx) == nil
}

// Close releases idle connections
func (r *HTTPReranker) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if transport, ok := r.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
	return nil
}

// truncateQuery shortens a query for logging
func truncateQuery(q string, maxLen int) string {
	runes := []rune(q)
	if len(runes) <= maxLen {
		return q
	}
	return string(runes[:maxLen]) + "..."
}
