package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Aman-CERP/ragpipe/internal/async"
	ragerrors "github.com/Aman-CERP/ragpipe/internal/errors"
	"github.com/Aman-CERP/ragpipe/internal/search"
	"github.com/Aman-CERP/ragpipe/internal/telemetry"
)

// JSON-RPC 2.0 method names.
const (
	MethodIngest = "ingest"
	MethodSearch = "search"
	MethodStatus = "status"
	MethodReset  = "reset"
	MethodPing   = "ping"
)

// Standard JSON-RPC 2.0 error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Application error codes. The pipeline's ERR_xxx code travels in Error.Data.
const (
	ErrCodeIngestFailed = -32001
	ErrCodeSearchFailed = -32002
)

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      string          `json:"id"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      string          `json:"id"`
}

// Error represents a JSON-RPC 2.0 error.
type Error struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Data    *ErrorData `json:"data,omitempty"`
}

// ErrorData carries the pipeline error code and suggestion.
type ErrorData struct {
	Code       string `json:"code,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// RemoteError is a daemon-side failure as seen by the client.
type RemoteError struct {
	Method  string
	RPCCode int
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s failed: [%s] %s", e.Method, e.Code, e.Message)
	}
	return fmt.Sprintf("%s failed: %s (code: %d)", e.Method, e.Message, e.RPCCode)
}

// NewSuccessResponse creates a successful response.
func NewSuccessResponse(id string, result any) Response {
	data, err := json.Marshal(result)
	if err != nil {
		return NewErrorResponse(id, ErrCodeInternalError, "failed to encode result")
	}
	return Response{JSONRPC: "2.0", Result: data, ID: id}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(id string, code int, message string) Response {
	return Response{
		JSONRPC: "2.0",
		Error:   &Error{Code: code, Message: message},
		ID:      id,
	}
}

// newPipelineErrorResponse maps a pipeline error onto JSON-RPC. Input
// validation failures become invalid-params; the rest use rpcCode.
func newPipelineErrorResponse(id string, rpcCode int, err error) Response {
	var re *ragerrors.RAGError
	if !errors.As(err, &re) {
		return NewErrorResponse(id, rpcCode, err.Error())
	}

	if re.Category == ragerrors.CategoryValidation {
		rpcCode = ErrCodeInvalidParams
	}
	resp := NewErrorResponse(id, rpcCode, re.Message)
	resp.Error.Data = &ErrorData{Code: re.Code, Suggestion: re.Suggestion}
	return resp
}

// IngestParams are the parameters for the ingest method. Documents and
// Paths may both be set; inline documents are ingested first.
type IngestParams struct {
	Documents []string            `json:"documents,omitempty"`
	Metadata  []map[string]string `json:"metadata,omitempty"`

	// Paths are files or directories readable by the daemon process.
	Paths []string `json:"paths,omitempty"`
}

// Validate checks that something was provided.
func (p *IngestParams) Validate() error {
	if len(p.Documents) == 0 && len(p.Paths) == 0 {
		return fmt.Errorf("documents or paths are required")
	}
	return nil
}

// IngestResult summarizes an ingest call.
type IngestResult struct {
	Documents  int   `json:"documents"`
	Chunks     int   `json:"chunks"`
	DurationMs int64 `json:"duration_ms"`
}

// SearchParams are the parameters for the search method.
type SearchParams struct {
	Query string `json:"query"`

	// TopK is the retrieval depth (default: configured top_k).
	TopK int `json:"top_k,omitempty"`

	// RerankK is the number of results returned (default: configured rerank_k).
	RerankK int `json:"rerank_k,omitempty"`

	// Task is the task profile name (default: configured task).
	Task string `json:"task,omitempty"`
}

// Validate checks that required fields are present.
func (p *SearchParams) Validate() error {
	if strings.TrimSpace(p.Query) == "" {
		return fmt.Errorf("query is required")
	}
	if p.TopK < 0 || p.RerankK < 0 {
		return fmt.Errorf("top_k and rerank_k must not be negative")
	}
	return nil
}

// SearchResult is one hit on the wire.
type SearchResult struct {
	Rank       int               `json:"rank"`
	Score      float64           `json:"score"`
	DenseScore float64           `json:"dense_score"`
	Text       string            `json:"text"`
	ChunkID    string            `json:"chunk_id"`
	Source     string            `json:"source"`
	DocIndex   int               `json:"doc_index"`
	ChunkIndex int               `json:"chunk_index"`
	Excerpt    string            `json:"source_excerpt,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// FromResults converts engine results to wire results.
func FromResults(results []search.Result) []SearchResult {
	out := make([]SearchResult, len(results))
	for i, r := range results {
		out[i] = SearchResult{
			Rank:       r.Rank,
			Score:      r.Score,
			DenseScore: r.DenseScore,
			Text:       r.Chunk.Text,
			ChunkID:    r.Chunk.ID,
			Source:     r.Chunk.Metadata.Source,
			DocIndex:   r.Chunk.Metadata.DocIndex,
			ChunkIndex: r.Chunk.Metadata.ChunkIndex,
			Excerpt:    r.Chunk.Metadata.SourceExcerpt,
			Extra:      r.Chunk.Metadata.Extra,
		}
	}
	return out
}

// StatusResult contains daemon status information.
type StatusResult struct {
	Running  bool               `json:"running"`
	PID      int                `json:"pid"`
	Uptime   string             `json:"uptime"`
	Engine   search.EngineStats `json:"engine"`
	WatchDir string             `json:"watch_dir,omitempty"`
	Metrics  telemetry.Snapshot `json:"metrics"`
	Ingest   async.Snapshot     `json:"ingest"`
}

// ResetResult reports how much was discarded.
type ResetResult struct {
	Chunks int `json:"chunks"`
}

// PingResult is the response to a ping request.
type PingResult struct {
	Pong bool `json:"pong"`
}
