// Package search implements the two-stage retrieval pipeline: dense
// retrieval over the chunk store followed by cross-encoder reranking.
package search

import (
	"time"

	"github.com/Aman-CERP/ragpipe/internal/store"
)

// SearchOptions configures a search query.
type SearchOptions struct {
	// TopK is the number of candidates taken from dense retrieval.
	TopK int

	// RerankK is the number of reranked results returned.
	RerankK int

	// Task selects the query prefix. Empty uses the engine default.
	Task TaskProfile
}

// Result is one reranked search hit.
type Result struct {
	Chunk *store.Chunk `json:"chunk"`

	// Score is the relevance oracle's score.
	Score float64 `json:"score"`

	// DenseScore is the retrieval stage's dot product.
	DenseScore float64 `json:"dense_score"`

	// Rank is the 1-based position after reranking.
	Rank int `json:"rank"`
}

// Snippet returns the first n runes of the chunk text.
func (r Result) Snippet(n int) string {
	runes := []rune(r.Chunk.Text)
	if len(runes) <= n {
		return r.Chunk.Text
	}
	return string(runes[:n])
}

// IngestStats summarizes one AddDocuments call.
type IngestStats struct {
	Documents int           `json:"documents"`
	Chunks    int           `json:"chunks"`
	Duration  time.Duration `json:"duration"`
}

// EngineStats reports store contents and the oracles in use.
type EngineStats struct {
	Chunks        int    `json:"chunks"`
	Documents     int    `json:"documents"`
	Dimensions    int    `json:"dimensions"`
	DocumentModel string `json:"document_model"`
	QueryModel    string `json:"query_model"`
	Reranker      string `json:"reranker"`
	ChunkSize     int    `json:"chunk_size"`
	ChunkStride   int    `json:"chunk_stride"`
	Tokenizer     string `json:"tokenizer"`
}

// EngineConfig holds pipeline settings that are not oracles.
type EngineConfig struct {
	// ExcerptLength bounds Metadata.SourceExcerpt, in runes.
	ExcerptLength int

	// Workers bounds concurrent per-document ingestion.
	Workers int

	// KeyPrefix prepends the default task's key prefix to chunks before embedding.
	KeyPrefix bool

	// Task is the default task profile.
	Task TaskProfile
}

// DefaultEngineConfig returns sensible defaults
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		ExcerptLength: 100,
		Workers:       4,
		Task:          TaskQA,
	}
}
