// Package store holds embedded chunks in memory and ranks them against a
// query vector by exhaustive dot product.
package store

import (
	"context"
	"fmt"

	ragerrors "github.com/Aman-CERP/ragpipe/internal/errors"
)

// Metadata describes where a chunk came from. It is for provenance
// display only and never takes part in scoring.
type Metadata struct {
	// Source identifies the originating document ("doc_3", a file path, ...).
	Source string `json:"source"`

	// SourceExcerpt is a bounded prefix of the originating document.
	SourceExcerpt string `json:"source_excerpt"`

	// DocIndex is the document's ingestion ordinal.
	DocIndex int `json:"doc_index"`

	// ChunkIndex is the chunk's position within its document.
	ChunkIndex int `json:"chunk_index"`

	// Extra carries caller-supplied metadata other than "source".
	Extra map[string]string `json:"extra,omitempty"`
}

// Chunk is one retrievable window of a document. Chunks are never
// mutated once appended.
type Chunk struct {
	// ID is assigned by the store on append ("chunk-000042").
	ID string `json:"id"`

	Text string `json:"text"`

	// Embedding is unit-normalized, so dot product is cosine similarity.
	Embedding []float32 `json:"-"`

	Metadata Metadata `json:"metadata"`
}

// ScoredChunk is a chunk with its dense similarity score.
type ScoredChunk struct {
	Chunk *Chunk
	// Score is the dot product with the query, in [-1, 1] for unit vectors.
	Score float64
	// Position is the chunk's insertion position, used for tie-breaking.
	Position int
}

// Stats describes store contents.
type Stats struct {
	Chunks     int `json:"chunks"`
	Dimensions int `json:"dimensions"`
}

// ChunkStore is an append-only ordered collection of chunks.
type ChunkStore interface {
	// Append adds all chunks or none of them.
	Append(ctx context.Context, chunks []*Chunk) error

	// Search returns the k chunks with the highest dot product against
	// query, descending, ties broken by insertion order. An empty store
	// is an error, not an empty result.
	Search(ctx context.Context, query []float32, k int) ([]ScoredChunk, error)

	// Snapshot returns the chunks in insertion order.
	Snapshot() []*Chunk

	Count() int
	Stats() Stats
	Reset()
}

// EmptyIndexError is returned when searching before anything was added.
func EmptyIndexError() *ragerrors.RAGError {
	return ragerrors.New(ragerrors.ErrCodeEmptyIndex,
		"empty index: no documents added, add documents before searching", nil).
		WithSuggestion("ingest documents first, e.g. 'ragpipe search --docs ./data \"query\"'")
}

func dimensionError(expected, got int) *ragerrors.RAGError {
	return ragerrors.New(ragerrors.ErrCodeDimensionMismatch,
		fmt.Sprintf("dimension mismatch: expected %d, got %d", expected, got), nil).
		WithDetail("expected", fmt.Sprint(expected)).
		WithDetail("got", fmt.Sprint(got))
}
