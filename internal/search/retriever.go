package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/Aman-CERP/ragpipe/internal/embed"
	ragerrors "github.com/Aman-CERP/ragpipe/internal/errors"
	"github.com/Aman-CERP/ragpipe/internal/store"
)

// Candidate is a chunk with its dense similarity score.
type Candidate = store.ScoredChunk

// Retriever is the first stage: embed the query and scan the store.
type Retriever struct {
	store    store.ChunkStore
	embedder embed.Embedder
}

// NewRetriever creates a retriever over s using the query embedder e.
func NewRetriever(s store.ChunkStore, e embed.Embedder) *Retriever {
	return &Retriever{store: s, embedder: e}
}

// Retrieve returns the topK chunks most similar to the task-prefixed query.
// An empty store fails before the embedding oracle is called.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int, task TaskProfile) ([]Candidate, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ragerrors.New(ragerrors.ErrCodeQueryEmpty, "query is empty", nil)
	}
	if topK < 1 {
		return nil, invalidTopK("top_k", topK)
	}
	if !task.Valid() {
		return nil, ragerrors.New(ragerrors.ErrCodeUnknownTask, fmt.Sprintf("unknown task profile %q", task), nil)
	}
	if r.store.Count() == 0 {
		return nil, store.EmptyIndexError()
	}

	vec, err := r.embedder.Embed(ctx, task.QueryPrefix()+query)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, embeddingError("query", err)
	}

	return r.store.Search(ctx, embed.Normalize(vec), topK)
}

func invalidTopK(field string, k int) error {
	return ragerrors.New(ragerrors.ErrCodeInvalidTopK,
		fmt.Sprintf("%s must be at least 1, got %d", field, k), nil)
}

// embeddingError marks an embedding oracle failure. Errors already coded
// as embedding failures are returned unchanged.
func embeddingError(what string, err error) error {
	if ragerrors.GetCode(err) == ragerrors.ErrCodeEmbeddingFailed {
		return err
	}
	return ragerrors.New(ragerrors.ErrCodeEmbeddingFailed, "embedding "+what+" failed", err)
}
