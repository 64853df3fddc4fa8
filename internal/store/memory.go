package store

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"sync"

	ragerrors "github.com/Aman-CERP/ragpipe/internal/errors"
)

// MemoryStore implements ChunkStore in memory.
//
// A single RWMutex covers both Append and the full scan in Search, so a
// search sees the store either before or after a batch, never in between.
// Search is O(chunks x dimensions); there is no index structure, which
// limits the store to small corpora.
type MemoryStore struct {
	mu         sync.RWMutex
	chunks     []*Chunk
	dimensions int
}

// NewMemoryStore creates an empty store. The dimension is fixed by the
// first appended embedding.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append validates every chunk first, then assigns IDs and appends them
// in one critical section.
func (s *MemoryStore) Append(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dims := s.dimensions
	if dims == 0 {
		dims = len(chunks[0].Embedding)
	}
	if dims == 0 {
		return ragerrors.ValidationError("chunk embedding is empty", nil)
	}
	for i, c := range chunks {
		if c == nil {
			return ragerrors.ValidationError(fmt.Sprintf("chunk %d is nil", i), nil)
		}
		if len(c.Embedding) != dims {
			return dimensionError(dims, len(c.Embedding)).WithDetail("chunk", fmt.Sprint(i))
		}
	}

	base := len(s.chunks)
	for i, c := range chunks {
		c.ID = fmt.Sprintf("chunk-%06d", base+i)
	}
	s.chunks = append(s.chunks, chunks...)
	s.dimensions = dims

	return nil
}

// Search scores every chunk by dot product and returns the top k.
func (s *MemoryStore) Search(ctx context.Context, query []float32, k int) ([]ScoredChunk, error) {
	if k < 1 {
		return nil, ragerrors.New(ragerrors.ErrCodeInvalidTopK,
			fmt.Sprintf("top_k must be at least 1, got %d", k), nil)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.chunks) == 0 {
		return nil, EmptyIndexError()
	}
	if len(query) != s.dimensions {
		return nil, dimensionError(s.dimensions, len(query))
	}

	scored := make([]ScoredChunk, len(s.chunks))
	for i, c := range s.chunks {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		scored[i] = ScoredChunk{Chunk: c, Score: Dot(query, c.Embedding), Position: i}
	}

	// Stable sort keeps insertion order among equal scores.
	slices.SortStableFunc(scored, func(a, b ScoredChunk) int {
		return cmp.Compare(rankKey(b.Score), rankKey(a.Score))
	})

	if k < len(scored) {
		scored = scored[:k]
	}
	return scored, nil
}

// Snapshot returns a copy of the chunk list in insertion order.
func (s *MemoryStore) Snapshot() []*Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.chunks)
}

// Count returns the number of stored chunks.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// Stats returns chunk count and dimensions.
func (s *MemoryStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{Chunks: len(s.chunks), Dimensions: s.dimensions}
}

// Reset drops every chunk and unpins the dimension.
func (s *MemoryStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = nil
	s.dimensions = 0
}

var _ ChunkStore = (*MemoryStore)(nil)

// Dot returns the dot product of a and b, accumulated in float64.
// Lengths must match.
func Dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// rankKey maps NaN below every real score.
func rankKey(score float64) float64 {
	if math.IsNaN(score) {
		return math.Inf(-1)
	}
	return score
}
