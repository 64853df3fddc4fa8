package store

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ragerrors "github.com/Aman-CERP/ragpipe/internal/errors"
)

func chunkWith(text string, vec ...float32) *Chunk {
	return &Chunk{Text: text, Embedding: vec, Metadata: Metadata{Source: text}}
}

func unit(x, y float64) []float32 {
	n := math.Hypot(x, y)
	return []float32{float32(x / n), float32(y / n)}
}

func TestMemoryStore_SearchEmptyIsUsageError(t *testing.T) {
	// Given: an empty store
	s := NewMemoryStore()

	// When: searching
	results, err := s.Search(context.Background(), []float32{1, 0}, 5)

	// Then: explicit empty-index error, not an empty list
	require.Error(t, err)
	assert.Nil(t, results)
	assert.True(t, errors.Is(err, ragerrors.ErrEmptyIndex))
	assert.Equal(t, ragerrors.CategoryValidation, ragerrors.GetCategory(err))
}

func TestMemoryStore_AppendKeepsOrderAndAssignsIDs(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, []*Chunk{chunkWith("a", 1, 0), chunkWith("b", 0, 1)}))
	require.NoError(t, s.Append(ctx, []*Chunk{chunkWith("a", 1, 0)}))

	snap := s.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, []string{"a", "b", "a"}, []string{snap[0].Text, snap[1].Text, snap[2].Text})
	assert.Equal(t, "chunk-000000", snap[0].ID)
	assert.Equal(t, "chunk-000002", snap[2].ID)
	assert.Equal(t, Stats{Chunks: 3, Dimensions: 2}, s.Stats())
}

func TestMemoryStore_AppendIsAllOrNothing(t *testing.T) {
	// Given: a store pinned to 2 dimensions
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, []*Chunk{chunkWith("a", 1, 0)}))

	// When: a batch contains one bad vector
	err := s.Append(ctx, []*Chunk{chunkWith("ok", 0, 1), chunkWith("bad", 1, 0, 0)})

	// Then: nothing from the batch is stored
	require.Error(t, err)
	assert.True(t, errors.Is(err, ragerrors.ErrDimensionMismatch))
	assert.Equal(t, 1, s.Count())
}

func TestMemoryStore_SearchRanksDescending(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, []*Chunk{
		chunkWith("far", unit(-1, 0.2)...),
		chunkWith("near", unit(1, 0.1)...),
		chunkWith("mid", unit(1, 1)...),
	}))

	results, err := s.Search(ctx, unit(1, 0), 3)

	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "near", results[0].Chunk.Text)
	assert.Equal(t, "mid", results[1].Chunk.Text)
	assert.Equal(t, "far", results[2].Chunk.Text)
	assert.Greater(t, results[0].Score, results[1].Score)
	assert.Greater(t, results[1].Score, results[2].Score)
}

func TestMemoryStore_TiesBreakByInsertionOrder(t *testing.T) {
	// Given: several chunks with identical embeddings
	s := NewMemoryStore()
	ctx := context.Background()
	var batch []*Chunk
	for _, name := range []string{"first", "second", "third", "fourth"} {
		batch = append(batch, chunkWith(name, 0.6, 0.8))
	}
	require.NoError(t, s.Append(ctx, []*Chunk{chunkWith("other", 0, 1)}))
	require.NoError(t, s.Append(ctx, batch))

	// When: searching with a query that scores them equally
	results, err := s.Search(ctx, []float32{1, 0}, 3)

	// Then: earliest inserted wins
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "first", results[0].Chunk.Text)
	assert.Equal(t, "second", results[1].Chunk.Text)
	assert.Equal(t, "third", results[2].Chunk.Text)
	assert.Equal(t, 1, results[0].Position)
}

func TestMemoryStore_TopKLargerThanStore(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, []*Chunk{chunkWith("a", 1, 0), chunkWith("b", 0, 1)}))

	results, err := s.Search(ctx, []float32{1, 0}, 5)

	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestMemoryStore_IdenticalVectorScoresOne(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	v := unit(0.3, 0.7)
	require.NoError(t, s.Append(ctx, []*Chunk{chunkWith("only", v...)}))

	results, err := s.Search(ctx, v, 1)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
}

func TestMemoryStore_SearchValidation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, []*Chunk{chunkWith("a", 1, 0)}))

	_, err := s.Search(ctx, []float32{1, 0}, 0)
	assert.Equal(t, ragerrors.ErrCodeInvalidTopK, ragerrors.GetCode(err))

	_, err = s.Search(ctx, []float32{1, 0, 0}, 1)
	assert.True(t, errors.Is(err, ragerrors.ErrDimensionMismatch))
}

func TestMemoryStore_NaNRanksLast(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	nan := float32(math.NaN())
	require.NoError(t, s.Append(ctx, []*Chunk{chunkWith("nan", nan, nan), chunkWith("real", -1, 0)}))

	results, err := s.Search(ctx, []float32{1, 0}, 2)

	require.NoError(t, err)
	assert.Equal(t, "real", results[0].Chunk.Text)
}

func TestMemoryStore_Reset(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, []*Chunk{chunkWith("a", 1, 0)}))

	s.Reset()

	assert.Equal(t, 0, s.Count())
	// dimension is unpinned
	require.NoError(t, s.Append(ctx, []*Chunk{chunkWith("b", 1, 0, 0)}))
	assert.Equal(t, 3, s.Stats().Dimensions)
}

func TestMemoryStore_ConcurrentSearchSeesWholeBatches(t *testing.T) {
	// Given: batches of 10 chunks appended while searching
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, []*Chunk{chunkWith("seed", 1, 0)}))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for b := 0; b < 50; b++ {
			batch := make([]*Chunk, 10)
			for i := range batch {
				batch[i] = chunkWith("x", 0, 1)
			}
			assert.NoError(t, s.Append(ctx, batch))
		}
	}()

	// Then: every observed size is 1 plus a multiple of 10
	for i := 0; i < 200; i++ {
		results, err := s.Search(ctx, []float32{1, 0}, 1000)
		require.NoError(t, err)
		assert.Equal(t, 1, len(results)%10)
	}
	wg.Wait()
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Append(ctx, []*Chunk{chunkWith("a", 1, 0)})

	assert.ErrorIs(t, err, context.Canceled)
}
