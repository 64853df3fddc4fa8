package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ragpipe/internal/chunk"
	ragerrors "github.com/Aman-CERP/ragpipe/internal/errors"
	"github.com/Aman-CERP/ragpipe/internal/store"
	"github.com/Aman-CERP/ragpipe/internal/tokenize"
)

const (
	ironMan = "Iron Man fights villains in a metal suit."
	bananas = "Bananas are a popular tropical fruit eaten by monkeys."
)

func TestEngine_SuperheroQueryRanksIronManFirst(t *testing.T) {
	// Given: the two-document corpus
	e, emb, rr := newTestEngine(t, DefaultEngineConfig())
	ctx := context.Background()
	stats, err := e.AddDocuments(ctx, []string{ironMan, bananas}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Documents)
	assert.Equal(t, 2, stats.Chunks)

	// When: retrieving and searching
	candidates, err := e.retriever.Retrieve(ctx, "superhero movie", 2, TaskQA)
	require.NoError(t, err)
	results, err := e.Search(ctx, "superhero movie", SearchOptions{TopK: 2, RerankK: 2, Task: TaskQA})
	require.NoError(t, err)

	// Then: Iron Man leads both stages
	require.Len(t, candidates, 2)
	assert.Equal(t, ironMan, candidates[0].Chunk.Text)
	require.Len(t, results, 2)
	assert.Equal(t, ironMan, results[0].Chunk.Text)
	assert.Equal(t, 1, results[0].Rank)
	assert.Greater(t, results[0].Score, results[1].Score)

	// And: the embedder saw the prefixed query, the reranker the raw one
	assert.Contains(t, emb.seen(), TaskQA.QueryPrefix()+"superhero movie")
	assert.Equal(t, "superhero movie", rr.query())
}

func TestEngine_SearchEmptyStoreSkipsOracles(t *testing.T) {
	e, emb, rr := newTestEngine(t, DefaultEngineConfig())

	_, err := e.Search(context.Background(), "anything", SearchOptions{TopK: 3, RerankK: 3})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ragerrors.ErrEmptyIndex))
	assert.Zero(t, emb.calls.Load())
	assert.Zero(t, rr.calls.Load())
}

func TestEngine_MetadataMismatch(t *testing.T) {
	e, emb, _ := newTestEngine(t, DefaultEngineConfig())

	_, err := e.AddDocuments(context.Background(), []string{"a b", "c d"}, []map[string]string{{"source": "x"}})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ragerrors.ErrMetadataMismatch))
	assert.Equal(t, ragerrors.CategoryConfig, ragerrors.GetCategory(err))
	assert.Zero(t, emb.calls.Load())
	assert.Zero(t, e.Stats().Chunks)
}

func TestEngine_SynthesizedSourcesAreGlobal(t *testing.T) {
	// Given: two ingestion calls without metadata
	e, _, _ := newTestEngine(t, DefaultEngineConfig())
	ctx := context.Background()
	_, err := e.AddDocuments(ctx, []string{"first doc", "second doc"}, nil)
	require.NoError(t, err)
	_, err = e.AddDocuments(ctx, []string{"third doc"}, nil)
	require.NoError(t, err)

	// Then: ordinals continue across calls
	snap := e.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "doc_0", snap[0].Metadata.Source)
	assert.Equal(t, "doc_1", snap[1].Metadata.Source)
	assert.Equal(t, "doc_2", snap[2].Metadata.Source)
	assert.Equal(t, 2, snap[2].Metadata.DocIndex)
	assert.Equal(t, 3, e.Stats().Documents)
}

func TestEngine_MetadataSourceAndExtra(t *testing.T) {
	e, _, _ := newTestEngine(t, DefaultEngineConfig())

	_, err := e.AddDocuments(context.Background(), []string{"hero text", "fruit text"}, []map[string]string{
		{"source": "marvel.txt", "year": "2008"},
		{"genre": "food"},
	})
	require.NoError(t, err)

	snap := e.Snapshot()
	assert.Equal(t, "marvel.txt", snap[0].Metadata.Source)
	assert.Equal(t, map[string]string{"year": "2008"}, snap[0].Metadata.Extra)
	assert.Equal(t, "doc_1", snap[1].Metadata.Source)
	assert.Equal(t, map[string]string{"genre": "food"}, snap[1].Metadata.Extra)
}

func TestEngine_SourceExcerptBounded(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.ExcerptLength = 10
	e, _, _ := newTestEngine(t, cfg)

	_, err := e.AddDocuments(context.Background(), []string{"héros de métal et de feu"}, nil)
	require.NoError(t, err)

	assert.Equal(t, "héros de m", e.Snapshot()[0].Metadata.SourceExcerpt)
}

func TestEngine_FailedIngestStoresNothing(t *testing.T) {
	// Given: a batch where one document makes the embedder fail
	e, _, _ := newTestEngine(t, DefaultEngineConfig())
	ctx := context.Background()
	docs := []string{ironMan, "poison pill", bananas}

	// When: ingesting
	_, err := e.AddDocuments(ctx, docs, nil)

	// Then: an embedding error carrying the cause, and an untouched store
	require.Error(t, err)
	assert.Equal(t, ragerrors.ErrCodeEmbeddingFailed, ragerrors.GetCode(err))
	assert.ErrorIs(t, err, errPoison)
	assert.Zero(t, e.Stats().Chunks)

	// And: ordinals were not consumed
	_, err = e.AddDocuments(ctx, []string{ironMan}, nil)
	require.NoError(t, err)
	assert.Equal(t, "doc_0", e.Snapshot()[0].Metadata.Source)
}

func TestEngine_ParallelIngestKeepsInputOrder(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.Workers = 4
	e, _, _ := newTestEngine(t, cfg)

	docs := make([]string, 40)
	for i := range docs {
		docs[i] = fmt.Sprintf("document number %d about river boats", i)
	}
	_, err := e.AddDocuments(context.Background(), docs, nil)
	require.NoError(t, err)

	snap := e.Snapshot()
	require.Len(t, snap, 40)
	for i, c := range snap {
		assert.Equal(t, i, c.Metadata.DocIndex)
		assert.Equal(t, docs[i], c.Text)
	}
}

func TestEngine_LongDocumentChunkMetadata(t *testing.T) {
	chunker, err := chunk.NewWindowChunker(tokenize.NewWordTokenizer(), 4, 0.5)
	require.NoError(t, err)
	emb := newConceptEmbedder()
	e, err := NewEngine(chunker, emb, emb, &stubReranker{}, store.NewMemoryStore(), DefaultEngineConfig())
	require.NoError(t, err)

	// 8 word tokens, size 4, stride 2: windows at 0, 2, 4
	stats, err := e.AddDocuments(context.Background(), []string{"w0 w1 w2 w3 w4 w5 w6 w7"}, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Chunks)
	snap := e.Snapshot()
	assert.Equal(t, []string{"w0 w1 w2 w3", "w2 w3 w4 w5", "w4 w5 w6 w7"},
		[]string{snap[0].Text, snap[1].Text, snap[2].Text})
	for i, c := range snap {
		assert.Equal(t, i, c.Metadata.ChunkIndex)
		assert.Equal(t, "doc_0", c.Metadata.Source)
	}
}

func TestEngine_KeyPrefix(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.KeyPrefix = true
	cfg.Task = TaskChat
	e, emb, _ := newTestEngine(t, cfg)

	_, err := e.AddDocuments(context.Background(), []string{"sail the river"}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{TaskChat.KeyPrefix() + "sail the river"}, emb.seen())
	assert.Equal(t, "sail the river", e.Snapshot()[0].Text)
}

func TestEngine_RerankKTruncates(t *testing.T) {
	e, _, _ := newTestEngine(t, DefaultEngineConfig())
	ctx := context.Background()
	_, err := e.AddDocuments(ctx, []string{ironMan, bananas, "sail a boat down the river"}, nil)
	require.NoError(t, err)

	results, err := e.Search(ctx, "superhero movie", SearchOptions{TopK: 3, RerankK: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, ironMan, results[0].Chunk.Text)

	// TopK larger than the store returns everything
	results, err = e.Search(ctx, "superhero movie", SearchOptions{TopK: 10, RerankK: 10})
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestEngine_SearchValidation(t *testing.T) {
	e, _, _ := newTestEngine(t, DefaultEngineConfig())
	ctx := context.Background()
	_, err := e.AddDocuments(ctx, []string{ironMan}, nil)
	require.NoError(t, err)

	tests := []struct {
		name  string
		query string
		opts  SearchOptions
		code  string
	}{
		{"zero rerank_k", "hero", SearchOptions{TopK: 2, RerankK: 0}, ragerrors.ErrCodeInvalidTopK},
		{"zero top_k", "hero", SearchOptions{TopK: 0, RerankK: 2}, ragerrors.ErrCodeInvalidTopK},
		{"blank query", "   ", SearchOptions{TopK: 2, RerankK: 2}, ragerrors.ErrCodeQueryEmpty},
		{"unknown task", "hero", SearchOptions{TopK: 2, RerankK: 2, Task: "poetry"}, ragerrors.ErrCodeUnknownTask},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Search(ctx, tt.query, tt.opts)
			require.Error(t, err)
			assert.Equal(t, tt.code, ragerrors.GetCode(err))
			assert.Equal(t, ragerrors.CategoryValidation, ragerrors.GetCategory(err))
		})
	}
}

func TestEngine_RerankOrderIsVerbatim(t *testing.T) {
	// Given: an oracle that ranks the second candidate first with a lower score
	e, _, rr := newTestEngine(t, DefaultEngineConfig())
	ctx := context.Background()
	_, err := e.AddDocuments(ctx, []string{ironMan, bananas}, nil)
	require.NoError(t, err)
	rr.fixed = []oracleScore{{Index: 1, Score: 0.1}, {Index: 0, Score: 0.9}}

	// When: searching
	results, err := e.Search(ctx, "superhero movie", SearchOptions{TopK: 2, RerankK: 2})
	require.NoError(t, err)

	// Then: no re-sort happens
	require.Len(t, results, 2)
	assert.Equal(t, bananas, results[0].Chunk.Text)
	assert.InDelta(t, 0.1, results[0].Score, 1e-9)
	assert.Equal(t, ironMan, results[1].Chunk.Text)
	assert.InDelta(t, 0.9, results[1].Score, 1e-9)
}

func TestEngine_RerankProtocolAndFailure(t *testing.T) {
	e, _, rr := newTestEngine(t, DefaultEngineConfig())
	ctx := context.Background()
	_, err := e.AddDocuments(ctx, []string{ironMan, bananas}, nil)
	require.NoError(t, err)

	rr.fixed = []oracleScore{{Index: 7, Score: 1}}
	_, err = e.Search(ctx, "hero", SearchOptions{TopK: 2, RerankK: 2})
	require.Error(t, err)
	assert.Equal(t, ragerrors.ErrCodeOracleProtocol, ragerrors.GetCode(err))

	rr.fixed = []oracleScore{{Index: 0, Score: 9}, {Index: 0, Score: 8}}
	results, err := e.Search(ctx, "hero", SearchOptions{TopK: 2, RerankK: 2})
	require.Error(t, err)
	assert.Nil(t, results)
	assert.Equal(t, ragerrors.ErrCodeOracleProtocol, ragerrors.GetCode(err))

	cause := errors.New("cross-encoder crashed")
	rr.fixed = nil
	rr.err = cause
	_, err = e.Search(ctx, "hero", SearchOptions{TopK: 2, RerankK: 2})
	require.Error(t, err)
	assert.Equal(t, ragerrors.ErrCodeRerankFailed, ragerrors.GetCode(err))
	assert.ErrorIs(t, err, cause)
}

func TestEngine_ResetAndStats(t *testing.T) {
	e, _, _ := newTestEngine(t, DefaultEngineConfig())
	ctx := context.Background()
	_, err := e.AddDocuments(ctx, []string{ironMan, bananas}, nil)
	require.NoError(t, err)

	st := e.Stats()
	assert.Equal(t, 2, st.Chunks)
	assert.Equal(t, 2, st.Documents)
	assert.Equal(t, conceptDims, st.Dimensions)
	assert.Equal(t, "concept", st.DocumentModel)
	assert.Equal(t, "stub", st.Reranker)
	assert.Equal(t, "word", st.Tokenizer)

	e.Reset()

	assert.Zero(t, e.Stats().Chunks)
	_, err = e.Search(ctx, "hero", SearchOptions{TopK: 1, RerankK: 1})
	assert.True(t, errors.Is(err, ragerrors.ErrEmptyIndex))

	_, err = e.AddDocuments(ctx, []string{bananas}, nil)
	require.NoError(t, err)
	assert.Equal(t, "doc_0", e.Snapshot()[0].Metadata.Source)
}

func TestEngine_EmptyDocumentAddsNoChunks(t *testing.T) {
	e, _, _ := newTestEngine(t, DefaultEngineConfig())

	stats, err := e.AddDocuments(context.Background(), []string{"", ironMan}, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Documents)
	assert.Equal(t, 1, stats.Chunks)
	assert.Equal(t, "doc_1", e.Snapshot()[0].Metadata.Source)
}

func TestNewEngine_Dependencies(t *testing.T) {
	chunker, err := chunk.NewWindowChunker(tokenize.NewWordTokenizer(), 8, 0.5)
	require.NoError(t, err)
	emb := newConceptEmbedder()

	_, err = NewEngine(nil, emb, emb, &stubReranker{}, store.NewMemoryStore(), DefaultEngineConfig())
	assert.ErrorIs(t, err, ErrNilDependency)

	_, err = NewEngine(chunker, emb, emb, nil, store.NewMemoryStore(), DefaultEngineConfig())
	assert.ErrorIs(t, err, ErrNilDependency)

	wide := &conceptEmbedder{dims: conceptDims + 1}
	_, err = NewEngine(chunker, emb, wide, &stubReranker{}, store.NewMemoryStore(), DefaultEngineConfig())
	assert.True(t, errors.Is(err, ragerrors.ErrDimensionMismatch))

	e, err := NewEngine(chunker, emb, nil, &stubReranker{}, store.NewMemoryStore(), EngineConfig{})
	require.NoError(t, err)
	assert.Equal(t, TaskQA, e.Task())
}

func TestResult_Snippet(t *testing.T) {
	r := Result{Chunk: &store.Chunk{Text: strings.Repeat("é", 300)}}
	assert.Len(t, []rune(r.Snippet(200)), 200)
	short := Result{Chunk: &store.Chunk{Text: "short"}}
	assert.Equal(t, "short", short.Snippet(200))
}
