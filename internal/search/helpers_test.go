package search

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ragpipe/internal/chunk"
	"github.com/Aman-CERP/ragpipe/internal/embed"
	"github.com/Aman-CERP/ragpipe/internal/store"
	"github.com/Aman-CERP/ragpipe/internal/tokenize"
)

// concepts maps words to axes of a tiny semantic space.
var concepts = map[string]int{
	"iron": 0, "man": 0, "villains": 0, "suit": 0, "superhero": 0, "movie": 0, "fights": 0, "hero": 0,
	"bananas": 1, "banana": 1, "fruit": 1, "tropical": 1, "monkeys": 1, "eaten": 1,
	"river": 2, "boat": 2, "sail": 2,
}

const conceptDims = 4

// conceptVector counts concept words per axis. Unknown words go to the
// last axis with a small weight.
func conceptVector(text string) []float32 {
	v := make([]float32, conceptDims)
	for _, w := range tokenize.Terms(text) {
		if axis, ok := concepts[w]; ok {
			v[axis]++
		} else {
			v[conceptDims-1] += 0.1
		}
	}
	return v
}

var errPoison = errors.New("poisoned input")

// conceptEmbedder is a deterministic embedding oracle over concept axes.
type conceptEmbedder struct {
	dims   int
	calls  atomic.Int64
	mu     sync.Mutex
	inputs []string
}

func newConceptEmbedder() *conceptEmbedder {
	return &conceptEmbedder{dims: conceptDims}
}

func (c *conceptEmbedder) record(texts ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inputs = append(c.inputs, texts...)
}

func (c *conceptEmbedder) seen() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.inputs)
}

func (c *conceptEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *conceptEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(1)
	c.record(texts...)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if strings.Contains(t, "poison") {
			return nil, errPoison
		}
		out[i] = embed.Normalize(conceptVector(t))
	}
	return out, nil
}

func (c *conceptEmbedder) Dimensions() int                  { return c.dims }
func (c *conceptEmbedder) ModelName() string                { return "concept" }
func (c *conceptEmbedder) Available(_ context.Context) bool { return true }
func (c *conceptEmbedder) Close() error                     { return nil }

// stubReranker scores passages by concept overlap with the query. When
// fixed is set it returns that ranking verbatim instead.
type stubReranker struct {
	calls     atomic.Int64
	mu        sync.Mutex
	lastQuery string
	fixed     []oracleScore
	err       error
}

func (s *stubReranker) Rerank(_ context.Context, query string, passages []string) ([]RerankResult, error) {
	if len(passages) == 0 {
		return []RerankResult{}, nil
	}
	s.calls.Add(1)
	s.mu.Lock()
	s.lastQuery = query
	s.mu.Unlock()

	if s.err != nil {
		return nil, rerankError(s.Name(), s.err)
	}
	if s.fixed != nil {
		return mapOracleResults(passages, s.fixed)
	}

	q := conceptVector(query)
	ranked := make([]oracleScore, len(passages))
	for i, p := range passages {
		ranked[i] = oracleScore{Index: i, Score: store.Dot(embed.Normalize(q), embed.Normalize(conceptVector(p)))}
	}
	slices.SortStableFunc(ranked, func(a, b oracleScore) int { return cmp.Compare(b.Score, a.Score) })
	return mapOracleResults(passages, ranked)
}

func (s *stubReranker) query() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastQuery
}

func (s *stubReranker) Name() string                     { return "stub" }
func (s *stubReranker) Available(_ context.Context) bool { return true }
func (s *stubReranker) Close() error                     { return nil }

var (
	_ embed.Embedder = (*conceptEmbedder)(nil)
	_ Reranker       = (*stubReranker)(nil)
)

// newTestEngine builds an engine over the concept oracles with small windows.
func newTestEngine(t *testing.T, cfg EngineConfig) (*Engine, *conceptEmbedder, *stubReranker) {
	t.Helper()
	chunker, err := chunk.NewWindowChunker(tokenize.NewWordTokenizer(), 64, 0.5)
	require.NoError(t, err)

	emb := newConceptEmbedder()
	rr := &stubReranker{}
	e, err := NewEngine(chunker, emb, emb, rr, store.NewMemoryStore(), cfg)
	require.NoError(t, err)
	return e, emb, rr
}
