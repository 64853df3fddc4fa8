package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/ragpipe/internal/chunk"
	"github.com/Aman-CERP/ragpipe/internal/embed"
	ragerrors "github.com/Aman-CERP/ragpipe/internal/errors"
	"github.com/Aman-CERP/ragpipe/internal/store"
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// Engine ties chunking, embedding, storage, retrieval and reranking together.
//
// Ingestion is serialized by ingestMu so document ordinals stay dense and
// stable across calls. Searches run concurrently with ingestion; the store
// guarantees they see whole batches only.
type Engine struct {
	chunker  *chunk.WindowChunker
	docEmbed embed.Embedder
	qryEmbed embed.Embedder
	reranker Reranker
	store    store.ChunkStore

	retriever *Retriever
	config    EngineConfig

	ingestMu sync.Mutex
	docCount int
}

// NewEngine creates a pipeline. queryEmbedder may be the same value as
// docEmbedder; different embedders must agree on dimensions.
func NewEngine(
	chunker *chunk.WindowChunker,
	docEmbedder embed.Embedder,
	queryEmbedder embed.Embedder,
	reranker Reranker,
	chunks store.ChunkStore,
	config EngineConfig,
) (*Engine, error) {
	if chunker == nil {
		return nil, fmt.Errorf("%w: chunker is required", ErrNilDependency)
	}
	if docEmbedder == nil {
		return nil, fmt.Errorf("%w: document embedder is required", ErrNilDependency)
	}
	if queryEmbedder == nil {
		queryEmbedder = docEmbedder
	}
	if reranker == nil {
		return nil, fmt.Errorf("%w: reranker is required", ErrNilDependency)
	}
	if chunks == nil {
		return nil, fmt.Errorf("%w: chunk store is required", ErrNilDependency)
	}
	if docEmbedder.Dimensions() != queryEmbedder.Dimensions() {
		return nil, ragerrors.New(ragerrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("document embedder has %d dimensions, query embedder has %d",
				docEmbedder.Dimensions(), queryEmbedder.Dimensions()), nil)
	}

	if config.Workers < 1 {
		config.Workers = 1
	}
	if config.ExcerptLength < 0 {
		config.ExcerptLength = 0
	}
	if config.Task == "" {
		config.Task = TaskQA
	}
	if !config.Task.Valid() {
		return nil, ragerrors.New(ragerrors.ErrCodeUnknownTask,
			fmt.Sprintf("unknown task profile %q", config.Task), nil)
	}

	return &Engine{
		chunker:   chunker,
		docEmbed:  docEmbedder,
		qryEmbed:  queryEmbedder,
		reranker:  reranker,
		store:     chunks,
		retriever: NewRetriever(chunks, queryEmbedder),
		config:    config,
	}, nil
}

// AddDocuments chunks, embeds and stores docs. metas, when non-nil, must
// have one entry per document; its "source" key names the document and
// the other keys land in Metadata.Extra. Documents without a source are
// named doc_<ordinal>.
//
// The call is atomic: on any error nothing is stored and ordinals are not
// consumed.
func (e *Engine) AddDocuments(ctx context.Context, docs []string, metas []map[string]string) (IngestStats, error) {
	start := time.Now()

	if metas != nil && len(metas) != len(docs) {
		return IngestStats{}, ragerrors.New(ragerrors.ErrCodeMetadataMismatch,
			fmt.Sprintf("got %d documents but %d metadata entries", len(docs), len(metas)), nil).
			WithSuggestion("pass one metadata map per document, or none")
	}
	if len(docs) == 0 {
		return IngestStats{}, nil
	}

	e.ingestMu.Lock()
	defer e.ingestMu.Unlock()

	base := e.docCount
	results := make([][]*store.Chunk, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.Workers)
	for i, doc := range docs {
		var meta map[string]string
		if metas != nil {
			meta = metas[i]
		}
		g.Go(func() error {
			chunks, err := e.prepareDocument(gctx, base+i, doc, meta)
			if err != nil {
				return err
			}
			results[i] = chunks
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return IngestStats{}, ctx.Err()
		}
		return IngestStats{}, err
	}

	var all []*store.Chunk
	for _, r := range results {
		all = append(all, r...)
	}
	if err := e.store.Append(ctx, all); err != nil {
		return IngestStats{}, err
	}
	e.docCount += len(docs)

	stats := IngestStats{Documents: len(docs), Chunks: len(all), Duration: time.Since(start)}
	slog.Info("ingest_complete",
		slog.Int("documents", stats.Documents),
		slog.Int("chunks", stats.Chunks),
		slog.Int("total_chunks", e.store.Count()),
		slog.Duration("duration", stats.Duration))
	return stats, nil
}

// prepareDocument chunks one document and embeds its chunks in one batch.
func (e *Engine) prepareDocument(ctx context.Context, ordinal int, doc string, meta map[string]string) ([]*store.Chunk, error) {
	texts, err := e.chunker.Chunk(doc)
	if err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return nil, nil
	}

	inputs := texts
	if e.config.KeyPrefix {
		prefix := e.config.Task.KeyPrefix()
		inputs = make([]string, len(texts))
		for i, t := range texts {
			inputs[i] = prefix + t
		}
	}

	vecs, err := e.docEmbed.EmbedBatch(ctx, inputs)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, embeddingError(fmt.Sprintf("document %d", ordinal), err)
	}
	if len(vecs) != len(texts) {
		return nil, ragerrors.New(ragerrors.ErrCodeOracleProtocol,
			fmt.Sprintf("embedding oracle returned %d vectors for %d chunks", len(vecs), len(texts)), nil)
	}

	source, extra := splitMeta(ordinal, meta)
	excerpt := excerptOf(doc, e.config.ExcerptLength)

	chunks := make([]*store.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = &store.Chunk{
			Text:      t,
			Embedding: embed.Normalize(vecs[i]),
			Metadata: store.Metadata{
				Source:        source,
				SourceExcerpt: excerpt,
				DocIndex:      ordinal,
				ChunkIndex:    i,
				Extra:         extra,
			},
		}
	}
	return chunks, nil
}

func splitMeta(ordinal int, meta map[string]string) (string, map[string]string) {
	source := meta["source"]
	if source == "" {
		source = fmt.Sprintf("doc_%d", ordinal)
	}
	var extra map[string]string
	for k, v := range meta {
		if k == "source" {
			continue
		}
		if extra == nil {
			extra = make(map[string]string, len(meta))
		}
		extra[k] = v
	}
	return source, extra
}

// excerptOf returns the first n runes of doc.
func excerptOf(doc string, n int) string {
	runes := []rune(doc)
	if len(runes) <= n {
		return doc
	}
	return string(runes[:n])
}

// Search retrieves TopK candidates with the task's query prefix, reranks
// them against the raw query and returns the first RerankK.
func (e *Engine) Search(ctx context.Context, query string, opts SearchOptions) ([]Result, error) {
	start := time.Now()

	task := opts.Task
	if task == "" {
		task = e.config.Task
	}
	if opts.RerankK < 1 {
		return nil, invalidTopK("rerank_k", opts.RerankK)
	}

	candidates, err := e.retriever.Retrieve(ctx, query, opts.TopK, task)
	if err != nil {
		return nil, err
	}
	retrieveDuration := time.Since(start)

	passages := make([]string, len(candidates))
	for i, c := range candidates {
		passages[i] = c.Chunk.Text
	}

	rerankStart := time.Now()
	reranked, err := e.reranker.Rerank(ctx, query, passages)
	if err != nil {
		return nil, err
	}

	n := min(opts.RerankK, len(reranked))
	results := make([]Result, n)
	seen := make(map[int]struct{}, n)
	for i := range n {
		idx := reranked[i].Index
		if _, dup := seen[idx]; dup || idx < 0 || idx >= len(candidates) {
			return nil, ragerrors.New(ragerrors.ErrCodeOracleProtocol,
				fmt.Sprintf("reranker %s returned invalid index %d", e.reranker.Name(), idx), nil)
		}
		seen[idx] = struct{}{}
		c := candidates[idx]
		results[i] = Result{
			Chunk:      c.Chunk,
			Score:      reranked[i].Score,
			DenseScore: c.Score,
			Rank:       i + 1,
		}
	}

	slog.Info("search_complete",
		slog.String("query", truncateQuery(query, 50)),
		slog.String("task", string(task)),
		slog.Int("candidates", len(candidates)),
		slog.Int("results", len(results)),
		slog.Duration("retrieve", retrieveDuration),
		slog.Duration("rerank", time.Since(rerankStart)),
		slog.Duration("total", time.Since(start)))

	return results, nil
}

// DefaultSearchOptions returns options from the engine defaults with
// the given depths.
func (e *Engine) DefaultSearchOptions(topK, rerankK int) SearchOptions {
	return SearchOptions{TopK: topK, RerankK: rerankK, Task: e.config.Task}
}

// Stats reports store contents and the oracles in use.
func (e *Engine) Stats() EngineStats {
	e.ingestMu.Lock()
	docs := e.docCount
	e.ingestMu.Unlock()

	st := e.store.Stats()
	return EngineStats{
		Chunks:        st.Chunks,
		Documents:     docs,
		Dimensions:    st.Dimensions,
		DocumentModel: e.docEmbed.ModelName(),
		QueryModel:    e.qryEmbed.ModelName(),
		Reranker:      e.reranker.Name(),
		ChunkSize:     e.chunker.Size(),
		ChunkStride:   e.chunker.Stride(),
		Tokenizer:     e.chunker.TokenizerName(),
	}
}

// Snapshot returns stored chunks in insertion order.
func (e *Engine) Snapshot() []*store.Chunk {
	return e.store.Snapshot()
}

// Reset empties the store and restarts document ordinals.
func (e *Engine) Reset() {
	e.ingestMu.Lock()
	defer e.ingestMu.Unlock()
	e.store.Reset()
	e.docCount = 0
	slog.Info("store_reset")
}

// Task returns the default task profile.
func (e *Engine) Task() TaskProfile {
	return e.config.Task
}

// Close releases the oracles.
func (e *Engine) Close() error {
	var errs []string
	if err := e.reranker.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := e.docEmbed.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if e.qryEmbed != e.docEmbed {
		if err := e.qryEmbed.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close engine: %s", strings.Join(errs, "; "))
	}
	return nil
}
