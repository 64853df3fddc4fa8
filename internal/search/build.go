package search

import (
	"context"

	"github.com/Aman-CERP/ragpipe/internal/chunk"
	"github.com/Aman-CERP/ragpipe/internal/config"
	"github.com/Aman-CERP/ragpipe/internal/embed"
	"github.com/Aman-CERP/ragpipe/internal/store"
	"github.com/Aman-CERP/ragpipe/internal/tokenize"
)

// NewFromConfig wires a complete engine with an empty in-memory store.
// Oracle selection for "auto" providers happens here, once.
func NewFromConfig(ctx context.Context, cfg *config.Config) (*Engine, error) {
	tok, err := tokenize.New(cfg.Chunking.Tokenizer, cfg.Chunking.BPEEncoding)
	if err != nil {
		return nil, err
	}
	chunker, err := chunk.NewWindowChunker(tok, cfg.Chunking.Size, cfg.Chunking.Overlap)
	if err != nil {
		return nil, err
	}

	task, err := ParseTaskProfile(cfg.Retrieval.Task)
	if err != nil {
		return nil, err
	}

	embedders, err := embed.NewFromConfig(ctx, cfg.Embeddings)
	if err != nil {
		return nil, err
	}

	reranker, err := NewRerankerFromConfig(ctx, cfg.Reranker)
	if err != nil {
		_ = embedders.Close()
		return nil, err
	}

	engine, err := NewEngine(chunker, embedders.Document, embedders.Query, reranker, store.NewMemoryStore(), EngineConfig{
		ExcerptLength: cfg.Chunking.ExcerptLength,
		Workers:       cfg.Ingest.Workers,
		KeyPrefix:     cfg.Chunking.KeyPrefix,
		Task:          task,
	})
	if err != nil {
		_ = embedders.Close()
		_ = reranker.Close()
		return nil, err
	}
	return engine, nil
}
