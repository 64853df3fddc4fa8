// Package integration exercises the full pipeline, from files on disk
// through loading, chunking, embedding and reranking, to check the
// components work together.
package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ragpipe/internal/config"
	"github.com/Aman-CERP/ragpipe/internal/search"
)

const moviesCSV = `Title,Year,Plot
Iron Man,2008,A billionaire engineer builds a powered metal suit to fight villains.
Finding Nemo,2003,A timid clownfish crosses the ocean to find his missing son.
Jurassic Park,1993,Scientists clone dinosaurs for a theme park that goes badly wrong.
`

// offlineConfig selects hashed embeddings and lexical reranking so the
// tests never touch the network.
func offlineConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.Embeddings.Provider = "static"
	cfg.Reranker.Provider = "lexical"
	cfg.Chunking.Size = 32
	cfg.Chunking.Overlap = 0.5
	return cfg
}

func newEngine(t *testing.T, cfg *config.Config) *search.Engine {
	t.Helper()
	engine, err := search.NewFromConfig(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })
	return engine
}

// writeCorpus lays out a small mixed-format corpus and returns its root.
func writeCorpus(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"movies.csv":       moviesCSV,
		"notes/fruit.md":   "# Fruit\n\nBananas are a yellow fruit rich in potassium.",
		"notes/space.txt":  "The telescope observed a distant galaxy full of young stars.",
		"notes/ignored.go": "package ignored",
	}
	for name, body := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
	return dir
}

// socketBase returns a path prefix short enough for a Unix socket.
func socketBase(t *testing.T) string {
	t.Helper()
	base := filepath.Join("/tmp", fmt.Sprintf("ragpipe-it-%d", time.Now().UnixNano()))
	t.Cleanup(func() {
		for _, ext := range []string{".sock", ".pid", ".lock"} {
			_ = os.Remove(base + ext)
		}
	})
	return base
}
