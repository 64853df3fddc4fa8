package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ragpipe/internal/chunk"
	"github.com/Aman-CERP/ragpipe/internal/embed"
	"github.com/Aman-CERP/ragpipe/internal/search"
	"github.com/Aman-CERP/ragpipe/internal/store"
	"github.com/Aman-CERP/ragpipe/internal/tokenize"
)

const (
	ironMan = "Iron Man fights villains in a metal suit."
	bananas = "Bananas are a yellow fruit rich in potassium."
)

// testConfig creates a config with unique paths short enough for Unix sockets.
func testConfig(t *testing.T) Config {
	t.Helper()
	base := filepath.Join("/tmp", fmt.Sprintf("ragpipe-test-%d", time.Now().UnixNano()))
	t.Cleanup(func() {
		for _, ext := range []string{".sock", ".pid", ".lock"} {
			_ = os.Remove(base + ext)
		}
	})

	cfg := DefaultConfig()
	cfg.SocketPath = base + ".sock"
	cfg.PIDPath = base + ".pid"
	cfg.LockPath = base + ".lock"
	cfg.Timeout = 5 * time.Second
	cfg.TopK = 5
	cfg.RerankK = 5
	cfg.WatchDebounce = 50 * time.Millisecond
	return cfg
}

// newTestEngine wires offline oracles: hashed embeddings and lexical reranking.
func newTestEngine(t *testing.T) *search.Engine {
	t.Helper()
	chunker, err := chunk.NewWindowChunker(tokenize.NewWordTokenizer(), 32, 0.5)
	require.NoError(t, err)

	e, err := search.NewEngine(chunker, embed.NewStaticEmbedder(), nil,
		search.NewLexicalReranker(), store.NewMemoryStore(), search.DefaultEngineConfig())
	require.NoError(t, err)
	return e
}
