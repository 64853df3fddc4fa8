package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ragpipe/internal/config"
	ragerrors "github.com/Aman-CERP/ragpipe/internal/errors"
)

// startDaemon runs a daemon in the background and waits for its socket.
func startDaemon(t *testing.T, cfg Config) (*Client, context.CancelFunc, <-chan error) {
	t.Helper()
	d, err := NewDaemon(cfg, newTestEngine(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Start(ctx) }()

	client := NewClient(cfg)
	require.Eventually(t, client.IsRunning, 3*time.Second, 20*time.Millisecond)
	t.Cleanup(cancel)
	return client, cancel, errCh
}

func TestNewDaemon_Validation(t *testing.T) {
	cfg := testConfig(t)

	_, err := NewDaemon(cfg, nil)
	assert.Error(t, err)

	cfg.SocketPath = ""
	_, err = NewDaemon(cfg, newTestEngine(t))
	assert.Error(t, err)
}

func TestDaemon_IngestSearchStatusReset(t *testing.T) {
	// Given: a running daemon
	cfg := testConfig(t)
	client, _, _ := startDaemon(t, cfg)
	ctx := context.Background()

	// When: searching before anything was ingested
	_, err := client.Search(ctx, SearchParams{Query: "metal suit"})

	// Then: the empty-index code travels back to the client
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, ragerrors.ErrCodeEmptyIndex, remote.Code)

	// When: two documents are ingested and searched
	ing, err := client.Ingest(ctx, IngestParams{Documents: []string{ironMan, bananas}})
	require.NoError(t, err)
	assert.Equal(t, 2, ing.Documents)

	results, err := client.Search(ctx, SearchParams{Query: "metal suit villains", RerankK: 1})
	require.NoError(t, err)

	// Then: the relevant document wins and provenance survives the wire
	require.Len(t, results, 1)
	assert.Equal(t, ironMan, results[0].Text)
	assert.Equal(t, "doc_0", results[0].Source)
	assert.Equal(t, 1, results[0].Rank)

	status, err := client.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.Running)
	assert.Equal(t, os.Getpid(), status.PID)
	assert.Equal(t, 2, status.Engine.Documents)
	assert.Equal(t, "lexical", status.Engine.Reranker)
	assert.Equal(t, int64(2), status.Metrics.TotalQueries)
	assert.Equal(t, int64(1), status.Metrics.FailedQueries)
	assert.Equal(t, "ready", status.Ingest.Status)
	assert.Equal(t, "2 inline document(s)", status.Ingest.Source)
	assert.Equal(t, 1, status.Ingest.Runs)

	reset, err := client.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, reset.Chunks)

	status, err = client.Status(ctx)
	require.NoError(t, err)
	assert.Zero(t, status.Engine.Chunks)
	assert.Zero(t, status.Metrics.TotalQueries)
	assert.Equal(t, "idle", status.Ingest.Status)
}

func TestDaemon_IngestPaths(t *testing.T) {
	cfg := testConfig(t)
	client, _, _ := startDaemon(t, cfg)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hero.txt"), []byte(ironMan), 0o644))

	res, err := client.Ingest(context.Background(), IngestParams{
		Documents: []string{bananas},
		Paths:     []string{dir},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Documents)

	results, err := client.Search(context.Background(), SearchParams{Query: "metal suit", RerankK: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, filepath.Join(dir, "hero.txt"), results[0].Source)
}

func TestDaemon_InvalidTaskIsInvalidParams(t *testing.T) {
	cfg := testConfig(t)
	client, _, _ := startDaemon(t, cfg)
	ctx := context.Background()
	_, err := client.Ingest(ctx, IngestParams{Documents: []string{ironMan}})
	require.NoError(t, err)

	_, err = client.Search(ctx, SearchParams{Query: "suit", Task: "summarize"})

	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, ErrCodeInvalidParams, remote.RPCCode)
	assert.Equal(t, ragerrors.ErrCodeUnknownTask, remote.Code)
}

func TestDaemon_SingleInstance(t *testing.T) {
	// Given: a running daemon
	cfg := testConfig(t)
	startDaemon(t, cfg)

	// When: a second daemon starts with the same lock
	second, err := NewDaemon(cfg, newTestEngine(t))
	require.NoError(t, err)
	err = second.Start(context.Background())

	// Then: it refuses
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestDaemon_StopsAndCleansUp(t *testing.T) {
	cfg := testConfig(t)
	_, cancel, errCh := startDaemon(t, cfg)
	assert.True(t, NewPIDFile(cfg.PIDPath).IsRunning())

	cancel()

	select {
	case err := <-errCh:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
	_, err := os.Stat(cfg.SocketPath)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(cfg.PIDPath)
	assert.True(t, os.IsNotExist(err))
}

func TestDaemon_WatchDir(t *testing.T) {
	// Given: a watch directory with one file
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fruit.md"), []byte(bananas), 0o644))
	cfg := testConfig(t)
	cfg.WatchDir = dir
	client, _, _ := startDaemon(t, cfg)
	ctx := context.Background()

	// Then: it is ingested in the background after startup
	require.Eventually(t, func() bool {
		st, err := client.Status(ctx)
		return err == nil && st.Ingest.Status == "ready"
	}, 5*time.Second, 20*time.Millisecond)
	status, err := client.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Engine.Documents)
	assert.Equal(t, dir, status.Ingest.Source)
	assert.Equal(t, 1, status.Ingest.Documents)

	// When: a new file appears
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hero.txt"), []byte(ironMan), 0o644))

	// Then: it is picked up after the debounce window
	require.Eventually(t, func() bool {
		st, err := client.Status(ctx)
		return err == nil && st.Engine.Documents == 2
	}, 5*time.Second, 50*time.Millisecond)
}

func TestStopRunning_NotRunning(t *testing.T) {
	cfg := testConfig(t)
	assert.ErrorIs(t, StopRunning(cfg, time.Second), ErrNotRunning)
}

func TestConfigFrom_CustomSocket(t *testing.T) {
	// Given: an application config with a custom socket and watch dir
	app := config.NewConfig()
	app.Server.SocketPath = "/run/rag/custom.sock"
	app.Ingest.WatchDir = "/data/inbox"
	app.Retrieval.TopK = 20

	// When: deriving the daemon config
	cfg := ConfigFrom(app)

	// Then: PID and lock files sit next to the socket
	assert.Equal(t, "/run/rag/custom.pid", cfg.PIDPath)
	assert.Equal(t, "/run/rag/custom.lock", cfg.LockPath)
	assert.Equal(t, "/data/inbox", cfg.WatchDir)
	assert.Equal(t, 20, cfg.TopK)
	assert.Equal(t, "Plot", cfg.Loader.CSVColumn)
	require.NoError(t, cfg.Validate())

	cfg.TopK = 0
	assert.Error(t, cfg.Validate())
}
