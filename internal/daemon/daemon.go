package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/Aman-CERP/ragpipe/internal/async"
	"github.com/Aman-CERP/ragpipe/internal/loader"
	"github.com/Aman-CERP/ragpipe/internal/search"
	"github.com/Aman-CERP/ragpipe/internal/telemetry"
	"github.com/Aman-CERP/ragpipe/internal/watcher"
)

// Engine is the pipeline surface the daemon serves.
type Engine interface {
	AddDocuments(ctx context.Context, docs []string, metas []map[string]string) (search.IngestStats, error)
	Search(ctx context.Context, query string, opts search.SearchOptions) ([]search.Result, error)
	Stats() search.EngineStats
	Reset()
	Close() error
}

// Daemon owns one engine for the lifetime of the process.
type Daemon struct {
	cfg      Config
	engine   Engine
	pidFile  *PIDFile
	lock     *instanceLock
	metrics  *telemetry.Metrics
	progress *async.Progress
	initial  *async.Runner
	started  time.Time
}

// NewDaemon validates cfg. The daemon takes ownership of engine and
// closes it when Start returns.
func NewDaemon(cfg Config, engine Engine) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid daemon config: %w", err)
	}
	if engine == nil {
		return nil, errors.New("daemon requires an engine")
	}
	progress := async.NewProgress()
	return &Daemon{
		cfg:      cfg,
		engine:   engine,
		pidFile:  NewPIDFile(cfg.PIDPath),
		lock:     newInstanceLock(cfg.LockPath),
		metrics:  telemetry.New(telemetry.DefaultConfig()),
		progress: progress,
		initial:  async.NewRunner(progress),
	}, nil
}

// Start serves requests until ctx is cancelled.
// Returns ErrAlreadyRunning if another daemon holds the lock.
func (d *Daemon) Start(ctx context.Context) error {
	if err := d.cfg.EnsureDir(); err != nil {
		return err
	}
	if err := d.lock.acquire(); err != nil {
		return err
	}
	defer func() { _ = d.lock.release() }()

	if err := d.pidFile.Write(); err != nil {
		return err
	}
	defer func() { _ = d.pidFile.Remove() }()
	defer func() {
		if err := d.engine.Close(); err != nil {
			slog.Warn("engine_close_failed", slog.String("error", err.Error()))
		}
	}()

	d.started = time.Now()
	slog.Info("daemon_started",
		slog.Int("pid", os.Getpid()),
		slog.String("socket", d.cfg.SocketPath),
		slog.String("watch_dir", d.cfg.WatchDir))

	if d.cfg.WatchDir != "" {
		if err := d.startWatching(ctx); err != nil {
			return err
		}
		defer d.initial.Stop()
	}

	srv := NewServer(d.cfg.SocketPath, d, d.cfg.Timeout)
	err := srv.ListenAndServe(ctx)
	slog.Info("daemon_stopped", slog.Duration("uptime", time.Since(d.started)))
	return err
}

// Ingest loads any paths, then adds inline documents followed by loaded
// ones in a single atomic engine call.
func (d *Daemon) Ingest(ctx context.Context, params IngestParams) (IngestResult, error) {
	d.progress.Begin(ingestSource(params))
	res, err := d.ingest(ctx, params)
	d.progress.Finish(res.Documents, res.Chunks, err)
	return res, err
}

func ingestSource(params IngestParams) string {
	if len(params.Paths) > 0 {
		return strings.Join(params.Paths, ", ")
	}
	return fmt.Sprintf("%d inline document(s)", len(params.Documents))
}

func (d *Daemon) ingest(ctx context.Context, params IngestParams) (IngestResult, error) {
	docs := params.Documents
	metas := params.Metadata
	if metas == nil && len(docs) > 0 {
		metas = make([]map[string]string, len(docs))
	}

	if len(params.Paths) > 0 {
		loaded, err := loader.LoadPaths(ctx, params.Paths, d.cfg.Loader)
		if err != nil {
			return IngestResult{}, err
		}
		texts, loadedMetas := loader.Split(loaded)
		docs = append(append([]string(nil), docs...), texts...)
		metas = append(append([]map[string]string(nil), metas...), loadedMetas...)
	}

	stats, err := d.engine.AddDocuments(ctx, docs, metas)
	if err != nil {
		return IngestResult{}, err
	}
	return IngestResult{
		Documents:  stats.Documents,
		Chunks:     stats.Chunks,
		DurationMs: stats.Duration.Milliseconds(),
	}, nil
}

// Search fills zero depths from the daemon config.
func (d *Daemon) Search(ctx context.Context, params SearchParams) ([]SearchResult, error) {
	opts := search.SearchOptions{TopK: params.TopK, RerankK: params.RerankK}
	if opts.TopK == 0 {
		opts.TopK = d.cfg.TopK
	}
	if opts.RerankK == 0 {
		opts.RerankK = d.cfg.RerankK
	}
	if params.Task != "" {
		task, err := search.ParseTaskProfile(params.Task)
		if err != nil {
			return nil, err
		}
		opts.Task = task
	}

	start := time.Now()
	results, err := d.engine.Search(ctx, params.Query, opts)
	d.metrics.Record(telemetry.SearchEvent{
		Query:   params.Query,
		Task:    string(opts.Task),
		Results: len(results),
		Latency: time.Since(start),
		Err:     err,
	})
	if err != nil {
		return nil, err
	}
	return FromResults(results), nil
}

// Status reports process and store state.
func (d *Daemon) Status(_ context.Context) StatusResult {
	return StatusResult{
		Running:  true,
		PID:      os.Getpid(),
		Uptime:   time.Since(d.started).Round(time.Second).String(),
		Engine:   d.engine.Stats(),
		WatchDir: d.cfg.WatchDir,
		Metrics:  d.metrics.Snapshot(10),
		Ingest:   d.progress.Snapshot(),
	}
}

// Reset empties the store.
func (d *Daemon) Reset(_ context.Context) ResetResult {
	n := d.engine.Stats().Chunks
	d.engine.Reset()
	d.metrics.Reset()
	d.progress.Reset()
	return ResetResult{Chunks: n}
}

// startWatching starts the watcher, then ingests the watch directory in
// the background while requests are already served. Files created or
// written later are re-ingested. The store is append-only, so deletions
// are logged and rewritten files are added again.
func (d *Daemon) startWatching(ctx context.Context) error {
	w, err := watcher.New(watcher.Options{
		DebounceWindow: d.cfg.WatchDebounce,
		Filter:         loader.Supported,
	})
	if err != nil {
		return err
	}

	go func() {
		if err := w.Start(ctx, d.cfg.WatchDir); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("watcher_failed", slog.String("error", err.Error()))
		}
	}()
	go d.consumeWatchEvents(ctx, w)

	dir := d.cfg.WatchDir
	d.initial.Start(ctx, dir, func(ctx context.Context) (int, int, error) {
		res, err := d.ingest(ctx, IngestParams{Paths: []string{dir}})
		return res.Documents, res.Chunks, err
	}, func(err error) {
		if err != nil {
			slog.Error("initial_ingest_failed",
				slog.String("dir", dir),
				slog.String("error", err.Error()))
			return
		}
		slog.Info("initial_ingest_complete", slog.String("dir", dir))
	})
	return nil
}

func (d *Daemon) consumeWatchEvents(ctx context.Context, w *watcher.Watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-w.Errors():
			if !ok {
				return
			}
			slog.Warn("watcher_error", slog.String("error", err.Error()))
		case batch, ok := <-w.Events():
			if !ok {
				return
			}
			d.ingestBatch(ctx, batch)
		}
	}
}

func (d *Daemon) ingestBatch(ctx context.Context, batch []watcher.FileEvent) {
	var paths []string
	for _, ev := range batch {
		if ev.Operation == watcher.OpDelete {
			slog.Info("watch_delete_ignored", slog.String("path", ev.Path))
			continue
		}
		paths = append(paths, ev.Path)
	}
	if len(paths) == 0 {
		return
	}

	res, err := d.Ingest(ctx, IngestParams{Paths: paths})
	if err != nil {
		slog.Error("watch_ingest_failed",
			slog.Int("files", len(paths)),
			slog.String("error", err.Error()))
		return
	}
	slog.Info("watch_ingest",
		slog.Int("files", len(paths)),
		slog.Int("documents", res.Documents),
		slog.Int("chunks", res.Chunks))
}

// StopRunning signals the daemon recorded in cfg.PIDPath and waits up to
// wait for its socket to go away.
func StopRunning(cfg Config, wait time.Duration) error {
	pf := NewPIDFile(cfg.PIDPath)
	if !pf.IsRunning() {
		_ = pf.Remove()
		return ErrNotRunning
	}
	if err := pf.Signal(syscall.SIGTERM); err != nil {
		return err
	}

	client := NewClient(cfg)
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		if !client.IsRunning() && !pf.IsRunning() {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon did not stop within %s", wait)
}

// ErrNotRunning is returned by StopRunning when no daemon is recorded.
var ErrNotRunning = errors.New("daemon not running")
