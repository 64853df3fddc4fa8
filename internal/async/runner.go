package async

import (
	"context"
	"sync"
)

// IngestFunc does the ingest work and reports what it added.
type IngestFunc func(ctx context.Context) (documents, chunks int, err error)

// Runner runs one ingest in a background goroutine, reporting to a
// Progress. A Runner is single-use.
type Runner struct {
	progress *Progress

	stopCh   chan struct{}
	stopOnce sync.Once
	doneCh   chan struct{}

	mu      sync.Mutex
	started bool
	running bool
	err     error
}

// NewRunner creates a runner reporting to progress.
func NewRunner(progress *Progress) *Runner {
	return &Runner{
		progress: progress,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// IsRunning returns true if the ingest is still in progress.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Start begins the ingest in a background goroutine and returns
// immediately. then, when non-nil, runs after fn in the same goroutine
// with fn's error. Later calls are no-ops.
func (r *Runner) Start(ctx context.Context, source string, fn IngestFunc, then func(error)) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.running = true
	r.mu.Unlock()

	r.progress.Begin(source)
	go r.run(ctx, fn, then)
}

func (r *Runner) run(ctx context.Context, fn IngestFunc, then func(error)) {
	defer close(r.doneCh)
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-r.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	docs, chunks, err := fn(ctx)
	r.progress.Finish(docs, chunks, err)

	r.mu.Lock()
	r.err = err
	r.mu.Unlock()

	if then != nil {
		then(err)
	}
}

// Stop cancels the ingest and waits for it to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	r.stopOnce.Do(func() { close(r.stopCh) })
	<-r.doneCh
}

// Wait blocks until the ingest completes and returns its error.
// It returns nil immediately if Start was never called.
func (r *Runner) Wait() error {
	r.mu.Lock()
	started := r.started
	r.mu.Unlock()
	if !started {
		return nil
	}

	<-r.doneCh
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}
