// Package async runs ingestion off the request path and tracks ingest
// activity for status reporting.
package async

import (
	"sync"
	"time"
)

// IngestStatus represents the overall ingest state.
type IngestStatus string

const (
	// StatusIdle indicates nothing has been ingested yet.
	StatusIdle IngestStatus = "idle"
	// StatusIngesting indicates an ingest is in progress.
	StatusIngesting IngestStatus = "ingesting"
	// StatusReady indicates the last ingest completed.
	StatusReady IngestStatus = "ready"
	// StatusError indicates the last ingest failed.
	StatusError IngestStatus = "error"
)

// Snapshot is an immutable copy of ingest progress.
type Snapshot struct {
	Status string `json:"status"`

	// Source names what is being, or was last, ingested.
	Source string `json:"source,omitempty"`

	// Documents and Chunks total every successful ingest.
	Documents int `json:"documents"`
	Chunks    int `json:"chunks"`

	Runs           int    `json:"runs"`
	Failures       int    `json:"failures"`
	LastError      string `json:"last_error,omitempty"`
	LastDurationMs int64  `json:"last_duration_ms"`
	ElapsedSeconds int    `json:"elapsed_seconds,omitempty"`
}

// Progress provides thread-safe tracking of ingest activity.
// Overlapping ingests are counted; the status stays "ingesting" until
// the last one finishes.
type Progress struct {
	mu sync.RWMutex

	status    IngestStatus
	source    string
	active    int
	documents int
	chunks    int
	runs      int
	failures  int
	lastError string
	lastDur   time.Duration
	startTime time.Time
}

// NewProgress creates an idle tracker.
func NewProgress() *Progress {
	return &Progress{status: StatusIdle}
}

// Begin marks the start of an ingest of source.
func (p *Progress) Begin(source string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active == 0 {
		p.startTime = time.Now()
	}
	p.active++
	p.status = StatusIngesting
	p.source = source
}

// Finish records the outcome of the ingest started by the matching Begin.
func (p *Progress) Finish(documents, chunks int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active > 0 {
		p.active--
	}
	p.runs++
	p.lastDur = time.Since(p.startTime)

	if err != nil {
		p.failures++
		p.lastError = err.Error()
		p.status = StatusError
		return
	}
	p.documents += documents
	p.chunks += chunks
	if p.active == 0 {
		p.status = StatusReady
	}
}

// IsIngesting returns true while an ingest is in progress.
func (p *Progress) IsIngesting() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.active > 0
}

// Reset returns the tracker to idle. In-flight ingests still finish
// against the new counts.
func (p *Progress) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusIdle
	p.source = ""
	p.documents, p.chunks = 0, 0
	p.runs, p.failures = 0, 0
	p.lastError = ""
	p.lastDur = 0
	if p.active > 0 {
		p.status = StatusIngesting
		p.startTime = time.Now()
	}
}

// Snapshot returns a copy of the current state.
func (p *Progress) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s := Snapshot{
		Status:         string(p.status),
		Source:         p.source,
		Documents:      p.documents,
		Chunks:         p.chunks,
		Runs:           p.runs,
		Failures:       p.failures,
		LastError:      p.lastError,
		LastDurationMs: p.lastDur.Milliseconds(),
	}
	if p.active > 0 {
		s.ElapsedSeconds = int(time.Since(p.startTime).Seconds())
	}
	return s
}
