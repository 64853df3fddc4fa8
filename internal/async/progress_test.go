package async

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgress_Lifecycle(t *testing.T) {
	// Given: a fresh tracker
	p := NewProgress()
	assert.Equal(t, string(StatusIdle), p.Snapshot().Status)
	assert.False(t, p.IsIngesting())

	// When: an ingest begins
	p.Begin("/data/inbox")

	// Then: it is reported as in progress
	assert.True(t, p.IsIngesting())
	snap := p.Snapshot()
	assert.Equal(t, string(StatusIngesting), snap.Status)
	assert.Equal(t, "/data/inbox", snap.Source)

	// When: it finishes
	p.Finish(3, 7, nil)

	// Then: totals are recorded
	snap = p.Snapshot()
	assert.Equal(t, string(StatusReady), snap.Status)
	assert.Equal(t, 3, snap.Documents)
	assert.Equal(t, 7, snap.Chunks)
	assert.Equal(t, 1, snap.Runs)
	assert.Zero(t, snap.ElapsedSeconds)
}

func TestProgress_FailureKeepsTotals(t *testing.T) {
	p := NewProgress()
	p.Begin("a")
	p.Finish(2, 2, nil)

	p.Begin("b")
	p.Finish(5, 5, errors.New("malformed CSV"))

	snap := p.Snapshot()
	assert.Equal(t, string(StatusError), snap.Status)
	assert.Equal(t, "malformed CSV", snap.LastError)
	assert.Equal(t, 2, snap.Documents, "failed ingests add nothing")
	assert.Equal(t, 2, snap.Runs)
	assert.Equal(t, 1, snap.Failures)
}

func TestProgress_Overlapping(t *testing.T) {
	p := NewProgress()
	p.Begin("a")
	p.Begin("b")

	p.Finish(1, 1, nil)
	assert.True(t, p.IsIngesting())
	assert.Equal(t, string(StatusIngesting), p.Snapshot().Status)

	p.Finish(1, 1, nil)
	assert.False(t, p.IsIngesting())
	assert.Equal(t, string(StatusReady), p.Snapshot().Status)
}

func TestProgress_Reset(t *testing.T) {
	p := NewProgress()
	p.Begin("a")
	p.Finish(4, 4, errors.New("boom"))

	p.Reset()

	assert.Equal(t, Snapshot{Status: string(StatusIdle)}, p.Snapshot())
}
