package daemon

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIDFile_WriteReadRemove(t *testing.T) {
	// Given: a PID file in a directory that does not exist yet
	path := filepath.Join(t.TempDir(), "nested", "d.pid")
	pf := NewPIDFile(path)

	// When: writing it
	require.NoError(t, pf.Write())

	// Then: it holds our PID and reports running
	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
	assert.True(t, pf.IsRunning())

	require.NoError(t, pf.Remove())
	require.NoError(t, pf.Remove())
	_, err = pf.Read()
	assert.ErrorIs(t, err, ErrPIDFileNotFound)
	assert.False(t, pf.IsRunning())
}

func TestPIDFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "d.pid")
	require.NoError(t, os.WriteFile(path, []byte("not-a-pid"), 0o644))

	_, err := NewPIDFile(path).Read()
	assert.Error(t, err)
}

func TestPIDFile_TrailingNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "d.pid")
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(4242)+"\n"), 0o644))

	pid, err := NewPIDFile(path).Read()
	require.NoError(t, err)
	assert.Equal(t, 4242, pid)
}

func TestInstanceLock_Exclusive(t *testing.T) {
	// Given: one holder of the lock
	path := filepath.Join(t.TempDir(), "d.lock")
	first := newInstanceLock(path)
	require.NoError(t, first.acquire())

	// When: a second holder tries
	second := newInstanceLock(path)
	err := second.acquire()

	// Then: it is refused until the first releases
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	require.NoError(t, first.release())
	require.NoError(t, first.release())
	require.NoError(t, second.acquire())
	require.NoError(t, second.release())
}
