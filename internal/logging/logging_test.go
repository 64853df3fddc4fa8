package logging

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLogPath(t *testing.T) {
	path := DefaultLogPath()

	assert.Equal(t, "server.log", filepath.Base(path))
	assert.Contains(t, path, ".ragpipe")
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, 10, cfg.MaxSizeMB)
	assert.Equal(t, 5, cfg.MaxFiles)
	assert.True(t, cfg.WriteToStderr)
	assert.Equal(t, "debug", DebugConfig().Level)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"nonsense", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, LevelFromString(tt.in))
		})
	}
}

func TestSetup_WritesJSONToFile(t *testing.T) {
	// Given: a file-only logger in a temp dir
	logPath := filepath.Join(t.TempDir(), "nested", "test.log")
	logger, cleanup, err := Setup(Config{
		Level:     "debug",
		FilePath:  logPath,
		MaxSizeMB: 1,
		MaxFiles:  3,
	})
	require.NoError(t, err)

	// When: logging an event
	logger.Debug("ingest_complete", slog.Int("chunks", 7))
	cleanup()

	// Then: the line is JSON with our attributes
	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	entry := ParseEntry(strings.TrimSpace(string(data)))
	require.True(t, entry.IsValid)
	assert.Equal(t, "DEBUG", entry.Level)
	assert.Equal(t, "ingest_complete", entry.Msg)
	assert.EqualValues(t, 7, entry.Attrs["chunks"])
}

func TestSetup_RespectsLevel(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")
	logger, cleanup, err := Setup(Config{Level: "warn", FilePath: logPath, MaxSizeMB: 1, MaxFiles: 1})
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("kept")
	cleanup()

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "dropped")
	assert.Contains(t, string(data), "kept")
}

func TestRotatingWriter_Rotates(t *testing.T) {
	// Given: a writer with a tiny limit keeping two old logs
	logPath := filepath.Join(t.TempDir(), "r.log")
	w, err := NewRotatingWriter(logPath, 1, 2)
	require.NoError(t, err)
	w.limit = 10
	w.SetImmediateSync(false)

	// When: writing past the limit several times
	for i := range 4 {
		_, err := w.Write([]byte(fmt.Sprintf("line-%d\n", i)))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	// Then: the newest line is current and older ones shifted up
	assertFile(t, logPath, "line-3\n")
	assertFile(t, logPath+".1", "line-2\n")
	assertFile(t, logPath+".2", "line-1\n")
	assert.NoFileExists(t, logPath+".3")
}

func TestRotatingWriter_KeepNoneTruncates(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "r.log")
	w, err := NewRotatingWriter(logPath, 1, 0)
	require.NoError(t, err)
	w.limit = 10

	for _, line := range []string{"first-one\n", "second-one\n"} {
		_, err := w.Write([]byte(line))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	assertFile(t, logPath, "second-one\n")
	assert.NoFileExists(t, logPath+".1")
}

func TestRotatingWriter_PrunesAfterKeepShrinks(t *testing.T) {
	// Given: logs rotated under a larger log_max_files
	dir := t.TempDir()
	logPath := filepath.Join(dir, "server.log")
	for _, n := range []string{"1", "2", "3", "4"} {
		require.NoError(t, os.WriteFile(logPath+"."+n, []byte(n), 0o644))
	}
	require.NoError(t, os.WriteFile(logPath+".bak", []byte("x"), 0o644))

	// When: a writer keeping one log rotates
	w, err := NewRotatingWriter(logPath, 1, 1)
	require.NoError(t, err)
	w.limit = 4
	for range 2 {
		_, err := w.Write([]byte("abc\n"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	// Then: only server.log.1 survives, unrelated files stay
	assertFile(t, logPath+".1", "abc\n")
	for _, n := range []string{"2", "3", "4"} {
		assert.NoFileExists(t, logPath+"."+n)
	}
	assert.FileExists(t, logPath+".bak")
}

func TestRotatingWriter_WriteAfterCloseReopens(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "r.log")
	w, err := NewRotatingWriter(logPath, 1, 1)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = w.Write([]byte("late\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assertFile(t, logPath, "late\n")
}

func assertFile(t *testing.T, path, want string) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, want, string(data))
}

func TestFindLogFile_Explicit(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "x.log")
	require.NoError(t, os.WriteFile(logPath, []byte("{}\n"), 0o644))

	got, err := FindLogFile(logPath)
	require.NoError(t, err)
	assert.Equal(t, logPath, got)

	_, err = FindLogFile(logPath + ".missing")
	assert.Error(t, err)
}

func TestParseEntry_NonJSON(t *testing.T) {
	e := ParseEntry("plain text line")

	assert.False(t, e.IsValid)
	assert.Equal(t, "plain text line", e.Raw)
}

func TestViewer_TailFiltersLevelAndPattern(t *testing.T) {
	// Given: a log with mixed levels
	logPath := filepath.Join(t.TempDir(), "v.log")
	content := strings.Join([]string{
		`{"time":"2026-01-02T10:00:00Z","level":"DEBUG","msg":"embed_batch","size":4}`,
		`{"time":"2026-01-02T10:00:01Z","level":"INFO","msg":"search_complete","results":3}`,
		`{"time":"2026-01-02T10:00:02Z","level":"ERROR","msg":"rerank_failed"}`,
		`{"time":"2026-01-02T10:00:03Z","level":"INFO","msg":"ingest_complete","chunks":9}`,
	}, "\n") + "\n"
	require.NoError(t, os.WriteFile(logPath, []byte(content), 0o644))

	// When: tailing info+ lines matching "complete"
	var buf bytes.Buffer
	v := NewViewer(ViewerConfig{Level: "info", Pattern: regexp.MustCompile("complete")}, &buf)
	require.NoError(t, v.Tail(logPath, 1))

	// Then: only the last matching line is printed
	out := strings.TrimSpace(buf.String())
	assert.Equal(t, "10:00:03 INFO  ingest_complete chunks=9", out)
}
