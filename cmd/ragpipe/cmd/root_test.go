package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ragpipe/configs"
	"github.com/Aman-CERP/ragpipe/internal/config"
	"github.com/Aman-CERP/ragpipe/internal/daemon"
	"github.com/Aman-CERP/ragpipe/internal/search"
	"github.com/Aman-CERP/ragpipe/internal/store"
	"github.com/Aman-CERP/ragpipe/pkg/version"
)

const (
	ironMan = "Iron Man fights villains in a metal suit."
	bananas = "Bananas are a yellow fruit rich in potassium."
)

// isolate points every user-level path at a temp dir and selects the
// offline oracles.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("RAGPIPE_EMBEDDINGS_PROVIDER", "static")
	t.Setenv("RAGPIPE_RERANKER_PROVIDER", "lexical")
	t.Setenv("NO_COLOR", "1")
	return home
}

// execute runs the CLI with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	stdout := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), err
}

func writeDocs(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hero.txt"), []byte(ironMan), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fruit.md"), []byte(bananas), 0o644))
	return dir
}

func TestRootCmd_RegistersCommands(t *testing.T) {
	root := NewRootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}

	for _, want := range []string{"search", "ingest", "daemon", "serve", "tui", "eval", "doctor", "config", "logs", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestVersionCmd(t *testing.T) {
	isolate(t)

	out, err := execute(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, version.Short()+"\n", out)

	out, err = execute(t, "version", "--json")
	require.NoError(t, err)
	var info version.BuildInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, version.Name, info.Name)
}

func TestSearchCmd_LocalDocs(t *testing.T) {
	// Given: two documents on disk and offline oracles
	home := isolate(t)
	docs := writeDocs(t)

	// When: searching them directly
	out, err := execute(t, "--dir", home, "search", "villains", "in", "a", "metal", "suit", "--docs", docs, "--rerank-k", "1")

	// Then: the hero document is the single result
	require.NoError(t, err)
	assert.Contains(t, out, "[1] Score:")
	assert.Contains(t, out, "hero.txt")
	assert.Contains(t, out, ironMan)
	assert.NotContains(t, out, "Bananas")
}

func TestSearchCmd_JSON(t *testing.T) {
	home := isolate(t)
	docs := writeDocs(t)

	out, err := execute(t, "--dir", home, "search", "yellow fruit", "--docs", docs, "--format", "json")
	require.NoError(t, err)

	var report searchReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "yellow fruit", report.Query)
	assert.Equal(t, "local", report.Via)
	require.Len(t, report.Results, 2)
	assert.Equal(t, bananas, report.Results[0].Text)
	assert.Equal(t, 1, report.Results[0].Rank)
}

func TestSearchCmd_Errors(t *testing.T) {
	home := isolate(t)
	docs := writeDocs(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad format", []string{"search", "q", "--docs", docs, "--format", "xml"}, "invalid format"},
		{"no docs no daemon", []string{"search", "q"}, "nothing to search"},
		{"local without docs", []string{"search", "q", "--local"}, "nothing to search"},
		{"unknown task", []string{"search", "q", "--docs", docs, "--task", "poetry"}, "poetry"},
		{"missing path", []string{"search", "q", "--docs", filepath.Join(docs, "nope.txt")}, "nope.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, append([]string{"--dir", home}, tt.args...)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestIngestCmd_RequiresDaemon(t *testing.T) {
	home := isolate(t)

	_, err := execute(t, "--dir", home, "ingest", "--text", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "daemon is not running")

	_, err = execute(t, "--dir", home, "ingest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to ingest")
}

func TestDaemonStatusAndStop_NotRunning(t *testing.T) {
	home := isolate(t)

	out, err := execute(t, "--dir", home, "daemon", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Daemon is not running")

	out, err = execute(t, "--dir", home, "daemon", "status", "--json")
	require.NoError(t, err)
	var status daemon.StatusResult
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.False(t, status.Running)

	out, err = execute(t, "--dir", home, "daemon", "stop")
	require.NoError(t, err)
	assert.Contains(t, out, "Daemon is not running")
}

func TestConfigCmd_InitShowPath(t *testing.T) {
	// Given: no user config
	home := isolate(t)
	want := filepath.Join(home, ".config", "ragpipe", "config.yaml")

	// When: printing the path and initializing
	out, err := execute(t, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, want+"\n", out)

	_, err = execute(t, "config", "init")
	require.NoError(t, err)

	// Then: the template is written, and a second init leaves it alone
	data, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, configs.ConfigTemplate, string(data))

	out, err = execute(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")

	// And: the merged config still loads with the template in place
	out, err = execute(t, "--dir", home, "config", "show", "--json")
	require.NoError(t, err)
	var shown map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.Contains(t, shown, "chunking")
}

func TestConfigCmd_ShowDefaultsYAML(t *testing.T) {
	isolate(t)

	out, err := execute(t, "config", "show", "--source", "defaults")
	require.NoError(t, err)
	assert.Contains(t, out, "top_k: 5")
	assert.Contains(t, out, "csv_column: Plot")

	_, err = execute(t, "config", "show", "--source", "bogus")
	assert.Error(t, err)
}

func TestLogsCmd_TailsFilteredFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "server.log")
	lines := []string{
		`{"time":"2026-01-02T03:04:05Z","level":"INFO","msg":"watch_ingest","files":2}`,
		`{"time":"2026-01-02T03:04:06Z","level":"ERROR","msg":"search_failed"}`,
	}
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))

	out, err := execute(t, "logs", "--file", path, "--level", "error")

	require.NoError(t, err)
	assert.Contains(t, out, "search_failed")
	assert.NotContains(t, out, "watch_ingest")
}

func TestToResults_RoundTrip(t *testing.T) {
	in := []search.Result{{
		Chunk: &store.Chunk{ID: "chunk-000001", Text: ironMan, Metadata: store.Metadata{
			Source: "hero", SourceExcerpt: "Iron", DocIndex: 3, ChunkIndex: 1, Extra: map[string]string{"row": "4"},
		}},
		Score: 0.8, DenseScore: 0.4, Rank: 1,
	}}

	got := toResults(daemon.FromResults(in))

	require.Len(t, got, 1)
	assert.Equal(t, in[0].Score, got[0].Score)
	assert.Equal(t, in[0].DenseScore, got[0].DenseScore)
	assert.Equal(t, in[0].Rank, got[0].Rank)
	assert.Equal(t, *in[0].Chunk, *got[0].Chunk)
}

func TestFirstPositive(t *testing.T) {
	assert.Equal(t, 3, firstPositive(3, 5))
	assert.Equal(t, 5, firstPositive(0, 5))
	assert.Equal(t, 5, firstPositive(-1, 5))
}

func TestServerLogConfig_UsesServerSettings(t *testing.T) {
	// Given: rotation and level from server.*
	cfg := config.NewConfig()
	cfg.Server.LogLevel = "warn"
	cfg.Server.LogMaxSizeMB = 2
	cfg.Server.LogMaxFiles = 0

	// When: building the log config without --debug
	got := serverLogConfig(cfg)

	// Then: rotation and level carry over
	assert.Equal(t, "warn", got.Level)
	assert.Equal(t, 2, got.MaxSizeMB)
	assert.Zero(t, got.MaxFiles)

	// And: --debug only raises the level
	debugMode = true
	t.Cleanup(func() { debugMode = false })
	got = serverLogConfig(cfg)
	assert.Equal(t, "debug", got.Level)
	assert.Equal(t, 2, got.MaxSizeMB)
}

func TestDoctorCmd_JSON(t *testing.T) {
	// Given: offline oracles and an isolated home
	home := isolate(t)

	// When: running the doctor
	out, err := execute(t, "--dir", home, "doctor", "--json")

	// Then: every check is reported and none is critical
	require.NoError(t, err)
	var report doctorReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.NotEqual(t, "failed", report.Status)
	assert.False(t, report.DaemonRunning)
	assert.Len(t, report.Checks, 6)
}

func TestEvalCmd(t *testing.T) {
	// Given: two documents and a query set expecting each of them
	home := isolate(t)
	docs := writeDocs(t)
	queries := filepath.Join(t.TempDir(), "queries.yaml")
	require.NoError(t, os.WriteFile(queries, []byte(`queries:
  - {id: Q1, query: villains in a metal suit, expected: [hero.txt]}
  - {id: Q2, query: yellow fruit potassium, expected: [Bananas]}
negative:
  - {id: N1, query: "   "}
`), 0o644))

	// When: evaluating with a strict minimum
	out, err := execute(t, "--dir", home, "eval", "--queries", queries, "--docs", docs, "--rerank-k", "1", "--min-pass", "1")

	// Then: every query passes
	require.NoError(t, err)
	assert.Contains(t, out, "2/2 passed (100%)")
	assert.Contains(t, out, "Q1: matched at rank 1")

	// And: a missing query set is an error
	_, err = execute(t, "--dir", home, "eval", "--queries", filepath.Join(home, "nope.yaml"), "--docs", docs)
	assert.Error(t, err)
}
