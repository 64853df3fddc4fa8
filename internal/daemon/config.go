// Package daemon keeps one pipeline engine and its in-memory store alive
// behind a Unix socket, so CLI invocations can ingest and search without
// reloading oracles or re-embedding documents.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Aman-CERP/ragpipe/internal/config"
	"github.com/Aman-CERP/ragpipe/internal/loader"
)

// Config holds configuration for the daemon service.
type Config struct {
	// SocketPath is the Unix domain socket path for IPC.
	// Default: ~/.ragpipe/daemon.sock
	SocketPath string

	// PIDPath stores the daemon's process ID.
	// Default: ~/.ragpipe/daemon.pid
	PIDPath string

	// LockPath guards against a second daemon on the same socket.
	// Default: ~/.ragpipe/daemon.lock
	LockPath string

	// Timeout bounds one client request, including oracle calls.
	// Default: 2m
	Timeout time.Duration

	// TopK and RerankK are used when a search request leaves them zero.
	TopK    int
	RerankK int

	// WatchDir, when set, is ingested at startup and watched for new or
	// changed files.
	WatchDir      string
	WatchDebounce time.Duration

	Loader loader.Options
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	dir := dataDir()
	return Config{
		SocketPath:    filepath.Join(dir, "daemon.sock"),
		PIDPath:       filepath.Join(dir, "daemon.pid"),
		LockPath:      filepath.Join(dir, "daemon.lock"),
		Timeout:       2 * time.Minute,
		TopK:          5,
		RerankK:       5,
		WatchDebounce: 500 * time.Millisecond,
		Loader:        loader.DefaultOptions(),
	}
}

// ConfigFrom derives daemon settings from the application config.
func ConfigFrom(cfg *config.Config) Config {
	c := DefaultConfig()
	if cfg.Server.SocketPath != "" {
		c.SocketPath = cfg.Server.SocketPath
		// Keep PID and lock next to a custom socket so two daemons on
		// different sockets do not collide.
		base := cfg.Server.SocketPath[:len(cfg.Server.SocketPath)-len(filepath.Ext(cfg.Server.SocketPath))]
		c.PIDPath = base + ".pid"
		c.LockPath = base + ".lock"
	}
	c.TopK = cfg.Retrieval.TopK
	c.RerankK = cfg.Retrieval.RerankK
	c.WatchDir = cfg.Ingest.WatchDir
	if cfg.Ingest.WatchDebounce > 0 {
		c.WatchDebounce = cfg.Ingest.WatchDebounce
	}
	c.Loader.CSVColumn = cfg.Ingest.CSVColumn
	c.Loader.CSVLimit = cfg.Ingest.CSVLimit
	return c
}

func dataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".ragpipe")
	}
	return filepath.Join(home, ".ragpipe")
}

// Validate checks that the configuration is valid.
func (c Config) Validate() error {
	if c.SocketPath == "" {
		return fmt.Errorf("socket path cannot be empty")
	}
	if c.PIDPath == "" {
		return fmt.Errorf("PID path cannot be empty")
	}
	if c.LockPath == "" {
		return fmt.Errorf("lock path cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.TopK < 1 || c.RerankK < 1 {
		return fmt.Errorf("top_k and rerank_k must be at least 1")
	}
	return nil
}

// EnsureDir creates the directories for the socket, PID and lock files.
func (c Config) EnsureDir() error {
	for _, p := range []string{c.SocketPath, c.PIDPath, c.LockPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", p, err)
		}
	}
	return nil
}
