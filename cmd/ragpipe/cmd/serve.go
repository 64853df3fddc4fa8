package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ragpipe/internal/config"
	"github.com/Aman-CERP/ragpipe/internal/loader"
	"github.com/Aman-CERP/ragpipe/internal/logging"
	"github.com/Aman-CERP/ragpipe/internal/mcp"
	"github.com/Aman-CERP/ragpipe/internal/search"
)

func newServeCmd() *cobra.Command {
	var docs []string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdio",
		Long: `Run a Model Context Protocol server on stdin/stdout.

The server owns its own in-memory index. MCP clients add documents with
the add_documents and add_files tools and query with search. --docs
preloads files before the first request.

Stdout carries only protocol messages; logs go to ~/.ragpipe/logs/.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), docs)
		},
	}

	cmd.Flags().StringSliceVarP(&docs, "docs", "d", nil, "Files or directories to load before serving")
	return cmd
}

func runServe(ctx context.Context, docs []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	cleanup, err := logging.SetupStdioMode(serverLogConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := search.NewFromConfig(ctx, cfg)
	if err != nil {
		slog.Error("engine_init_failed", slog.String("error", err.Error()))
		return err
	}
	defer func() { _ = engine.Close() }()

	if err := preload(ctx, engine, cfg, docs); err != nil {
		slog.Error("preload_failed", slog.String("error", err.Error()))
		return err
	}

	srv, err := mcp.NewServer(engine, cfg)
	if err != nil {
		return err
	}

	slog.Info("engine_ready", slog.Int("chunks", engine.Stats().Chunks))
	return srv.Serve(ctx)
}

// preload ingests paths into engine in one call. No paths is a no-op.
func preload(ctx context.Context, engine *search.Engine, cfg *config.Config, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	docs, err := loader.LoadPaths(ctx, paths, loaderOptions(cfg))
	if err != nil {
		return err
	}
	texts, metas := loader.Split(docs)
	stats, err := engine.AddDocuments(ctx, texts, metas)
	if err != nil {
		return err
	}
	slog.Info("preload_complete",
		slog.Int("documents", stats.Documents),
		slog.Int("chunks", stats.Chunks),
		slog.Duration("duration", stats.Duration))
	return nil
}
