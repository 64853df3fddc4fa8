package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ragpipe/internal/daemon"
	"github.com/Aman-CERP/ragpipe/internal/search"
	"github.com/Aman-CERP/ragpipe/internal/ui"
)

func newTUICmd() *cobra.Command {
	var opts searchOptions
	var noColor bool

	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Interactive search screen",
		Long: `Open a full-screen prompt that runs one search per query.

With --docs, the files are indexed once in memory before the screen
opens. Without --docs, queries go to the running daemon.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd.Context(), cmd, opts, noColor)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.docs, "docs", "d", nil, "Files or directories to index (repeatable)")
	cmd.Flags().IntVarP(&opts.topK, "top-k", "k", 0, "Candidates taken from dense retrieval (default from config)")
	cmd.Flags().IntVarP(&opts.rerankK, "rerank-k", "r", 0, "Results returned after reranking (default from config)")
	cmd.Flags().StringVarP(&opts.task, "task", "t", "", "Task profile")
	cmd.Flags().IntVar(&opts.snippet, "snippet", 300, "Characters of chunk text shown per result")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colors")

	return cmd
}

func runTUI(ctx context.Context, cmd *cobra.Command, opts searchOptions, noColor bool) error {
	if !ui.Interactive(os.Stdin, cmd.OutOrStdout()) {
		return fmt.Errorf("tui needs an interactive terminal, use 'ragpipe search' instead")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var (
		fn     ui.SearchFunc
		header string
	)
	if len(opts.docs) > 0 {
		engine, err := search.NewFromConfig(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() { _ = engine.Close() }()
		if err := preload(ctx, engine, cfg, opts.docs); err != nil {
			return err
		}

		searchOpts := engine.DefaultSearchOptions(
			firstPositive(opts.topK, cfg.Retrieval.TopK),
			firstPositive(opts.rerankK, cfg.Retrieval.RerankK))
		if opts.task != "" {
			task, err := search.ParseTaskProfile(opts.task)
			if err != nil {
				return err
			}
			searchOpts.Task = task
		}

		stats := engine.Stats()
		header = fmt.Sprintf("%d chunks from %d documents, %s + %s", stats.Chunks, stats.Documents, stats.DocumentModel, stats.Reranker)
		fn = func(ctx context.Context, query string) ([]search.Result, error) {
			return engine.Search(ctx, query, searchOpts)
		}
	} else {
		client := daemon.NewClient(daemon.ConfigFrom(cfg))
		if !client.IsRunning() {
			return fmt.Errorf("nothing to search: pass --docs or start the daemon")
		}
		status, err := client.Status(ctx)
		if err != nil {
			return err
		}
		header = fmt.Sprintf("daemon pid %d, %d chunks", status.PID, status.Engine.Chunks)
		fn = func(ctx context.Context, query string) ([]search.Result, error) {
			return searchDaemon(ctx, client, query, opts)
		}
	}

	return ui.RunSearch(ctx, fn, ui.SearchConfig{
		Header:       header,
		SnippetRunes: opts.snippet,
		NoColor:      noColor,
		Input:        os.Stdin,
		Output:       cmd.OutOrStdout(),
	})
}
