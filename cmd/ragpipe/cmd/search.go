package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ragpipe/internal/config"
	"github.com/Aman-CERP/ragpipe/internal/daemon"
	"github.com/Aman-CERP/ragpipe/internal/loader"
	"github.com/Aman-CERP/ragpipe/internal/output"
	"github.com/Aman-CERP/ragpipe/internal/search"
	"github.com/Aman-CERP/ragpipe/internal/store"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	docs    []string
	topK    int
	rerankK int
	task    string
	format  string // "text", "json"
	snippet int
	local   bool // ignore a running daemon
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search documents with retrieval and reranking",
		Long: `Search documents with dense retrieval followed by reranking.

With --docs, the files and directories are loaded into a fresh in-memory
index for this one query. Without --docs, the query goes to the running
daemon and its index.

Examples:
  ragpipe search "superhero in a metal suit" --docs ./plots.csv
  ragpipe search "potassium" --docs ./notes --rerank-k 3
  ragpipe search "refund policy" --task qa --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.docs, "docs", "d", nil, "Files or directories to search (repeatable)")
	cmd.Flags().IntVarP(&opts.topK, "top-k", "k", 0, "Candidates taken from dense retrieval (default from config)")
	cmd.Flags().IntVarP(&opts.rerankK, "rerank-k", "r", 0, "Results returned after reranking (default from config)")
	cmd.Flags().StringVarP(&opts.task, "task", "t", "", "Task profile: qa, icl, chat, lrlm, tool, convsearch, none")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().IntVar(&opts.snippet, "snippet", output.DefaultSnippetRunes, "Characters of chunk text shown per result")
	cmd.Flags().BoolVar(&opts.local, "local", false, "Never use the daemon, even when it is running")

	return cmd
}

// searchReport is the JSON shape of a search.
type searchReport struct {
	Query   string                `json:"query"`
	Via     string                `json:"via"`
	Results []daemon.SearchResult `json:"results"`
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("invalid format: %s (use: text, json)", opts.format)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	slog.Info("search_started", slog.String("query", query), slog.Int("docs", len(opts.docs)))
	start := time.Now()

	var results []search.Result
	via := "local"
	if len(opts.docs) == 0 {
		if opts.local {
			return fmt.Errorf("nothing to search: pass --docs")
		}
		client := daemon.NewClient(daemon.ConfigFrom(cfg))
		if !client.IsRunning() {
			return fmt.Errorf("nothing to search: pass --docs, or start the daemon with 'ragpipe daemon start' and ingest documents")
		}
		results, err = searchDaemon(ctx, client, query, opts)
		via = "daemon"
	} else {
		results, err = searchLocal(ctx, cfg, query, opts)
	}
	if err != nil {
		slog.Error("search_failed", slog.String("error", err.Error()))
		return err
	}

	slog.Info("search_completed",
		slog.String("via", via),
		slog.Int("results", len(results)),
		slog.Duration("duration", time.Since(start)))

	out := output.New(cmd.OutOrStdout())
	if opts.format == "json" {
		return out.JSON(searchReport{Query: query, Via: via, Results: daemon.FromResults(results)})
	}
	out.Results(query, results, opts.snippet)
	return nil
}

// searchLocal builds a throwaway engine over opts.docs and queries it.
func searchLocal(ctx context.Context, cfg *config.Config, query string, opts searchOptions) ([]search.Result, error) {
	engine, err := search.NewFromConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer func() { _ = engine.Close() }()

	if err := preload(ctx, engine, cfg, opts.docs); err != nil {
		return nil, err
	}

	searchOpts := engine.DefaultSearchOptions(
		firstPositive(opts.topK, cfg.Retrieval.TopK),
		firstPositive(opts.rerankK, cfg.Retrieval.RerankK))
	if opts.task != "" {
		task, err := search.ParseTaskProfile(opts.task)
		if err != nil {
			return nil, err
		}
		searchOpts.Task = task
	}
	return engine.Search(ctx, query, searchOpts)
}

func searchDaemon(ctx context.Context, client *daemon.Client, query string, opts searchOptions) ([]search.Result, error) {
	hits, err := client.Search(ctx, daemon.SearchParams{
		Query:   query,
		TopK:    opts.topK,
		RerankK: opts.rerankK,
		Task:    opts.task,
	})
	if err != nil {
		return nil, err
	}
	return toResults(hits), nil
}

// toResults rebuilds engine results from daemon wire results.
func toResults(hits []daemon.SearchResult) []search.Result {
	results := make([]search.Result, len(hits))
	for i, h := range hits {
		results[i] = search.Result{
			Chunk: &store.Chunk{
				ID:   h.ChunkID,
				Text: h.Text,
				Metadata: store.Metadata{
					Source:        h.Source,
					SourceExcerpt: h.Excerpt,
					DocIndex:      h.DocIndex,
					ChunkIndex:    h.ChunkIndex,
					Extra:         h.Extra,
				},
			},
			Score:      h.Score,
			DenseScore: h.DenseScore,
			Rank:       h.Rank,
		}
	}
	return results
}

func loaderOptions(cfg *config.Config) loader.Options {
	opts := loader.DefaultOptions()
	if cfg.Ingest.CSVColumn != "" {
		opts.CSVColumn = cfg.Ingest.CSVColumn
	}
	opts.CSVLimit = cfg.Ingest.CSVLimit
	return opts
}
