package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ragpipe/internal/daemon"
	"github.com/Aman-CERP/ragpipe/internal/output"
	"github.com/Aman-CERP/ragpipe/internal/search"
)

func newIngestCmd() *cobra.Command {
	var texts []string

	cmd := &cobra.Command{
		Use:   "ingest [paths...]",
		Short: "Add files or text to the daemon's index",
		Long: `Add documents to the running daemon's in-memory index.

Paths may be .txt, .md, .csv or .pdf files, or directories that are
walked for them. CSV files yield one document per row of the configured
column. --text adds literal documents.

Examples:
  ragpipe ingest ./notes ./plots.csv
  ragpipe ingest --text "Bananas are a yellow fruit."`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), cmd, args, texts)
		},
	}

	cmd.Flags().StringArrayVar(&texts, "text", nil, "Literal document text (repeatable)")
	return cmd
}

func runIngest(ctx context.Context, cmd *cobra.Command, paths, texts []string) error {
	if len(paths) == 0 && len(texts) == 0 {
		return fmt.Errorf("nothing to ingest: pass paths or --text")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client := daemon.NewClient(daemon.ConfigFrom(cfg))
	if !client.IsRunning() {
		return fmt.Errorf("daemon is not running: start it with 'ragpipe daemon start'")
	}

	// The daemon resolves paths against its own working directory.
	abs := make([]string, 0, len(paths))
	for _, p := range paths {
		a, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", p, err)
		}
		abs = append(abs, a)
	}

	res, err := client.Ingest(ctx, daemon.IngestParams{Documents: texts, Paths: abs})
	if err != nil {
		return err
	}

	output.New(cmd.OutOrStdout()).Ingest(search.IngestStats{
		Documents: res.Documents,
		Chunks:    res.Chunks,
		Duration:  time.Duration(res.DurationMs) * time.Millisecond,
	})
	return nil
}
