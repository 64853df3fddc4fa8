package cmd

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ragpipe/internal/output"
	"github.com/Aman-CERP/ragpipe/internal/search"
	"github.com/Aman-CERP/ragpipe/internal/validation"
)

func newEvalCmd() *cobra.Command {
	var (
		queriesPath string
		docs        []string
		topK        int
		rerankK     int
		minPass     float64
		jsonOutput  bool
	)

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Measure retrieval quality against a query set",
		Long: `Load documents into a fresh index, run every query from a YAML
query set, and report which expected sources or fragments came back.

A query passes when any result's source or text contains one of its
expected fragments. Negative queries pass unless the pipeline fails.

Examples:
  ragpipe eval --queries queries.yaml --docs ./movies.csv
  ragpipe eval --queries queries.yaml --docs ./notes --min-pass 0.8 --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(docs) == 0 {
				return fmt.Errorf("nothing to evaluate: pass --docs")
			}
			set, err := validation.LoadQueries(queriesPath)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			engine, err := search.NewFromConfig(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = engine.Close() }()
			if err := preload(ctx, engine, cfg, docs); err != nil {
				return err
			}

			v := validation.NewValidator(engine,
				firstPositive(topK, cfg.Retrieval.TopK),
				firstPositive(rerankK, cfg.Retrieval.RerankK))
			report := v.RunAll(ctx, set)

			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				if err := out.JSON(report); err != nil {
					return err
				}
			} else {
				printEvalReport(out, report)
			}

			if report.PassRate() < minPass || report.NegPass < report.NegTotal {
				return fmt.Errorf("pass rate %.0f%% is below minimum %.0f%%",
					report.PassRate()*100, minPass*100)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&queriesPath, "queries", "q", "", "YAML query set (required)")
	cmd.Flags().StringSliceVarP(&docs, "docs", "d", nil, "Files or directories to index (repeatable)")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Candidates taken from dense retrieval (default from config)")
	cmd.Flags().IntVarP(&rerankK, "rerank-k", "r", 0, "Results checked per query (default from config)")
	cmd.Flags().Float64Var(&minPass, "min-pass", 0, "Fail when the pass rate is below this fraction")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	_ = cmd.MarkFlagRequired("queries")
	return cmd
}

func printEvalReport(out *output.Writer, r *validation.Report) {
	for _, tr := range slices.Concat(r.Results, r.Negative) {
		label := tr.Spec.ID
		if tr.Spec.Name != "" {
			label += " " + tr.Spec.Name
		}
		switch {
		case tr.Error != "":
			out.Errorf("%s: %s", label, tr.Error)
		case !tr.Passed:
			out.Warningf("%s: expected %v, got %v", label, tr.Spec.Expected, tr.TopResults)
		case tr.Spec.Negative:
			out.Successf("%s", label)
		default:
			out.Successf("%s: matched at rank %d", label, tr.MatchedAt+1)
		}
	}
	out.Newline()
	out.KeyValues([][2]string{
		{"Queries", fmt.Sprintf("%d/%d passed (%.0f%%)", r.Pass, r.Total, r.PassRate()*100)},
		{"Negative", fmt.Sprintf("%d/%d passed", r.NegPass, r.NegTotal)},
		{"MRR", fmt.Sprintf("%.3f", r.MRR)},
		{"Index", fmt.Sprintf("%d chunks, %s, %s", r.Chunks, r.Embedder, r.Reranker)},
	})
}
