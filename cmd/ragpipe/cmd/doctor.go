package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ragpipe/internal/daemon"
	"github.com/Aman-CERP/ragpipe/internal/output"
	"github.com/Aman-CERP/ragpipe/internal/preflight"
)

type doctorReport struct {
	Status        string                  `json:"status"`
	DaemonRunning bool                    `json:"daemon_running"`
	Checks        []preflight.CheckResult `json:"checks"`
}

func newDoctorCmd() *cobra.Command {
	var (
		jsonOutput bool
		offline    bool
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that ragpipe can run here",
		Long: `Run environment checks: data directory access, free disk space,
the open file limit, chunking settings, and the embedding and
reranking oracles the configuration resolves to.

Exits non-zero when a required check fails.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			dcfg := daemon.ConfigFrom(cfg)

			checker := preflight.New(
				preflight.WithOutput(cmd.OutOrStdout()),
				preflight.WithOffline(offline),
				preflight.WithVerbose(verbose))
			results := checker.RunAll(cmd.Context(), cfg, filepath.Dir(dcfg.SocketPath))
			running := daemon.NewClient(dcfg).IsRunning()

			if jsonOutput {
				if err := output.New(cmd.OutOrStdout()).JSON(doctorReport{
					Status:        checker.SummaryStatus(results),
					DaemonRunning: running,
					Checks:        results,
				}); err != nil {
					return err
				}
			} else {
				checker.PrintResults(results)
				if running {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Daemon: running")
				} else {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Daemon: not running")
				}
			}

			if checker.HasCriticalFailures(results) {
				return fmt.Errorf("required checks failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip the embedder and reranker checks")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show details for passing checks")
	return cmd
}
