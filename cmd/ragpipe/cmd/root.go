// Package cmd provides the CLI commands for ragpipe.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ragpipe/internal/config"
	"github.com/Aman-CERP/ragpipe/internal/logging"
	"github.com/Aman-CERP/ragpipe/internal/profiling"
	"github.com/Aman-CERP/ragpipe/pkg/version"
)

// Persistent flags
var (
	debugMode      bool
	workDir        string
	loggingCleanup func()

	profileOpts profiling.Options
	profiler    *profiling.Session
)

// NewRootCmd creates the root command for the ragpipe CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ragpipe",
		Short: "Two-stage retrieval over your documents",
		Long: `ragpipe chunks documents into overlapping token windows, embeds them,
and answers queries with dense retrieval followed by cross-encoder reranking.

Search a few files directly:
  ragpipe search "who fights villains in a metal suit" --docs ./notes

Or keep an index warm in the background:
  ragpipe daemon start
  ragpipe ingest ./notes ./movies.csv
  ragpipe search "metal suit"`,
		Version:      version.Version,
		SilenceUsage: true,
	}

	cmd.SetVersionTemplate("ragpipe version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.ragpipe/logs/")
	cmd.PersistentFlags().StringVar(&workDir, "dir", ".", "Directory holding .ragpipe.yaml and .env")
	cmd.PersistentFlags().StringVar(&profileOpts.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Heap, "profile-mem", "", "Write heap profile to file on exit")
	cmd.PersistentFlags().StringVar(&profileOpts.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newDaemonCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newTUICmd())
	cmd.AddCommand(newEvalCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// startProfilingAndLogging starts requested profiles and installs the
// process logger. Without --debug only warnings reach stderr; commands
// that own their logging (serve, daemon) replace it.
func startProfilingAndLogging(cmd *cobra.Command, _ []string) error {
	if profileOpts.Enabled() {
		s, err := profiling.Start(profileOpts)
		if err != nil {
			return err
		}
		profiler = s
	}

	if !debugMode {
		slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(),
			&slog.HandlerOptions{Level: slog.LevelWarn})))
		return nil
	}

	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return fmt.Errorf("failed to setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Debug("debug_logging_enabled",
		slog.String("log_file", logging.DefaultLogPath()),
		slog.String("version", version.Short()))
	return nil
}

func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	var err error
	if profiler != nil {
		err = profiler.Stop()
		profiler = nil
	}
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return err
}

// loadConfig loads the merged configuration for --dir.
func loadConfig() (*config.Config, error) {
	dir := workDir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		dir = wd
	}
	return config.Load(dir)
}

// serverLogConfig returns file logging for long-running commands, with
// level and rotation from server.* and --debug.
func serverLogConfig(cfg *config.Config) logging.Config {
	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Server.LogLevel
	if debugMode {
		logCfg.Level = "debug"
	}
	logCfg.MaxSizeMB = cfg.Server.LogMaxSizeMB
	logCfg.MaxFiles = cfg.Server.LogMaxFiles
	return logCfg
}

// firstPositive returns v when set, else def.
func firstPositive(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
