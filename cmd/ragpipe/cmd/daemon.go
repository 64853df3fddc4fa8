package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ragpipe/internal/daemon"
	"github.com/Aman-CERP/ragpipe/internal/logging"
	"github.com/Aman-CERP/ragpipe/internal/output"
	"github.com/Aman-CERP/ragpipe/internal/search"
)

func newDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the background index daemon",
		Long: `The daemon keeps one index and its embedding models in memory so
ingest and search calls do not rebuild them.

Commands:
  start   Start the daemon (runs in background by default)
  stop    Stop the running daemon
  status  Show daemon status and index statistics
  reset   Drop every indexed chunk

Examples:
  ragpipe daemon start      # Start daemon in background
  ragpipe daemon start -f   # Run in foreground
  ragpipe daemon status     # Check if daemon is running
  ragpipe daemon stop       # Stop the daemon`,
	}

	cmd.AddCommand(newDaemonStartCmd())
	cmd.AddCommand(newDaemonStopCmd())
	cmd.AddCommand(newDaemonStatusCmd())
	cmd.AddCommand(newDaemonResetCmd())

	return cmd
}

func newDaemonStartCmd() *cobra.Command {
	var foreground bool
	var watchDir string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the background daemon",
		Long: `Start the index daemon in the background.

With --watch, the directory is ingested at startup and new or changed
files are ingested as they appear.

Use --foreground to run attached to the terminal with logs on stderr.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemonStart(cmd.Context(), cmd, foreground, watchDir)
		},
	}

	cmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Run in foreground (don't daemonize)")
	cmd.Flags().StringVarP(&watchDir, "watch", "w", "", "Directory to ingest and watch (overrides ingest.watch_dir)")
	return cmd
}

func newDaemonStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		Long:  `Stop the running daemon by sending SIGTERM and waiting for it to exit.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemonStop(cmd)
		},
	}
}

func newDaemonStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Long: `Show whether the daemon is running, its process ID and uptime,
and the statistics of its index.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemonStatus(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newDaemonResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Drop every chunk in the daemon's index",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client := daemon.NewClient(daemon.ConfigFrom(cfg))
			if !client.IsRunning() {
				return fmt.Errorf("daemon is not running")
			}
			res, err := client.Reset(cmd.Context())
			if err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("Dropped %d chunk(s)", res.Chunks)
			return nil
		},
	}
}

func runDaemonStart(ctx context.Context, cmd *cobra.Command, foreground bool, watchDir string) error {
	out := output.New(cmd.OutOrStdout())

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dcfg := daemon.ConfigFrom(cfg)
	if watchDir != "" {
		dcfg.WatchDir = watchDir
	}

	client := daemon.NewClient(dcfg)
	if client.IsRunning() {
		out.Status("", "Daemon is already running")
		return nil
	}

	if foreground {
		logCfg := serverLogConfig(cfg)
		logCfg.WriteToStderr = true
		if logger, cleanup, err := logging.Setup(logCfg); err == nil {
			slog.SetDefault(logger)
			defer cleanup()
		}

		out.Status("", "Starting daemon in foreground...")
		out.Statusf("", "Socket: %s", dcfg.SocketPath)
		out.Statusf("", "Logs: %s", logging.DefaultLogPath())
		if dcfg.WatchDir != "" {
			out.Statusf("", "Watching: %s", dcfg.WatchDir)
		}
		out.Status("", "Press Ctrl+C to stop")
		out.Newline()

		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		engine, err := search.NewFromConfig(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to build engine: %w", err)
		}
		d, err := daemon.NewDaemon(dcfg, engine)
		if err != nil {
			_ = engine.Close()
			return fmt.Errorf("failed to create daemon: %w", err)
		}
		return d.Start(ctx)
	}

	out.Status("", "Starting daemon in background...")

	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	args := []string{"daemon", "start", "--foreground", "--dir", workDir}
	if watchDir != "" {
		args = append(args, "--watch", watchDir)
	}
	if debugMode {
		args = append(args, "--debug")
	}
	bgCmd := exec.Command(execPath, args...)
	bgCmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := bgCmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	// Reap the child and notice an early exit.
	done := make(chan error, 1)
	go func() { done <- bgCmd.Wait() }()

	for i := 0; i < 100; i++ {
		select {
		case err := <-done:
			if err != nil {
				return fmt.Errorf("daemon process exited unexpectedly: %w", err)
			}
			return fmt.Errorf("daemon process exited unexpectedly with code 0")
		case <-time.After(100 * time.Millisecond):
		}

		if client.IsRunning() {
			out.Successf("Daemon started (pid: %d)", bgCmd.Process.Pid)
			return nil
		}
	}

	return fmt.Errorf("daemon failed to start within timeout, see %s", logging.DefaultLogPath())
}

func runDaemonStop(cmd *cobra.Command) error {
	out := output.New(cmd.OutOrStdout())

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dcfg := daemon.ConfigFrom(cfg)

	pid, _ := daemon.NewPIDFile(dcfg.PIDPath).Read()
	err = daemon.StopRunning(dcfg, 5*time.Second)
	switch {
	case errors.Is(err, daemon.ErrNotRunning):
		out.Status("", "Daemon is not running")
		return nil
	case err != nil:
		out.Status("", "Daemon not responding, sending SIGKILL...")
		if kerr := daemon.NewPIDFile(dcfg.PIDPath).Signal(syscall.SIGKILL); kerr != nil {
			return fmt.Errorf("failed to kill daemon: %w", kerr)
		}
		out.Success("Daemon killed")
		return nil
	}

	out.Successf("Daemon stopped (was pid: %d)", pid)
	return nil
}

func runDaemonStatus(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	out := output.New(cmd.OutOrStdout())

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client := daemon.NewClient(daemon.ConfigFrom(cfg))

	if !client.IsRunning() {
		if jsonOutput {
			return out.JSON(daemon.StatusResult{Running: false})
		}
		out.Status("", "Daemon is not running")
		out.Status("", "Run 'ragpipe daemon start' to start it")
		return nil
	}

	status, err := client.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}

	if jsonOutput {
		return out.JSON(status)
	}

	out.Successf("Daemon is running (pid: %d, uptime: %s)", status.PID, status.Uptime)
	if status.WatchDir != "" {
		out.Statusf("", "Watching: %s", status.WatchDir)
	}
	if ing := status.Ingest; ing.Status == "ingesting" {
		out.Statusf("", "Ingesting %s (%ds)", ing.Source, ing.ElapsedSeconds)
	} else if ing.LastError != "" {
		out.Warningf("Last ingest failed: %s", ing.LastError)
	}
	out.Newline()
	out.Stats(status.Engine)

	m := status.Metrics
	if m.TotalQueries > 0 {
		out.Newline()
		out.KeyValues([][2]string{
			{"Queries", fmt.Sprintf("%d (%d failed, %d empty)", m.TotalQueries, m.FailedQueries, m.ZeroResultCount)},
			{"Repeat rate", fmt.Sprintf("%.1f%%", m.RepeatRate()*100)},
		})
	}
	return nil
}
