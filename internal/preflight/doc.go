// Package preflight runs the environment checks behind "ragpipe doctor":
// free disk and write access for the data directory, the descriptor limit
// the watcher depends on, and reachability of the configured oracles.
//
//	checker := preflight.New(preflight.WithOutput(os.Stdout))
//	results := checker.RunAll(ctx, cfg, dataDir)
//	if checker.HasCriticalFailures(results) {
//	    // Handle failures
//	}
package preflight
