package preflight

import (
	"context"

	"lightbox/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// Checks are only run when the corresponding feature is enabled.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}

	// The capture directory only matters when files are ingested from it.
	if cfg.Ingest.Enabled {
		results = append(results, CheckDirectoryAccess("Capture directory", cfg.Paths.CaptureDir))
	}

	if len(cfg.Capture.Command) > 0 {
		results = append(results, CheckCommand(ctx, "Capture command", cfg.Capture.Command[0]))
	}

	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
