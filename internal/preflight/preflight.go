package preflight

import (
	"context"

	"reelforge/internal/config"
	"reelforge/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Minimum free space in the work directory. Rendered videos land there.
const minWorkDirFree = 2 << 30

// RunAll executes the filesystem and endpoint checks for cfg.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	results := []Result{
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	if results[0].Passed {
		results = append(results, CheckFreeSpace("Work disk space", cfg.Paths.WorkDir, minWorkDirFree))
	}
	if cfg.TranscriptStore.URL != "" {
		results = append(results, CheckEndpoint(ctx, "Transcript store", cfg.TranscriptStore.URL))
	}
	return results
}

// CheckSystemDeps evaluates every external program for cfg. The daemon logs
// the result at startup and the doctor command renders it.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	return deps.CheckBinaries(deps.Requirements(cfg))
}
