package preflight

import (
	"context"

	"trawler/internal/config"
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

	var results []Result

	// Data directory (always checked; holds the database, cursor, and lock)
	results = append(results, CheckDirectoryAccess("Data directory", cfg.Paths.DataDir))

	// Log directory (always checked)
	results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))

	// Replay directory (only when the downloader is enabled)
	if cfg.Replays.Enabled {
		results = append(results, CheckDirectoryAccess("Replay directory", cfg.Paths.ReplayDir))
	}

	// Discovery cannot run without a Steam key.
	results = append(results, CheckAPIKey("Steam API key", cfg.Steam.APIKey))

	// A zero budget or window would park every request forever.
	results = append(results, CheckRateBudget("Steam rate budget", cfg.Steam.RequestBudget, cfg.Steam.WindowSeconds))
	results = append(results, CheckRateBudget("OpenDota rate budget", cfg.OpenDota.RequestBudget, cfg.OpenDota.WindowSeconds))

	return results
}
