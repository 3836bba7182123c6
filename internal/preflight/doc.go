// Package preflight provides readiness checks for the directories,
// credentials, and rate budgets that trawler depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll once before starting the pipeline. If any
//     check fails, startup aborts instead of surfacing the problem as an
//     endless error-pause loop hours later.
//   - The CLI "trawler status" command uses the individual probes
//     (CheckStoreFromConfig, ProbeCursor) to display ingest health.
//
// Each check is gated by its config toggle -- disabled features are skipped.
package preflight
