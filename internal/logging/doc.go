// Package logging assembles the structured slog loggers used across trawler.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes attribute helpers plus shared field-name constants so
// pipeline code tags log lines consistently (match IDs, sequence positions,
// cycle numbers). A no-op logger is provided for tests and wiring code that
// cannot fail.
package logging
