// Package config loads, normalizes, and validates trawler's TOML
// configuration.
//
// Load layers an optional config file over built-in defaults, applies
// environment overrides for secrets (a local .env file is honored), expands
// ~ in every path field, and validates the result. Components receive the
// typed Config rather than reading files or the environment themselves.
package config
