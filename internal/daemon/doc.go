// Package daemon coordinates the long-running ingest services and enforces
// single-instance execution.
//
// The daemon owns the flock-based instance lock: two trawler daemons sharing
// one data directory would race on the ingest cursor and double-fetch the
// same matches, so Start refuses to proceed while another instance holds the
// lock. The CLI probes the same lock file to report daemon liveness without
// talking to the process.
package daemon
