// Package logs provides file tailing for the `trawler logs` command.
//
// It reads trailing lines with bounded memory and supports a follow mode
// that polls the daemon's current log pointer, restarting from the top when
// the daemon rotates to a new run log. Callers cancel the context to stop
// following.
package logs
