// Package store persists accepted matches in SQLite. The matches table is
// append-only: records are inserted once, never updated, and duplicate
// inserts are ignored so replaying a batch after a crash is harmless.
package store
