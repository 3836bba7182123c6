// Package main hosts the trawler CLI entrypoint and command graph.
//
// The Cobra-based command tree covers running the ingest daemon in the
// foreground, inspecting daemon and cursor state, browsing the persisted
// match corpus, and configuration scaffolding. Inspection commands read the
// database, cursor file, and instance lock directly rather than talking to a
// live daemon; SQLite in WAL mode makes those reads safe while the daemon
// holds its own connection.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
