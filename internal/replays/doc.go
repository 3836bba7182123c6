// Package replays downloads match replay archives in the background.
//
// Persisted matches that carry replay coordinates are fed through a bounded
// queue; a single worker fetches each archive to the replay directory with
// bounded attempts and a politeness delay that grows on failures and decays
// on successes. Downloads are best-effort: a full queue drops new work
// rather than ever blocking the ingest pipeline.
package replays
