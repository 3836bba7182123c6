// Package pipeline drives the continuous match-ingestion loop.
//
// A single goroutine cycles through discovery, enrichment, commit, and
// cursor advancement. Discovery lists candidates after the durable cursor;
// enrichment fetches full details through a bounded worker pool; surviving
// records are persisted in ascending sequence order; the cursor then
// advances to the highest position whose every predecessor was persisted
// or definitively rejected, so an interrupted run never skips a match.
// Failures pause the loop with an escalating bounded backoff instead of
// crashing the process.
package pipeline
