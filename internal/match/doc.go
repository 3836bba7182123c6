// Package match defines the domain types that flow through the ingest
// pipeline: discovery candidates, enriched match detail, and the persisted
// record shape, plus the pure keep/discard rules applied before commit.
package match
