// Package ratelimit provides the sliding-window request limiter that paces
// calls to each external API. One limiter exists per source; Acquire blocks
// until a request slot is free, so callers can never exceed the source's
// budget, only wait for it.
package ratelimit
