// Package opendota enriches discovered matches with full detail from the
// OpenDota API. OpenDota indexes matches with some lag behind the Steam
// sequence, so a 404 is an expected, recoverable condition surfaced as
// ErrMatchNotFound rather than a failure.
package opendota
