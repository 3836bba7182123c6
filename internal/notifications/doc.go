// Package notifications delivers optional push notifications through ntfy.
//
// Events are published by name with a small string payload; the service
// formats them into ntfy titles, tags, and priorities. Event classes
// (lifecycle, errors, milestones) are suppressed individually through
// configuration, and a noop service is returned when no topic is set, so
// callers publish unconditionally.
package notifications
