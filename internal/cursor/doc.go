// Package cursor persists the discovery position between runs. The cursor
// records the newest match sequence number whose batch has been fully
// committed, so a restart resumes exactly where the previous run stopped.
package cursor
