package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"trawler/internal/config"
	"trawler/internal/daemon"
	"trawler/internal/preflight"
)

func daemonStatusLine(cfg *config.Config, colorize bool) string {
	locked, err := daemon.ProbeLock(cfg.LockPath())
	if err != nil {
		return renderStatusLine("Daemon", statusWarn, fmt.Sprintf("lock probe failed: %v", err), colorize)
	}
	if !locked {
		return renderStatusLine("Daemon", statusInfo, "Not running", colorize)
	}
	if pid, ok := readPID(cfg.PIDPath()); ok {
		return renderStatusLine("Daemon", statusOK, fmt.Sprintf("Running (pid %d)", pid), colorize)
	}
	return renderStatusLine("Daemon", statusOK, "Running", colorize)
}

func notificationsStatusLine(cfg *config.Config, colorize bool) string {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return renderStatusLine("Notifications", statusInfo, "Not configured", colorize)
	}
	detail := fmt.Sprintf("topic %s (lifecycle: %s, errors: %s, milestones: %s)",
		topic,
		yesNo(cfg.Notifications.Lifecycle),
		yesNo(cfg.Notifications.Errors),
		yesNo(cfg.Notifications.Milestones),
	)
	return renderStatusLine("Notifications", statusOK, detail, colorize)
}

func cursorStatusLine(cfg *config.Config, colorize bool) string {
	probe := preflight.ProbeCursor(cfg.CursorPath())
	kind := statusOK
	switch {
	case probe.Err != "":
		kind = statusError
	case !probe.Present:
		kind = statusInfo
	}
	return renderStatusLine("Cursor", kind, probe.CursorDetail(), colorize)
}

func replayStatusLine(cfg *config.Config, colorize bool) string {
	if !cfg.Replays.Enabled {
		return renderStatusLine("Replays", statusInfo, "Disabled", colorize)
	}
	entries, err := os.ReadDir(cfg.Paths.ReplayDir)
	if err != nil {
		return renderStatusLine("Replays", statusWarn, fmt.Sprintf("replay directory unreadable: %v", err), colorize)
	}
	count := 0
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".dem.bz2") {
			count++
		}
	}
	return renderStatusLine("Replays", statusOK, fmt.Sprintf("%d archived", count), colorize)
}

func directoryStatusLine(label, path string, colorize bool) string {
	result := preflight.CheckDirectoryAccess(label, path)
	if result.Passed {
		return renderStatusLine(label, statusOK, result.Detail, colorize)
	}
	return renderStatusLine(label, statusError, result.Detail, colorize)
}

// readPID reports the daemon pid when the PID file is present and parseable.
func readPID(path string) (int, bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}
