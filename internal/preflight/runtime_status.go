package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"trawler/internal/config"
	"trawler/internal/cursor"
	"trawler/internal/store"
)

// CheckStoreFromConfig evaluates match database health for status displays.
func CheckStoreFromConfig(ctx context.Context, cfg *config.Config) Result {
	const name = "Match database"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}

	// Stat before opening: Open would create an empty database as a side
	// effect, and a status probe must not write anything.
	dbPath := cfg.DatabasePath()
	if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
		return Result{Name: name, Passed: true, Detail: "not created yet (no matches persisted)"}
	}

	st, err := store.Open(cfg)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("open failed (%v)", err)}
	}
	defer st.Close()

	health, err := st.CheckHealth(ctx)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	if len(health.MissingColumns) > 0 {
		return Result{Name: name, Detail: fmt.Sprintf("schema missing columns: %s", strings.Join(health.MissingColumns, ", "))}
	}
	if !health.IntegrityCheck {
		return Result{Name: name, Detail: "integrity check failed"}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d matches", health.TotalMatches)}
}

// CursorProbe reports the current ingest cursor snapshot.
type CursorProbe struct {
	Present   bool
	SeqNum    int64
	UpdatedAt time.Time
	Err       string
}

// ProbeCursor reads the cursor file for status displays. A missing file is
// not an error; it means ingest has never anchored.
func ProbeCursor(path string) CursorProbe {
	cursors, err := cursor.NewStore(path)
	if err != nil {
		return CursorProbe{Err: err.Error()}
	}
	c, err := cursors.Load()
	if err != nil {
		return CursorProbe{Err: err.Error()}
	}
	if c.SeqNum == 0 {
		return CursorProbe{}
	}
	return CursorProbe{Present: true, SeqNum: c.SeqNum, UpdatedAt: c.UpdatedAt}
}

// CursorDetail renders a display-friendly summary for status UIs.
func (p CursorProbe) CursorDetail() string {
	if p.Err != "" {
		return fmt.Sprintf("cursor unreadable: %s", p.Err)
	}
	if !p.Present {
		return "not anchored yet"
	}
	return fmt.Sprintf("sequence %d (updated %s)", p.SeqNum, p.UpdatedAt.UTC().Format(time.RFC3339))
}
