package main

import (
	"encoding/json"
	"testing"

	"trawler/internal/testsupport"
)

func TestDraftsRendersWinningPicks(t *testing.T) {
	env := setupCLITestEnv(t)

	st := testsupport.MustOpenStore(t, env.cfg)
	testsupport.PutMatch(t, st, 8000000042, 6812000042)

	out, _, err := runCLI(t, []string{"drafts"}, env.configPath)
	if err != nil {
		t.Fatalf("drafts: %v", err)
	}
	requireContains(t, out, "8000000042")
	// MatchRecord derives hero ids from the match id.
	requireContains(t, out, "43, 44, 45, 46, 47")
}

func TestDraftsJSON(t *testing.T) {
	env := setupCLITestEnv(t)

	st := testsupport.MustOpenStore(t, env.cfg)
	testsupport.PutMatch(t, st, 8000000042, 6812000042)

	out, _, err := runCLI(t, []string{"drafts", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("drafts --json: %v", err)
	}

	var views []draftView
	if err := json.Unmarshal([]byte(out), &views); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("expected 1 draft, got %d", len(views))
	}
	if views[0].MatchID != 8000000042 {
		t.Fatalf("unexpected match id %d", views[0].MatchID)
	}
	if len(views[0].Heroes) != 5 {
		t.Fatalf("expected 5 heroes, got %v", views[0].Heroes)
	}
}
