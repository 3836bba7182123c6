package main

import (
	"testing"

	"trawler/internal/testsupport"
)

func TestStatusWithoutDaemon(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "== Daemon ==")
	requireContains(t, out, "Not running")
	requireContains(t, out, "not anchored yet")
	requireContains(t, out, "not created yet")
	requireContains(t, out, "Disabled")
	requireContains(t, out, "Data directory")
}

func TestStatusReportsPersistedCorpus(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithReplaysEnabled())

	st := testsupport.MustOpenStore(t, env.cfg)
	testsupport.PutMatch(t, st, 8000000001, 6812000001)
	testsupport.PutMatch(t, st, 8000000002, 6812000002)

	out, _, err := runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "2 matches")
	requireContains(t, out, "0 archived")
	requireContains(t, out, "Replay directory")
}
