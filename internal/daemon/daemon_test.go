package daemon_test

import (
	"context"
	"testing"

	"trawler/internal/config"
	"trawler/internal/cursor"
	"trawler/internal/daemon"
	"trawler/internal/logging"
	"trawler/internal/match"
	"trawler/internal/opendota"
	"trawler/internal/pipeline"
	"trawler/internal/testsupport"
)

type idleDiscovery struct{}

func (idleDiscovery) ListSince(context.Context, int64) ([]match.Candidate, error) {
	return nil, nil
}

func (idleDiscovery) MostRecentSeqNum(context.Context) (int64, error) {
	return 6_800_000_000, nil
}

type idleEnricher struct{}

func (idleEnricher) Fetch(context.Context, int64) (*match.Detail, error) {
	return nil, opendota.ErrMatchNotFound
}

func newTestDaemon(t *testing.T, cfg *config.Config) *daemon.Daemon {
	t.Helper()
	st := testsupport.MustOpenStore(t, cfg)
	cursors, err := cursor.NewStore(cfg.CursorPath())
	if err != nil {
		t.Fatalf("cursor store: %v", err)
	}
	p, err := pipeline.New(cfg, st, cursors, idleDiscovery{}, idleEnricher{}, logging.NewNop())
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	d, err := daemon.New(cfg, st, logging.NewNop(), p, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newTestDaemon(t, cfg)
	t.Cleanup(func() { d.Stop() })

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := d.Status()
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.LockFilePath != cfg.LockPath() {
		t.Fatalf("unexpected lock path: %s", status.LockFilePath)
	}

	// Second start should fail
	if err := d.Start(context.Background()); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	if d.Status().Running {
		t.Fatal("expected daemon to be stopped")
	}

	locked, err := daemon.ProbeLock(cfg.LockPath())
	if err != nil {
		t.Fatalf("ProbeLock: %v", err)
	}
	if locked {
		t.Fatal("expected lock to be released after stop")
	}
}

func TestDaemonSecondInstanceBlocked(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first := newTestDaemon(t, cfg)
	second := newTestDaemon(t, cfg)
	t.Cleanup(func() {
		first.Stop()
		second.Stop()
	})

	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		t.Fatal("expected second instance to be refused while lock is held")
	}

	locked, err := daemon.ProbeLock(cfg.LockPath())
	if err != nil {
		t.Fatalf("ProbeLock: %v", err)
	}
	if !locked {
		t.Fatal("expected probe to see the held lock")
	}

	first.Stop()
	if err := second.Start(context.Background()); err != nil {
		t.Fatalf("second start after release failed: %v", err)
	}
}

func TestProbeLockMissingFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	locked, err := daemon.ProbeLock(cfg.LockPath())
	if err != nil {
		t.Fatalf("ProbeLock: %v", err)
	}
	if locked {
		t.Fatal("expected unlocked for missing lock file")
	}
}
