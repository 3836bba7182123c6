package pipeline_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"trawler/internal/cursor"
	"trawler/internal/logging"
	"trawler/internal/match"
	"trawler/internal/notifications"
	"trawler/internal/opendota"
	"trawler/internal/pipeline"
	"trawler/internal/steam"
	"trawler/internal/testsupport"
)

type stubDiscovery struct {
	mu     sync.Mutex
	recent int64
	feed   []match.Candidate
	err    error
}

func (s *stubDiscovery) ListSince(_ context.Context, seqNum int64) ([]match.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var out []match.Candidate
	for _, cand := range s.feed {
		if cand.SeqNum > seqNum {
			out = append(out, cand)
		}
	}
	return out, nil
}

func (s *stubDiscovery) MostRecentSeqNum(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	return s.recent, nil
}

func (s *stubDiscovery) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

type stubEnricher struct {
	mu      sync.Mutex
	details map[int64]*match.Detail
}

func (s *stubEnricher) Fetch(_ context.Context, matchID int64) (*match.Detail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	detail, ok := s.details[matchID]
	if !ok {
		return nil, opendota.ErrMatchNotFound
	}
	clone := *detail
	return &clone, nil
}

// gateSleeper turns the pipeline's sleeps into test checkpoints: every
// completed cycle parks on the gate until the test releases it.
type gateSleeper struct {
	slept chan time.Duration
	gate  chan struct{}
}

func newGateSleeper() *gateSleeper {
	return &gateSleeper{
		slept: make(chan time.Duration, 16),
		gate:  make(chan struct{}),
	}
}

func (g *gateSleeper) Sleep(ctx context.Context, d time.Duration) error {
	select {
	case g.slept <- d:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-g.gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *gateSleeper) release() { g.gate <- struct{}{} }

func waitSleep(t *testing.T, g *gateSleeper) time.Duration {
	t.Helper()
	select {
	case d := <-g.slept:
		return d
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for an ingest cycle to finish")
		return 0
	}
}

type captureNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (c *captureNotifier) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *captureNotifier) count(event notifications.Event) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.events {
		if e == event {
			n++
		}
	}
	return n
}

func lifecycleDetail(matchID int64) *match.Detail {
	draft := make([]match.DraftEntry, 0, 10)
	for i := 0; i < 5; i++ {
		draft = append(draft,
			match.DraftEntry{HeroID: i + 1, Team: match.TeamRadiant, IsPick: true, Order: i * 2},
			match.DraftEntry{HeroID: 70 + i, Team: match.TeamDire, IsPick: true, Order: i*2 + 1},
		)
	}
	return &match.Detail{
		MatchID:      matchID,
		GameMode:     match.GameModeRankedAllPick,
		LobbyType:    match.LobbyTypeRanked,
		HumanPlayers: match.RequiredHumanPlayers,
		Winner:       match.TeamDire,
		Draft:        draft,
		StartTime:    1_700_000_100,
		Duration:     1999,
		RadiantScore: 18,
		DireScore:    33,
		Region:       5,
		RawPayload:   []byte(fmt.Sprintf(`{"match_id":%d}`, matchID)),
	}
}

func TestPipelineStartStopLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Pipeline.MilestoneEvery = 1
	st := testsupport.MustOpenStore(t, cfg)
	cursors, err := cursor.NewStore(cfg.CursorPath())
	if err != nil {
		t.Fatalf("cursor store: %v", err)
	}
	if err := cursors.Save(49); err != nil {
		t.Fatalf("seed cursor: %v", err)
	}

	disc := &stubDiscovery{feed: []match.Candidate{{
		MatchID:   1001,
		SeqNum:    50,
		GameMode:  match.GameModeRankedAllPick,
		LobbyType: match.LobbyTypeRanked,
		Players:   match.RequiredHumanPlayers,
	}}}
	enr := &stubEnricher{details: map[int64]*match.Detail{1001: lifecycleDetail(1001)}}
	sleeper := newGateSleeper()
	notifier := &captureNotifier{}

	p, err := pipeline.New(cfg, st, cursors, disc, enr, logging.NewNop(),
		pipeline.WithSleep(sleeper.Sleep),
		pipeline.WithNotifier(notifier),
	)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := p.Start(context.Background()); err == nil {
		t.Fatal("expected second start to fail")
	}

	if d := waitSleep(t, sleeper); d != 15*time.Second {
		t.Fatalf("expected poll interval sleep, got %s", d)
	}

	snap := p.Snapshot()
	if !snap.Running || snap.State != pipeline.StateSleeping {
		t.Fatalf("unexpected snapshot state: %+v", snap)
	}
	if snap.Persisted != 1 || snap.Cycles != 1 || snap.CursorSeq != 50 {
		t.Fatalf("unexpected counters: %+v", snap)
	}
	if count, err := st.Count(context.Background()); err != nil || count != 1 {
		t.Fatalf("expected one stored match, got %d (%v)", count, err)
	}
	if notifier.count(notifications.EventMilestone) != 1 {
		t.Fatal("expected a milestone notification")
	}

	p.Stop()
	if p.Running() {
		t.Fatal("expected pipeline stopped")
	}
	if state := p.Snapshot().State; state != pipeline.StateIdle {
		t.Fatalf("expected idle after stop, got %s", state)
	}
	p.Stop() // second stop is a no-op
}

func TestPipelineErrorPauseEscalatesAndResets(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Pipeline.ErrorPauseSeconds = 10
	cfg.Pipeline.ErrorPauseMaxSeconds = 40
	cfg.Pipeline.EmptyPollIntervalSeconds = 50
	st := testsupport.MustOpenStore(t, cfg)
	cursors, err := cursor.NewStore(cfg.CursorPath())
	if err != nil {
		t.Fatalf("cursor store: %v", err)
	}
	if err := cursors.Save(49); err != nil {
		t.Fatalf("seed cursor: %v", err)
	}

	disc := &stubDiscovery{err: steam.ErrUnavailable}
	sleeper := newGateSleeper()
	notifier := &captureNotifier{}

	p, err := pipeline.New(cfg, st, cursors, disc, &stubEnricher{}, logging.NewNop(),
		pipeline.WithSleep(sleeper.Sleep),
		pipeline.WithNotifier(notifier),
	)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Consecutive failures escalate toward the bounded maximum.
	for i, want := range []time.Duration{10 * time.Second, 20 * time.Second, 40 * time.Second, 40 * time.Second} {
		if got := waitSleep(t, sleeper); got != want {
			t.Fatalf("failure %d: expected pause %s, got %s", i+1, want, got)
		}
		if state := p.Snapshot().State; state != pipeline.StateErrorPause {
			t.Fatalf("failure %d: expected error_pause state, got %s", i+1, state)
		}
		if i < 3 {
			sleeper.release()
		}
	}

	// A successful (empty) cycle resets the escalation.
	disc.setErr(nil)
	sleeper.release()
	if got := waitSleep(t, sleeper); got != 50*time.Second {
		t.Fatalf("expected empty-poll sleep, got %s", got)
	}

	disc.setErr(steam.ErrUnavailable)
	sleeper.release()
	if got := waitSleep(t, sleeper); got != 10*time.Second {
		t.Fatalf("expected pause reset to base, got %s", got)
	}

	snap := p.Snapshot()
	if snap.Failures != 5 || snap.EmptyCycles != 1 {
		t.Fatalf("unexpected counters: %+v", snap)
	}
	if snap.LastError == "" {
		t.Fatal("expected last error recorded")
	}
	if notifier.count(notifications.EventErrorPause) != 5 {
		t.Fatalf("expected 5 error-pause notifications, got %d", notifier.count(notifications.EventErrorPause))
	}

	p.Stop()
}

func TestPipelineAnchorsZeroCursor(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	cursors, err := cursor.NewStore(cfg.CursorPath())
	if err != nil {
		t.Fatalf("cursor store: %v", err)
	}

	disc := &stubDiscovery{recent: 6_812_000_000}
	sleeper := newGateSleeper()

	p, err := pipeline.New(cfg, st, cursors, disc, &stubEnricher{}, logging.NewNop(),
		pipeline.WithSleep(sleeper.Sleep),
	)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	if d := waitSleep(t, sleeper); d != 45*time.Second {
		t.Fatalf("expected empty-poll sleep after anchoring, got %s", d)
	}
	p.Stop()

	cur, err := cursors.Load()
	if err != nil {
		t.Fatalf("load cursor: %v", err)
	}
	if cur.SeqNum != 6_812_000_000 {
		t.Fatalf("expected anchored cursor persisted, got %d", cur.SeqNum)
	}
	if snap := p.Snapshot(); snap.CursorSeq != 6_812_000_000 || snap.EmptyCycles != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestPipelineStartFailsOnCorruptCursor(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	if err := os.MkdirAll(filepath.Dir(cfg.CursorPath()), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(cfg.CursorPath(), []byte("not json"), 0o644); err != nil {
		t.Fatalf("write cursor: %v", err)
	}
	cursors, err := cursor.NewStore(cfg.CursorPath())
	if err != nil {
		t.Fatalf("cursor store: %v", err)
	}

	p, err := pipeline.New(cfg, st, cursors, &stubDiscovery{}, &stubEnricher{}, logging.NewNop())
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	if err := p.Start(context.Background()); err == nil {
		t.Fatal("expected start to fail on corrupt cursor")
	}
	if p.Running() {
		t.Fatal("expected pipeline not running")
	}
}
