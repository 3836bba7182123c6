package opendota_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"trawler/internal/match"
	"trawler/internal/opendota"
)

const rankedMatchBody = `{
	"match_id": 8000000001,
	"match_seq_num": 6800000001,
	"game_mode": 22,
	"lobby_type": 7,
	"human_players": 10,
	"radiant_win": true,
	"start_time": 1755700000,
	"duration": 2412,
	"radiant_score": 34,
	"dire_score": 21,
	"region": 3,
	"cluster": 153,
	"replay_salt": 987654321,
	"picks_bans": [
		{"is_pick": false, "hero_id": 90, "team": 0, "order": 0},
		{"is_pick": false, "hero_id": 91, "team": 1, "order": 1},
		{"is_pick": true, "hero_id": 1, "team": 0, "order": 2},
		{"is_pick": true, "hero_id": 2, "team": 1, "order": 3},
		{"is_pick": true, "hero_id": 3, "team": 0, "order": 4},
		{"is_pick": true, "hero_id": 4, "team": 1, "order": 5},
		{"is_pick": true, "hero_id": 5, "team": 0, "order": 6},
		{"is_pick": true, "hero_id": 6, "team": 1, "order": 7},
		{"is_pick": true, "hero_id": 7, "team": 0, "order": 8},
		{"is_pick": true, "hero_id": 8, "team": 1, "order": 9},
		{"is_pick": true, "hero_id": 9, "team": 0, "order": 10},
		{"is_pick": true, "hero_id": 10, "team": 1, "order": 11}
	],
	"players": [
		{"leaver_status": 0}, {"leaver_status": 0}, {"leaver_status": 0},
		{"leaver_status": 0}, {"leaver_status": 0}, {"leaver_status": 0},
		{"leaver_status": 0}, {"leaver_status": 0}, {"leaver_status": 0},
		{"leaver_status": 0}
	]
}`

func TestFetchMapsDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/matches/8000000001" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, rankedMatchBody)
	}))
	defer server.Close()

	client := opendota.NewClient(opendota.Config{BaseURL: server.URL}, nil)
	detail, err := client.Fetch(context.Background(), 8000000001)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}

	if detail.MatchID != 8000000001 || detail.SeqNum != 6800000001 {
		t.Fatalf("unexpected identifiers: %d / %d", detail.MatchID, detail.SeqNum)
	}
	if detail.Winner != match.TeamRadiant {
		t.Fatalf("expected radiant winner, got %s", detail.Winner)
	}
	if detail.HumanPlayers != 10 || detail.Leavers != 0 {
		t.Fatalf("unexpected player counts: %d humans, %d leavers", detail.HumanPlayers, detail.Leavers)
	}
	if len(detail.Draft) != 12 {
		t.Fatalf("expected 12 draft entries, got %d", len(detail.Draft))
	}
	picks := detail.WinningPicks()
	want := []int{1, 3, 5, 7, 9}
	if len(picks) != 5 {
		t.Fatalf("expected 5 winning picks, got %d", len(picks))
	}
	for i := range want {
		if picks[i] != want[i] {
			t.Fatalf("winning picks: expected %v, got %v", want, picks)
		}
	}
	if detail.Cluster != 153 || detail.ReplaySalt != 987654321 {
		t.Fatalf("unexpected replay coordinates: cluster %d salt %d", detail.Cluster, detail.ReplaySalt)
	}
	if len(detail.RawPayload) == 0 {
		t.Fatal("expected raw payload to be retained")
	}
}

func TestFetchCountsLeavers(t *testing.T) {
	// One abandoner (status 2) and one player record without the field.
	body := `{
		"match_id": 8000000002, "match_seq_num": 6800000002,
		"game_mode": 22, "lobby_type": 7, "human_players": 10,
		"radiant_win": false, "start_time": 1, "duration": 1,
		"players": [{"leaver_status": 0}, {"leaver_status": 2}, {}]
	}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body)
	}))
	defer server.Close()

	client := opendota.NewClient(opendota.Config{BaseURL: server.URL}, nil)
	detail, err := client.Fetch(context.Background(), 8000000002)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if detail.Leavers != 2 {
		t.Fatalf("expected 2 leavers, got %d", detail.Leavers)
	}
	if detail.Winner != match.TeamDire {
		t.Fatalf("expected dire winner, got %s", detail.Winner)
	}
}

func TestFetchNotFoundIsImmediate(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := opendota.NewClient(opendota.Config{BaseURL: server.URL}, nil)
	_, err := client.Fetch(context.Background(), 8000000003)
	if !errors.Is(err, opendota.ErrMatchNotFound) {
		t.Fatalf("expected ErrMatchNotFound, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected no retries for 404, got %d requests", calls.Load())
	}
}

func TestFetchRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, rankedMatchBody)
	}))
	defer server.Close()

	var sleeps []time.Duration
	client := opendota.NewClient(
		opendota.Config{BaseURL: server.URL},
		nil,
		opendota.WithRetryBackoff(time.Millisecond, 5*time.Millisecond),
		opendota.WithSleeper(func(d time.Duration) { sleeps = append(sleeps, d) }),
	)
	detail, err := client.Fetch(context.Background(), 8000000001)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if detail.MatchID != 8000000001 {
		t.Fatalf("unexpected match id %d", detail.MatchID)
	}
	if calls.Load() != 3 || len(sleeps) != 2 {
		t.Fatalf("expected 3 requests and 2 sleeps, got %d/%d", calls.Load(), len(sleeps))
	}
}

func TestFetchExhaustionIsUnavailable(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := opendota.NewClient(
		opendota.Config{BaseURL: server.URL, MaxAttempts: 3},
		nil,
		opendota.WithRetryBackoff(time.Millisecond, 2*time.Millisecond),
		opendota.WithSleeper(func(time.Duration) {}),
	)
	_, err := client.Fetch(context.Background(), 8000000004)
	if !errors.Is(err, opendota.ErrMatchUnavailable) {
		t.Fatalf("expected ErrMatchUnavailable, got %v", err)
	}
	if errors.Is(err, opendota.ErrMatchNotFound) {
		t.Fatal("exhaustion must not be reported as not-found")
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestFetchMalformedBodyIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"match_id": 0}`)
	}))
	defer server.Close()

	client := opendota.NewClient(opendota.Config{BaseURL: server.URL}, nil)
	_, err := client.Fetch(context.Background(), 8000000005)
	if !errors.Is(err, opendota.ErrMatchUnavailable) {
		t.Fatalf("expected ErrMatchUnavailable for incomplete payload, got %v", err)
	}
}

func TestFetchCancellationIsNotUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	client := opendota.NewClient(
		opendota.Config{BaseURL: server.URL},
		nil,
		opendota.WithSleeper(func(time.Duration) { cancel() }),
	)
	_, err := client.Fetch(ctx, 8000000006)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, opendota.ErrMatchUnavailable) {
		t.Fatal("shutdown must not be reported as match unavailability")
	}
}

type countingLimiter struct {
	acquires atomic.Int64
}

func (l *countingLimiter) Acquire(ctx context.Context) error {
	l.acquires.Add(1)
	return ctx.Err()
}

func TestFetchAcquiresLimiterPerAttempt(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, rankedMatchBody)
	}))
	defer server.Close()

	limiter := &countingLimiter{}
	client := opendota.NewClient(
		opendota.Config{BaseURL: server.URL},
		limiter,
		opendota.WithRetryBackoff(time.Millisecond, 2*time.Millisecond),
		opendota.WithSleeper(func(time.Duration) {}),
	)
	if _, err := client.Fetch(context.Background(), 8000000001); err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if limiter.acquires.Load() != 2 {
		t.Fatalf("expected limiter acquired once per attempt (2), got %d", limiter.acquires.Load())
	}
}

func TestFetchMissingDraftStillMaps(t *testing.T) {
	// picks_bans can be null upstream; the detail maps with an empty draft
	// and the filter stage rejects it as malformed.
	body := `{
		"match_id": 8000000007, "match_seq_num": 6800000007,
		"game_mode": 22, "lobby_type": 7, "human_players": 10,
		"radiant_win": true, "start_time": 1, "duration": 1,
		"picks_bans": null, "players": []
	}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body)
	}))
	defer server.Close()

	client := opendota.NewClient(opendota.Config{BaseURL: server.URL}, nil)
	detail, err := client.Fetch(context.Background(), 8000000007)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if len(detail.Draft) != 0 {
		t.Fatalf("expected empty draft, got %d entries", len(detail.Draft))
	}
	if len(detail.WinningPicks()) != 0 {
		t.Fatal("expected no winning picks for an empty draft")
	}
}
