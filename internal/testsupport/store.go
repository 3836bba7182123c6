package testsupport

import (
	"context"
	"fmt"
	"testing"
	"time"

	"trawler/internal/config"
	"trawler/internal/match"
	"trawler/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// MatchRecord builds a well-formed persisted match for tests. The winning
// draft is derived from the match id so records stay distinguishable.
func MatchRecord(matchID, seqNum int64) match.Persisted {
	base := int(matchID % 100)
	return match.Persisted{
		MatchID:      matchID,
		SeqNum:       seqNum,
		StartTime:    1700000000 + seqNum,
		Duration:     2400,
		Winner:       match.TeamRadiant,
		RadiantScore: 30,
		DireScore:    22,
		Region:       3,
		WinningDraft: []int{base + 1, base + 2, base + 3, base + 4, base + 5},
		ReplaySalt:   matchID * 7,
		ReplayURL:    fmt.Sprintf("http://replay153.valve.net/570/%d_%d.dem.bz2", matchID, matchID*7),
		RawPayload:   []byte(fmt.Sprintf(`{"match_id":%d,"match_seq_num":%d}`, matchID, seqNum)),
		CreatedAt:    time.Now().UTC(),
	}
}

// PutMatch stores a generated record and fails the test on error.
func PutMatch(t testing.TB, st *store.Store, matchID, seqNum int64) {
	t.Helper()

	if _, err := st.Put(context.Background(), MatchRecord(matchID, seqNum)); err != nil {
		t.Fatalf("store.Put: %v", err)
	}
}
