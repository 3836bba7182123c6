package match

import (
	"fmt"
	"sort"
	"time"
)

// Game mode and lobby codes used by the Steam and OpenDota APIs. Ingestion
// keeps only ranked all-pick: mode 22 in lobby 7 with a full complement of
// human players.
const (
	GameModeRankedAllPick = 22
	LobbyTypeRanked       = 7
	RequiredHumanPlayers  = 10
)

// Team identifies one of the two sides of a match.
type Team string

const (
	TeamRadiant Team = "radiant"
	TeamDire    Team = "dire"
)

// Candidate is a match summary produced by discovery. Ephemeral; only its
// identifiers survive into the persisted record.
type Candidate struct {
	MatchID   int64
	SeqNum    int64
	GameMode  int
	LobbyType int
	Players   int
}

// DraftEntry is one pick or ban exactly as reported by the enrichment
// source. Order preserves the source's draft sequence.
type DraftEntry struct {
	HeroID int
	Team   Team
	IsPick bool
	Order  int
}

// Detail is the enriched view of one match. RawPayload retains the source
// response verbatim so downstream consumers can recover fields this struct
// does not surface.
type Detail struct {
	MatchID      int64
	SeqNum       int64
	GameMode     int
	LobbyType    int
	HumanPlayers int
	Leavers      int
	Winner       Team
	Draft        []DraftEntry
	StartTime    int64
	Duration     int
	RadiantScore int
	DireScore    int
	Region       int
	Cluster      int
	ReplaySalt   int64
	RawPayload   []byte
}

// WinningPicks returns the winning team's hero picks in draft order.
func (d *Detail) WinningPicks() []int {
	entries := make([]DraftEntry, 0, len(d.Draft))
	for _, entry := range d.Draft {
		if entry.IsPick && entry.Team == d.Winner {
			entries = append(entries, entry)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Order < entries[j].Order })
	picks := make([]int, len(entries))
	for i, entry := range entries {
		picks[i] = entry.HeroID
	}
	return picks
}

// ReplayURL builds the Valve replay location for this match, or "" when the
// detail does not carry replay coordinates.
func (d *Detail) ReplayURL() string {
	if d.Cluster <= 0 || d.ReplaySalt == 0 {
		return ""
	}
	return fmt.Sprintf("http://replay%d.valve.net/570/%d_%d.dem.bz2", d.Cluster, d.MatchID, d.ReplaySalt)
}

// Record converts an enriched detail into its durable form.
func (d *Detail) Record(now time.Time) Persisted {
	return Persisted{
		MatchID:      d.MatchID,
		SeqNum:       d.SeqNum,
		StartTime:    d.StartTime,
		Duration:     d.Duration,
		Winner:       d.Winner,
		RadiantScore: d.RadiantScore,
		DireScore:    d.DireScore,
		Region:       d.Region,
		WinningDraft: d.WinningPicks(),
		ReplaySalt:   d.ReplaySalt,
		ReplayURL:    d.ReplayURL(),
		RawPayload:   d.RawPayload,
		CreatedAt:    now.UTC(),
	}
}

// Persisted is the durable record shape. WinningDraft always holds exactly
// five hero ids; RawPayload is stored alongside for downstream consumers.
type Persisted struct {
	MatchID      int64
	SeqNum       int64
	StartTime    int64
	Duration     int
	Winner       Team
	RadiantScore int
	DireScore    int
	Region       int
	WinningDraft []int
	ReplaySalt   int64
	ReplayURL    string
	RawPayload   []byte
	CreatedAt    time.Time
}
