package match

import "errors"

// ErrMalformedDraft reports a draft without exactly five winning picks.
var ErrMalformedDraft = errors.New("draft does not contain exactly five winning picks")

// DiscardReason explains why a match was not kept. Reasons other than
// DiscardDeferred count as definitive rejections: the ingest cursor may
// advance past the match.
type DiscardReason string

const (
	DiscardNone           DiscardReason = ""
	DiscardWrongMode      DiscardReason = "wrong_mode"
	DiscardShortHanded    DiscardReason = "short_handed"
	DiscardLeaver         DiscardReason = "leaver"
	DiscardMalformedDraft DiscardReason = "malformed_draft"
	DiscardDuplicate      DiscardReason = "duplicate"
)

// Verdict is the outcome of the keep/discard rules for one match.
type Verdict struct {
	Keep   bool
	Reason DiscardReason
}

func keep() Verdict { return Verdict{Keep: true} }

func discard(reason DiscardReason) Verdict { return Verdict{Reason: reason} }

// EvaluateCandidate applies the coarse-metadata rules available at discovery
// time. A discard here saves an enrichment request; the same rules run again
// against the authoritative detail.
func EvaluateCandidate(c Candidate) Verdict {
	if c.GameMode != GameModeRankedAllPick || c.LobbyType != LobbyTypeRanked {
		return discard(DiscardWrongMode)
	}
	if c.Players != RequiredHumanPlayers {
		return discard(DiscardShortHanded)
	}
	return keep()
}

// Evaluate applies the keep/discard rules to an enriched match. seen reports
// whether a match id is already persisted. Deterministic and side-effect
// free; rule order fixes which reason wins when several apply.
func Evaluate(d *Detail, seen func(matchID int64) bool) Verdict {
	if d.GameMode != GameModeRankedAllPick || d.LobbyType != LobbyTypeRanked {
		return discard(DiscardWrongMode)
	}
	if d.HumanPlayers != RequiredHumanPlayers {
		return discard(DiscardShortHanded)
	}
	if d.Leavers > 0 {
		return discard(DiscardLeaver)
	}
	if len(d.WinningPicks()) != 5 {
		return discard(DiscardMalformedDraft)
	}
	if seen != nil && seen(d.MatchID) {
		return discard(DiscardDuplicate)
	}
	return keep()
}
