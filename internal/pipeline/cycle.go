package pipeline

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"trawler/internal/logging"
	"trawler/internal/match"
	"trawler/internal/notifications"
	"trawler/internal/opendota"
)

type cycleOutcome int

const (
	outcomeBatch cycleOutcome = iota
	outcomeEmpty
	outcomeFailed
)

// reasonUnavailable marks candidates the enrichment source reported as
// permanently unfetchable.
const reasonUnavailable = "unavailable"

// stormMinFetched is the smallest enriched batch the unavailability storm
// rule applies to; a single bad match must not pause ingestion.
const stormMinFetched = 2

type itemState int

const (
	itemPending itemState = iota
	itemDeferred
	itemRejected
	itemPersisted
)

// cycleItem tracks one candidate through a cycle. A candidate ends the
// cycle persisted, definitively rejected, or deferred; the cursor may only
// advance across the first two.
type cycleItem struct {
	cand        match.Candidate
	state       itemState
	reason      string
	prefiltered bool
	detail      *match.Detail
}

func (p *Pipeline) runCycle(ctx context.Context) (cycleOutcome, error) {
	cur := p.currentCursor()
	cycle := p.beginCycle()

	p.setState(StateDiscovering)
	candidates, err := p.discovery.ListSince(ctx, cur)
	if err != nil {
		return outcomeFailed, fmt.Errorf("discover after %d: %w", cur, err)
	}
	if len(candidates) == 0 {
		p.noteEmptyCycle()
		p.logger.Debug("no new matches",
			logging.Int64(logging.FieldCycle, cycle),
			logging.Int64(logging.FieldSeqNum, cur),
		)
		return outcomeEmpty, nil
	}

	items := make([]cycleItem, len(candidates))
	for i, cand := range candidates {
		items[i] = cycleItem{cand: cand}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].cand.SeqNum < items[j].cand.SeqNum })

	p.setState(StateEnriching)
	p.prefilter(items)
	fetched, unavailable, err := p.enrich(ctx, items)
	if err != nil {
		return outcomeFailed, err
	}
	if fetched >= stormMinFetched && unavailable == fetched {
		// A wedged enrichment source must not cause mass definitive
		// rejection; pause and retry the whole batch instead.
		p.noteStorm()
		return outcomeFailed, fmt.Errorf("enrich after %d: all %d fetched candidates unavailable", cur, fetched)
	}

	p.setState(StateCommitting)
	if err := p.commit(ctx, items); err != nil {
		return outcomeFailed, err
	}

	p.setState(StateAdvancing)
	next, err := p.advance(items, cur)
	if err != nil {
		return outcomeFailed, err
	}

	tally := p.tallyCycle(items)
	p.logger.Info("ingest cycle complete",
		logging.Int64(logging.FieldCycle, cycle),
		logging.Int("discovered", len(items)),
		logging.Int("prefiltered", tally.prefiltered),
		logging.Int("persisted", tally.persisted),
		logging.Int("rejected", tally.rejected),
		logging.Int("deferred", tally.deferred),
		logging.Int64(logging.FieldSeqNum, next),
	)
	if tally.milestone {
		p.logger.Info("ingest milestone",
			logging.Int64("kept", tally.persistedTotal),
			logging.Int64("seen", tally.discoveredTotal),
			logging.String("rate", tally.keepRate),
		)
		p.publish(ctx, notifications.EventMilestone, notifications.Payload{
			"persisted":  fmt.Sprintf("%d", tally.persistedTotal),
			"discovered": fmt.Sprintf("%d", tally.discoveredTotal),
			"rate":       tally.keepRate,
		})
	}
	return outcomeBatch, nil
}

// prefilter applies the coarse-metadata rules before any enrichment request
// is spent. A discard here is definitive: the detail fetch would fail the
// same rules.
func (p *Pipeline) prefilter(items []cycleItem) {
	for i := range items {
		it := &items[i]
		verdict := match.EvaluateCandidate(it.cand)
		if verdict.Keep {
			continue
		}
		it.state = itemRejected
		it.reason = string(verdict.Reason)
		it.prefiltered = true
	}
}

// enrich fetches detail for every pending candidate through a bounded
// worker pool. NotFound defers the candidate; Unavailable rejects it
// definitively; anything else aborts the cycle. All fetches finish before
// enrich returns.
func (p *Pipeline) enrich(ctx context.Context, items []cycleItem) (fetched, unavailable int, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i := range items {
		it := &items[i]
		if it.state != itemPending {
			continue
		}
		fetched++
		g.Go(func() error {
			detail, err := p.enricher.Fetch(gctx, it.cand.MatchID)
			switch {
			case err == nil:
				// The primary source orders matches; its sequence marker wins.
				detail.SeqNum = it.cand.SeqNum
				it.detail = detail
			case errors.Is(err, opendota.ErrMatchNotFound):
				it.state = itemDeferred
				p.logger.Debug("match not indexed yet; deferred",
					logging.Int64(logging.FieldMatchID, it.cand.MatchID),
					logging.Int64(logging.FieldSeqNum, it.cand.SeqNum),
				)
			case errors.Is(err, opendota.ErrMatchUnavailable):
				it.state = itemRejected
				it.reason = reasonUnavailable
				p.logger.Warn("match unavailable; rejected",
					logging.Int64(logging.FieldMatchID, it.cand.MatchID),
					logging.Int64(logging.FieldSeqNum, it.cand.SeqNum),
					logging.Error(err),
				)
			default:
				return fmt.Errorf("enrich match %d: %w", it.cand.MatchID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, 0, err
	}

	for i := range items {
		if items[i].reason == reasonUnavailable {
			unavailable++
		}
	}
	return fetched, unavailable, nil
}

// commit evaluates enriched candidates and persists the keepers in
// ascending sequence order. Any store error abandons the cycle; inserts
// are idempotent, so the retried cycle cannot duplicate rows.
func (p *Pipeline) commit(ctx context.Context, items []cycleItem) error {
	now := p.clock()
	for i := range items {
		it := &items[i]
		if it.state != itemPending {
			continue
		}

		var lookupErr error
		verdict := match.Evaluate(it.detail, func(matchID int64) bool {
			stored, err := p.alreadyStored(ctx, matchID)
			if err != nil {
				lookupErr = err
			}
			return stored
		})
		if lookupErr != nil {
			return fmt.Errorf("commit match %d: %w", it.cand.MatchID, lookupErr)
		}
		if !verdict.Keep {
			it.state = itemRejected
			it.reason = string(verdict.Reason)
			if verdict.Reason == match.DiscardMalformedDraft {
				p.logger.Warn("discarding malformed draft",
					logging.Int64(logging.FieldMatchID, it.cand.MatchID),
					logging.Int64(logging.FieldSeqNum, it.cand.SeqNum),
				)
			}
			continue
		}

		rec := it.detail.Record(now)
		inserted, err := p.store.Put(ctx, rec)
		if err != nil {
			return fmt.Errorf("persist match %d: %w", it.cand.MatchID, err)
		}
		it.state = itemPersisted
		if !inserted {
			continue
		}
		p.rememberStored(rec.MatchID)
		if p.replays != nil && rec.ReplayURL != "" {
			if !p.replays.Enqueue(rec) {
				p.logger.Warn("replay queue full; dropping download",
					logging.Int64(logging.FieldMatchID, rec.MatchID),
				)
			}
		}
	}
	return nil
}

// advance moves the cursor to the highest sequence position whose every
// candidate at or below it was persisted or definitively rejected. A
// deferred candidate caps advancement at its predecessor, so nothing is
// skipped.
func (p *Pipeline) advance(items []cycleItem, cur int64) (int64, error) {
	next := cur
	for i := range items {
		state := items[i].state
		if state != itemPersisted && state != itemRejected {
			break
		}
		next = items[i].cand.SeqNum
	}
	if next == cur {
		return cur, nil
	}
	if err := p.cursors.Save(next); err != nil {
		return cur, fmt.Errorf("advance cursor to %d: %w", next, err)
	}
	p.setCursor(next)
	return next, nil
}

// alreadyStored answers dedup lookups, using the seen filter to skip the
// store query when the id has definitely never been persisted.
func (p *Pipeline) alreadyStored(ctx context.Context, matchID int64) (bool, error) {
	if p.seen != nil && !p.seen.Test(matchKey(matchID)) {
		return false, nil
	}
	return p.store.Has(ctx, matchID)
}

func (p *Pipeline) rememberStored(matchID int64) {
	if p.seen != nil {
		p.seen.Add(matchKey(matchID))
	}
}

func matchKey(matchID int64) []byte {
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], uint64(matchID))
	return key[:]
}
