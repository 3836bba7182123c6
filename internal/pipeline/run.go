package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trawler/internal/logging"
	"trawler/internal/notifications"
)

// Start begins the ingest loop. It fails fast when the durable cursor
// cannot be read; network trouble is handled inside the loop instead.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.New("pipeline already running")
	}

	cur, err := p.cursors.Load()
	if err != nil {
		p.mu.Unlock()
		return fmt.Errorf("load cursor: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true
	p.state = StateIdle
	p.cursorSeq = cur.SeqNum
	p.startedAt = p.clock()
	p.wg.Add(1)
	p.mu.Unlock()

	go p.run(runCtx)
	return nil
}

// Stop terminates the loop and waits for the in-flight cycle to unwind.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	p.running = false
	p.cancel = nil
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
}

func (p *Pipeline) run(ctx context.Context) {
	defer p.wg.Done()
	defer p.setState(StateIdle)

	p.logger.Info("ingest loop started",
		logging.Int64(logging.FieldSeqNum, p.currentCursor()),
		logging.Int("workers", p.workers),
	)

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		outcome, err := p.step(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			pause := p.pauseDelay(failures)
			p.noteFailure(ctx, err, pause, failures)
			if p.sleepState(ctx, StateErrorPause, pause) != nil {
				return
			}
			continue
		}

		failures = 0
		interval := p.pollInterval
		if outcome == outcomeEmpty {
			interval = p.emptyPollInterval
		}
		if p.sleepState(ctx, StateSleeping, interval) != nil {
			return
		}
	}
}

// step anchors a fresh cursor when needed, then runs one ingest cycle.
func (p *Pipeline) step(ctx context.Context) (cycleOutcome, error) {
	if err := p.ensureAnchor(ctx); err != nil {
		return outcomeFailed, err
	}
	if !p.warmed {
		p.warmSeenFilter(ctx)
		p.warmed = true
	}
	return p.runCycle(ctx)
}

// ensureAnchor resolves a zero cursor to the newest sequence position and
// saves it durably before the first discovery, so a restart resumes from
// the anchor instead of re-anchoring at a newer position and leaving a gap.
func (p *Pipeline) ensureAnchor(ctx context.Context) error {
	if p.currentCursor() != 0 {
		return nil
	}
	p.setState(StateDiscovering)
	seq, err := p.discovery.MostRecentSeqNum(ctx)
	if err != nil {
		return fmt.Errorf("anchor cursor: %w", err)
	}
	if err := p.cursors.Save(seq); err != nil {
		return fmt.Errorf("anchor cursor: %w", err)
	}
	p.setCursor(seq)
	p.logger.Info("anchored cursor at newest sequence position", logging.Int64(logging.FieldSeqNum, seq))
	return nil
}

// warmSeenFilter loads every stored match id into the dedup filter. A
// partial warm could report false negatives, so any failure disables the
// filter and dedup falls back to store lookups alone.
func (p *Pipeline) warmSeenFilter(ctx context.Context) {
	if p.seen == nil {
		return
	}
	var ids int64
	err := p.store.EachID(ctx, func(matchID int64) error {
		p.seen.Add(matchKey(matchID))
		ids++
		return nil
	})
	if err != nil {
		p.seen = nil
		p.logger.Warn("seen-filter warm-up failed; deduplicating against the store only", logging.Error(err))
		return
	}
	p.logger.Debug("seen filter warmed", logging.Int64("ids", ids))
}

func (p *Pipeline) sleepState(ctx context.Context, state State, d time.Duration) error {
	p.setState(state)
	return p.sleepFn(ctx, d)
}

// pauseDelay doubles the error pause per consecutive failure, bounded by
// the configured maximum.
func (p *Pipeline) pauseDelay(failures int) time.Duration {
	delay := p.errorPause
	for i := 1; i < failures; i++ {
		if delay >= p.errorPauseMax/2 {
			return p.errorPauseMax
		}
		delay *= 2
	}
	if delay > p.errorPauseMax {
		return p.errorPauseMax
	}
	return delay
}

func (p *Pipeline) noteFailure(ctx context.Context, err error, pause time.Duration, failures int) {
	p.setLastError(err)
	p.mu.Lock()
	p.counters.failures++
	p.mu.Unlock()

	p.logger.Error("ingest cycle failed",
		logging.Error(err),
		logging.Duration("pause", pause),
		logging.Int("consecutive_failures", failures),
	)
	p.publish(ctx, notifications.EventErrorPause, notifications.Payload{
		"error": err.Error(),
		"pause": pause.String(),
	})
}

func (p *Pipeline) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if p.notifier == nil || ctx.Err() != nil {
		return
	}
	if err := p.notifier.Publish(ctx, event, payload); err != nil {
		p.logger.Warn("notification publish failed",
			logging.Error(err),
			logging.String("event", string(event)),
		)
	}
}
