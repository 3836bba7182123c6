package pipeline

import (
	"fmt"
	"time"
)

// State names the pipeline's position in its cycle.
type State string

const (
	StateIdle        State = "idle"
	StateDiscovering State = "discovering"
	StateEnriching   State = "enriching"
	StateCommitting  State = "committing"
	StateAdvancing   State = "advancing"
	StateSleeping    State = "sleeping"
	StateErrorPause  State = "error_pause"
)

type counters struct {
	cycles      int64
	emptyCycles int64
	failures    int64
	storms      int64
	discovered  int64
	prefiltered int64
	enriched    int64
	deferred    int64
	persisted   int64
	rejected    map[string]int64
	lastCycle   time.Time
}

// Snapshot is a point-in-time copy of pipeline state and counters.
type Snapshot struct {
	Running   bool
	State     State
	CursorSeq int64
	StartedAt time.Time
	LastCycle time.Time
	LastError string

	Cycles      int64
	EmptyCycles int64
	Failures    int64
	Storms      int64

	Discovered  int64
	Prefiltered int64
	Enriched    int64
	// Deferred counts deferral events; one match deferred across several
	// cycles counts once per cycle.
	Deferred  int64
	Persisted int64
	Rejected  map[string]int64
}

// Snapshot returns the latest pipeline diagnostics.
func (p *Pipeline) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	snap := Snapshot{
		Running:   p.running,
		State:     p.state,
		CursorSeq: p.cursorSeq,
		StartedAt: p.startedAt,
		LastCycle: p.counters.lastCycle,

		Cycles:      p.counters.cycles,
		EmptyCycles: p.counters.emptyCycles,
		Failures:    p.counters.failures,
		Storms:      p.counters.storms,

		Discovered:  p.counters.discovered,
		Prefiltered: p.counters.prefiltered,
		Enriched:    p.counters.enriched,
		Deferred:    p.counters.deferred,
		Persisted:   p.counters.persisted,
		Rejected:    make(map[string]int64, len(p.counters.rejected)),
	}
	for reason, n := range p.counters.rejected {
		snap.Rejected[reason] = n
	}
	if p.lastErr != nil {
		snap.LastError = p.lastErr.Error()
	}
	return snap
}

// Running reports whether the ingest loop is active.
func (p *Pipeline) Running() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

func (p *Pipeline) setState(state State) {
	p.mu.Lock()
	p.state = state
	p.mu.Unlock()
}

func (p *Pipeline) currentCursor() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cursorSeq
}

func (p *Pipeline) setCursor(seqNum int64) {
	p.mu.Lock()
	p.cursorSeq = seqNum
	p.mu.Unlock()
}

func (p *Pipeline) setLastError(err error) {
	p.mu.Lock()
	p.lastErr = err
	p.mu.Unlock()
}

func (p *Pipeline) beginCycle() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counters.cycles++
	return p.counters.cycles
}

func (p *Pipeline) noteEmptyCycle() {
	p.mu.Lock()
	p.counters.emptyCycles++
	p.counters.lastCycle = p.clock()
	p.mu.Unlock()
}

func (p *Pipeline) noteStorm() {
	p.mu.Lock()
	p.counters.storms++
	p.mu.Unlock()
}

// cycleTally summarizes one completed cycle and carries the cumulative
// totals needed for milestone reporting.
type cycleTally struct {
	prefiltered int
	persisted   int
	rejected    int
	deferred    int

	milestone       bool
	persistedTotal  int64
	discoveredTotal int64
	keepRate        string
}

func (p *Pipeline) tallyCycle(items []cycleItem) cycleTally {
	var tally cycleTally
	reasons := make(map[string]int64)
	var enriched int64
	for i := range items {
		it := &items[i]
		switch it.state {
		case itemPersisted:
			tally.persisted++
		case itemRejected:
			tally.rejected++
			reasons[it.reason]++
			if it.prefiltered {
				tally.prefiltered++
			}
		case itemDeferred:
			tally.deferred++
		}
		if it.detail != nil {
			enriched++
		}
	}

	p.mu.Lock()
	before := p.counters.persisted
	p.counters.discovered += int64(len(items))
	p.counters.prefiltered += int64(tally.prefiltered)
	p.counters.enriched += enriched
	p.counters.deferred += int64(tally.deferred)
	p.counters.persisted += int64(tally.persisted)
	for reason, n := range reasons {
		p.counters.rejected[reason] += n
	}
	p.counters.lastCycle = p.clock()
	tally.persistedTotal = p.counters.persisted
	tally.discoveredTotal = p.counters.discovered
	if p.milestoneEvery > 0 && tally.persistedTotal/p.milestoneEvery > before/p.milestoneEvery {
		tally.milestone = true
	}
	p.mu.Unlock()

	if tally.milestone && tally.discoveredTotal > 0 {
		tally.keepRate = fmt.Sprintf("%.1f%%", float64(tally.persistedTotal)/float64(tally.discoveredTotal)*100)
	}
	return tally
}
