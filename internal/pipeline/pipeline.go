package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"

	"trawler/internal/config"
	"trawler/internal/cursor"
	"trawler/internal/logging"
	"trawler/internal/match"
	"trawler/internal/notifications"
	"trawler/internal/store"
)

// Discovery lists candidate matches from the primary source in ascending
// sequence order.
type Discovery interface {
	// ListSince returns candidates strictly after seqNum.
	ListSince(ctx context.Context, seqNum int64) ([]match.Candidate, error)
	// MostRecentSeqNum returns the newest known sequence position.
	MostRecentSeqNum(ctx context.Context) (int64, error)
}

// Enricher fetches full detail for one match from the secondary source.
type Enricher interface {
	Fetch(ctx context.Context, matchID int64) (*match.Detail, error)
}

// ReplaySink accepts persisted matches whose replays should be downloaded.
// Enqueue must not block; it reports whether the match was accepted.
type ReplaySink interface {
	Enqueue(rec match.Persisted) bool
}

// Pipeline owns the ingest loop and the cursor advancement that goes with
// it. Construct with New, drive with Start and Stop, observe with Snapshot.
type Pipeline struct {
	cfg       *config.Config
	store     *store.Store
	cursors   *cursor.Store
	discovery Discovery
	enricher  Enricher
	notifier  notifications.Service
	replays   ReplaySink
	logger    *slog.Logger

	pollInterval      time.Duration
	emptyPollInterval time.Duration
	errorPause        time.Duration
	errorPauseMax     time.Duration
	workers           int
	milestoneEvery    int64

	clock   func() time.Time
	sleepFn func(ctx context.Context, d time.Duration) error

	// seen fronts store lookups during dedup; touched only while the run
	// goroutine holds the commit phase, so it needs no lock of its own.
	seen   *bloom.BloomFilter
	warmed bool

	mu        sync.RWMutex
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	state     State
	cursorSeq int64
	startedAt time.Time
	lastErr   error
	counters  counters
}

// Option configures optional Pipeline behavior.
type Option func(*Pipeline)

// WithNotifier overrides the notification service.
func WithNotifier(notifier notifications.Service) Option {
	return func(p *Pipeline) {
		p.notifier = notifier
	}
}

// WithReplaySink attaches a replay download queue.
func WithReplaySink(sink ReplaySink) Option {
	return func(p *Pipeline) {
		p.replays = sink
	}
}

// WithClock overrides the wall clock used for persisted-at stamps.
func WithClock(clock func() time.Time) Option {
	return func(p *Pipeline) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithSleep overrides the cancellable sleep between cycles.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Pipeline) {
		if sleep != nil {
			p.sleepFn = sleep
		}
	}
}

// New constructs the ingest pipeline.
func New(cfg *config.Config, st *store.Store, cursors *cursor.Store, discovery Discovery, enricher Enricher, logger *slog.Logger, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		return nil, errors.New("pipeline: config is required")
	}
	if st == nil {
		return nil, errors.New("pipeline: store is required")
	}
	if cursors == nil {
		return nil, errors.New("pipeline: cursor store is required")
	}
	if discovery == nil {
		return nil, errors.New("pipeline: discovery source is required")
	}
	if enricher == nil {
		return nil, errors.New("pipeline: enricher is required")
	}

	p := &Pipeline{
		cfg:       cfg,
		store:     st,
		cursors:   cursors,
		discovery: discovery,
		enricher:  enricher,
		notifier:  notifications.NewService(cfg),
		logger:    logging.WithComponent(logger, "pipeline"),

		pollInterval:      secondsOr(cfg.Pipeline.PollIntervalSeconds, 15*time.Second),
		emptyPollInterval: secondsOr(cfg.Pipeline.EmptyPollIntervalSeconds, 45*time.Second),
		errorPause:        secondsOr(cfg.Pipeline.ErrorPauseSeconds, 30*time.Second),
		errorPauseMax:     secondsOr(cfg.Pipeline.ErrorPauseMaxSeconds, 5*time.Minute),
		workers:           cfg.OpenDota.Workers,
		milestoneEvery:    int64(cfg.Pipeline.MilestoneEvery),

		clock:   time.Now,
		sleepFn: sleepContext,
		state:   StateIdle,
	}
	if p.workers <= 0 {
		p.workers = 1
	}
	if p.errorPauseMax < p.errorPause {
		p.errorPauseMax = p.errorPause
	}
	if capacity := cfg.Pipeline.SeenFilterCapacity; capacity > 0 {
		p.seen = bloom.NewWithEstimates(uint(capacity), 0.001)
	}
	p.counters.rejected = make(map[string]int64)

	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func secondsOr(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
