package ratelimit

import (
	"context"
	"time"
)

// boundarySlop keeps a wake-up from landing exactly on the window edge and
// looping without progress.
const boundarySlop = 25 * time.Millisecond

// Limiter enforces a budget of N requests per rolling window. Acquire blocks
// without busy-spinning until a slot is free and serves callers in arrival
// order. It never rejects a request; the only failure is caller
// cancellation.
type Limiter struct {
	budget int
	window time.Duration

	clock func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	// gate serializes acquirers (waiters queue in arrival order) and guards
	// stamps, which records the issue time of each request still inside the
	// window.
	gate   chan struct{}
	stamps []time.Time
}

// Option adjusts limiter construction, primarily for tests.
type Option func(*Limiter)

// WithClock substitutes the time source.
func WithClock(clock func() time.Time) Option {
	return func(l *Limiter) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// WithSleeper substitutes the wait implementation.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(l *Limiter) {
		if sleep != nil {
			l.sleep = sleep
		}
	}
}

// New returns a limiter allowing budget requests per window. Non-positive
// inputs are clamped to the smallest useful values.
func New(budget int, window time.Duration, opts ...Option) *Limiter {
	if budget < 1 {
		budget = 1
	}
	if window <= 0 {
		window = time.Millisecond
	}
	l := &Limiter{
		budget: budget,
		window: window,
		clock:  time.Now,
		sleep:  sleepContext,
		gate:   make(chan struct{}, 1),
		stamps: make([]time.Time, 0, budget),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire blocks until issuing one request stays within budget, then records
// the slot and returns nil. The only non-nil return is ctx.Err() when the
// caller is cancelled while waiting.
func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case l.gate <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.gate }()

	for {
		now := l.clock()
		l.prune(now)
		if len(l.stamps) < l.budget {
			l.stamps = append(l.stamps, now)
			return nil
		}
		wait := l.stamps[0].Add(l.window).Sub(now) + boundarySlop
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	kept := l.stamps[:0]
	for _, stamp := range l.stamps {
		if stamp.After(cutoff) {
			kept = append(kept, stamp)
		}
	}
	l.stamps = kept
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
