package replays

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"trawler/internal/config"
	"trawler/internal/logging"
	"trawler/internal/match"
)

const (
	defaultTimeout     = 120 * time.Second
	defaultAttempts    = 5
	defaultDelay       = 10 * time.Second
	defaultQueueSize   = 256
	delayCapMultiplier = 10
)

// errReplayGone marks a replay the source no longer serves; retrying cannot
// bring it back.
var errReplayGone = errors.New("replays: replay no longer available")

// Fetcher drains a queue of persisted matches and downloads their replay
// archives as {match_id}.dem.bz2 files.
type Fetcher struct {
	dir         string
	client      *http.Client
	logger      *slog.Logger
	maxAttempts int
	baseDelay   time.Duration
	delayCap    time.Duration
	sleepFn     func(ctx context.Context, d time.Duration) error

	queue chan match.Persisted

	// delay is the current politeness pause; only the worker touches it.
	delay time.Duration

	mu         sync.Mutex
	running    bool
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	downloaded int64
	skipped    int64
	failed     int64
	dropped    int64
}

// Option configures optional Fetcher behavior.
type Option func(*Fetcher)

// WithHTTPClient overrides the HTTP client used for downloads.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		if client != nil {
			f.client = client
		}
	}
}

// WithSleep overrides the politeness pause between download attempts.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(f *Fetcher) {
		if sleep != nil {
			f.sleepFn = sleep
		}
	}
}

// NewFetcher constructs a replay fetcher writing into the configured replay
// directory.
func NewFetcher(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Fetcher, error) {
	if cfg == nil {
		return nil, errors.New("replays: config is required")
	}
	dir := cfg.Paths.ReplayDir
	if dir == "" {
		return nil, errors.New("replays: replay directory is required")
	}

	timeout := time.Duration(cfg.Replays.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	attempts := cfg.Replays.MaxAttempts
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	delay := time.Duration(cfg.Replays.DelaySeconds) * time.Second
	if delay <= 0 {
		delay = defaultDelay
	}
	queueSize := cfg.Replays.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	f := &Fetcher{
		dir:         dir,
		client:      &http.Client{Timeout: timeout},
		logger:      logging.WithComponent(logger, "replays"),
		maxAttempts: attempts,
		baseDelay:   delay,
		delayCap:    delay * delayCapMultiplier,
		sleepFn:     sleepContext,
		queue:       make(chan match.Persisted, queueSize),
		delay:       delay,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Enqueue offers a persisted match to the download queue without blocking.
// It reports false when the queue is full and the match was dropped.
func (f *Fetcher) Enqueue(rec match.Persisted) bool {
	if rec.ReplayURL == "" {
		return false
	}
	select {
	case f.queue <- rec:
		return true
	default:
		f.mu.Lock()
		f.dropped++
		f.mu.Unlock()
		return false
	}
}

// Start launches the download worker.
func (f *Fetcher) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return errors.New("replay fetcher already running")
	}
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		f.mu.Unlock()
		return fmt.Errorf("create replay directory: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.running = true
	f.wg.Add(1)
	f.mu.Unlock()

	go f.run(runCtx)
	return nil
}

// Stop terminates the worker and waits for the in-flight download to unwind.
// Queued matches that never started are abandoned.
func (f *Fetcher) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	cancel := f.cancel
	f.running = false
	f.cancel = nil
	f.mu.Unlock()

	cancel()
	f.wg.Wait()
}

func (f *Fetcher) run(ctx context.Context) {
	defer f.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-f.queue:
			f.download(ctx, rec)
		}
	}
}

func (f *Fetcher) download(ctx context.Context, rec match.Persisted) {
	dest := filepath.Join(f.dir, fmt.Sprintf("%d.dem.bz2", rec.MatchID))
	if _, err := os.Stat(dest); err == nil {
		f.mu.Lock()
		f.skipped++
		f.mu.Unlock()
		f.logger.Debug("replay already downloaded", logging.Int64(logging.FieldMatchID, rec.MatchID))
		return
	}

	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		if err := f.sleepFn(ctx, f.delay); err != nil {
			return
		}
		err := f.fetchOnce(ctx, rec.ReplayURL, dest)
		if err == nil {
			f.decayDelay()
			f.mu.Lock()
			f.downloaded++
			f.mu.Unlock()
			f.logger.Info("replay downloaded",
				logging.Int64(logging.FieldMatchID, rec.MatchID),
				logging.String("file", dest),
			)
			return
		}
		if errors.Is(err, errReplayGone) {
			f.noteFailed()
			f.logger.Warn("replay no longer available",
				logging.Int64(logging.FieldMatchID, rec.MatchID),
				logging.String("url", rec.ReplayURL),
			)
			return
		}
		if ctx.Err() != nil {
			return
		}
		f.growDelay()
		f.logger.Warn("replay download attempt failed",
			logging.Int64(logging.FieldMatchID, rec.MatchID),
			logging.Int("attempt", attempt),
			logging.Duration("delay", f.delay),
			logging.Error(err),
		)
	}

	f.noteFailed()
	f.logger.Error("replay download gave up",
		logging.Int64(logging.FieldMatchID, rec.MatchID),
		logging.Int("attempts", f.maxAttempts),
		logging.String("url", rec.ReplayURL),
	)
}

func (f *Fetcher) fetchOnce(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build replay request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch replay: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errReplayGone
	case resp.StatusCode != http.StatusOK:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("fetch replay: http %d", resp.StatusCode)
	}

	tmp := dest + ".tmp"
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create replay file: %w", err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("write replay file: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close replay file: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("finalize replay file: %w", err)
	}
	return nil
}

func (f *Fetcher) growDelay() {
	f.delay += f.baseDelay
	if f.delay > f.delayCap {
		f.delay = f.delayCap
	}
}

func (f *Fetcher) decayDelay() {
	f.delay -= f.baseDelay
	if f.delay < f.baseDelay {
		f.delay = f.baseDelay
	}
}

func (f *Fetcher) noteFailed() {
	f.mu.Lock()
	f.failed++
	f.mu.Unlock()
}

// Stats summarizes fetcher activity.
type Stats struct {
	Queued     int
	Downloaded int64
	Skipped    int64
	Failed     int64
	Dropped    int64
}

// Stats returns a point-in-time view of the queue and counters.
func (f *Fetcher) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Stats{
		Queued:     len(f.queue),
		Downloaded: f.downloaded,
		Skipped:    f.skipped,
		Failed:     f.failed,
		Dropped:    f.dropped,
	}
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
