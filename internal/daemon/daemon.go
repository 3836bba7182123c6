package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"

	"trawler/internal/config"
	"trawler/internal/logging"
	"trawler/internal/notifications"
	"trawler/internal/pipeline"
	"trawler/internal/replays"
	"trawler/internal/store"
)

// Daemon bundles the pipeline, the optional replay fetcher, and the match
// store behind a single Start/Stop surface guarded by an instance lock.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	pipeline *pipeline.Pipeline
	fetcher  *replays.Fetcher

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Pipeline     pipeline.Snapshot
	Replays      replays.Stats
	DatabasePath string
	LockFilePath string
}

// New constructs a daemon with initialized dependencies. The replay fetcher
// may be nil when downloading is disabled.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger, p *pipeline.Pipeline, fetcher *replays.Fetcher) (*Daemon, error) {
	if cfg == nil || st == nil || logger == nil || p == nil {
		return nil, errors.New("daemon requires config, store, logger, and pipeline")
	}

	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logging.WithComponent(logger, "daemon"),
		store:    st,
		pipeline: p,
		fetcher:  fetcher,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock and launches the background services.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another trawler daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)

	if d.fetcher != nil {
		if err := d.fetcher.Start(runCtx); err != nil {
			cancel()
			_ = d.lock.Unlock()
			return fmt.Errorf("start replay fetcher: %w", err)
		}
	}
	if err := d.pipeline.Start(runCtx); err != nil {
		if d.fetcher != nil {
			d.fetcher.Stop()
		}
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start pipeline: %w", err)
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("trawler daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.pipeline.Stop()
	if d.fetcher != nil {
		d.fetcher.Stop()
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("trawler daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if d.cfg == nil {
		return false, "configuration unavailable", errors.New("configuration unavailable")
	}
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	notifier := notifications.NewService(d.cfg)
	if err := notifier.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	status := Status{
		Running:      d.running.Load(),
		Pipeline:     d.pipeline.Snapshot(),
		DatabasePath: d.cfg.DatabasePath(),
		LockFilePath: d.lockPath,
	}
	if d.fetcher != nil {
		status.Replays = d.fetcher.Stats()
	}
	return status
}

// ProbeLock reports whether some process currently holds the daemon lock.
// It never creates the lock file; a missing file means no daemon has run.
func ProbeLock(path string) (bool, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	probe := flock.New(path)
	acquired, err := probe.TryLock()
	if err != nil {
		return false, fmt.Errorf("probe daemon lock: %w", err)
	}
	if acquired {
		_ = probe.Unlock()
		return false, nil
	}
	return true, nil
}
