package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"trawler/internal/config"
	"trawler/internal/cursor"
	"trawler/internal/daemon"
	"trawler/internal/logging"
	"trawler/internal/notifications"
	"trawler/internal/opendota"
	"trawler/internal/pipeline"
	"trawler/internal/preflight"
	"trawler/internal/ratelimit"
	"trawler/internal/replays"
	"trawler/internal/steam"
	"trawler/internal/store"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Run wires the ingest services together and blocks until the context is
// canceled or a termination signal arrives.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	runID := uuid.NewString()
	startedAt := time.Now()
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("trawler-%s.log", startedAt.UTC().Format("20060102T150405Z")))

	level := cfg.Logging.Level
	if strings.TrimSpace(opts.LogLevel) != "" {
		level = opts.LogLevel
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger = logger.With(logging.String(logging.FieldRunID, runID))

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update trawler.log link: %v\n", err)
	}

	logConfigSnapshot(logger, cfg)

	if err := runPreflight(signalCtx, cfg, logger); err != nil {
		return err
	}

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	st, err := store.Open(cfg)
	if err != nil {
		logger.Error("open match store", logging.Error(err))
		return err
	}
	defer st.Close()

	cursors, err := cursor.NewStore(cfg.CursorPath())
	if err != nil {
		return fmt.Errorf("open cursor store: %w", err)
	}

	steamLimiter := ratelimit.New(cfg.Steam.RequestBudget, time.Duration(cfg.Steam.WindowSeconds)*time.Second)
	openDotaLimiter := ratelimit.New(cfg.OpenDota.RequestBudget, time.Duration(cfg.OpenDota.WindowSeconds)*time.Second)

	discovery := steam.NewClient(steam.Config{
		APIKey:         cfg.Steam.APIKey,
		BaseURL:        cfg.Steam.BaseURL,
		BatchSize:      cfg.Steam.BatchSize,
		TimeoutSeconds: cfg.Steam.TimeoutSeconds,
		MaxAttempts:    cfg.Steam.MaxAttempts,
	}, steamLimiter)

	enricher := opendota.NewClient(opendota.Config{
		BaseURL:        cfg.OpenDota.BaseURL,
		TimeoutSeconds: cfg.OpenDota.TimeoutSeconds,
		MaxAttempts:    cfg.OpenDota.MaxAttempts,
	}, openDotaLimiter)

	notifier := notifications.NewService(cfg)

	pipelineOpts := []pipeline.Option{pipeline.WithNotifier(notifier)}
	var fetcher *replays.Fetcher
	if cfg.Replays.Enabled {
		fetcher, err = replays.NewFetcher(cfg, logger)
		if err != nil {
			return fmt.Errorf("create replay fetcher: %w", err)
		}
		pipelineOpts = append(pipelineOpts, pipeline.WithReplaySink(fetcher))
	}

	p, err := pipeline.New(cfg, st, cursors, discovery, enricher, logger, pipelineOpts...)
	if err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}

	d, err := daemon.New(cfg, st, logger, p, fetcher)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start failed", logging.Error(err))
		return err
	}

	startPayload := notifications.Payload{}
	if position, posErr := cursors.Load(); posErr == nil && position.SeqNum > 0 {
		startPayload["cursor"] = strconv.FormatInt(position.SeqNum, 10)
	}
	publish(signalCtx, logger, notifier, notifications.EventIngestStarted, startPayload)

	<-signalCtx.Done()
	logger.Info("trawler daemon shutting down")

	final := d.Status().Pipeline
	d.Stop()

	// The signal context is already canceled; give the farewell push its own
	// deadline so shutdown cannot hang on a slow ntfy endpoint.
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	publish(stopCtx, logger, notifier, notifications.EventIngestStopped, notifications.Payload{
		"persisted": strconv.FormatInt(final.Persisted, 10),
		"uptime":    time.Since(startedAt).Round(time.Second).String(),
	})
	return nil
}

func runPreflight(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	results := preflight.RunAll(ctx, cfg)

	var failures []string
	for _, r := range results {
		if r.Passed {
			logger.Debug("preflight check passed",
				logging.String("check", r.Name),
				logging.String("detail", r.Detail),
			)
			continue
		}
		logger.Error("preflight check failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
		)
		failures = append(failures, fmt.Sprintf("%s: %s", r.Name, r.Detail))
	}

	if len(failures) > 0 {
		return fmt.Errorf("preflight checks failed: %s", strings.Join(failures, "; "))
	}
	return nil
}

func publish(ctx context.Context, logger *slog.Logger, notifier notifications.Service, event notifications.Event, payload notifications.Payload) {
	if notifier == nil {
		return
	}
	if err := notifier.Publish(ctx, event, payload); err != nil {
		logger.Warn("notification publish failed",
			logging.String("event", string(event)),
			logging.Error(err),
		)
	}
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config) {
	logger.Info("ingest configuration",
		logging.Bool("steam_key_present", strings.TrimSpace(cfg.Steam.APIKey) != ""),
		logging.String("steam_base_url", cfg.Steam.BaseURL),
		logging.Int("steam_budget", cfg.Steam.RequestBudget),
		logging.Int("steam_window_seconds", cfg.Steam.WindowSeconds),
		logging.Int("steam_batch_size", cfg.Steam.BatchSize),
		logging.String("opendota_base_url", cfg.OpenDota.BaseURL),
		logging.Int("opendota_budget", cfg.OpenDota.RequestBudget),
		logging.Int("opendota_window_seconds", cfg.OpenDota.WindowSeconds),
		logging.Int("opendota_workers", cfg.OpenDota.Workers),
		logging.Bool("replays_enabled", cfg.Replays.Enabled),
		logging.Bool("notifications_enabled", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
	)
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "trawler.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
