package config

import (
	"errors"
	"fmt"
	"strings"
)

// Steam rejects history requests larger than this.
const maxSteamBatchSize = 500

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateSteam(); err != nil {
		return err
	}
	if err := c.validateOpenDota(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateReplays(); err != nil {
		return err
	}
	return ensurePositiveMap(map[string]int{
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	})
}

func (c *Config) validateSteam() error {
	if c.Steam.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/trawler/config.toml"
		}
		return fmt.Errorf("steam.api_key is required. Set STEAM_API_KEY env var or edit %s (create with 'trawler config init')", defaultPath)
	}
	if c.Steam.BatchSize > maxSteamBatchSize {
		return fmt.Errorf("steam.batch_size must be at most %d", maxSteamBatchSize)
	}
	return ensurePositiveMap(map[string]int{
		"steam.batch_size":      c.Steam.BatchSize,
		"steam.request_budget":  c.Steam.RequestBudget,
		"steam.window_seconds":  c.Steam.WindowSeconds,
		"steam.timeout_seconds": c.Steam.TimeoutSeconds,
		"steam.max_attempts":    c.Steam.MaxAttempts,
	})
}

func (c *Config) validateOpenDota() error {
	return ensurePositiveMap(map[string]int{
		"opendota.request_budget":  c.OpenDota.RequestBudget,
		"opendota.window_seconds":  c.OpenDota.WindowSeconds,
		"opendota.timeout_seconds": c.OpenDota.TimeoutSeconds,
		"opendota.max_attempts":    c.OpenDota.MaxAttempts,
		"opendota.workers":         c.OpenDota.Workers,
	})
}

func (c *Config) validatePipeline() error {
	if err := ensurePositiveMap(map[string]int{
		"pipeline.poll_interval_seconds":       c.Pipeline.PollIntervalSeconds,
		"pipeline.empty_poll_interval_seconds": c.Pipeline.EmptyPollIntervalSeconds,
		"pipeline.error_pause_seconds":         c.Pipeline.ErrorPauseSeconds,
		"pipeline.milestone_every":             c.Pipeline.MilestoneEvery,
		"pipeline.seen_filter_capacity":        c.Pipeline.SeenFilterCapacity,
	}); err != nil {
		return err
	}
	if c.Pipeline.ErrorPauseMaxSeconds < c.Pipeline.ErrorPauseSeconds {
		return errors.New("pipeline.error_pause_max_seconds must be at least pipeline.error_pause_seconds")
	}
	return nil
}

func (c *Config) validateReplays() error {
	if !c.Replays.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Paths.ReplayDir) == "" {
		return errors.New("paths.replay_dir must be set when replays.enabled is true")
	}
	return ensurePositiveMap(map[string]int{
		"replays.timeout_seconds": c.Replays.TimeoutSeconds,
		"replays.max_attempts":    c.Replays.MaxAttempts,
		"replays.delay_seconds":   c.Replays.DelaySeconds,
		"replays.queue_size":      c.Replays.QueueSize,
	})
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
