package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeSteam()
	c.normalizeOpenDota()
	c.normalizePipeline()
	c.normalizeReplays()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ReplayDir) == "" {
		c.Paths.ReplayDir = defaultReplayDir
	}
	if c.Paths.ReplayDir, err = expandPath(c.Paths.ReplayDir); err != nil {
		return fmt.Errorf("paths.replay_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeSteam() {
	// Environment wins over the file so deployments can inject the key
	// without editing config.
	if value, ok := os.LookupEnv("STEAM_API_KEY"); ok && strings.TrimSpace(value) != "" {
		c.Steam.APIKey = strings.TrimSpace(value)
	}
	c.Steam.APIKey = strings.TrimSpace(c.Steam.APIKey)
	c.Steam.BaseURL = strings.TrimRight(strings.TrimSpace(c.Steam.BaseURL), "/")
	if c.Steam.BaseURL == "" {
		c.Steam.BaseURL = defaultSteamBaseURL
	}
	if c.Steam.BatchSize <= 0 {
		c.Steam.BatchSize = defaultSteamBatchSize
	}
	if c.Steam.RequestBudget <= 0 {
		c.Steam.RequestBudget = defaultSteamRequestBudget
	}
	if c.Steam.WindowSeconds <= 0 {
		c.Steam.WindowSeconds = defaultSteamWindowSeconds
	}
	if c.Steam.TimeoutSeconds <= 0 {
		c.Steam.TimeoutSeconds = defaultSteamTimeoutSeconds
	}
	if c.Steam.MaxAttempts <= 0 {
		c.Steam.MaxAttempts = defaultSteamMaxAttempts
	}
}

func (c *Config) normalizeOpenDota() {
	c.OpenDota.BaseURL = strings.TrimRight(strings.TrimSpace(c.OpenDota.BaseURL), "/")
	if c.OpenDota.BaseURL == "" {
		c.OpenDota.BaseURL = defaultOpenDotaBaseURL
	}
	if c.OpenDota.RequestBudget <= 0 {
		c.OpenDota.RequestBudget = defaultOpenDotaRequestBudget
	}
	if c.OpenDota.WindowSeconds <= 0 {
		c.OpenDota.WindowSeconds = defaultOpenDotaWindowSeconds
	}
	if c.OpenDota.TimeoutSeconds <= 0 {
		c.OpenDota.TimeoutSeconds = defaultOpenDotaTimeoutSeconds
	}
	if c.OpenDota.MaxAttempts <= 0 {
		c.OpenDota.MaxAttempts = defaultOpenDotaMaxAttempts
	}
	if c.OpenDota.Workers <= 0 {
		c.OpenDota.Workers = defaultOpenDotaWorkers
	}
}

func (c *Config) normalizePipeline() {
	if c.Pipeline.PollIntervalSeconds <= 0 {
		c.Pipeline.PollIntervalSeconds = defaultPollIntervalSeconds
	}
	if c.Pipeline.EmptyPollIntervalSeconds <= 0 {
		c.Pipeline.EmptyPollIntervalSeconds = defaultEmptyPollIntervalSeconds
	}
	if c.Pipeline.ErrorPauseSeconds <= 0 {
		c.Pipeline.ErrorPauseSeconds = defaultErrorPauseSeconds
	}
	if c.Pipeline.ErrorPauseMaxSeconds <= 0 {
		c.Pipeline.ErrorPauseMaxSeconds = defaultErrorPauseMaxSeconds
	}
	if c.Pipeline.MilestoneEvery <= 0 {
		c.Pipeline.MilestoneEvery = defaultMilestoneEvery
	}
	if c.Pipeline.SeenFilterCapacity <= 0 {
		c.Pipeline.SeenFilterCapacity = defaultSeenFilterCapacity
	}
}

func (c *Config) normalizeReplays() {
	if c.Replays.TimeoutSeconds <= 0 {
		c.Replays.TimeoutSeconds = defaultReplayTimeoutSeconds
	}
	if c.Replays.MaxAttempts <= 0 {
		c.Replays.MaxAttempts = defaultReplayMaxAttempts
	}
	if c.Replays.DelaySeconds <= 0 {
		c.Replays.DelaySeconds = defaultReplayDelaySeconds
	}
	if c.Replays.QueueSize <= 0 {
		c.Replays.QueueSize = defaultReplayQueueSize
	}
}

func (c *Config) normalizeNotifications() {
	if value, ok := os.LookupEnv("NTFY_TOPIC"); ok && strings.TrimSpace(value) != "" {
		c.Notifications.NtfyTopic = strings.TrimSpace(value)
	}
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
