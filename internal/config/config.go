package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration. DataDir holds the match database,
// the ingest cursor, and the daemon lock and PID files.
type Paths struct {
	DataDir   string `toml:"data_dir"`
	LogDir    string `toml:"log_dir"`
	ReplayDir string `toml:"replay_dir"`
}

// Steam contains configuration for the Steam Web API (match discovery).
type Steam struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	BatchSize      int    `toml:"batch_size"`
	RequestBudget  int    `toml:"request_budget"`
	WindowSeconds  int    `toml:"window_seconds"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxAttempts    int    `toml:"max_attempts"`
}

// OpenDota contains configuration for the OpenDota API (match enrichment).
type OpenDota struct {
	BaseURL        string `toml:"base_url"`
	RequestBudget  int    `toml:"request_budget"`
	WindowSeconds  int    `toml:"window_seconds"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxAttempts    int    `toml:"max_attempts"`
	Workers        int    `toml:"workers"`
}

// Pipeline contains ingest loop timing and bookkeeping settings.
type Pipeline struct {
	PollIntervalSeconds      int `toml:"poll_interval_seconds"`
	EmptyPollIntervalSeconds int `toml:"empty_poll_interval_seconds"`
	ErrorPauseSeconds        int `toml:"error_pause_seconds"`
	ErrorPauseMaxSeconds     int `toml:"error_pause_max_seconds"`
	MilestoneEvery           int `toml:"milestone_every"`
	SeenFilterCapacity       int `toml:"seen_filter_capacity"`
}

// Replays contains configuration for the optional replay downloader.
type Replays struct {
	Enabled        bool `toml:"enabled"`
	TimeoutSeconds int  `toml:"timeout_seconds"`
	MaxAttempts    int  `toml:"max_attempts"`
	DelaySeconds   int  `toml:"delay_seconds"`
	QueueSize      int  `toml:"queue_size"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Lifecycle      bool   `toml:"lifecycle"`
	Errors         bool   `toml:"errors"`
	Milestones     bool   `toml:"milestones"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for trawler.
//
// Configuration sections by subsystem:
//   - Paths: data, log, and replay directories
//   - Steam: discovery API key, base URL, batching, rate budget
//   - OpenDota: enrichment base URL, rate budget, worker pool size
//   - Pipeline: poll/backoff intervals and counters
//   - Replays: optional replay downloader
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Steam         Steam         `toml:"steam"`
	OpenDota      OpenDota      `toml:"opendota"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Replays       Replays       `toml:"replays"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration
// file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/trawler/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized; environment variables
// (including those from a local .env file) override file values for secrets.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	// Pick up a local .env before applying environment overrides; absence is
	// not an error.
	_ = godotenv.Load()

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("trawler.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the daemon writes to. The replay
// directory is only required when the downloader is enabled.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Replays.Enabled && strings.TrimSpace(c.Paths.ReplayDir) != "" {
		if err := os.MkdirAll(c.Paths.ReplayDir, 0o755); err != nil {
			return fmt.Errorf("create replay directory %q: %w", c.Paths.ReplayDir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite match database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "trawler.db")
}

// CursorPath returns the ingest cursor file location.
func (c *Config) CursorPath() string {
	return filepath.Join(c.Paths.DataDir, "cursor.json")
}

// LockPath returns the daemon instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "trawlerd.lock")
}

// PIDPath returns the daemon PID file location.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.DataDir, "trawlerd.pid")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
