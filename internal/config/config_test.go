package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"trawler/internal/config"
)

func TestLoadDefaultsUsesEnvSteamKeyAndExpandsPaths(t *testing.T) {
	t.Setenv("STEAM_API_KEY", "test-key")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "trawler", "data")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Steam.APIKey != "test-key" {
		t.Fatalf("expected Steam key from env, got %q", cfg.Steam.APIKey)
	}
	if cfg.Steam.BaseURL != config.Default().Steam.BaseURL {
		t.Fatalf("unexpected Steam base url: %q", cfg.Steam.BaseURL)
	}
	if cfg.Steam.BatchSize != 100 {
		t.Fatalf("unexpected batch size: %d", cfg.Steam.BatchSize)
	}
	if cfg.Replays.Enabled {
		t.Fatal("expected replay downloader disabled by default")
	}
	if cfg.OpenDota.Workers != config.Default().OpenDota.Workers {
		t.Fatalf("unexpected worker count: %d", cfg.OpenDota.Workers)
	}
	if cfg.DatabasePath() != filepath.Join(wantData, "trawler.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.CursorPath() != filepath.Join(wantData, "cursor.json") {
		t.Fatalf("unexpected cursor path: %q", cfg.CursorPath())
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "trawler.toml")

	type payload struct {
		Steam struct {
			APIKey    string `toml:"api_key"`
			BaseURL   string `toml:"base_url"`
			BatchSize int    `toml:"batch_size"`
		} `toml:"steam"`
		Pipeline struct {
			PollIntervalSeconds int `toml:"poll_interval_seconds"`
		} `toml:"pipeline"`
	}
	custom := payload{}
	custom.Steam.APIKey = "abc123"
	custom.Steam.BaseURL = "https://example.com/steam"
	custom.Steam.BatchSize = 25
	custom.Pipeline.PollIntervalSeconds = 120
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Steam.APIKey != "abc123" {
		t.Fatalf("expected Steam key from file, got %q", cfg.Steam.APIKey)
	}
	if cfg.Steam.BaseURL != "https://example.com/steam" {
		t.Fatalf("expected Steam base url override, got %q", cfg.Steam.BaseURL)
	}
	if cfg.Steam.BatchSize != 25 {
		t.Fatalf("expected batch size 25, got %d", cfg.Steam.BatchSize)
	}
	if cfg.Pipeline.PollIntervalSeconds != 120 {
		t.Fatalf("expected poll interval 120, got %d", cfg.Pipeline.PollIntervalSeconds)
	}
	if cfg.Pipeline.EmptyPollIntervalSeconds != config.Default().Pipeline.EmptyPollIntervalSeconds {
		t.Fatalf("expected default empty poll interval, got %d", cfg.Pipeline.EmptyPollIntervalSeconds)
	}
}

func TestEnvVarOverridesConfigFileForSecrets(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "trawler.toml")

	type payload struct {
		Steam struct {
			APIKey string `toml:"api_key"`
		} `toml:"steam"`
		Notifications struct {
			NtfyTopic string `toml:"ntfy_topic"`
		} `toml:"notifications"`
	}
	custom := payload{}
	custom.Steam.APIKey = "file-steam"
	custom.Notifications.NtfyTopic = "file-topic"

	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	t.Setenv("STEAM_API_KEY", "env-steam")
	t.Setenv("NTFY_TOPIC", "env-topic")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Steam.APIKey != "env-steam" {
		t.Errorf("expected Steam key from env, got %q", cfg.Steam.APIKey)
	}
	if cfg.Notifications.NtfyTopic != "env-topic" {
		t.Errorf("expected ntfy topic from env, got %q", cfg.Notifications.NtfyTopic)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "your_steam_api_key_here") {
		t.Fatalf("sample config missing placeholder Steam key: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if !strings.Contains(cfg.Paths.DataDir, "trawler") {
		t.Fatalf("expected data dir to contain trawler, got %q", cfg.Paths.DataDir)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing Steam API key")
	}

	cfg = config.Default()
	cfg.Steam.APIKey = "key"
	cfg.Steam.BatchSize = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive batch size")
	}

	cfg = config.Default()
	cfg.Steam.APIKey = "key"
	cfg.Steam.BatchSize = 1000
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for oversized batch")
	}

	cfg = config.Default()
	cfg.Steam.APIKey = "key"
	cfg.Pipeline.ErrorPauseMaxSeconds = cfg.Pipeline.ErrorPauseSeconds - 1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when max pause below base pause")
	}

	cfg = config.Default()
	cfg.Steam.APIKey = "key"
	cfg.Replays.Enabled = true
	cfg.Paths.ReplayDir = "   "
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when replays enabled without directory")
	}
}
