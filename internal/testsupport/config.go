package testsupport

import (
	"path/filepath"
	"testing"

	"trawler/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Steam.APIKey = "test"
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.ReplayDir = filepath.Join(base, "replays")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithSteamKey sets the Steam API key on the test config.
func WithSteamKey(key string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Steam.APIKey = key
	}
}

// WithReplaysEnabled turns on replay downloading for the test config.
func WithReplaysEnabled() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Replays.Enabled = true
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
