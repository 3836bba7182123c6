package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"trawler/internal/testsupport"
)

func TestConfigInit(t *testing.T) {
	setupCLITestEnv(t)

	tmp := t.TempDir()
	target := filepath.Join(tmp, "config.toml")
	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")

	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	// A second init must not clobber the file without --overwrite.
	_, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err == nil {
		t.Fatal("expected error when config already exists")
	}
	requireContains(t, err.Error(), "already exists")

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, ""); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigShowRedactsKey(t *testing.T) {
	const key = "7B1E2C9A4F5D60E3"
	env := setupCLITestEnv(t, testsupport.WithSteamKey(key))

	out, _, err := runCLI(t, []string{"config", "show"}, env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "# Config path: "+env.configPath)
	requireContains(t, out, "[redacted]")
	requireContains(t, out, "[steam]")
	if strings.Contains(out, key) {
		t.Fatalf("api key leaked into output:\n%s", out)
	}
}
