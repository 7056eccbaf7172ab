package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DaemonPort != Default.DaemonPort {
		t.Errorf("expected port %d, got %d", Default.DaemonPort, cfg.DaemonPort)
	}
	if cfg.DBPath != filepath.Join(home, ".streamjobs", "streamjobs.db") {
		t.Errorf("unexpected db path: %s", cfg.DBPath)
	}
	if cfg.Scan.MaxDepth != 32 || cfg.Scan.MaxEntries != 50000 {
		t.Errorf("unexpected scan limits: %+v", cfg.Scan)
	}
	if cfg.Engine.ItemTimeout != 2*time.Hour {
		t.Errorf("unexpected item timeout: %s", cfg.Engine.ItemTimeout)
	}
	if got := cfg.ConcurrencyFor("download"); got != 2 {
		t.Errorf("expected download concurrency 2, got %d", got)
	}
	if got := cfg.ConcurrencyFor("unknown"); got != 1 {
		t.Errorf("expected fallback concurrency 1, got %d", got)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("STREAMJOBS_SCAN_MAX_DEPTH", "4")

	dir := filepath.Join(home, ".streamjobs")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}

	yaml := []byte(`daemon_port: 7000
media_root: /srv/media
engine:
  item_timeout: 90s
  item_retries: 3
`)
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DaemonPort != 7000 {
		t.Errorf("expected port 7000, got %d", cfg.DaemonPort)
	}
	if cfg.MediaRoot != "/srv/media" {
		t.Errorf("expected media root from file, got %s", cfg.MediaRoot)
	}
	if cfg.Engine.ItemTimeout != 90*time.Second {
		t.Errorf("expected 90s timeout, got %s", cfg.Engine.ItemTimeout)
	}
	if cfg.Engine.ItemRetries != 3 {
		t.Errorf("expected 3 retries, got %d", cfg.Engine.ItemRetries)
	}
	if cfg.Scan.MaxDepth != 4 {
		t.Errorf("expected env override of max depth, got %d", cfg.Scan.MaxDepth)
	}
}

func TestLoadDotEnv(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("STREAMJOBS_DOWNLOAD_BACKEND", "ytdlp")
	t.Cleanup(func() { _ = os.Unsetenv("STREAMJOBS_DAEMON_PORT") })

	dir := filepath.Join(home, ".streamjobs")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}

	env := []byte("STREAMJOBS_DAEMON_PORT=7100\nSTREAMJOBS_DOWNLOAD_BACKEND=http\n")
	if err := os.WriteFile(filepath.Join(dir, ".env"), env, 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DaemonPort != 7100 {
		t.Errorf("expected port from .env, got %d", cfg.DaemonPort)
	}
	if cfg.Download.Backend != "ytdlp" {
		t.Errorf("process env should win over .env, got %q", cfg.Download.Backend)
	}
}
