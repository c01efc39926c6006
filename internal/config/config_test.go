package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.StorageNamespace != "tabsync" {
		t.Errorf("namespace = %q", cfg.StorageNamespace)
	}
	if cfg.Queue.Retries != 3 {
		t.Errorf("retries = %d, want 3", cfg.Queue.Retries)
	}
	if cfg.Queue.CapacityHint != 256 {
		t.Errorf("capacity = %d, want 256", cfg.Queue.CapacityHint)
	}
	if cfg.ProbeInterval() != 5*time.Second {
		t.Errorf("probe interval = %v", cfg.ProbeInterval())
	}
	if cfg.FetchTimeout() != 10*time.Second {
		t.Errorf("fetch timeout = %v", cfg.FetchTimeout())
	}
}

func TestDerivedPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/srv/shared"
	cfg.StorageNamespace = "clinic"

	if got := cfg.DatabasePath(); got != "/srv/shared/clinic.db" {
		t.Errorf("database path = %q", got)
	}
	if got := cfg.MarkerPath(); got != "/srv/shared/clinic.notify.json" {
		t.Errorf("marker path = %q", got)
	}
	if got := cfg.ReadyFlagPath(); got != "/srv/shared/clinic.ready" {
		t.Errorf("ready flag path = %q", got)
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"storage_namespace": "clinic", "queue": {"retries": 5}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("TABSYNC_QUEUE__CAPACITY_HINT", "64")
	t.Setenv("TABSYNC_PROBE__INTERVAL_MS", "1500")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.StorageNamespace != "clinic" {
		t.Errorf("file override lost: namespace = %q", cfg.StorageNamespace)
	}
	if cfg.Queue.Retries != 5 {
		t.Errorf("file override lost: retries = %d", cfg.Queue.Retries)
	}
	if cfg.Queue.CapacityHint != 64 {
		t.Errorf("env override lost: capacity = %d", cfg.Queue.CapacityHint)
	}
	if cfg.ProbeInterval() != 1500*time.Millisecond {
		t.Errorf("env override lost: probe interval = %v", cfg.ProbeInterval())
	}
	// Untouched keys keep their defaults.
	if cfg.Broadcast.ChannelName != "tabsync_updates" {
		t.Errorf("default lost: channel = %q", cfg.Broadcast.ChannelName)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected error for missing config file")
	}
}
