// Package config holds the recognized options for a tabsync session.
//
// Defaults come from DefaultConfig; a JSON config file and TABSYNC_* env vars
// can override them (koanf). Interval-style options are plain milliseconds so
// they round-trip through files and env without custom decoding.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf"
	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
)

type Config struct {
	// DataDir is the shared directory standing in for the origin: the
	// database file, notification marker and readiness flag all live here.
	DataDir string `koanf:"data_dir"`

	// StorageNamespace prefixes every well-known key (file name) in DataDir
	// so several logical databases can share one directory.
	StorageNamespace string `koanf:"storage_namespace"`

	Assets    AssetsConfig    `koanf:"assets"`
	Queue     QueueConfig     `koanf:"queue"`
	Broadcast BroadcastConfig `koanf:"broadcast"`
	Probe     ProbeConfig     `koanf:"probe"`
}

type AssetsConfig struct {
	// EnginePath locates the engine runtime bundle. Local path or http(s) URL.
	EnginePath string `koanf:"engine_path"`
	// DataBundlePath locates the seed data bundle used when no database file
	// exists yet. Local path or http(s) URL.
	DataBundlePath string `koanf:"data_bundle_path"`
	FetchTimeoutMS int    `koanf:"fetch_timeout_ms"`
}

type QueueConfig struct {
	// CapacityHint bounds the number of queued pending operations.
	CapacityHint int `koanf:"capacity_hint"`
	// Retries is the default per-operation retry budget.
	Retries int `koanf:"retries"`
}

type BroadcastConfig struct {
	// SocketPath is the unix socket for the direct cross-process channel.
	// The first process binds it and hosts the hub; later processes dial it.
	SocketPath string `koanf:"socket_path"`
	// ChannelName is the hub topic notifications are published on.
	ChannelName string `koanf:"channel_name"`
}

type ProbeConfig struct {
	IntervalMS int `koanf:"interval_ms"`
}

func DefaultConfig() *Config {
	return &Config{
		DataDir:          "./data",
		StorageNamespace: "tabsync",
		Assets: AssetsConfig{
			EnginePath:     "./assets/engine-runtime.bin",
			DataBundlePath: "./assets/seed.db",
			FetchTimeoutMS: 10000,
		},
		Queue: QueueConfig{
			CapacityHint: 256,
			Retries:      3,
		},
		Broadcast: BroadcastConfig{
			SocketPath:  "/tmp/tabsync-hub.sock",
			ChannelName: "tabsync_updates",
		},
		Probe: ProbeConfig{
			IntervalMS: 5000,
		},
	}
}

// Load builds a Config from defaults, an optional JSON file, and TABSYNC_*
// environment variables, in that precedence order. Nested keys map through
// double underscores: TABSYNC_QUEUE__RETRIES=5 sets queue.retries.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), kjson.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	err := k.Load(env.Provider("TABSYNC_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "TABSYNC_")
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// DatabasePath is the shared database file for this namespace.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, c.StorageNamespace+".db")
}

// MarkerPath is the well-known shared-storage key holding the most recent
// serialized change notification.
func (c *Config) MarkerPath() string {
	return filepath.Join(c.DataDir, c.StorageNamespace+".notify.json")
}

// ReadyFlagPath is the cross-process readiness marker.
func (c *Config) ReadyFlagPath() string {
	return filepath.Join(c.DataDir, c.StorageNamespace+".ready")
}

func (c *Config) ProbeInterval() time.Duration {
	if c.Probe.IntervalMS <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Probe.IntervalMS) * time.Millisecond
}

func (c *Config) FetchTimeout() time.Duration {
	if c.Assets.FetchTimeoutMS <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Assets.FetchTimeoutMS) * time.Millisecond
}
