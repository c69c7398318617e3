// Package config loads eiscore settings and owns the explicitly opened
// configuration context handed to the workspace.
package config

import (
	"eiscore/internal/blob"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Storage drivers for saved project documents.
const (
	StorageFile     = "file"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Config is the full eiscore configuration.
type Config struct {
	// StateDir holds the recovery area, the recent-projects list and the
	// default sqlite catalog. Empty means the per-user state directory.
	StateDir string         `json:"state_dir" yaml:"state_dir"`
	Snapshot SnapshotConfig `json:"snapshot" yaml:"snapshot"`
	Recovery RecoveryConfig `json:"recovery" yaml:"recovery"`
	Storage  StorageConfig  `json:"storage" yaml:"storage"`
	Engine   EngineConfig   `json:"engine" yaml:"engine"`
	History  HistoryConfig  `json:"history" yaml:"history"`
	Log      LogConfig      `json:"log" yaml:"log"`
	Recent   RecentConfig   `json:"recent" yaml:"recent"`
}

// SnapshotConfig controls crash-recovery cadence.
type SnapshotConfig struct {
	// Interval is the number of mutations between recovery snapshots.
	Interval int `json:"interval" yaml:"interval"`
}

// RecoveryConfig selects the blob backend of the recovery area.
type RecoveryConfig struct {
	Driver string        `json:"driver" yaml:"driver"`
	Dir    string        `json:"dir" yaml:"dir"`
	S3     blob.S3Config `json:"s3" yaml:"s3"`
}

// StorageConfig selects where saved project documents live.
type StorageConfig struct {
	Driver      string `json:"driver" yaml:"driver"`
	SQLitePath  string `json:"sqlite_path" yaml:"sqlite_path"`
	PostgresDSN string `json:"postgres_dsn" yaml:"postgres_dsn"`
}

// EngineConfig bounds parallel analysis.
type EngineConfig struct {
	Workers int `json:"workers" yaml:"workers"`
}

// HistoryConfig bounds the undo history; 0 keeps everything.
type HistoryConfig struct {
	Limit int `json:"limit" yaml:"limit"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// RecentConfig bounds the recent-projects list.
type RecentConfig struct {
	Limit int `json:"limit" yaml:"limit"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Snapshot: SnapshotConfig{Interval: 5},
		Recovery: RecoveryConfig{Driver: string(blob.DriverFilesystem)},
		Storage:  StorageConfig{Driver: StorageFile},
		Engine:   EngineConfig{Workers: runtime.NumCPU()},
		Log:      LogConfig{Level: "info", Format: "text"},
		Recent:   RecentConfig{Limit: 10},
	}
}

// Load starts from Default, applies the file at path when it exists (YAML,
// falling back to JSON), then EISCORE_* environment overrides, and validates.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}
	loadEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}
	return nil
}

func loadEnv(cfg *Config) {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if i, err := strconv.Atoi(v); err == nil {
				*dst = i
			}
		}
	}
	str("EISCORE_STATE_DIR", &cfg.StateDir)
	num("EISCORE_SNAPSHOT_INTERVAL", &cfg.Snapshot.Interval)
	str("EISCORE_RECOVERY_DRIVER", &cfg.Recovery.Driver)
	str("EISCORE_RECOVERY_DIR", &cfg.Recovery.Dir)
	str("EISCORE_RECOVERY_S3_BUCKET", &cfg.Recovery.S3.Bucket)
	str("EISCORE_RECOVERY_S3_REGION", &cfg.Recovery.S3.Region)
	str("EISCORE_RECOVERY_S3_ENDPOINT", &cfg.Recovery.S3.Endpoint)
	if v := os.Getenv("EISCORE_RECOVERY_S3_PATH_STYLE"); v != "" {
		cfg.Recovery.S3.PathStyle = v == "true" || v == "1"
	}
	str("EISCORE_STORAGE_DRIVER", &cfg.Storage.Driver)
	str("EISCORE_SQLITE_PATH", &cfg.Storage.SQLitePath)
	str("EISCORE_POSTGRES_DSN", &cfg.Storage.PostgresDSN)
	num("EISCORE_ENGINE_WORKERS", &cfg.Engine.Workers)
	num("EISCORE_HISTORY_LIMIT", &cfg.History.Limit)
	str("EISCORE_LOG_LEVEL", &cfg.Log.Level)
	str("EISCORE_LOG_FORMAT", &cfg.Log.Format)
	num("EISCORE_RECENT_LIMIT", &cfg.Recent.Limit)
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.Snapshot.Interval < 1 || c.Snapshot.Interval > 1000 {
		return fmt.Errorf("snapshot.interval must be in 1..1000, got %d", c.Snapshot.Interval)
	}
	if !blob.Driver(c.Recovery.Driver).Valid() {
		return fmt.Errorf("recovery.driver must be fs, memory or s3, got %q", c.Recovery.Driver)
	}
	if blob.Driver(c.Recovery.Driver) == blob.DriverS3 && c.Recovery.S3.Bucket == "" {
		return fmt.Errorf("recovery.s3.bucket required for the s3 driver")
	}
	switch c.Storage.Driver {
	case StorageFile, StorageSQLite:
	case StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn required for the postgres driver")
		}
	default:
		return fmt.Errorf("storage.driver must be file, sqlite or postgres, got %q", c.Storage.Driver)
	}
	if c.Engine.Workers < 1 {
		return fmt.Errorf("engine.workers must be >= 1")
	}
	if c.History.Limit < 0 {
		return fmt.Errorf("history.limit must be >= 0")
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if c.Recent.Limit < 0 {
		return fmt.Errorf("recent.limit must be >= 0")
	}
	return nil
}

// ResolvedStateDir returns StateDir, or the per-user state directory
// ($XDG_STATE_HOME/eiscore, else ~/.local/state/eiscore).
func (c Config) ResolvedStateDir() string {
	if c.StateDir != "" {
		return c.StateDir
	}
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "eiscore")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "state", "eiscore")
	}
	return filepath.Join(os.TempDir(), "eiscore")
}

// RecoveryDir returns the directory of the fs recovery driver.
func (c Config) RecoveryDir() string {
	if c.Recovery.Dir != "" {
		return c.Recovery.Dir
	}
	return filepath.Join(c.ResolvedStateDir(), "recovery")
}

// SQLitePath returns the sqlite catalog path.
func (c Config) SQLitePath() string {
	if c.Storage.SQLitePath != "" {
		return c.Storage.SQLitePath
	}
	return filepath.Join(c.ResolvedStateDir(), "projects.db")
}

// BlobOptions describes the recovery-area backend.
func (c Config) BlobOptions() blob.Options {
	return blob.Options{Driver: blob.Driver(c.Recovery.Driver), Dir: c.RecoveryDir(), S3: c.Recovery.S3}
}

// NewLogger builds the slog logger described by cfg, writing to w.
func NewLogger(cfg LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("log.level must be debug, info, warn or error, got %q", s)
	}
	return level, nil
}
