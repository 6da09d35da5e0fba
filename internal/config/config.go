// Package config loads CLI settings from an optional YAML file and
// ICONCACHE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up by LoadOptional.
const FileName = "iconcache.yaml"

// KV drivers.
const (
	DriverSQLite = "sqlite"
	DriverBolt   = "bolt"
	DriverMemory = "memory"
)

// Config holds every setting the CLI wires into the library.
type Config struct {
	Cache   CacheConfig   `yaml:"cache"`
	Fetch   FetchConfig   `yaml:"fetch"`
	Resolve ResolveConfig `yaml:"resolve"`
	KV      KVConfig      `yaml:"kv"`
	Log     LogConfig     `yaml:"log"`
	OTel    OTelConfig    `yaml:"otel"`
}

// CacheConfig configures the disk asset store.
type CacheConfig struct {
	Dir           string        `yaml:"dir" env:"ICONCACHE_CACHE_DIR"`
	SchemaVersion int           `yaml:"schema_version" env:"ICONCACHE_SCHEMA_VERSION"`
	MaxAge        time.Duration `yaml:"max_age" env:"ICONCACHE_MAX_AGE"`
	MaxBytes      int64         `yaml:"max_bytes" env:"ICONCACHE_MAX_BYTES"`
}

// FetchConfig configures network loading and retries.
type FetchConfig struct {
	Timeout        time.Duration `yaml:"timeout" env:"ICONCACHE_FETCH_TIMEOUT"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout" env:"ICONCACHE_PROBE_TIMEOUT"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay" env:"ICONCACHE_RETRY_BASE_DELAY"`
	MaxRetries     int           `yaml:"max_retries" env:"ICONCACHE_MAX_RETRIES"`
}

// ResolveConfig configures URL canonicalization and rewriting.
type ResolveConfig struct {
	Runtime   string `yaml:"runtime" env:"ICONCACHE_RUNTIME"`
	Origin    string `yaml:"origin" env:"ICONCACHE_ORIGIN"`
	Base      string `yaml:"base" env:"ICONCACHE_BASE"`
	ProxyPath string `yaml:"proxy_path" env:"ICONCACHE_PROXY_PATH"`
}

// KVConfig selects the durable store for registered rules.
type KVConfig struct {
	Driver string `yaml:"driver" env:"ICONCACHE_KV_DRIVER"`
	Path   string `yaml:"path" env:"ICONCACHE_KV_PATH"`
}

// LogConfig configures the CLI logger.
type LogConfig struct {
	Level string `yaml:"level" env:"ICONCACHE_LOG_LEVEL"`
}

// OTelConfig configures trace export. Tracing is off unless Endpoint is set.
type OTelConfig struct {
	Endpoint string `yaml:"endpoint" env:"ICONCACHE_OTEL_ENDPOINT"`
	Enabled  bool   `yaml:"enabled" env:"ICONCACHE_OTEL_ENABLED"`
}

// Default returns the built-in settings.
func Default() Config {
	dir := defaultCacheDir()
	return Config{
		Cache: CacheConfig{
			Dir:           dir,
			SchemaVersion: 2,
			MaxAge:        7 * 24 * time.Hour,
			MaxBytes:      50 << 20,
		},
		Fetch: FetchConfig{
			Timeout:        5 * time.Second,
			ProbeTimeout:   50 * time.Millisecond,
			RetryBaseDelay: time.Second,
			MaxRetries:     5,
		},
		Resolve: ResolveConfig{Runtime: "local"},
		KV:      KVConfig{Driver: DriverSQLite, Path: filepath.Join(dir, "registry.db")},
		Log:     LogConfig{Level: "info"},
		OTel:    OTelConfig{Enabled: true},
	}
}

func defaultCacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil || base == "" {
		return filepath.Join(os.TempDir(), "icon-cache")
	}
	return filepath.Join(base, "icon-cache")
}

// LoadOptional reads path over the defaults. A missing file is not an error.
func LoadOptional(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // path is operator supplied
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Load reads path, applies environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg, err := LoadOptional(path)
	if err != nil {
		return Config{}, err
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.KV.Driver {
	case DriverSQLite, DriverBolt:
		if c.KV.Path == "" {
			return fmt.Errorf("kv driver %s needs a path", c.KV.Driver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown kv driver %q", c.KV.Driver)
	}
	if c.Cache.Dir == "" {
		return errors.New("cache dir is empty")
	}
	if c.Fetch.MaxRetries < 1 {
		return fmt.Errorf("max retries must be at least 1, got %d", c.Fetch.MaxRetries)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses the configured log level.
func (c Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(c.Log.Level))); err != nil {
		return 0, fmt.Errorf("log level: %w", err)
	}
	return lvl, nil
}

// TracingEnabled reports whether spans should be exported.
func (c Config) TracingEnabled() bool {
	return c.OTel.Enabled && c.OTel.Endpoint != ""
}
