// Package config loads rca configuration from a YAML file and RCA_ environment
// variables.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/steveyegge/rcagov/internal/deduplication"
	"github.com/steveyegge/rcagov/internal/events"
	"github.com/steveyegge/rcagov/internal/logging"
	"github.com/steveyegge/rcagov/internal/storage"
	"github.com/steveyegge/rcagov/internal/telemetry"
)

const (
	// EnvPrefix marks environment overrides: RCA_STORAGE_BACKEND -> storage.backend
	EnvPrefix = "RCA_"

	maxConfigFileSize = 1024 * 1024 // 1MB
)

// Config is the root configuration.
type Config struct {
	Storage   storage.Config       `koanf:"storage"`
	Server    ServerConfig         `koanf:"server"`
	Logging   logging.Config       `koanf:"logging"`
	Dedup     deduplication.Config `koanf:"dedup"`
	Events    events.Config        `koanf:"events"`
	Retention RetentionConfig      `koanf:"retention"`
	Redaction RedactionConfig      `koanf:"redaction"`
	Triggers  TriggersConfig       `koanf:"triggers"`
	Telemetry telemetry.Config     `koanf:"telemetry"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	// Addr is the listen address
	// Default: ":8080"
	Addr string `koanf:"addr"`

	// ShutdownTimeout bounds graceful shutdown
	// Default: 10s
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// RateLimitRPS is the sustained per-client request rate; 0 disables limiting
	// Default: 50
	RateLimitRPS float64 `koanf:"rate_limit_rps"`

	// RateLimitBurst is the per-client burst size
	// Default: 100
	RateLimitBurst int `koanf:"rate_limit_burst"`
}

// RedactionConfig controls secret scrubbing of evidence.
type RedactionConfig struct {
	Enabled bool `koanf:"enabled"`
}

// TriggersConfig points at an optional trigger registry file. Empty means
// the builtin registry.
type TriggersConfig struct {
	File string `koanf:"file"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Storage: *storage.DefaultConfig(),
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
			RateLimitRPS:    50,
			RateLimitBurst:  100,
		},
		Logging:   logging.DefaultConfig(),
		Dedup:     deduplication.DefaultConfig(),
		Events:    events.DefaultConfig(),
		Retention: DefaultRetentionConfig(),
		Redaction: RedactionConfig{Enabled: true},
		Telemetry: telemetry.DefaultConfig(),
	}
}

// Load reads configuration from path, then overrides with environment variables.
//
// Precedence (highest to lowest):
//  1. RCA_ environment variables
//  2. YAML file at path (skipped when path is empty)
//  3. Default()
//
// Environment variables split on the first underscore after the prefix:
//
//	RCA_STORAGE_BUSY_TIMEOUT -> storage.busy_timeout
//	RCA_EVENTS_NATS_URL      -> events.nats_url
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		content, err := readConfigFile(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Unmarshal over the defaults so unset keys keep them.
	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// envKey maps RCA_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config path %s is a directory", path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the sqlite backend")
		}
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("storage.backend must be 'sqlite' or 'postgres' (got %q)", c.Storage.Backend)
	}
	if c.Storage.BusyTimeout < 0 {
		return fmt.Errorf("storage.busy_timeout cannot be negative (got %s)", c.Storage.BusyTimeout)
	}

	if err := c.Server.Validate(); err != nil {
		return err
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Dedup.Validate(); err != nil {
		return fmt.Errorf("dedup: %w", err)
	}
	if err := c.Events.Validate(); err != nil {
		return fmt.Errorf("events: %w", err)
	}
	if err := c.Retention.Validate(); err != nil {
		return fmt.Errorf("retention: %w", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	return nil
}

// Validate checks the server section.
func (c ServerConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive (got %s)", c.ShutdownTimeout)
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("server.rate_limit_rps cannot be negative (got %g)", c.RateLimitRPS)
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		return fmt.Errorf("server.rate_limit_burst must be at least 1 when rate limiting is on (got %d)",
			c.RateLimitBurst)
	}
	return nil
}
