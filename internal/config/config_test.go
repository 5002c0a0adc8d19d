package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rca.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "none", cfg.Events.Backend)
	assert.True(t, cfg.Redaction.Enabled)
	assert.Equal(t, 10, cfg.Dedup.PatternScorePerPrior)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
storage:
  path: /var/lib/rca/rca.db
  busy_timeout: 2s
server:
  addr: 127.0.0.1:9090
  rate_limit_rps: 5
  rate_limit_burst: 10
logging:
  level: debug
dedup:
  pattern_score_per_prior: 5
events:
  backend: nats
  nats_url: nats://nats:4222
retention:
  event_days: 30
triggers:
  file: /etc/rca/triggers.yaml
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/rca/rca.db", cfg.Storage.Path)
	assert.Equal(t, "sqlite", cfg.Storage.Backend, "unset keys keep defaults")
	assert.Equal(t, 2*time.Second, cfg.Storage.BusyTimeout)
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, float64(5), cfg.Server.RateLimitRPS)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 5, cfg.Dedup.PatternScorePerPrior)
	assert.Equal(t, 3, cfg.Dedup.MaxConflictRetries)
	assert.Equal(t, "nats", cfg.Events.Backend)
	assert.Equal(t, "nats://nats:4222", cfg.Events.NATSURL)
	assert.Equal(t, 30, cfg.Retention.EventDays)
	assert.Equal(t, 1000, cfg.Retention.BatchSize)
	assert.Equal(t, "/etc/rca/triggers.yaml", cfg.Triggers.File)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
storage:
  path: /from/file.db
events:
  backend: nats
`)
	t.Setenv("RCA_STORAGE_PATH", "/from/env.db")
	t.Setenv("RCA_STORAGE_BUSY_TIMEOUT", "750ms")
	t.Setenv("RCA_EVENTS_BACKEND", "redis")
	t.Setenv("RCA_EVENTS_REDIS_ADDR", "redis:6379")
	t.Setenv("RCA_RETENTION_EVENT_DAYS", "14")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/from/env.db", cfg.Storage.Path)
	assert.Equal(t, 750*time.Millisecond, cfg.Storage.BusyTimeout)
	assert.Equal(t, "redis", cfg.Events.Backend)
	assert.Equal(t, "redis:6379", cfg.Events.RedisAddr)
	assert.Equal(t, 14, cfg.Retention.EventDays)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"unknown backend", "storage:\n  backend: mysql\n", "storage.backend"},
		{"postgres without dsn", "storage:\n  backend: postgres\n", "storage.dsn is required"},
		{"bad log level", "logging:\n  level: loud\n", "logging"},
		{"bad events backend", "events:\n  backend: kafka\n", "events"},
		{"retention out of range", "retention:\n  event_days: 0\n", "retention"},
		{"burst without room", "server:\n  rate_limit_burst: 0\n", "rate_limit_burst"},
		{"telemetry insecure remote", "telemetry:\n  enabled: true\n  endpoint: otel.example.com:4317\n", "telemetry"},
		{"malformed yaml", "storage: [\n", "failed to load config file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadTelemetrySection(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.False(t, cfg.Telemetry.Enabled, "telemetry is off by default")

	path := writeConfig(t, `
telemetry:
  enabled: true
  protocol: http/protobuf
  endpoint: localhost:4318
  sample_rate: 0.25
`)
	t.Setenv("RCA_TELEMETRY_SERVICE_NAME", "rca-ci")

	cfg, err = Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "http/protobuf", cfg.Telemetry.Protocol)
	assert.Equal(t, "localhost:4318", cfg.Telemetry.Endpoint)
	assert.Equal(t, 0.25, cfg.Telemetry.SampleRate)
	assert.Equal(t, "rca-ci", cfg.Telemetry.ServiceName)
	assert.Equal(t, 5*time.Second, cfg.Telemetry.ShutdownTimeout)
}

func TestLoadFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to open config file")

	_, err = Load(t.TempDir())
	assert.ErrorContains(t, err, "is a directory")

	big := make([]byte, maxConfigFileSize+1)
	path := filepath.Join(t.TempDir(), "big.yaml")
	require.NoError(t, os.WriteFile(path, big, 0600))
	_, err = Load(path)
	assert.ErrorContains(t, err, "config file too large")
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"RCA_STORAGE_BACKEND":       "storage.backend",
		"RCA_STORAGE_BUSY_TIMEOUT":  "storage.busy_timeout",
		"RCA_SERVER_RATE_LIMIT_RPS": "server.rate_limit_rps",
		"RCA_REDACTION_ENABLED":     "redaction.enabled",
		"RCA_DEBUG":                 "debug",
	}
	for in, want := range tests {
		assert.Equal(t, want, envKey(in), in)
	}
}
