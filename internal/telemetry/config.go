// Package telemetry installs the OpenTelemetry trace and meter providers.
//
// With telemetry disabled nothing is installed and the otel globals stay
// no-ops. Enabled, spans and metrics are exported over OTLP.
package telemetry

import (
	"fmt"
	"strings"
	"time"
)

// Protocols accepted by Config.Protocol.
const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http/protobuf"
)

// Config holds telemetry configuration.
type Config struct {
	// Enabled installs the providers
	// Default: false
	Enabled bool `koanf:"enabled"`

	// Endpoint is the OTLP collector host:port
	// Default: "localhost:4317"
	Endpoint string `koanf:"endpoint"`

	// Protocol is grpc or http/protobuf
	// Default: "grpc"
	Protocol string `koanf:"protocol"`

	// Insecure disables TLS; only allowed for local endpoints
	// Default: true
	Insecure bool `koanf:"insecure"`

	ServiceName    string `koanf:"service_name"`
	ServiceVersion string `koanf:"service_version"`

	// SampleRate is the fraction of root traces kept, 0.0-1.0
	// Default: 1.0
	SampleRate float64 `koanf:"sample_rate"`

	// MetricsEnabled exports otel metrics alongside traces
	// Default: true
	MetricsEnabled bool `koanf:"metrics_enabled"`

	// ExportInterval is the metric push period
	// Default: 15s
	ExportInterval time.Duration `koanf:"export_interval"`

	// ShutdownTimeout bounds the final flush
	// Default: 5s
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// DefaultConfig returns telemetry defaults. Telemetry is off until a
// collector is configured.
func DefaultConfig() Config {
	return Config{
		Enabled:         false,
		Endpoint:        "localhost:4317",
		Protocol:        ProtocolGRPC,
		Insecure:        true,
		ServiceName:     "rca",
		ServiceVersion:  "0.1.0",
		SampleRate:      1.0,
		MetricsEnabled:  true,
		ExportInterval:  15 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// Validate checks configuration for errors.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required when telemetry is enabled")
	}
	switch c.Protocol {
	case "", ProtocolGRPC, ProtocolHTTP:
	default:
		return fmt.Errorf("protocol must be %q or %q (got %q)", ProtocolGRPC, ProtocolHTTP, c.Protocol)
	}
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required when telemetry is enabled")
	}
	if c.Insecure && !c.isLocalEndpoint() {
		return fmt.Errorf("insecure connections to remote endpoints are not allowed; set insecure=false or use a local endpoint")
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("sample_rate must be between 0 and 1, got %f", c.SampleRate)
	}
	if c.MetricsEnabled && c.ExportInterval <= 0 {
		return fmt.Errorf("export_interval must be positive when metrics are enabled")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive")
	}
	return nil
}

func (c Config) isLocalEndpoint() bool {
	host := stripScheme(c.Endpoint)
	if strings.HasPrefix(host, "[") {
		if idx := strings.Index(host, "]"); idx != -1 {
			host = host[1:idx]
		}
	} else if strings.Count(host, ":") == 1 {
		host = host[:strings.LastIndex(host, ":")]
	}
	return host == "localhost" || host == "::1" || strings.HasPrefix(host, "127.")
}

// stripScheme removes http:// or https://; the OTLP HTTP exporters want host:port.
func stripScheme(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "https://")
	return strings.TrimPrefix(endpoint, "http://")
}
