package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Publisher delivers lifecycle messages to subscribers.
// Publishing happens after commit; a failed publish never undoes a write.
type Publisher interface {
	Publish(ctx context.Context, msg *Message) error
	Close() error
}

// Backend names accepted by Config.Backend.
const (
	BackendNone  = "none"
	BackendNATS  = "nats"
	BackendRedis = "redis"
)

// Config selects and configures the message backend.
type Config struct {
	// Backend is none, nats or redis
	// Default: "none"
	Backend string `koanf:"backend"`

	// NATSURL is the server to connect to when Backend is nats
	// Default: "nats://127.0.0.1:4222"
	NATSURL string `koanf:"nats_url"`

	// RedisAddr is host:port when Backend is redis
	// Default: "127.0.0.1:6379"
	RedisAddr string `koanf:"redis_addr"`

	// SubjectPrefix is the first subject segment
	// Default: "rca"
	SubjectPrefix string `koanf:"subject_prefix"`

	// FlushTimeout bounds a NATS flush when the caller sets no deadline
	// Default: 5s
	FlushTimeout time.Duration `koanf:"flush_timeout"`
}

// DefaultConfig returns a config with publishing disabled.
func DefaultConfig() Config {
	return Config{
		Backend:       BackendNone,
		NATSURL:       "nats://127.0.0.1:4222",
		RedisAddr:     "127.0.0.1:6379",
		SubjectPrefix: "rca",
		FlushTimeout:  DefaultFlushTimeout,
	}
}

// Validate checks that the config is usable.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendNone, "":
		return nil
	case BackendNATS:
		if c.NATSURL == "" {
			return errors.New("nats_url is required when backend is nats")
		}
		if c.FlushTimeout < 0 {
			return errors.New("flush_timeout cannot be negative")
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			return errors.New("redis_addr is required when backend is redis")
		}
	default:
		return fmt.Errorf("unknown events backend %q (want none, nats or redis)", c.Backend)
	}
	if strings.TrimSpace(c.SubjectPrefix) == "" {
		return errors.New("subject_prefix is required")
	}
	return nil
}

// New connects the configured backend. A none backend returns Noop.
func New(cfg Config) (Publisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid events config: %w", err)
	}
	switch cfg.Backend {
	case BackendNATS:
		p, err := NewNATSPublisher(cfg.NATSURL, cfg.SubjectPrefix)
		if err != nil {
			return nil, err
		}
		return p.WithFlushTimeout(cfg.FlushTimeout), nil
	case BackendRedis:
		return NewRedisPublisher(cfg.RedisAddr, cfg.SubjectPrefix)
	default:
		return Noop{}, nil
	}
}

// Subject builds <prefix>.<entity>.<type>.
func Subject(prefix string, msg *Message) string {
	return prefix + "." + msg.EntityType + "." + string(msg.Type)
}

func encode(msg *Message) ([]byte, error) {
	if msg == nil {
		return nil, errors.New("message is nil")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message %s: %w", msg.ID, err)
	}
	return data, nil
}

// Noop discards every message.
type Noop struct{}

// Publish implements Publisher.
func (Noop) Publish(context.Context, *Message) error { return nil }

// Close implements Publisher.
func (Noop) Close() error { return nil }

// Multi fans a message out to several publishers.
// Every publisher is attempted; the errors are joined.
type Multi []Publisher

// Publish implements Publisher.
func (m Multi) Publish(ctx context.Context, msg *Message) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close implements Publisher.
func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
