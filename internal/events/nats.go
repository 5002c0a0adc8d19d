package events

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultFlushTimeout bounds a NATS flush when the caller's context has no deadline.
const DefaultFlushTimeout = 5 * time.Second

// NATSPublisher publishes messages as core NATS messages.
type NATSPublisher struct {
	nc           *nats.Conn
	prefix       string
	owned        bool
	flushTimeout time.Duration
}

// NewNATSPublisher connects to url and publishes under prefix.
func NewNATSPublisher(url, prefix string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("rca"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return &NATSPublisher{nc: nc, prefix: prefix, owned: true, flushTimeout: DefaultFlushTimeout}, nil
}

// NewNATSPublisherFromConn wraps an existing connection. Close leaves it open.
func NewNATSPublisherFromConn(nc *nats.Conn, prefix string) *NATSPublisher {
	return &NATSPublisher{nc: nc, prefix: prefix, flushTimeout: DefaultFlushTimeout}
}

// WithFlushTimeout sets the flush bound used when Publish gets a context
// without a deadline. Non-positive values keep the current bound.
func (p *NATSPublisher) WithFlushTimeout(d time.Duration) *NATSPublisher {
	if d > 0 {
		p.flushTimeout = d
	}
	return p
}

// Publish sends msg and flushes so delivery errors surface to the caller.
func (p *NATSPublisher) Publish(ctx context.Context, msg *Message) error {
	data, err := encode(msg)
	if err != nil {
		return err
	}
	subject := Subject(p.prefix, msg)
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	// FlushWithContext refuses contexts without a deadline.
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.flushTimeout)
		defer cancel()
	}
	if err := p.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("failed to flush %s: %w", subject, err)
	}
	return nil
}

// Close drains the connection if this publisher opened it.
func (p *NATSPublisher) Close() error {
	if !p.owned {
		return nil
	}
	return p.nc.Drain()
}
