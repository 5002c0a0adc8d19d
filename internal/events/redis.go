package events

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher publishes messages with PUBLISH, using the subject as channel.
type RedisPublisher struct {
	client *redis.Client
	prefix string
	owned  bool
}

// NewRedisPublisher connects to addr and verifies it with a PING.
func NewRedisPublisher(addr, prefix string) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return &RedisPublisher{client: client, prefix: prefix, owned: true}, nil
}

// NewRedisPublisherFromClient wraps an existing client. Close leaves it open.
func NewRedisPublisherFromClient(client *redis.Client, prefix string) *RedisPublisher {
	return &RedisPublisher{client: client, prefix: prefix}
}

// Publish implements Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, msg *Message) error {
	data, err := encode(msg)
	if err != nil {
		return err
	}
	channel := Subject(p.prefix, msg)
	if err := p.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

// Close closes the client if this publisher opened it.
func (p *RedisPublisher) Close() error {
	if !p.owned {
		return nil
	}
	return p.client.Close()
}
