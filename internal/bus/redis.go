package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"aegis-sim/internal/logging"
)

// RedisBus is the production transport. Each Subscribe call holds its
// own pub/sub connection; publishes share the pooled client.
type RedisBus struct {
	client *redis.Client
}

// RedisOptions configures the broker connection.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisBus connects and verifies the broker is reachable.
func NewRedisBus(ctx context.Context, opts RedisOptions) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     20,
		MinIdleConns: 5,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
	}
	return &RedisBus{client: client}, nil
}

func (b *RedisBus) Publish(ctx context.Context, channel string, msg Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := b.client.Publish(ctx, channel, raw).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	return nil
}

// Subscribe opens a pattern subscription and decodes envelopes until
// ctx is canceled. Malformed payloads are logged and dropped so one
// bad publisher cannot stall a consumer loop.
func (b *RedisBus) Subscribe(ctx context.Context, patterns ...string) (<-chan Inbound, error) {
	log := logging.FromContext(ctx)

	pubsub := b.client.PSubscribe(ctx, patterns...)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %v: %w", patterns, err)
	}

	out := make(chan Inbound, 256)
	go func() {
		defer close(out)
		defer pubsub.Close()
		in := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-in:
				if !ok {
					return
				}
				var msg Message
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					log.Warn("dropping malformed envelope",
						"channel", m.Channel, "error", err)
					continue
				}
				select {
				case out <- Inbound{Channel: m.Channel, Message: msg}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Ping checks broker health for status surfaces.
func (b *RedisBus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Client exposes the pooled connection for components that keep
// auxiliary state in the same Redis, like the latest-state cache.
func (b *RedisBus) Client() *redis.Client {
	return b.client
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}
