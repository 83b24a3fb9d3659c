package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-redis/redis/v8"
)

// DefaultChannel is the redis pub/sub channel deliveries travel on
const DefaultChannel = "storefront:chat:fanout"

var errNotSubscribed = errors.New("bus has no subscriber")

// Bus carries deliveries to every process that has sessions
type Bus interface {
	Publish(ctx context.Context, d Delivery) error
	// Subscribe registers the handler and returns once deliveries can flow
	Subscribe(ctx context.Context, handler func(Delivery)) error
}

// LocalBus hands deliveries straight to the in-process handler
type LocalBus struct {
	mu      sync.RWMutex
	handler func(Delivery)
}

func NewLocalBus() *LocalBus {
	return &LocalBus{}
}

func (b *LocalBus) Publish(_ context.Context, d Delivery) error {
	b.mu.RLock()
	h := b.handler
	b.mu.RUnlock()
	if h == nil {
		return errNotSubscribed
	}
	h(d)
	return nil
}

func (b *LocalBus) Subscribe(_ context.Context, handler func(Delivery)) error {
	b.mu.Lock()
	b.handler = handler
	b.mu.Unlock()
	return nil
}

// RedisBus fans deliveries out through redis pub/sub so each API instance
// routes them to its own sessions.
type RedisBus struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

// NewRedisClient accepts either a redis:// URL or a bare host:port
func NewRedisClient(redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

func NewRedisBus(client *redis.Client, channel string, logger *slog.Logger) *RedisBus {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBus{client: client, channel: channel, logger: logger}
}

func (b *RedisBus) Publish(ctx context.Context, d Delivery) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode delivery: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish delivery: %w", err)
	}
	return nil
}

// Subscribe waits for redis to confirm the subscription, then consumes in
// the background until ctx ends.
func (b *RedisBus) Subscribe(ctx context.Context, handler func(Delivery)) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe to %s: %w", b.channel, err)
	}

	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				var d Delivery
				if err := json.Unmarshal([]byte(m.Payload), &d); err != nil {
					b.logger.Warn("dropping undecodable delivery", slog.Any("err", err))
					continue
				}
				handler(d)
			}
		}
	}()

	b.logger.Info("fan-out bus subscribed", slog.String("channel", b.channel))
	return nil
}

// Ping checks the redis connection
func (b *RedisBus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}
