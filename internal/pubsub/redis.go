package pubsub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
)

// RedisOptions configures the Redis connection used by RedisBackbone.
type RedisOptions struct {
	Addr     string
	Username string
	Password string
	DB       int
}

// RedisBackbone implements Backbone on Redis PUBLISH/SUBSCRIBE/PSUBSCRIBE so
// that several server processes share one fan-out channel. Only the payload
// travels over Redis; UserID and Metadata are not carried.
type RedisBackbone struct {
	client *redis.Client
	logger *slog.Logger

	mu     sync.Mutex
	subs   []*redis.PubSub
	closed bool
}

// NewRedisBackbone connects to Redis and verifies the connection with PING.
func NewRedisBackbone(ctx context.Context, opts RedisOptions) (*RedisBackbone, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Username: opts.Username,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return NewRedisBackboneFromClient(client), nil
}

// NewRedisBackboneFromClient wraps an existing client. The backbone takes ownership of it.
func NewRedisBackboneFromClient(client *redis.Client) *RedisBackbone {
	return &RedisBackbone{
		client: client,
		logger: slog.Default().With("service", "redis-backbone"),
	}
}

// Publish implements the Publisher interface.
func (r *RedisBackbone) Publish(ctx context.Context, msg Message) error {
	if err := r.client.Publish(ctx, msg.Topic, msg.Payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", msg.Topic, err)
	}
	return nil
}

// Subscribe implements the Subscriber interface.
func (r *RedisBackbone) Subscribe(ctx context.Context, topic string, handler Handler) error {
	return r.start(ctx, topic, r.client.Subscribe(ctx, topic), handler)
}

// PSubscribe implements the Subscriber interface.
func (r *RedisBackbone) PSubscribe(ctx context.Context, pattern string, handler Handler) error {
	return r.start(ctx, pattern, r.client.PSubscribe(ctx, pattern), handler)
}

func (r *RedisBackbone) start(ctx context.Context, name string, ps *redis.PubSub, handler Handler) error {
	// Wait for the subscription confirmation so no message published after
	// this call returns is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("redis subscribe %s: %w", name, err)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = ps.Close()
		return errors.New("redis backbone closed")
	}
	r.subs = append(r.subs, ps)
	r.mu.Unlock()

	ch := ps.Channel()
	go func() {
		for {
			select {
			case <-ctx.Done():
				_ = ps.Close()
				return
			case m, ok := <-ch:
				if !ok {
					r.logger.Debug("Subscription message loop ended", "subscription", name)
					return
				}
				msg := Message{Topic: m.Channel, Payload: []byte(m.Payload)}
				if err := handler(ctx, msg); err != nil {
					r.logger.Error("Failed to handle message", "subscription", name, "topic", m.Channel, "error", err)
				}
			}
		}
	}()
	return nil
}

// Close closes every subscription and the underlying client.
func (r *RedisBackbone) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	var err error
	for _, ps := range r.subs {
		err = multierr.Append(err, ps.Close())
	}
	r.subs = nil
	return multierr.Append(err, r.client.Close())
}
