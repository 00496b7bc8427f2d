package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RequestsChannel is the suffix of the inbound request channel.
const RequestsChannel = "requests"

// RedisOptions configures the bus connection.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: opts.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// RedisBus publishes events to and consumes requests from Redis pub/sub.
type RedisBus struct {
	logger *zap.Logger
	client *redis.Client
	prefix string
}

// NewRedisBus creates a RedisBus using channels under prefix.
func NewRedisBus(logger *zap.Logger, client *redis.Client, prefix string) *RedisBus {
	return &RedisBus{
		logger: logger.Named("bus"),
		client: client,
		prefix: prefix,
	}
}

// Channel returns the pub/sub channel for a namespace or request stream.
func (b *RedisBus) Channel(name string) string {
	return b.prefix + ":" + name
}

// Publish sends event on the channel of its namespace.
func (b *RedisBus) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event.Name, err)
	}

	if err := b.client.Publish(ctx, b.Channel(event.Namespace), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.Name, err)
	}

	b.logger.Debug("event published",
		zap.String("event", event.Name),
		zap.String("namespace", event.Namespace),
		zap.String("room", event.Room))
	return nil
}

// Consume subscribes to the request channel and dispatches each request to
// handler in its own goroutine until ctx is done. It waits for in-flight
// handlers before returning.
func (b *RedisBus) Consume(ctx context.Context, handler Handler) error {
	sub := b.client.Subscribe(ctx, b.Channel(RequestsChannel))
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to requests: %w", err)
	}

	b.logger.Info("consuming requests", zap.String("channel", b.Channel(RequestsChannel)))

	var wg sync.WaitGroup
	defer wg.Wait()

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}

			var req Request
			if err := json.Unmarshal([]byte(msg.Payload), &req); err != nil {
				b.logger.Warn("dropping malformed request", zap.Error(err))
				continue
			}

			wg.Add(1)
			go func() {
				defer wg.Done()
				handler(ctx, req)
			}()
		}
	}
}

// Ping checks the Redis connection.
func (b *RedisBus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (b *RedisBus) Close() error {
	return b.client.Close()
}
