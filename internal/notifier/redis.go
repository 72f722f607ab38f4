package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// FamilyRedis is the destination family served by RedisTransport.
const FamilyRedis = "redis"

// RedisConfig configures the pub/sub transport.
type RedisConfig struct {
	Address  string
	Password string //nolint:gosec // connection config
	DB       int
}

// RedisTransport publishes messages on Redis pub/sub channels.
type RedisTransport struct {
	client *redis.Client
}

// redisMessage is the JSON envelope published on the channel.
type redisMessage struct {
	Message     string    `json:"message"`
	ContentType string    `json:"content_type"`
	PublishedAt time.Time `json:"published_at"`
}

// NewRedisTransport creates a transport with its own client. An empty
// address yields ErrNotConfigured.
func NewRedisTransport(cfg RedisConfig) (*RedisTransport, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address missing: %w", ErrNotConfigured)
	}

	return &RedisTransport{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}, nil
}

// Send publishes message on channel.
func (t *RedisTransport) Send(ctx context.Context, channel, message string) error {
	payload, err := json.Marshal(redisMessage{
		Message:     message,
		ContentType: "text/html",
		PublishedAt: time.Now().UTC(),
	})
	if err != nil {
		return &DeliveryError{Class: ClassPermanent, Family: FamilyRedis, Err: err}
	}

	if pubErr := t.client.Publish(ctx, channel, payload).Err(); pubErr != nil {
		return &DeliveryError{Class: Classify(pubErr), Family: FamilyRedis, Err: fmt.Errorf("redis publish: %w", pubErr)}
	}
	return nil
}

// Ping checks the Redis connection.
func (t *RedisTransport) Ping(ctx context.Context) error {
	if err := t.client.Ping(ctx).Err(); err != nil {
		return &DeliveryError{Class: Classify(err), Family: FamilyRedis, Err: fmt.Errorf("redis ping: %w", err)}
	}
	return nil
}

// Close closes the client.
func (t *RedisTransport) Close() error {
	return t.client.Close()
}
