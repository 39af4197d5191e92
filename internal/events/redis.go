package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// DefaultRedisStream is the stream key used when none is configured.
const DefaultRedisStream = "streamer:events"

// RedisConfig configures the Redis Streams publisher.
type RedisConfig struct {
	Addr         string
	Password     string
	Stream       string
	MaxLen       int64
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

// RedisPublisher appends events to a Redis stream with XADD. The payload field
// holds the JSON-encoded event.
type RedisPublisher struct {
	client redis.UniversalClient
	stream string
	maxLen int64
	log    *slog.Logger
}

// NewRedisPublisher connects to Redis and verifies the connection with PING.
func NewRedisPublisher(ctx context.Context, cfg RedisConfig) (*RedisPublisher, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		stream = DefaultRedisStream
	}
	if cfg.MaxLen <= 0 {
		cfg.MaxLen = 10000
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        []string{addr},
		Password:     cfg.Password,
		DialTimeout:  cfg.DialTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxRetries:   2,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return &RedisPublisher{client: client, stream: stream, maxLen: cfg.MaxLen, log: log}, nil
}

// Publish implements Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	if event.Type == "" {
		return ErrEventTypeRequired
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			"type":    event.Type,
			"payload": string(payload),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	p.log.Debug("event published",
		slog.String("type", event.Type),
		slog.String("stream_id", event.StreamID),
		slog.String("entry_id", id))
	return nil
}

// Close releases the Redis connection pool.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
