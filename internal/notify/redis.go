package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	eventChannel = "rdvwatcher:events"
	nameChannel  = "rdvwatcher:names"

	publishTimeout = 2 * time.Second
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// RedisPublisher publishes engine events to Redis pub/sub channels so
// external UIs can follow the roster without polling.
type RedisPublisher struct {
	rdb *redis.Client
	log *slog.Logger
}

// NewRedisPublisher connects to Redis and verifies the connection.
func NewRedisPublisher(cfg RedisConfig) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisPublisher{rdb: rdb, log: slog.With("component", "notify.redis")}, nil
}

// Close closes the Redis connection.
func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}

func (p *RedisPublisher) MemberUpdated(e Event) {
	p.publish(eventChannel, e)
}

func (p *RedisPublisher) NameFetched(e NameEvent) {
	p.publish(nameChannel, e)
}

func (p *RedisPublisher) Log(message string) {
	p.publish(eventChannel, map[string]string{"log": message})
}

func (p *RedisPublisher) publish(channel string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.log.Warn("failed to marshal event", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := p.rdb.Publish(ctx, channel, data).Err(); err != nil {
		p.log.Warn("failed to publish event", "channel", channel, "error", err)
	}
}
