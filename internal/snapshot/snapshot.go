// Package snapshot persists the latest reading to Redis so a restarted
// server can warm its cache instead of calling the upstream API at once.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/albapepper/almaty-air/internal/airquality"
)

// DefaultKey is the Redis key holding the latest reading.
const DefaultKey = "almaty-air:reading:latest"

const writeTimeout = 3 * time.Second

// RedisStore saves and loads the latest reading as JSON.
type RedisStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	logger *slog.Logger
}

// Connect parses a redis:// URL, pings the server and returns a store.
func Connect(ctx context.Context, url string, ttl time.Duration, logger *slog.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisStore(client, ttl, logger), nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{client: client, key: DefaultKey, ttl: ttl, logger: logger}
}

// Save writes the reading with the configured TTL.
func (s *RedisStore) Save(ctx context.Context, r *airquality.Reading) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal reading: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load returns the saved reading, or nil when none is stored.
func (s *RedisStore) Load(ctx context.Context) (*airquality.Reading, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var r airquality.Reading
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &r, nil
}

// ObserveReading saves every fresh reading. Failures are logged only.
func (s *RedisStore) ObserveReading(ctx context.Context, r *airquality.Reading) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	if err := s.Save(ctx, r); err != nil {
		s.logger.Warn("Failed to save reading snapshot", "error", err)
	}
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
