package counterstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"imagegate/internal/models"
)

const redisConnectTimeout = 5 * time.Second

// RedisStore keeps counters in Redis using INCR and EXPIRE.
type RedisStore struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisStore connects and pings the server. Redis expires keys itself,
// so WithCleanupInterval has no effect here.
func NewRedisStore(cfg models.RedisConfig, opts ...Option) (*RedisStore, error) {
	o := buildOptions(opts)

	if cfg.Addr == "" {
		return nil, fmt.Errorf("address is required for Redis store")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	o.logger.Info("Connected to counter store", "backend", "redis", "addr", cfg.Addr, "db", cfg.DB)
	return &RedisStore{client: client, logger: o.logger}, nil
}

func (s *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, &StoreError{Op: "INCR", Key: key, Err: err}
	}
	return n, nil
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	secs := time.Duration(ttlSeconds(ttl)) * time.Second
	if err := s.client.Expire(ctx, key, secs).Err(); err != nil {
		return &StoreError{Op: "EXPIRE", Key: key, Err: err}
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return &StoreError{Op: "PING", Err: err}
	}
	return nil
}

func (s *RedisStore) Close() error {
	if err := s.client.Close(); err != nil {
		s.logger.Warn("Failed to close counter store", "backend", "redis", "error", err)
		return err
	}
	return nil
}
