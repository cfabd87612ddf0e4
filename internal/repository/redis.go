package repository

import (
	"context"
	"fmt"
	"time"

	"masterhand/internal/config"

	"github.com/redis/go-redis/v9"
)

// RedisKeyStore keeps in-flight guards and rate-limit counters in Redis so that
// several API instances share them.
type RedisKeyStore struct {
	client *redis.Client
	prefix string
}

// NewRedisClient creates a Redis client from configuration.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisKeyStore(client *redis.Client, prefix string) *RedisKeyStore {
	return &RedisKeyStore{
		client: client,
		prefix: prefix,
	}
}

func (r *RedisKeyStore) key(k string) string {
	if r.prefix == "" {
		return k
	}
	return r.prefix + ":" + k
}

// Acquire sets the key if it does not exist. It reports false when someone else holds it.
func (r *RedisKeyStore) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	ok, err := r.client.SetNX(ctx, r.key(key), time.Now().UTC().Format(time.RFC3339Nano), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire key in redis: %w", err)
	}
	return ok, nil
}

func (r *RedisKeyStore) Release(ctx context.Context, key string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to release key in redis: %w", err)
	}
	return nil
}

func (r *RedisKeyStore) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	k := r.key("rate_limit:" + key)
	count, err := r.client.Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	if count == 1 {
		r.client.Expire(ctx, k, window)
	}

	return count <= int64(limit), nil
}

// Ping checks the Redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
