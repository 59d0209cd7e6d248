package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/layer-3/credgate/core"
	"github.com/layer-3/credgate/ports"
	"github.com/redis/go-redis/v9"
)

// RedisStore is a Redis implementation of the Store interface
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a new Redis store. Every key is namespaced with prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

var _ ports.Store = (*RedisStore)(nil)

// Set stores value under key with expiration; a non-positive ttl never expires
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, s.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key: %w", err)
	}
	return nil
}

// Get retrieves a value by key
func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, s.prefix+key).Result()
	return s.result(value, err)
}

// Take atomically retrieves and deletes a key
func (s *RedisStore) Take(ctx context.Context, key string) (string, error) {
	value, err := s.client.GetDel(ctx, s.prefix+key).Result()
	return s.result(value, err)
}

// Delete removes a key
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	return nil
}

func (s *RedisStore) result(value string, err error) (string, error) {
	if errors.Is(err, redis.Nil) {
		return "", core.ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read key: %w", err)
	}
	return value, nil
}
