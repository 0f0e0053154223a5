package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"

	"pgstay/internal/domain"
)

func NewRedisCache(client *redis.Client, baseTTL time.Duration) *RedisCache {
	if baseTTL <= 0 {
		baseTTL = 5 * time.Minute
	}
	return &RedisCache{
		client:  client,
		baseTTL: baseTTL,
	}
}

// RedisCache stores the catalog fields of a property. Rooms and bed counts are never cached.
type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

// NewRedisClient parses a redis:// URL.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func (r *RedisCache) Get(ctx context.Context, propertyID string) (*domain.Property, error) {
	data, err := r.client.Get(ctx, cacheKey(propertyID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var p domain.Property
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshal property failed: %w", err)
	}
	return &p, nil
}

func (r *RedisCache) Set(ctx context.Context, property *domain.Property) error {
	snapshot := *property
	snapshot.Rooms = nil
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal property failed: %w", err)
	}

	jitter := time.Duration(rand.Int63n(int64(r.baseTTL/5) + 1))
	if err := r.client.Set(ctx, cacheKey(property.ID), data, r.baseTTL+jitter).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, propertyID string) error {
	if err := r.client.Del(ctx, cacheKey(propertyID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cacheKey(propertyID string) string {
	return fmt.Sprintf("property:%s", propertyID)
}
