package redis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache provides typed caching utilities
// ⭐ SSOT: 캐시 헬퍼는 여기서만
type Cache struct {
	client *Client
	prefix string
}

// NewCache creates a new cache helper
func NewCache(client *Client, prefix string) *Cache {
	return &Cache{
		client: client,
		prefix: prefix,
	}
}

func (c *Cache) key(key string) string {
	return fmt.Sprintf("%s:cache:%s", c.prefix, key)
}

// Get retrieves a cached value.
// Numbers inside interface{} values decode as json.Number.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !c.client.Enabled() {
		return false, nil
	}

	data, err := c.client.Redis().Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get failed: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(dest); err != nil {
		return false, fmt.Errorf("cache unmarshal failed: %w", err)
	}

	return true, nil
}

// Set stores a value in cache with TTL
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.client.Enabled() || ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal failed: %w", err)
	}

	return c.client.Redis().Set(ctx, c.key(key), data, ttl).Err()
}

// Delete removes a cached value
func (c *Cache) Delete(ctx context.Context, key string) error {
	if !c.client.Enabled() {
		return nil
	}

	return c.client.Redis().Del(ctx, c.key(key)).Err()
}

// Predefined TTLs
const (
	TTLShort  = 1 * time.Minute  // 인스턴스 목록 (설정 변경 반영 지연 허용치)
	TTLMedium = 10 * time.Minute // 템플릿
)

// InstancesKey is the cache key of an active-instance list
func InstancesKey(sector string) string {
	return fmt.Sprintf("instances:%s", sector)
}

// SnapshotKey is the key of one request snapshot
func SnapshotKey(prefix, runID, instanceID string, createdAt time.Time) string {
	return fmt.Sprintf("%s:snapshot:%s:%s:%d", prefix, runID, instanceID, createdAt.UnixNano())
}

// OutputKey is the key of one raw evaluator output
func OutputKey(prefix, runID, instanceID string) string {
	return fmt.Sprintf("%s:output:%s:%s", prefix, runID, instanceID)
}

// RunKey is the key of a run record
func RunKey(prefix, runID string) string {
	return fmt.Sprintf("%s:run:%s", prefix, runID)
}
