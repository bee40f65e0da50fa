package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
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

// Get retrieves a cached value
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !c.client.Enabled() {
		return false, nil
	}

	data, err := c.client.Redis().Get(ctx, c.fullKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get failed: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("cache unmarshal failed: %w", err)
	}

	return true, nil
}

// Set stores a value in cache with TTL
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.client.Enabled() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal failed: %w", err)
	}

	return c.client.Redis().Set(ctx, c.fullKey(key), data, ttl).Err()
}

// Delete removes a cached value
func (c *Cache) Delete(ctx context.Context, key string) error {
	if !c.client.Enabled() {
		return nil
	}

	return c.client.Redis().Del(ctx, c.fullKey(key)).Err()
}

func (c *Cache) fullKey(key string) string {
	return fmt.Sprintf("%s:cache:%s", c.prefix, key)
}

// GetOrSet retrieves from cache or calls fn to populate dest.
// fn fills dest directly; a failed cache write does not fail the call.
func (c *Cache) GetOrSet(ctx context.Context, key string, dest interface{}, ttl time.Duration, fn func() error) error {
	found, err := c.Get(ctx, key, dest)
	if err == nil && found {
		return nil
	}

	if err := fn(); err != nil {
		return err
	}

	_ = c.Set(ctx, key, dest, ttl)
	return nil
}

// Predefined TTLs
const (
	TTLQuote   = 1 * time.Minute  // 지수 현재값
	TTLHistory = 15 * time.Minute // 일봉 이력
	TTLInfo    = 6 * time.Hour    // 종목 정적 지표
)

// Market data cache keys
func PriceHistoryKey(symbol string, from, to time.Time) string {
	return fmt.Sprintf("history:%s:%s:%s", normalizeSymbol(symbol), from.Format("20060102"), to.Format("20060102"))
}

func InstrumentInfoKey(symbol string) string {
	return fmt.Sprintf("info:%s", normalizeSymbol(symbol))
}

func GlobalIndicatorsKey(date time.Time) string {
	return fmt.Sprintf("indicators:%s", date.Format("20060102"))
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
