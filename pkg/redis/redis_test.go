package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/tradeloop/pkg/config"
)

func disabledClient(t *testing.T) *Client {
	t.Helper()
	client, err := New(&config.Config{Redis: config.RedisConfig{Enabled: false}})
	require.NoError(t, err)
	return client
}

func TestNewClient_Disabled(t *testing.T) {
	client := disabledClient(t)

	assert.False(t, client.Enabled())
	assert.NoError(t, client.Ping(context.Background()))
	assert.NoError(t, client.Close())
}

func TestRateLimiter_Disabled(t *testing.T) {
	limiter := NewRateLimiter(disabledClient(t), "test")
	cfg := MarketDataRateLimit(2)

	// When Redis is disabled, all requests should be allowed
	allowed, remaining, err := limiter.Allow(context.Background(), cfg)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, cfg.Limit, remaining)

	assert.NoError(t, limiter.Wait(context.Background(), cfg))
}

func TestMarketDataRateLimit(t *testing.T) {
	tests := []struct {
		name   string
		rps    float64
		limit  int
		window time.Duration
	}{
		{"two per second", 2, 2, time.Second},
		{"fractional", 0.5, 1, 2 * time.Second},
		{"zero falls back", 0, 1, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := MarketDataRateLimit(tt.rps)
			assert.Equal(t, "marketdata", cfg.Key)
			assert.Equal(t, tt.limit, cfg.Limit)
			assert.Equal(t, tt.window, cfg.Window)
		})
	}
}

func TestCache_Disabled(t *testing.T) {
	cache := NewCache(disabledClient(t), "test")
	ctx := context.Background()

	var result string
	found, err := cache.Get(ctx, "key", &result)
	require.NoError(t, err)
	assert.False(t, found)

	assert.NoError(t, cache.Set(ctx, "key", "value", TTLQuote))
	assert.NoError(t, cache.Delete(ctx, "key"))
}

func TestCache_GetOrSetDisabledCallsLoader(t *testing.T) {
	cache := NewCache(disabledClient(t), "test")

	calls := 0
	var out []float64
	for i := 0; i < 2; i++ {
		err := cache.GetOrSet(context.Background(), "k", &out, TTLHistory, func() error {
			calls++
			out = []float64{1, 2, 3}
			return nil
		})
		require.NoError(t, err)
	}

	assert.Equal(t, 2, calls, "disabled cache never short-circuits")
	assert.Equal(t, []float64{1, 2, 3}, out)
}

func TestCache_Integration(t *testing.T) {
	if testing.Short() || os.Getenv("REDIS_HOST") == "" {
		t.Skip("REDIS_HOST not set, skipping integration test")
	}

	client, err := New(&config.Config{Redis: config.RedisConfig{
		Host:    os.Getenv("REDIS_HOST"),
		Port:    "6379",
		Enabled: true,
	}})
	require.NoError(t, err)
	defer client.Close()

	cache := NewCache(client, "tradeloop-test")
	ctx := context.Background()
	require.NoError(t, cache.Set(ctx, "k", map[string]int{"a": 1}, time.Minute))

	var got map[string]int
	found, err := cache.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1, got["a"])
	assert.NoError(t, cache.Delete(ctx, "k"))
}

func TestCacheKeys(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"PriceHistoryKey", PriceHistoryKey(" reliance.ns ", day, day.AddDate(0, 0, 30)), "history:RELIANCE.NS:20260302:20260401"},
		{"InstrumentInfoKey", InstrumentInfoKey("tcs.ns"), "info:TCS.NS"},
		{"GlobalIndicatorsKey", GlobalIndicatorsKey(day), "indicators:20260302"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.got)
		})
	}
}
