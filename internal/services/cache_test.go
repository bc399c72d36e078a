package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-forecast-api/internal/models"
)

func TestCache_SetGetDelete(t *testing.T) {
	c := NewCache[string, int](time.Minute)
	defer c.Close()

	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Set("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	c.Delete("a")
	_, ok = c.Get("a")
	assert.False(t, ok)
}

func TestCache_Expiry(t *testing.T) {
	c := NewCache[string, string](20 * time.Millisecond)
	defer c.Close()

	c.Set("k", "v")
	time.Sleep(40 * time.Millisecond)

	_, ok := c.Get("k")
	assert.False(t, ok)

	c.evictExpired()
	assert.Equal(t, 0, c.Len())
}

func TestCache_Purge(t *testing.T) {
	c := NewCache[int, int](time.Minute)
	defer c.Close()

	for i := 0; i < 10; i++ {
		c.Set(i, i)
	}
	assert.Equal(t, 10, c.Len())
	c.Purge()
	assert.Equal(t, 0, c.Len())
}

func TestCache_CloseIsIdempotent(t *testing.T) {
	c := NewCache[string, int](time.Minute)
	c.Close()
	c.Close()
}

func TestCacheService_ForecastCopyOnHit(t *testing.T) {
	s := NewMemoryCacheService(time.Minute, nil)
	defer s.Close()
	ctx := context.Background()

	stored := &models.StockForecast{Info: models.StockInfo{Symbol: "AAPL"}}
	require.NoError(t, s.SetForecast(ctx, "key", stored))

	hit, ok := s.GetForecast(ctx, "key")
	require.True(t, ok)
	assert.True(t, hit.CacheHit)
	assert.Equal(t, "AAPL", hit.Info.Symbol)
	assert.False(t, stored.CacheHit)
}

func TestCacheService_TickerRoundTripAndPurge(t *testing.T) {
	s := NewMemoryCacheService(time.Minute, nil)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.SetTickerData(ctx, "MSFT", &models.TickerData{Symbol: "MSFT", Price: 410}))
	data, ok := s.GetTickerData(ctx, "MSFT")
	require.True(t, ok)
	assert.Equal(t, 410.0, data.Price)

	require.NoError(t, s.Purge(ctx))
	_, ok = s.GetTickerData(ctx, "MSFT")
	assert.False(t, ok)
}

func TestCacheService_ReadyMemoryOnly(t *testing.T) {
	s := NewMemoryCacheService(time.Minute, nil)
	defer s.Close()

	checks := s.Ready(context.Background())
	assert.Equal(t, "ok", checks["memory"])
	assert.Equal(t, "disabled", checks["redis"])
	assert.Equal(t, "disabled", checks["firestore"])
}
