package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"stock-forecast-api/internal/config"
	"stock-forecast-api/internal/models"
)

const (
	tickerCollection   = "tickers"
	forecastCollection = "forecasts"
)

// Generic in-memory cache with type safety
type Cache[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]*cacheItem[V]
	ttl   time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

type cacheItem[V any] struct {
	value      V
	expiration time.Time
}

func NewCache[K comparable, V any](ttl time.Duration) *Cache[K, V] {
	c := &Cache[K, V]{
		items: make(map[K]*cacheItem[V]),
		ttl:   ttl,
		stop:  make(chan struct{}),
	}

	go c.cleanup(5 * time.Minute)

	return c
}

func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, exists := c.items[key]
	if !exists || time.Now().After(item.expiration) {
		var zero V
		return zero, false
	}

	return item.value, true
}

func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = &cacheItem[V]{
		value:      value,
		expiration: time.Now().Add(c.ttl),
	}
}

func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Purge drops every entry.
func (c *Cache[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]*cacheItem[V])
}

// Len counts entries, expired ones included until the janitor runs.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Close stops the janitor goroutine.
func (c *Cache[K, V]) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache[K, V]) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

func (c *Cache[K, V]) evictExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, item := range c.items {
		if now.After(item.expiration) {
			delete(c.items, key)
		}
	}
}

// CacheService layers the in-memory cache over optional Redis and Firestore
// tiers. Reads go memory → Redis → Firestore and backfill faster tiers.
type CacheService struct {
	logger          *zap.Logger
	ttl             time.Duration
	redisClient     *redis.Client
	firestoreClient *firestore.Client
	tickerCache     *Cache[string, *models.TickerData]
	forecastCache   *Cache[string, *models.StockForecast]
}

// NewCacheService connects the tiers named in cfg. Tiers that fail to
// connect are logged and skipped.
func NewCacheService(ctx context.Context, cfg *config.Config, logger *zap.Logger) *CacheService {
	s := NewMemoryCacheService(cfg.Cache.TTL, logger)

	if addr := cfg.Cache.RedisAddr; addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.Cache.RedisPassword,
			DB:       0,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Warn("redis unavailable, continuing without it", zap.String("addr", addr), zap.Error(err))
			_ = client.Close()
		} else {
			logger.Info("connected to redis", zap.String("addr", addr))
			s.redisClient = client
		}
	}

	if project := cfg.Cache.FirestoreProject; project != "" {
		client, err := firestore.NewClient(ctx, project)
		if err != nil {
			logger.Warn("firestore unavailable, continuing without it", zap.String("project", project), zap.Error(err))
		} else {
			logger.Info("connected to firestore", zap.String("project", project))
			s.firestoreClient = client
		}
	}

	return s
}

// NewMemoryCacheService creates a CacheService with only the in-memory tier.
func NewMemoryCacheService(ttl time.Duration, logger *zap.Logger) *CacheService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{
		logger:        logger,
		ttl:           ttl,
		tickerCache:   NewCache[string, *models.TickerData](ttl),
		forecastCache: NewCache[string, *models.StockForecast](ttl),
	}
}

// GetTickerData retrieves ticker data from cache
func (s *CacheService) GetTickerData(ctx context.Context, symbol string) (*models.TickerData, bool) {
	if data, found := s.tickerCache.Get(symbol); found {
		return data, true
	}

	var data models.TickerData
	if s.redisGet(ctx, "ticker:"+symbol, &data) {
		s.tickerCache.Set(symbol, &data)
		return &data, true
	}

	if s.firestoreGet(ctx, tickerCollection, symbol, &data) && time.Since(data.LastUpdated) < s.ttl {
		s.tickerCache.Set(symbol, &data)
		return &data, true
	}

	return nil, false
}

// SetTickerData stores ticker data in every tier
func (s *CacheService) SetTickerData(ctx context.Context, symbol string, data *models.TickerData) error {
	s.tickerCache.Set(symbol, data)

	return errors.Join(
		s.redisSet(ctx, "ticker:"+symbol, data),
		s.firestoreSet(ctx, tickerCollection, symbol, data),
	)
}

// GetForecast retrieves a forecast; the returned copy has CacheHit set.
func (s *CacheService) GetForecast(ctx context.Context, cacheKey string) (*models.StockForecast, bool) {
	if forecast, found := s.forecastCache.Get(cacheKey); found {
		return markHit(forecast), true
	}

	var forecast models.StockForecast
	if s.redisGet(ctx, "forecast:"+cacheKey, &forecast) {
		s.forecastCache.Set(cacheKey, &forecast)
		return markHit(&forecast), true
	}

	if s.firestoreGet(ctx, forecastCollection, cacheKey, &forecast) && time.Since(forecast.GeneratedAt) < s.ttl {
		s.forecastCache.Set(cacheKey, &forecast)
		return markHit(&forecast), true
	}

	return nil, false
}

// SetForecast stores a forecast in every tier
func (s *CacheService) SetForecast(ctx context.Context, cacheKey string, forecast *models.StockForecast) error {
	s.forecastCache.Set(cacheKey, forecast)

	return errors.Join(
		s.redisSet(ctx, "forecast:"+cacheKey, forecast),
		s.firestoreSet(ctx, forecastCollection, cacheKey, forecast),
	)
}

// Purge clears every tier.
func (s *CacheService) Purge(ctx context.Context) error {
	s.tickerCache.Purge()
	s.forecastCache.Purge()

	var errs []error
	if s.redisClient != nil {
		for _, pattern := range []string{"ticker:*", "forecast:*"} {
			if err := s.redisPurge(ctx, pattern); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if s.firestoreClient != nil {
		for _, collection := range []string{tickerCollection, forecastCollection} {
			if err := s.firestorePurge(ctx, collection); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Ready reports the state of each tier.
func (s *CacheService) Ready(ctx context.Context) map[string]string {
	checks := map[string]string{
		"memory":    "ok",
		"redis":     "disabled",
		"firestore": "disabled",
	}
	if s.redisClient != nil {
		if err := s.redisClient.Ping(ctx).Err(); err != nil {
			checks["redis"] = "error: " + err.Error()
		} else {
			checks["redis"] = "ok"
		}
	}
	if s.firestoreClient != nil {
		checks["firestore"] = "ok"
	}
	return checks
}

// Close stops the janitors and closes remote clients
func (s *CacheService) Close() error {
	s.tickerCache.Close()
	s.forecastCache.Close()

	var errs []error
	if s.redisClient != nil {
		errs = append(errs, s.redisClient.Close())
	}
	if s.firestoreClient != nil {
		errs = append(errs, s.firestoreClient.Close())
	}
	return errors.Join(errs...)
}

func markHit(forecast *models.StockForecast) *models.StockForecast {
	hit := *forecast
	hit.CacheHit = true
	return &hit
}

func (s *CacheService) redisGet(ctx context.Context, key string, dest interface{}) bool {
	if s.redisClient == nil {
		return false
	}
	val, err := s.redisClient.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("redis get failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(val, dest); err != nil {
		s.logger.Warn("redis value corrupt", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (s *CacheService) redisSet(ctx context.Context, key string, value interface{}) error {
	if s.redisClient == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.redisClient.Set(ctx, key, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *CacheService) redisPurge(ctx context.Context, pattern string) error {
	iter := s.redisClient.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan %s: %w", pattern, err)
	}
	if len(keys) == 0 {
		return nil
	}
	return s.redisClient.Del(ctx, keys...).Err()
}

func (s *CacheService) firestoreGet(ctx context.Context, collection, id string, dest interface{}) bool {
	if s.firestoreClient == nil {
		return false
	}
	doc, err := s.firestoreClient.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		return false
	}
	return doc.DataTo(dest) == nil
}

func (s *CacheService) firestoreSet(ctx context.Context, collection, id string, value interface{}) error {
	if s.firestoreClient == nil {
		return nil
	}
	if _, err := s.firestoreClient.Collection(collection).Doc(id).Set(ctx, value); err != nil {
		return fmt.Errorf("firestore set %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *CacheService) firestorePurge(ctx context.Context, collection string) error {
	docs := s.firestoreClient.Collection(collection).Documents(ctx)
	defer docs.Stop()

	for {
		doc, err := docs.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("firestore list %s: %w", collection, err)
		}
		if _, err := doc.Ref.Delete(ctx); err != nil {
			return fmt.Errorf("firestore delete %s/%s: %w", collection, doc.Ref.ID, err)
		}
	}
}
