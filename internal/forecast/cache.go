package forecast

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"stockcast/internal/models"
)

// ResultCache memoizes full forecast responses for a short TTL. It is not
// correctness-critical: a miss always means "recompute", never an error, so
// implementations swallow backend failures and report misses instead.
type ResultCache interface {
	Get(ctx context.Context, key string) (*models.ForecastResult, bool)
	Put(ctx context.Context, key string, result *models.ForecastResult, ttl time.Duration)
}

// Fingerprint derives the cache key from the normalized symbol, the series
// length, and the last close. This is a cheap fingerprint, not a content
// hash: two distinct periods sharing length and tail value collide, which is
// accepted because the TTL bounds staleness.
func Fingerprint(symbol string, series *models.PriceSeries) string {
	h := fnv.New64a()
	h.Write([]byte(symbol))

	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(series.Len()))
	binary.BigEndian.PutUint64(buf[8:], math.Float64bits(series.LastClose()))
	h.Write(buf[:])

	return fmt.Sprintf("%x", h.Sum64())
}

type memoryEntry struct {
	result    *models.ForecastResult
	expiresAt time.Time
}

// MemoryCache is an in-process ResultCache. Expired entries are dropped
// lazily on Get and in bulk by Sweep, which the caller schedules on a fixed
// interval independent of request traffic.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(ctx context.Context, key string) (*models.ForecastResult, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !c.now().After(entry.expiresAt) {
		return entry.result, true
	}

	// A concurrent Put may have refreshed the entry between the read lock
	// and here; re-check under the write lock before dropping it.
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok = c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.result, true
}

func (c *MemoryCache) Put(ctx context.Context, key string, result *models.ForecastResult, ttl time.Duration) {
	c.mu.Lock()
	c.entries[key] = memoryEntry{result: result, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
}

// Sweep removes expired entries and returns how many were dropped.
func (c *MemoryCache) Sweep() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of live entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// RedisCache is a ResultCache backed by Redis, for deployments where
// multiple instances should share forecast results.
type RedisCache struct {
	client *redis.Client
	prefix string
	logger *logrus.Logger
}

func NewRedisCache(client *redis.Client, logger *logrus.Logger) *RedisCache {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RedisCache{
		client: client,
		prefix: "forecast_cache:",
		logger: logger,
	}
}

func (c *RedisCache) Get(ctx context.Context, key string) (*models.ForecastResult, bool) {
	data, err := c.client.Get(ctx, c.prefix+key).Result()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.logger.Warnf("Redis error reading forecast cache for %s: %v", key, err)
		return nil, false
	}

	var result models.ForecastResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Warnf("Error deserializing cached forecast for %s: %v", key, err)
		return nil, false
	}
	return &result, true
}

func (c *RedisCache) Put(ctx context.Context, key string, result *models.ForecastResult, ttl time.Duration) {
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Warnf("Error serializing forecast for %s: %v", key, err)
		return
	}
	if err := c.client.Set(ctx, c.prefix+key, data, ttl).Err(); err != nil {
		c.logger.Warnf("Redis error writing forecast cache for %s: %v", key, err)
	}
}
