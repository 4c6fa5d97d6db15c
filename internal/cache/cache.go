/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache provides a Redis-based caching layer for calendar free/busy
// snapshots and decomposition results.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Default TTL values for different cache types
const (
	DefaultFreeBusyTTL  = 5 * time.Minute
	DefaultBreakdownTTL = 24 * time.Hour
)

// Key prefixes for Redis cache
const (
	KeyFreeBusy  = "skuld:cache:freebusy:"  // + user_id + ":" + window hash
	KeyBreakdown = "skuld:cache:breakdown:" // + goal_id
)

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// TTL overrides
	FreeBusyTTL  time.Duration
	BreakdownTTL time.Duration

	// Fallback behavior
	DisableOnError bool // If true, disable caching on Redis errors
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:      "localhost:6379",
		FreeBusyTTL:    DefaultFreeBusyTTL,
		BreakdownTTL:   DefaultBreakdownTTL,
		DisableOnError: true,
	}
}

// Cache provides Redis-backed caching with graceful fallback.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config

	mu       sync.RWMutex
	disabled bool // Circuit breaker state
}

// New creates a new cache instance.
func New(cfg Config, logger zerolog.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis cache unavailable, running without caching")
		return &Cache{
			logger:   logger.With().Str("component", "cache").Logger(),
			config:   cfg,
			disabled: true,
		}, nil
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("Redis cache initialized")

	return &Cache{
		client: client,
		logger: logger.With().Str("component", "cache").Logger(),
		config: cfg,
	}, nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsAvailable returns true if the cache is operational.
func (c *Cache) IsAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.client != nil
}

// handleError handles Redis errors with circuit breaker logic.
func (c *Cache) handleError(err error, operation string) {
	if err == nil || err == redis.Nil {
		return
	}

	c.logger.Debug().Err(err).Str("operation", operation).Msg("cache operation failed")

	if c.config.DisableOnError {
		c.mu.Lock()
		c.disabled = true
		c.mu.Unlock()
		c.logger.Warn().Msg("disabling cache due to Redis error")
	}
}

// get retrieves a value from cache and unmarshals it.
func (c *Cache) get(ctx context.Context, key string, dest any) (bool, error) {
	if !c.IsAvailable() {
		return false, nil
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		c.handleError(err, "get")
		return false, err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("failed to unmarshal cached value")
		return false, nil
	}

	return true, nil
}

// set stores a value in cache with TTL.
func (c *Cache) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !c.IsAvailable() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.handleError(err, "set")
		return err
	}

	return nil
}

// delete removes a key from cache.
func (c *Cache) delete(ctx context.Context, key string) error {
	if !c.IsAvailable() {
		return nil
	}

	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.handleError(err, "delete")
		return err
	}

	return nil
}

// deletePattern deletes all keys matching a pattern.
func (c *Cache) deletePattern(ctx context.Context, pattern string) error {
	if !c.IsAvailable() {
		return nil
	}

	// Use SCAN to find keys (safer than KEYS for production)
	var cursor uint64
	for {
		keys, nextCursor, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			c.handleError(err, "scan")
			return err
		}

		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				c.handleError(err, "delete_batch")
				return err
			}
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return nil
}

// Free/busy caching methods

// CachedInterval is one busy interval in a cached free/busy snapshot.
type CachedInterval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// freeBusyKey builds the cache key for one user's free/busy window. The
// window bounds are part of the key so that different planning horizons
// never share a snapshot.
func freeBusyKey(userID string, timeMin, timeMax time.Time) string {
	return fmt.Sprintf("%s%s:%d:%d", KeyFreeBusy, userID, timeMin.Unix(), timeMax.Unix())
}

// GetFreeBusy retrieves a cached free/busy snapshot for a user and window.
func (c *Cache) GetFreeBusy(ctx context.Context, userID string, timeMin, timeMax time.Time) ([]CachedInterval, bool) {
	var intervals []CachedInterval
	found, err := c.get(ctx, freeBusyKey(userID, timeMin, timeMax), &intervals)
	if err != nil || !found {
		return nil, false
	}
	c.logger.Debug().Str("user_id", userID).Int("count", len(intervals)).Msg("free/busy cache hit")
	return intervals, true
}

// SetFreeBusy caches a free/busy snapshot for a user and window.
func (c *Cache) SetFreeBusy(ctx context.Context, userID string, timeMin, timeMax time.Time, intervals []CachedInterval) error {
	c.logger.Debug().Str("user_id", userID).Int("count", len(intervals)).Msg("caching free/busy snapshot")
	return c.set(ctx, freeBusyKey(userID, timeMin, timeMax), intervals, c.config.FreeBusyTTL)
}

// InvalidateFreeBusy removes every cached free/busy snapshot for a user.
// Called after events are inserted so the next plan sees them.
func (c *Cache) InvalidateFreeBusy(ctx context.Context, userID string) error {
	c.logger.Debug().Str("user_id", userID).Msg("invalidating free/busy snapshots")
	return c.deletePattern(ctx, KeyFreeBusy+userID+":*")
}

// Breakdown caching methods

// CachedBreakdownTask is one task in a cached goal decomposition.
type CachedBreakdownTask struct {
	Seq           int64   `json:"seq"`
	Description   string  `json:"description"`
	DurationHours float64 `json:"duration_hours"`
}

// CachedBreakdown represents a cached goal decomposition result.
type CachedBreakdown struct {
	GoalID     string                `json:"goal_id"`
	Complexity int                   `json:"complexity"`
	Tasks      []CachedBreakdownTask `json:"tasks"`
}

// GetBreakdown retrieves a cached decomposition for a goal.
func (c *Cache) GetBreakdown(ctx context.Context, goalID string) (*CachedBreakdown, bool) {
	var breakdown CachedBreakdown
	found, err := c.get(ctx, KeyBreakdown+goalID, &breakdown)
	if err != nil || !found {
		return nil, false
	}
	c.logger.Debug().Str("goal_id", goalID).Int("tasks", len(breakdown.Tasks)).Msg("breakdown cache hit")
	return &breakdown, true
}

// SetBreakdown caches a goal decomposition.
func (c *Cache) SetBreakdown(ctx context.Context, breakdown *CachedBreakdown) error {
	c.logger.Debug().Str("goal_id", breakdown.GoalID).Msg("caching breakdown")
	return c.set(ctx, KeyBreakdown+breakdown.GoalID, breakdown, c.config.BreakdownTTL)
}

// InvalidateBreakdown removes a goal decomposition from cache.
func (c *Cache) InvalidateBreakdown(ctx context.Context, goalID string) error {
	c.logger.Debug().Str("goal_id", goalID).Msg("invalidating breakdown cache")
	return c.delete(ctx, KeyBreakdown+goalID)
}

// FlushAll removes all cached data (use sparingly).
func (c *Cache) FlushAll(ctx context.Context) error {
	c.logger.Warn().Msg("flushing all cache data")
	return c.deletePattern(ctx, "skuld:cache:*")
}
