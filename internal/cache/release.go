package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tracklink/tracklink/internal/model"
)

// Cache key prefixes and TTLs.
const (
	releaseKeyPrefix  = "release:"
	negCacheKeySuffix = ":neg"

	// DefaultReleaseTTL is the TTL for cached release configuration.
	// Admin edits take at most this long to reach the landing pages.
	DefaultReleaseTTL = 10 * time.Minute

	// NegativeCacheTTL is the TTL for negative cache entries.
	NegativeCacheTTL = 5 * time.Minute
)

// Common cache errors.
var (
	ErrCacheMiss = errors.New("cache miss")
)

// GetRelease retrieves a release configuration from cache by page path.
// Returns ErrCacheMiss if not found.
func (c *Cache) GetRelease(ctx context.Context, path string) (*model.ReleaseConfig, error) {
	key := releaseKeyPrefix + path

	raw, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var cfg model.ReleaseConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		// Stale or corrupt entry; treat as a miss so the caller reloads.
		c.client.Del(ctx, key)
		return nil, ErrCacheMiss
	}

	return &cfg, nil
}

// SetRelease stores a release configuration in cache.
func (c *Cache) SetRelease(ctx context.Context, path string, cfg *model.ReleaseConfig) error {
	key := releaseKeyPrefix + path

	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal release config: %w", err)
	}

	if err := c.client.SetEx(ctx, key, raw, DefaultReleaseTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache release config: %w", err)
	}

	// Remove negative cache if exists
	c.client.Del(ctx, key+negCacheKeySuffix)

	return nil
}

// DeleteRelease removes a release configuration from cache.
func (c *Cache) DeleteRelease(ctx context.Context, path string) error {
	key := releaseKeyPrefix + path

	pipe := c.client.Pipeline()
	pipe.Del(ctx, key)
	pipe.Del(ctx, key+negCacheKeySuffix)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete release from cache: %w", err)
	}

	return nil
}

// IsNegativelyCached checks if a page path is in negative cache.
func (c *Cache) IsNegativelyCached(ctx context.Context, path string) (bool, error) {
	key := releaseKeyPrefix + path + negCacheKeySuffix

	exists, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check negative cache: %w", err)
	}

	return exists > 0, nil
}

// SetNegativeCache marks a page path as having no release configured.
func (c *Cache) SetNegativeCache(ctx context.Context, path string) error {
	key := releaseKeyPrefix + path + negCacheKeySuffix

	if err := c.client.SetEx(ctx, key, "", NegativeCacheTTL).Err(); err != nil {
		return fmt.Errorf("failed to set negative cache: %w", err)
	}

	return nil
}
