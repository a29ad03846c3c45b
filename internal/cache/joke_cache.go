package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dafibh/jokebox/jokebox-backend/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	keyPagePrefix = "jokes:page:"
	keyVersion    = "jokes:version"
)

// JokePageCache caches list pages in Redis. Every write invalidates all pages,
// since a rating change or soft-delete can move rows across any page.
//
// Pages are keyed by a version counter that every write increments. A page
// read before a write but stored after it lands under the old version, which
// is never read again and expires with the TTL.
type JokePageCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewJokePageCache returns a new JokePageCache
func NewJokePageCache(rdb *redis.Client, ttl time.Duration) *JokePageCache {
	return &JokePageCache{rdb: rdb, ttl: ttl}
}

// NewRedisClient parses a redis:// URL and verifies the server with a ping
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// PageKey builds the cache key of one page at a cache version
func PageKey(version int64, filter domain.JokeFilter, offset, limit int) string {
	return fmt.Sprintf("%sv%d:%t:%d:%d", keyPagePrefix, version, filter.Deleted, offset, limit)
}

type cachedPage struct {
	Items []*domain.Joke `json:"items"`
	Total int64          `json:"total"`
}

// Version returns the current cache version
func (c *JokePageCache) Version(ctx context.Context) (int64, error) {
	v, err := c.rdb.Get(ctx, keyVersion).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return v, err
}

// GetPage returns a cached page, or ok=false on a miss
func (c *JokePageCache) GetPage(ctx context.Context, version int64, filter domain.JokeFilter, offset, limit int) ([]*domain.Joke, int64, bool, error) {
	b, err := c.rdb.Get(ctx, PageKey(version, filter, offset, limit)).Bytes()
	if err == redis.Nil {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, err
	}
	var page cachedPage
	if err := json.Unmarshal(b, &page); err != nil {
		return nil, 0, false, err
	}
	return page.Items, page.Total, true, nil
}

// SetPage stores a page read at version
func (c *JokePageCache) SetPage(ctx context.Context, version int64, filter domain.JokeFilter, offset, limit int, items []*domain.Joke, total int64) error {
	b, err := json.Marshal(cachedPage{Items: items, Total: total})
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, PageKey(version, filter, offset, limit), b, c.ttl).Err()
}

// InvalidateAll moves to a new version, orphaning every cached page
func (c *JokePageCache) InvalidateAll(ctx context.Context) error {
	return c.rdb.Incr(ctx, keyVersion).Err()
}
