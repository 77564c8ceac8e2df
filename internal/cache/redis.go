// Package cache keeps fetched pages in Redis so re-runs of a backfill do not
// hit the source site again.
package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

const pagePrefix = "diamond:page:"

// PageCache stores raw page markup keyed by URL.
type PageCache struct {
	client *redis.Client
}

// NewPageCache connects and pings Redis.
func NewPageCache(redisURL string) (*PageCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return &PageCache{client: client}, nil
}

// NewPageCacheFromClient wraps an existing client.
func NewPageCacheFromClient(client *redis.Client) *PageCache {
	return &PageCache{client: client}
}

func (c *PageCache) Close() error {
	return c.client.Close()
}

// Client returns the underlying Redis client.
func (c *PageCache) Client() *redis.Client {
	return c.client
}

func (c *PageCache) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// GetPage reports ok=false on a miss.
func (c *PageCache) GetPage(ctx context.Context, url string) (string, bool, error) {
	body, err := c.client.Get(ctx, PageKey(url)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "get cached page %s", url)
	}
	return body, true, nil
}

// PutPage stores body; a zero ttl keeps it until evicted.
func (c *PageCache) PutPage(ctx context.Context, url, body string, ttl time.Duration) error {
	if err := c.client.Set(ctx, PageKey(url), body, ttl).Err(); err != nil {
		return errors.Wrapf(err, "cache page %s", url)
	}
	return nil
}

// Forget drops cached pages, e.g. ones that no longer parse.
func (c *PageCache) Forget(ctx context.Context, urls ...string) error {
	keys := make([]string, len(urls))
	for i, u := range urls {
		keys[i] = PageKey(u)
	}
	return c.client.Del(ctx, keys...).Err()
}

// PageKey hashes the URL so keys stay short and free of separators.
func PageKey(url string) string {
	return pagePrefix + strconv.FormatUint(xxhash.Sum64String(url), 16)
}
