package fetch

import (
	"context"
	"time"

	"github.com/fortuna/diamond/internal/ingest/bbref"
	"github.com/fortuna/diamond/internal/logging"
)

// PageStore is the subset of cache.PageCache the decorator needs.
type PageStore interface {
	GetPage(ctx context.Context, url string) (string, bool, error)
	PutPage(ctx context.Context, url, body string, ttl time.Duration) error
	Forget(ctx context.Context, urls ...string) error
}

// Cached serves pages from a store and fills it on a miss. Store failures
// are logged and fall through to the wrapped fetcher.
type Cached struct {
	next  bbref.Fetcher
	store PageStore
	ttl   time.Duration
	log   *logging.Logger
}

func NewCached(next bbref.Fetcher, store PageStore, ttl time.Duration, log *logging.Logger) *Cached {
	return &Cached{next: next, store: store, ttl: ttl, log: log.Component("fetch")}
}

func (c *Cached) Fetch(ctx context.Context, url string) (string, error) {
	body, ok, err := c.store.GetPage(ctx, url)
	if err != nil {
		c.log.Warn("page cache read failed", "url", url, "err", err)
	} else if ok {
		return body, nil
	}

	body, err = c.next.Fetch(ctx, url)
	if err != nil {
		return "", err
	}
	if err := c.store.PutPage(ctx, url, body, c.ttl); err != nil {
		c.log.Warn("page cache write failed", "url", url, "err", err)
	}
	return body, nil
}

// Invalidate evicts url so the next Fetch goes to the site again.
func (c *Cached) Invalidate(ctx context.Context, url string) {
	if err := c.store.Forget(ctx, url); err != nil {
		c.log.Warn("page cache evict failed", "url", url, "err", err)
	}
}
