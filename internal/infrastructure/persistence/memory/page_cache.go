package memory

import (
	"context"
	"strings"
	"time"

	"github.com/alem-hub/community-rankings/internal/domain/leaderboard"
	"github.com/alem-hub/community-rankings/pkg/ttlcache"
)

// PageCache is a process-local leaderboard.PageCache.
type PageCache struct {
	cache *ttlcache.Cache[string, *leaderboard.Page]
}

// NewPageCache creates a cache whose entries default to ttl.
func NewPageCache(ttl time.Duration, opts ...ttlcache.Option[string, *leaderboard.Page]) *PageCache {
	return &PageCache{cache: ttlcache.New[string, *leaderboard.Page](ttl, opts...)}
}

// Get implements leaderboard.PageCache.
func (c *PageCache) Get(_ context.Context, key string) (*leaderboard.Page, error) {
	page, ok := c.cache.Get(key)
	if !ok {
		return nil, leaderboard.ErrCacheMiss
	}
	return clonePage(page), nil
}

// Set implements leaderboard.PageCache.
func (c *PageCache) Set(_ context.Context, key string, page *leaderboard.Page, ttl time.Duration) error {
	c.cache.SetWithTTL(key, clonePage(page), ttl)
	return nil
}

// Sweep evicts expired pages and reports how many were removed.
func (c *PageCache) Sweep(_ context.Context) (int, error) {
	return c.cache.Sweep(), nil
}

// Invalidate drops every page whose key starts with keyPrefix; an empty
// prefix clears the cache.
func (c *PageCache) Invalidate(_ context.Context, keyPrefix string) (int, error) {
	return c.cache.DeleteFunc(func(key string) bool {
		return strings.HasPrefix(key, keyPrefix)
	}), nil
}

// Len returns the number of cached pages.
func (c *PageCache) Len() int {
	return c.cache.Len()
}

// clonePage keeps callers from mutating cached pages.
func clonePage(p *leaderboard.Page) *leaderboard.Page {
	if p == nil {
		return nil
	}
	out := *p
	out.Entries = append([]leaderboard.Entry(nil), p.Entries...)
	if p.CurrentUserEntry != nil {
		e := *p.CurrentUserEntry
		out.CurrentUserEntry = &e
	}
	return &out
}
