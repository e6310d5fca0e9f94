package feeds

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Populator walks a feed into items.
type Populator interface {
	Populate(ctx context.Context, feed string, pages int) ([]FeedItem, error)
}

// CacheEntry is the cached item list of one feed.
//
// Items is never empty and must not be mutated by callers.
type CacheEntry struct {
	Feed        string
	Items       []FeedItem
	RefreshedAt time.Time
}

// CacheOption mutates cache configuration.
type CacheOption func(*Cache)

// WithCacheClock replaces the time source used for freshness checks.
func WithCacheClock(clock func() time.Time) CacheOption {
	return func(cache *Cache) {
		if clock != nil {
			cache.clock = clock
		}
	}
}

// Cache keeps one time-bounded entry per feed.
//
// Refreshes of the same feed are not deduplicated.
type Cache struct {
	populator Populator
	depth     int
	ttl       time.Duration
	clock     func() time.Time

	mu      sync.RWMutex
	entries map[string]CacheEntry
}

// NewCache creates a cache that populates feeds at depth pages and serves them for ttl.
func NewCache(populator Populator, depth int, ttl time.Duration, options ...CacheOption) *Cache {
	cache := &Cache{
		populator: populator,
		depth:     depth,
		ttl:       ttl,
		clock:     time.Now,
		entries:   make(map[string]CacheEntry),
	}
	for _, option := range options {
		option(cache)
	}

	return cache
}

// GetOrRefresh returns the fresh entry for feed, populating it when missing or stale.
//
// A failed population keeps any previous entry and returns a *PopulationError.
func (c *Cache) GetOrRefresh(ctx context.Context, feed string) (CacheEntry, error) {
	now := c.clock()
	c.mu.RLock()
	entry, ok := c.entries[feed]
	c.mu.RUnlock()
	if ok && now.Sub(entry.RefreshedAt) < c.ttl {
		feedCacheLookups.WithLabelValues(resultHit).Inc()
		return entry, nil
	}

	items, err := c.populator.Populate(ctx, feed, c.depth)
	switch {
	case err != nil:
		feedCacheLookups.WithLabelValues(resultFailed).Inc()
		feedPopulations.WithLabelValues(populationResult(err)).Inc()
		return CacheEntry{}, &PopulationError{Feed: feed, Err: err}
	case len(items) == 0:
		feedCacheLookups.WithLabelValues(resultFailed).Inc()
		feedPopulations.WithLabelValues(resultEmpty).Inc()
		return CacheEntry{}, &PopulationError{Feed: feed, Err: ErrNoItems}
	}

	entry = CacheEntry{
		Feed:        feed,
		Items:       items,
		RefreshedAt: c.clock(),
	}
	c.mu.Lock()
	c.entries[feed] = entry
	c.mu.Unlock()

	feedCacheLookups.WithLabelValues(resultRefresh).Inc()
	feedPopulations.WithLabelValues(resultOK).Inc()
	feedCachedItems.WithLabelValues(feed).Set(float64(len(items)))

	return entry, nil
}

// Lookup returns the entry for feed without refreshing it, even when stale.
func (c *Cache) Lookup(feed string) (CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[feed]

	return entry, ok
}

func populationResult(err error) string {
	if errors.Is(err, ErrEmptyFeed) {
		return resultEmpty
	}

	return resultError
}
