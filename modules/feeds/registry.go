package feeds

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/samber/lo"
)

// FeedStore is the cache surface used by the registry.
type FeedStore interface {
	GetOrRefresh(ctx context.Context, feed string) (CacheEntry, error)
	Lookup(feed string) (CacheEntry, bool)
}

// AddResult reports the outcome of AddFeeds.
type AddResult struct {
	// Accepted are the names kept in the subscription, in request order.
	Accepted []string
	// Rejected are the names removed because their feed is empty or missing.
	Rejected []string
}

// Registry maps channels to the feeds they subscribe to.
type Registry struct {
	store  FeedStore
	logger *slog.Logger

	mu       sync.RWMutex
	channels map[ChannelKey][]string
}

// NewRegistry creates an empty registry backed by store.
func NewRegistry(store FeedStore, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		store:    store,
		logger:   logger,
		channels: make(map[ChannelKey][]string),
	}
}

// NormalizeFeedNames trims names, strips an r/ prefix and drops empties and duplicates.
func NormalizeFeedNames(names []string) []string {
	normalized := lo.Map(names, func(name string, _ int) string {
		trimmed := strings.TrimSpace(name)
		trimmed = strings.TrimPrefix(trimmed, "/")
		trimmed = strings.TrimPrefix(trimmed, "r/")

		return strings.Trim(trimmed, "/")
	})

	return lo.Uniq(lo.Compact(normalized))
}

// AddFeeds subscribes key to names and populates each feed one at a time.
//
// Names are added before population so a concurrent listing already shows them.
// Feeds failing with ErrEmptyFeed are removed again and reported as rejected.
func (r *Registry) AddFeeds(ctx context.Context, key ChannelKey, names []string) AddResult {
	normalized := NormalizeFeedNames(names)

	r.mu.Lock()
	feeds, exists := r.channels[key]
	if !exists {
		feeds = make([]string, 0, len(normalized))
	}
	for _, name := range normalized {
		if !lo.Contains(feeds, name) {
			feeds = append(feeds, name)
		}
	}
	r.channels[key] = feeds
	r.mu.Unlock()

	result := AddResult{
		Accepted: make([]string, 0, len(normalized)),
		Rejected: make([]string, 0),
	}
	for _, name := range normalized {
		_, err := r.store.GetOrRefresh(ctx, name)
		switch {
		case err == nil:
			result.Accepted = append(result.Accepted, name)
		case errors.Is(err, ErrEmptyFeed):
			r.RemoveFeed(key, name)
			result.Rejected = append(result.Rejected, name)
		default:
			r.logger.WarnContext(ctx, "feed population failed, keeping subscription",
				"feed", name,
				"tenant", key.Tenant,
				"conversation", key.Channel,
				"error", err,
			)
			result.Accepted = append(result.Accepted, name)
		}
	}

	return result
}

// RemoveFeed unsubscribes key from name and reports whether it was subscribed.
func (r *Registry) RemoveFeed(key ChannelKey, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	feeds, exists := r.channels[key]
	if !exists || !lo.Contains(feeds, name) {
		return false
	}
	r.channels[key] = lo.Without(feeds, name)

	return true
}

// ListFeeds returns the subscribed feeds of key, most recently added first.
func (r *Registry) ListFeeds(key ChannelKey) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Reverse(append([]string(nil), r.channels[key]...))
}

// HasChannel reports whether key has ever subscribed to a feed.
func (r *Registry) HasChannel(key ChannelKey) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.channels[key]

	return exists
}

// StatsCount sums cached item counts across the subscribed feeds of key.
//
// Feeds without a cache entry count as zero and are not refreshed.
func (r *Registry) StatsCount(key ChannelKey) int {
	feeds := r.ListFeeds(key)

	return lo.SumBy(feeds, func(feed string) int {
		entry, ok := r.store.Lookup(feed)
		if !ok {
			return 0
		}

		return len(entry.Items)
	})
}
