package feeds

import (
	"math/rand/v2"
)

// FeedLister lists the feeds of one channel.
type FeedLister interface {
	ListFeeds(key ChannelKey) []string
}

// FeedReader reads cached entries without refreshing them.
type FeedReader interface {
	Lookup(feed string) (CacheEntry, bool)
}

// SelectorOption mutates selector configuration.
type SelectorOption func(*Selector)

// WithIntN replaces the random source. intN must return a value in [0, n).
func WithIntN(intN func(n int) int) SelectorOption {
	return func(selector *Selector) {
		if intN != nil {
			selector.intN = intN
		}
	}
}

// Selector draws a random cached item for a channel.
//
// The draw is two-stage: a uniform feed, then a uniform item of that feed, so
// items of smaller feeds are picked more often than items of larger ones.
type Selector struct {
	feeds FeedLister
	cache FeedReader
	intN  func(n int) int
}

// NewSelector creates a selector over a registry and a cache.
func NewSelector(feeds FeedLister, cache FeedReader, options ...SelectorOption) *Selector {
	selector := &Selector{
		feeds: feeds,
		cache: cache,
		intN:  rand.IntN,
	}
	for _, option := range options {
		option(selector)
	}

	return selector
}

// Pick returns a random item for key, or false when nothing is cached for the drawn feed.
func (s *Selector) Pick(key ChannelKey) (FeedItem, bool) {
	feeds := s.feeds.ListFeeds(key)
	if len(feeds) == 0 {
		return FeedItem{}, false
	}

	entry, ok := s.cache.Lookup(feeds[s.intN(len(feeds))])
	if !ok || len(entry.Items) == 0 {
		return FeedItem{}, false
	}

	return entry.Items[s.intN(len(entry.Items))], true
}
