// Package feeds lets a chat subscribe to subreddit listings and post random
// cached items.
//
// A Fetcher walks listing pages into FeedItems, a Cache keeps one item list per
// feed for a TTL, a Registry maps channels to feed names, and a Selector draws
// an item for a channel. Posted items carry control reactions that re-roll,
// confirm, or delete them; a Gate serializes those reactions per message.
package feeds
