package feeds

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/samber/lo"
)

// postedSet remembers the most recent messages posted by the module.
//
// Reaction updates do not carry the message author, so membership stands in
// for "the bot wrote this message". Lookups do not refresh a key, so the
// oldest post is evicted first at capacity.
type postedSet struct {
	keys *lru.Cache[MessageKey, struct{}]
}

func newPostedSet(capacity int) *postedSet {
	if capacity <= 0 {
		capacity = DefaultPostedCapacity
	}

	return &postedSet{keys: lo.Must(lru.New[MessageKey, struct{}](capacity))}
}

func (s *postedSet) Add(key MessageKey) {
	s.keys.ContainsOrAdd(key, struct{}{})
}

func (s *postedSet) Contains(key MessageKey) bool {
	return s.keys.Contains(key)
}

func (s *postedSet) Remove(key MessageKey) {
	s.keys.Remove(key)
}

func (s *postedSet) Len() int {
	return s.keys.Len()
}
