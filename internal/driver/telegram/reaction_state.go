package telegram

import (
	"slices"

	"subroll/pkg/subroll"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/samber/lo"
)

const defaultReactionStateSize = 4096

// ownReactions tracks the reaction set the account holds on each message.
// Telegram replaces the whole set on every call, so adding one emoji needs the
// previous ones. Messages untouched for longest are forgotten first.
type ownReactions struct {
	byMessage *lru.Cache[string, []string]
}

func newOwnReactions(size int) *ownReactions {
	return &ownReactions{byMessage: lo.Must(lru.New[string, []string](size))}
}

func (r *ownReactions) get(key string) []string {
	emojis, _ := r.byMessage.Get(key)

	return slices.Clone(emojis)
}

// set stores emojis for key; an empty set forgets the message.
func (r *ownReactions) set(key string, emojis []string) {
	if len(emojis) == 0 {
		r.forget(key)
		return
	}
	r.byMessage.Add(key, slices.Clone(emojis))
}

func (r *ownReactions) forget(key string) {
	r.byMessage.Remove(key)
}

// nextReactions computes the set that results from applying action to current. It
// reports false when nothing would change.
func nextReactions(current []string, action subroll.ReactionAction, emoji string, limit int) ([]string, bool) {
	switch action {
	case subroll.ReactionActionAdd:
		if slices.Contains(current, emoji) || len(current) >= limit {
			return current, false
		}
		return append(slices.Clone(current), emoji), true
	case subroll.ReactionActionRemove:
		return lo.Without(current, emoji), true
	default:
		return current, false
	}
}

func reactionStateKey(conversation subroll.Conversation, messageID string) string {
	scope := "chat"
	if conversation.Type == subroll.ConversationTypePrivate {
		scope = "user"
	}

	return scope + ":" + conversation.ID + ":" + messageID
}
