package telegram

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/gotd/td/tg"
	"github.com/samber/lo"
)

const defaultGotdUpdateBuffer = 1024

// GotdUpdateChannel is the gotd UpdateHandler. It splits update containers
// into single envelopes and queues them for GotdSessionSource.
type GotdUpdateChannel struct {
	updates chan any
}

// NewGotdUpdateChannel creates a channel holding up to buffer envelopes.
// Non-positive sizes select the default.
func NewGotdUpdateChannel(buffer int) (*GotdUpdateChannel, error) {
	if buffer <= 0 {
		buffer = defaultGotdUpdateBuffer
	}

	return &GotdUpdateChannel{updates: make(chan any, buffer)}, nil
}

// Updates implements GotdRawUpdateStream.
func (s *GotdUpdateChannel) Updates(ctx context.Context) (<-chan any, error) {
	switch {
	case ctx == nil:
		return nil, fmt.Errorf("gotd update channel: nil context")
	case s.updates == nil:
		return nil, fmt.Errorf("gotd update channel: not initialized")
	}

	return s.updates, nil
}

// Handle implements gotd's telegram.UpdateHandler. It blocks while the
// buffer is full.
func (s *GotdUpdateChannel) Handle(ctx context.Context, updates tg.UpdatesClass) error {
	batch, err := flattenGotdUpdates(updates)
	if err != nil {
		return fmt.Errorf("handle gotd updates: %w", err)
	}

	for _, envelope := range batch {
		select {
		case <-ctx.Done():
			return fmt.Errorf("handle gotd updates: %w", ctx.Err())
		case s.updates <- envelope:
		}
	}

	return nil
}

func flattenGotdUpdates(updates tg.UpdatesClass) ([]gotdUpdateEnvelope, error) {
	switch typed := updates.(type) {
	case nil:
		return nil, fmt.Errorf("flatten gotd updates: nil updates")
	case *tg.Updates:
		return flattenGotdBatch(typed.Updates, intToTimeUTC(typed.Date), typed.Users, typed.Chats)
	case *tg.UpdatesCombined:
		return flattenGotdBatch(typed.Updates, intToTimeUTC(typed.Date), typed.Users, typed.Chats)
	case *tg.UpdateShort:
		return flattenGotdUpdate(typed.Update, intToTimeUTC(typed.Date), nil, nil)
	case *tg.UpdateShortMessage:
		message := shortMessage(typed.ID, &tg.PeerUser{UserID: typed.UserID}, typed.UserID, typed.Date, typed.Message, typed.Out)
		if replyTo, ok := typed.GetReplyTo(); ok {
			message.SetReplyTo(replyTo)
		}
		if entities, ok := typed.GetEntities(); ok {
			message.SetEntities(entities)
		}
		return []gotdUpdateEnvelope{shortMessageEnvelope(typed, message, typed.Pts, typed.PtsCount)}, nil
	case *tg.UpdateShortChatMessage:
		message := shortMessage(typed.ID, &tg.PeerChat{ChatID: typed.ChatID}, typed.FromID, typed.Date, typed.Message, typed.Out)
		if replyTo, ok := typed.GetReplyTo(); ok {
			message.SetReplyTo(replyTo)
		}
		if entities, ok := typed.GetEntities(); ok {
			message.SetEntities(entities)
		}
		return []gotdUpdateEnvelope{shortMessageEnvelope(typed, message, typed.Pts, typed.PtsCount)}, nil
	case *tg.UpdatesTooLong:
		// gotd's gap recovery refetches the difference itself.
		return nil, nil
	default:
		return nil, fmt.Errorf("flatten gotd updates %s: unsupported container", updates.TypeName())
	}
}

func flattenGotdBatch(
	updates []tg.UpdateClass,
	occurredAt time.Time,
	users []tg.UserClass,
	chats []tg.ChatClass,
) ([]gotdUpdateEnvelope, error) {
	usersByID := indexGotdUsers(users)
	chatsByID := indexGotdChats(chats)

	var batch []gotdUpdateEnvelope
	for _, update := range updates {
		envelopes, err := flattenGotdUpdate(update, occurredAt, usersByID, chatsByID)
		if err != nil {
			return nil, fmt.Errorf("flatten gotd batch: %w", err)
		}
		batch = append(batch, envelopes...)
	}

	return batch, nil
}

func flattenGotdUpdate(
	update tg.UpdateClass,
	occurredAt time.Time,
	usersByID map[int64]*tg.User,
	chatsByID map[int64]gotdChatInfo,
) ([]gotdUpdateEnvelope, error) {
	if update == nil {
		return nil, fmt.Errorf("flatten gotd update: nil update")
	}
	if reaction, ok := update.(*tg.UpdateBotMessageReaction); ok {
		return flattenBotReactionUpdate(reaction, occurredAt, usersByID, chatsByID)
	}

	return []gotdUpdateEnvelope{{
		update:      update,
		occurredAt:  occurredAt,
		usersByID:   usersByID,
		chatsByID:   chatsByID,
		updateClass: update.TypeName(),
	}}, nil
}

// shortMessage rebuilds the full message that the short update forms omit.
func shortMessage(id int, peer tg.PeerClass, fromUserID int64, date int, text string, out bool) *tg.Message {
	message := &tg.Message{
		ID:      id,
		PeerID:  peer,
		Date:    date,
		Message: text,
		Out:     out,
	}
	message.SetFromID(&tg.PeerUser{UserID: fromUserID})

	return message
}

func shortMessageEnvelope(origin tg.UpdatesClass, message *tg.Message, pts, ptsCount int) gotdUpdateEnvelope {
	return gotdUpdateEnvelope{
		update:      &tg.UpdateNewMessage{Message: message, Pts: pts, PtsCount: ptsCount},
		occurredAt:  intToTimeUTC(message.Date),
		updateClass: origin.TypeName(),
	}
}

// flattenBotReactionUpdate emits one envelope per emoji that changed,
// additions before removals, each group in emoji order.
func flattenBotReactionUpdate(
	update *tg.UpdateBotMessageReaction,
	occurredAt time.Time,
	usersByID map[int64]*tg.User,
	chatsByID map[int64]gotdChatInfo,
) ([]gotdUpdateEnvelope, error) {
	if update == nil {
		return nil, fmt.Errorf("flatten bot reaction update: nil update")
	}

	added, removed := lo.Difference(reactionEmojis(update.NewReactions), reactionEmojis(update.OldReactions))
	envelopes := make([]gotdUpdateEnvelope, 0, len(added)+len(removed))
	appendDelta := func(action UpdateType, emoji string) {
		envelopes = append(envelopes, gotdUpdateEnvelope{
			update:      update,
			occurredAt:  occurredAt,
			usersByID:   usersByID,
			chatsByID:   chatsByID,
			updateClass: update.TypeName(),
			reaction: &gotdReactionDelta{
				action:    action,
				messageID: update.MsgID,
				emoji:     emoji,
				actor:     update.Actor,
				peer:      update.Peer,
			},
		})
	}
	for _, emoji := range added {
		appendDelta(UpdateTypeReactionAdd, emoji)
	}
	for _, emoji := range removed {
		appendDelta(UpdateTypeReactionRemove, emoji)
	}

	return envelopes, nil
}

// reactionEmojis returns the distinct non-empty emoji in sorted order.
func reactionEmojis(reactions []tg.ReactionClass) []string {
	emojis := lo.Uniq(lo.FilterMap(reactions, func(reaction tg.ReactionClass, _ int) (string, bool) {
		emoji := reactionToEmoji(reaction)
		return emoji, emoji != ""
	}))
	slices.Sort(emojis)

	return emojis
}
