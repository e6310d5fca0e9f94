package feeds

import (
	"context"
	"errors"
	"fmt"

	"subroll/pkg/subroll"
)

type reactionAction string

const (
	reactionActionReroll  reactionAction = "reroll"
	reactionActionConfirm reactionAction = "confirm"
	reactionActionDelete  reactionAction = "delete"
)

func (m *Module) actionFor(emoji string) (reactionAction, bool) {
	switch emoji {
	case m.cfg.Reactions.Reroll:
		return reactionActionReroll, true
	case m.cfg.Reactions.Confirm:
		return reactionActionConfirm, true
	case m.cfg.Reactions.Delete:
		return reactionActionDelete, true
	default:
		return "", false
	}
}

// handleReaction routes one control reaction on a posted item.
//
// Action failures are logged and never returned.
func (m *Module) handleReaction(ctx context.Context, event *subroll.Event) error {
	if event == nil || event.Reaction == nil || event.Kind != subroll.EventKindReactionAdded {
		return nil
	}
	if event.Actor.IsSelf {
		return nil
	}

	channel, err := ChannelKeyFromEvent(event)
	if err != nil {
		return nil
	}
	key := MessageKey{Channel: channel, MessageID: event.Reaction.MessageID}
	if !m.posted.Contains(key) {
		return nil
	}
	action, ok := m.actionFor(event.Reaction.Emoji)
	if !ok {
		return nil
	}
	target, err := subroll.OutboundTargetFromEvent(event)
	if err != nil {
		m.log().WarnContext(ctx, "feeds reaction target", "error", err)
		return nil
	}

	if !m.gate.TryAcquire(key) {
		m.retract(ctx, event, target)
		return nil
	}

	reactionActions.WithLabelValues(string(action)).Inc()
	if err := m.dispatchReaction(ctx, action, key, target); err != nil {
		m.log().WarnContext(ctx, "feeds reaction action failed",
			"action", string(action),
			"conversation", channel.Channel,
			"message_id", key.MessageID,
			"error", err,
		)
	}

	return nil
}

func (m *Module) dispatchReaction(
	ctx context.Context,
	action reactionAction,
	key MessageKey,
	target subroll.OutboundTarget,
) error {
	switch action {
	case reactionActionDelete:
		err := m.sink.DeleteMessage(ctx, subroll.DeleteMessageRequest{
			Target:    target,
			MessageID: key.MessageID,
			Revoke:    true,
		})
		if err != nil {
			return fmt.Errorf("delete message: %w", err)
		}
		m.posted.Remove(key)
	case reactionActionConfirm:
		if err := m.postItem(ctx, key.Channel, target); err != nil {
			return err
		}
		err := m.sink.ClearReactions(ctx, subroll.ClearReactionsRequest{
			Target:    target,
			MessageID: key.MessageID,
		})
		if err != nil {
			return fmt.Errorf("clear reactions: %w", err)
		}
	case reactionActionReroll:
		return m.rerollItem(ctx, key, target)
	}

	return nil
}

// retract removes the reaction of a user who reacted while the message was locked.
func (m *Module) retract(ctx context.Context, event *subroll.Event, target subroll.OutboundTarget) {
	err := m.sink.SetReaction(ctx, subroll.SetReactionRequest{
		Target:    target,
		MessageID: event.Reaction.MessageID,
		Emoji:     event.Reaction.Emoji,
		Action:    subroll.ReactionActionRemove,
		ActorID:   event.Actor.ID,
	})
	switch {
	case err == nil:
	case errors.Is(err, subroll.ErrOutboundUnsupported):
		m.log().DebugContext(ctx, "feeds reaction retraction unsupported by sink",
			"conversation", event.Conversation.ID,
			"message_id", event.Reaction.MessageID,
			"actor", event.Actor.ID,
		)
	default:
		m.log().WarnContext(ctx, "feeds reaction retraction failed",
			"conversation", event.Conversation.ID,
			"message_id", event.Reaction.MessageID,
			"error", err,
		)
	}
}

// postItem posts a random item for key with control reactions.
//
// Nothing is posted when no item can be picked.
func (m *Module) postItem(ctx context.Context, key ChannelKey, target subroll.OutboundTarget) error {
	item, ok := m.selector.Pick(key)
	if !ok {
		m.log().DebugContext(ctx, "feeds nothing to post",
			"tenant", key.Tenant,
			"conversation", key.Channel,
		)
		return nil
	}

	rendered := renderItem(item)
	var sent *subroll.OutboundMessage
	err := retryOutbound(ctx, func() error {
		var sendErr error
		sent, sendErr = m.sink.SendMessage(ctx, subroll.SendMessageRequest{
			Target:     target,
			Text:       rendered.Text,
			Entities:   rendered.Entities,
			PreviewURL: rendered.PreviewURL,
		})
		return sendErr
	})
	if err != nil {
		return fmt.Errorf("post item: %w", err)
	}
	if sent == nil {
		return fmt.Errorf("post item: sink returned no message")
	}

	posted := MessageKey{Channel: key, MessageID: sent.ID}
	m.posted.Add(posted)
	m.attachControls(ctx, posted, target)

	return nil
}

// rerollItem replaces the item shown by an existing message.
func (m *Module) rerollItem(ctx context.Context, key MessageKey, target subroll.OutboundTarget) error {
	item, ok := m.selector.Pick(key.Channel)
	if !ok {
		return nil
	}

	rendered := renderItem(item)
	err := retryOutbound(ctx, func() error {
		return m.sink.EditMessage(ctx, subroll.EditMessageRequest{
			Target:     target,
			MessageID:  key.MessageID,
			Text:       rendered.Text,
			Entities:   rendered.Entities,
			PreviewURL: rendered.PreviewURL,
		})
	})
	if err != nil {
		return fmt.Errorf("edit item: %w", err)
	}
	m.attachControls(ctx, key, target)

	return nil
}

func (m *Module) attachControls(ctx context.Context, key MessageKey, target subroll.OutboundTarget) {
	controls := m.cfg.Reactions.Ordered()
	if limit := m.cfg.ControlLimit; limit > 0 && limit < len(controls) {
		m.log().DebugContext(ctx, "feeds control reactions limited",
			"message_id", key.MessageID,
			"limit", limit,
			"skipped", controls[limit:],
		)
		controls = controls[:limit]
	}

	for _, emoji := range controls {
		err := retryOutbound(ctx, func() error {
			return m.sink.SetReaction(ctx, subroll.SetReactionRequest{
				Target:    target,
				MessageID: key.MessageID,
				Emoji:     emoji,
				Action:    subroll.ReactionActionAdd,
			})
		})
		if err != nil {
			m.log().WarnContext(ctx, "feeds attach control reaction failed",
				"emoji", emoji,
				"message_id", key.MessageID,
				"error", err,
			)
		}
	}
}
