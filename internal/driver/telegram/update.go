package telegram

import (
	"context"
	"fmt"
	"time"

	"subroll/pkg/subroll"
)

// UpdateType classifies an adapter update before it becomes an event.
type UpdateType string

const (
	// UpdateTypeMessage is a newly posted chat message.
	UpdateTypeMessage UpdateType = "message"
	// UpdateTypeReactionAdd is an emoji added to a message.
	UpdateTypeReactionAdd UpdateType = "reaction_add"
	// UpdateTypeReactionRemove is an emoji withdrawn from a message.
	UpdateTypeReactionRemove UpdateType = "reaction_remove"
)

// Update is the flattened form of one gotd update.
//
// Exactly one of Message or Reaction is set, matching Type.
type Update struct {
	ID         string
	Type       UpdateType
	OccurredAt time.Time
	Chat       ChatRef
	Actor      ActorRef
	Message    *MessagePayload
	Reaction   *ReactionPayload
	Metadata   map[string]string
}

// ChatRef names the chat an update happened in.
type ChatRef struct {
	ID    string
	Title string
	Type  subroll.ConversationType
}

// ActorRef names the user behind an update.
type ActorRef struct {
	ID          string
	Username    string
	DisplayName string
	IsBot       bool
	IsSelf      bool
}

// MessagePayload is the message part of an UpdateTypeMessage update.
type MessagePayload struct {
	ID        string
	ReplyToID string
	Text      string
	Entities  []subroll.TextEntity
}

// ReactionPayload is the reaction part of a reaction update.
type ReactionPayload struct {
	MessageID string
	Emoji     string
}

// UpdateHandler receives updates from an UpdateSource.
type UpdateHandler func(ctx context.Context, update Update) error

// UpdateSource produces updates until its context ends.
type UpdateSource interface {
	Consume(ctx context.Context, handler UpdateHandler) error
}

// ChannelSource replays updates from a channel. It stops when the channel
// is closed.
type ChannelSource struct {
	Updates <-chan Update
}

// Consume implements UpdateSource.
func (s ChannelSource) Consume(ctx context.Context, handler UpdateHandler) error {
	if handler == nil {
		return fmt.Errorf("channel source: nil handler")
	}

	for {
		var (
			update Update
			ok     bool
		)
		select {
		case <-ctx.Done():
			return nil
		case update, ok = <-s.Updates:
		}
		if !ok {
			return nil
		}
		if err := handler(ctx, update); err != nil {
			return fmt.Errorf("channel source handle update %s: %w", update.Type, err)
		}
	}
}

// Decoder turns an Update into a validated event.
type Decoder interface {
	Decode(ctx context.Context, update Update) (*subroll.Event, error)
}

// DefaultDecoder maps messages and reaction deltas.
type DefaultDecoder struct{}

// NewDefaultDecoder returns the stock decoder.
func NewDefaultDecoder() DefaultDecoder {
	return DefaultDecoder{}
}

// Decode implements Decoder.
func (DefaultDecoder) Decode(_ context.Context, update Update) (*subroll.Event, error) {
	event := &subroll.Event{
		ID:         update.ID,
		OccurredAt: update.OccurredAt,
		Source:     subroll.EventSource{Platform: DriverPlatform},
		Conversation: subroll.Conversation{
			ID:    update.Chat.ID,
			Type:  update.Chat.Type,
			Title: update.Chat.Title,
		},
		Actor: subroll.Actor{
			ID:          update.Actor.ID,
			Username:    update.Actor.Username,
			DisplayName: update.Actor.DisplayName,
			IsBot:       update.Actor.IsBot,
			IsSelf:      update.Actor.IsSelf,
		},
		Metadata: update.Metadata,
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	switch update.Type {
	case UpdateTypeMessage:
		if update.Message == nil {
			return nil, fmt.Errorf("decode update %s: missing message payload", update.Type)
		}
		event.Kind = subroll.EventKindMessageCreated
		event.Message = &subroll.Message{
			ID:        update.Message.ID,
			ReplyToID: update.Message.ReplyToID,
			Text:      update.Message.Text,
			Entities:  update.Message.Entities,
		}
	case UpdateTypeReactionAdd, UpdateTypeReactionRemove:
		if update.Reaction == nil {
			return nil, fmt.Errorf("decode update %s: missing reaction payload", update.Type)
		}
		event.Kind = subroll.EventKindReactionAdded
		action := subroll.ReactionActionAdd
		if update.Type == UpdateTypeReactionRemove {
			event.Kind = subroll.EventKindReactionRemoved
			action = subroll.ReactionActionRemove
		}
		event.Reaction = &subroll.Reaction{
			MessageID: update.Reaction.MessageID,
			Emoji:     update.Reaction.Emoji,
			Action:    action,
		}
	default:
		return nil, fmt.Errorf("decode update %s: unsupported type", update.Type)
	}

	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("decode update %s: %w", update.Type, err)
	}

	return event, nil
}
