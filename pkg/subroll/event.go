package subroll

import (
	"fmt"
	"time"
)

// EventKind selects which payload an Event carries.
type EventKind string

const (
	EventKindMessageCreated  EventKind = "message.created"
	EventKindReactionAdded   EventKind = "reaction.added"
	EventKindReactionRemoved EventKind = "reaction.removed"
	// EventKindCommandReceived is derived by the kernel from a prefixed
	// message; drivers never publish it.
	EventKindCommandReceived EventKind = "command.received"
)

type Platform string

const PlatformTelegram Platform = "telegram"

type ConversationType string

const (
	ConversationTypePrivate ConversationType = "private"
	ConversationTypeGroup   ConversationType = "group"
	ConversationTypeChannel ConversationType = "channel"
)

// EventSource names the driver instance that published an event.
type EventSource struct {
	Platform Platform
	ID       string
}

// EventSink names the driver instance an outbound operation is routed to.
type EventSink struct {
	Platform Platform
	ID       string
}

// Event is the envelope drivers publish and modules consume. Exactly one of
// Message, Reaction or Command is expected for a given Kind, with command
// events also keeping the Message they were parsed from.
type Event struct {
	ID           string
	Kind         EventKind
	OccurredAt   time.Time
	Source       EventSource
	Conversation Conversation
	Actor        Actor
	Message      *Message
	Reaction     *Reaction
	Command      *CommandInvocation
	Metadata     map[string]string
}

// Conversation is a chat on the source platform. Title is best effort.
type Conversation struct {
	ID    string
	Type  ConversationType
	Title string
}

// Actor is whoever caused an event. IsSelf marks the account the driver is
// logged in as.
type Actor struct {
	ID          string
	Username    string
	DisplayName string
	IsBot       bool
	IsSelf      bool
}

// Message is message content. Entities index Text in code points.
type Message struct {
	ID        string
	ReplyToID string
	Text      string
	Entities  []TextEntity
}

type ReactionAction string

const (
	ReactionActionAdd    ReactionAction = "add"
	ReactionActionRemove ReactionAction = "remove"
)

// Reaction is a single emoji added to or removed from MessageID.
type Reaction struct {
	MessageID string
	Emoji     string
	Action    ReactionAction
}

// Validate checks the envelope fields and that the payload required by Kind
// is present.
func (e *Event) Validate() error {
	switch {
	case e == nil:
		return fmt.Errorf("%w: nil event", ErrInvalidEvent)
	case e.ID == "":
		return fmt.Errorf("%w: missing id", ErrInvalidEvent)
	case e.Kind == "":
		return fmt.Errorf("%w: missing kind", ErrInvalidEvent)
	case e.OccurredAt.IsZero():
		return fmt.Errorf("%w: missing occurred_at", ErrInvalidEvent)
	case e.Conversation.ID == "":
		return fmt.Errorf("%w: missing conversation id", ErrInvalidEvent)
	}

	switch e.Kind {
	case EventKindMessageCreated:
		return validateMessagePayload(e.Message)
	case EventKindReactionAdded, EventKindReactionRemoved:
		if e.Reaction == nil {
			return fmt.Errorf("%w: reaction event requires reaction payload", ErrInvalidEvent)
		}
		if e.Reaction.MessageID == "" {
			return fmt.Errorf("%w: reaction event requires message id", ErrInvalidEvent)
		}
		return nil
	case EventKindCommandReceived:
		if err := validateMessagePayload(e.Message); err != nil {
			return err
		}
		if err := e.Command.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidEvent, err)
		}
		return nil
	}

	return fmt.Errorf("%w: unsupported kind %q", ErrInvalidEvent, e.Kind)
}

func validateMessagePayload(message *Message) error {
	if message == nil {
		return fmt.Errorf("%w: message payload required", ErrInvalidEvent)
	}
	if message.ID == "" {
		return fmt.Errorf("%w: missing message id", ErrInvalidEvent)
	}
	if err := ValidateTextEntities(message.Text, message.Entities); err != nil {
		return fmt.Errorf("%w: message entities: %w", ErrInvalidEvent, err)
	}

	return nil
}
