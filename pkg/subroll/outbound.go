package subroll

import (
	"context"
	"fmt"
	"net/url"
)

// ServiceSinkDispatcher is the service key of the SinkDispatcher.
const ServiceSinkDispatcher = "subroll.sink_dispatcher"

// SinkDispatcher performs outbound operations on a chat platform. Requests
// are validated before they reach a sink; sinks add platform limits on top.
type SinkDispatcher interface {
	SendMessage(ctx context.Context, request SendMessageRequest) (*OutboundMessage, error)
	EditMessage(ctx context.Context, request EditMessageRequest) error
	DeleteMessage(ctx context.Context, request DeleteMessageRequest) error
	// SetReaction adds the sink's own reaction, or removes the reaction of
	// ActorID when set.
	SetReaction(ctx context.Context, request SetReactionRequest) error
	// ClearReactions removes every reaction the sink controls on a message.
	ClearReactions(ctx context.Context, request ClearReactionsRequest) error
}

// OutboundTarget is the destination of an outbound operation. A nil Sink
// leaves the choice to the dispatcher's default route.
type OutboundTarget struct {
	Conversation Conversation
	Sink         *EventSink
}

func (t OutboundTarget) Validate() error {
	switch {
	case t.Conversation.ID == "":
		return fmt.Errorf("%w: missing conversation id", ErrInvalidOutboundRequest)
	case t.Conversation.Type == "":
		return fmt.Errorf("%w: missing conversation type", ErrInvalidOutboundRequest)
	case t.Sink != nil && t.Sink.Platform == "" && t.Sink.ID == "":
		return fmt.Errorf("%w: missing sink identity", ErrInvalidOutboundRequest)
	}

	return nil
}

// OutboundTargetFromEvent addresses a reply to the conversation and sink an
// event came from.
func OutboundTargetFromEvent(event *Event) (OutboundTarget, error) {
	if event == nil {
		return OutboundTarget{}, fmt.Errorf("%w: nil event", ErrInvalidOutboundRequest)
	}

	target := OutboundTarget{Conversation: event.Conversation}
	if source := event.Source; source.Platform != "" || source.ID != "" {
		target.Sink = &EventSink{Platform: source.Platform, ID: source.ID}
	}
	if err := target.Validate(); err != nil {
		return OutboundTarget{}, fmt.Errorf("derive target from event %s: %w", event.Kind, err)
	}

	return target, nil
}

// OutboundMessage is a message the dispatcher delivered. ID is assigned by
// the platform.
type OutboundMessage struct {
	ID     string
	Target OutboundTarget
}

// SendMessageRequest posts a new text message. PreviewURL pins the link
// preview to one absolute URL and cannot be combined with
// DisableLinkPreview.
type SendMessageRequest struct {
	Target             OutboundTarget
	Text               string
	Entities           []TextEntity
	ReplyToMessageID   string
	PreviewURL         string
	DisableLinkPreview bool
	Silent             bool
}

func (r SendMessageRequest) Validate() error {
	if err := r.Target.Validate(); err != nil {
		return fmt.Errorf("validate send message target: %w", err)
	}

	return validateMessageBody("send", r.Text, r.Entities, r.PreviewURL, r.DisableLinkPreview)
}

// EditMessageRequest replaces the text of a message the sink posted.
type EditMessageRequest struct {
	Target             OutboundTarget
	MessageID          string
	Text               string
	Entities           []TextEntity
	PreviewURL         string
	DisableLinkPreview bool
}

func (r EditMessageRequest) Validate() error {
	if err := validateMessageRef("edit message", r.Target, r.MessageID); err != nil {
		return err
	}

	return validateMessageBody("edit", r.Text, r.Entities, r.PreviewURL, r.DisableLinkPreview)
}

// DeleteMessageRequest removes a message. Revoke deletes it for everyone.
type DeleteMessageRequest struct {
	Target    OutboundTarget
	MessageID string
	Revoke    bool
}

func (r DeleteMessageRequest) Validate() error {
	return validateMessageRef("delete message", r.Target, r.MessageID)
}

// SetReactionRequest adds or removes one reaction. Only removals may name
// another ActorID; an empty ActorID means the sink's own account.
type SetReactionRequest struct {
	Target    OutboundTarget
	MessageID string
	Emoji     string
	Action    ReactionAction
	ActorID   string
}

func (r SetReactionRequest) Validate() error {
	if err := validateMessageRef("set reaction", r.Target, r.MessageID); err != nil {
		return err
	}

	switch {
	case r.Action != ReactionActionAdd && r.Action != ReactionActionRemove:
		return fmt.Errorf("%w: unsupported reaction action %q", ErrInvalidOutboundRequest, r.Action)
	case r.Emoji == "":
		return fmt.Errorf("%w: missing reaction emoji", ErrInvalidOutboundRequest)
	case r.Action == ReactionActionAdd && r.ActorID != "":
		return fmt.Errorf("%w: cannot add a reaction on behalf of %s", ErrInvalidOutboundRequest, r.ActorID)
	}

	return nil
}

// ClearReactionsRequest removes all reactions from a message.
type ClearReactionsRequest struct {
	Target    OutboundTarget
	MessageID string
}

func (r ClearReactionsRequest) Validate() error {
	return validateMessageRef("clear reactions", r.Target, r.MessageID)
}

func validateMessageRef(operation string, target OutboundTarget, messageID string) error {
	if err := target.Validate(); err != nil {
		return fmt.Errorf("validate %s target: %w", operation, err)
	}
	if messageID == "" {
		return fmt.Errorf("%w: missing message id", ErrInvalidOutboundRequest)
	}

	return nil
}

func validateMessageBody(operation, text string, entities []TextEntity, previewURL string, noPreview bool) error {
	if text == "" {
		return fmt.Errorf("%w: missing message text", ErrInvalidOutboundRequest)
	}
	if err := ValidateTextEntities(text, entities); err != nil {
		return fmt.Errorf("%w: validate %s message entities: %w", ErrInvalidOutboundRequest, operation, err)
	}
	if previewURL == "" {
		return nil
	}
	if noPreview {
		return fmt.Errorf("%w: preview url set while link preview is disabled", ErrInvalidOutboundRequest)
	}
	parsed, err := url.Parse(previewURL)
	if err != nil {
		return fmt.Errorf("%w: parse preview url: %w", ErrInvalidOutboundRequest, err)
	}
	if !parsed.IsAbs() || parsed.Host == "" {
		return fmt.Errorf("%w: preview url %q is not absolute", ErrInvalidOutboundRequest, previewURL)
	}

	return nil
}
