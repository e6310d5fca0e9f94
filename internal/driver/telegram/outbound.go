package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"subroll/pkg/subroll"

	gotdtelegram "github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
)

const (
	defaultOutboundTimeout = 3 * time.Second
	// Bots and non-premium accounts may hold a single reaction per message.
	defaultReactionLimit = 1
)

// OutboundOption mutates outbound dispatcher configuration.
type OutboundOption func(*outboundConfig)

type outboundConfig struct {
	rpcTimeout    time.Duration
	logger        *slog.Logger
	sink          subroll.EventSink
	reactionLimit int
	self          *SelfIdentity
}

// WithOutboundTimeout bounds each outbound RPC call.
func WithOutboundTimeout(timeout time.Duration) OutboundOption {
	return func(cfg *outboundConfig) {
		if timeout > 0 {
			cfg.rpcTimeout = timeout
		}
	}
}

func WithOutboundLogger(logger *slog.Logger) OutboundOption {
	return func(cfg *outboundConfig) {
		cfg.logger = logger
	}
}

// WithSinkRef names the sink reported in outbound errors.
func WithSinkRef(ref subroll.EventSink) OutboundOption {
	return func(cfg *outboundConfig) {
		if ref.Platform == "" {
			ref.Platform = DriverPlatform
		}
		cfg.sink = ref
	}
}

// WithReactionLimit caps how many reactions the account keeps on one message.
func WithReactionLimit(limit int) OutboundOption {
	return func(cfg *outboundConfig) {
		if limit > 0 {
			cfg.reactionLimit = limit
		}
	}
}

// WithOutboundSelfIdentity lets reaction removals name the logged-in account.
func WithOutboundSelfIdentity(self *SelfIdentity) OutboundOption {
	return func(cfg *outboundConfig) {
		cfg.self = self
	}
}

// SinkDispatcher implements subroll.SinkDispatcher on top of the Telegram API.
type SinkDispatcher struct {
	cfg       outboundConfig
	peers     *PeerCache
	telegram  outboundRPC
	reactions *ownReactions
}

// NewOutboundDispatcher creates a dispatcher that talks to Telegram through client.
func NewOutboundDispatcher(
	client *gotdtelegram.Client,
	peers *PeerCache,
	options ...OutboundOption,
) (*SinkDispatcher, error) {
	if client == nil {
		return nil, fmt.Errorf("new telegram outbound dispatcher: nil client")
	}

	return newOutboundDispatcherWithRPC(newGotdOutboundRPC(client), peers, options...)
}

func newOutboundDispatcherWithRPC(
	rpc outboundRPC,
	peers *PeerCache,
	options ...OutboundOption,
) (*SinkDispatcher, error) {
	switch {
	case rpc == nil:
		return nil, fmt.Errorf("new telegram outbound dispatcher: nil rpc adapter")
	case peers == nil:
		return nil, fmt.Errorf("new telegram outbound dispatcher: nil peer cache")
	}

	cfg := outboundConfig{
		rpcTimeout:    defaultOutboundTimeout,
		reactionLimit: defaultReactionLimit,
		sink:          subroll.EventSink{Platform: DriverPlatform},
	}
	for _, option := range options {
		option(&cfg)
	}

	return &SinkDispatcher{
		cfg:       cfg,
		peers:     peers,
		telegram:  rpc,
		reactions: newOwnReactions(defaultReactionStateSize),
	}, nil
}

// outboundCall is one request resolved against Telegram: the peer to address
// and, for operations on an existing message, its numeric id.
type outboundCall struct {
	operation subroll.OutboundOperation
	target    subroll.OutboundTarget
	peer      tg.InputPeerClass
	messageID int
}

type validatable interface {
	Validate() error
}

func (d *SinkDispatcher) prepare(
	operation subroll.OutboundOperation,
	request validatable,
	target subroll.OutboundTarget,
	rawMessageID string,
) (outboundCall, error) {
	call := outboundCall{operation: operation, target: target}
	if err := request.Validate(); err != nil {
		return call, fmt.Errorf("%s validate: %w", operation, err)
	}
	if target.Sink != nil && target.Sink.Platform != "" && target.Sink.Platform != subroll.PlatformTelegram {
		return call, fmt.Errorf("%s: %w: platform %s", operation, subroll.ErrOutboundUnsupported, target.Sink.Platform)
	}

	peer, err := d.peers.Resolve(target.Conversation)
	if err != nil {
		return call, fmt.Errorf("%s resolve conversation %s: %w", operation, target.Conversation.ID, err)
	}
	call.peer = peer

	if rawMessageID != "" {
		if call.messageID, err = parseMessageID(rawMessageID); err != nil {
			return call, fmt.Errorf("%s parse id %s: %w", operation, rawMessageID, err)
		}
	}

	return call, nil
}

// invoke runs rpc under the dispatcher timeout and classifies its failure.
func (d *SinkDispatcher) invoke(ctx context.Context, call outboundCall, rpc func(context.Context) error) error {
	if d.cfg.rpcTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.rpcTimeout)
		defer cancel()
	}

	if err := rpc(ctx); err != nil {
		return fmt.Errorf(
			"%s in conversation %s: %w",
			call.operation,
			call.target.Conversation.ID,
			mapTelegramOutboundError(call.operation, d.cfg.sink, err),
		)
	}

	return nil
}

func (d *SinkDispatcher) logDone(ctx context.Context, call outboundCall, attrs ...any) {
	if d.cfg.logger == nil {
		return
	}

	d.cfg.logger.DebugContext(ctx, "telegram outbound operation", append([]any{
		"operation", call.operation,
		"conversation", call.target.Conversation.ID,
		"conversation_type", call.target.Conversation.Type,
	}, attrs...)...)
}

// SendMessage publishes a text message.
func (d *SinkDispatcher) SendMessage(
	ctx context.Context,
	request subroll.SendMessageRequest,
) (*subroll.OutboundMessage, error) {
	call, err := d.prepare(subroll.OutboundOperationSendMessage, request, request.Target, "")
	if err != nil {
		return nil, err
	}

	var id int
	err = d.invoke(ctx, call, func(ctx context.Context) (err error) {
		id, err = d.telegram.SendText(ctx, call.peer, request)
		return err
	})
	if err != nil {
		return nil, err
	}
	d.logDone(ctx, call,
		"message_id", id,
		"reply_to_message_id", request.ReplyToMessageID,
		"preview_url", request.PreviewURL,
	)

	return &subroll.OutboundMessage{ID: strconv.Itoa(id), Target: request.Target}, nil
}

func (d *SinkDispatcher) EditMessage(ctx context.Context, request subroll.EditMessageRequest) error {
	call, err := d.prepare(subroll.OutboundOperationEditMessage, request, request.Target, request.MessageID)
	if err != nil {
		return err
	}

	err = d.invoke(ctx, call, func(ctx context.Context) error {
		return d.telegram.EditText(ctx, call.peer, call.messageID, request)
	})
	if err != nil {
		return err
	}
	d.logDone(ctx, call, "message_id", call.messageID, "preview_url", request.PreviewURL)

	return nil
}

func (d *SinkDispatcher) DeleteMessage(ctx context.Context, request subroll.DeleteMessageRequest) error {
	call, err := d.prepare(subroll.OutboundOperationDeleteMessage, request, request.Target, request.MessageID)
	if err != nil {
		return err
	}

	err = d.invoke(ctx, call, func(ctx context.Context) error {
		return d.telegram.DeleteMessage(ctx, call.peer, call.messageID, request.Revoke)
	})
	if err != nil {
		return err
	}
	d.reactions.forget(reactionStateKey(request.Target.Conversation, request.MessageID))
	d.logDone(ctx, call, "message_id", call.messageID, "revoke", request.Revoke)

	return nil
}

// SetReaction adds or removes one of the account's own reactions. Telegram
// offers no way to retract another user's reaction, so naming a different
// actor fails with subroll.ErrOutboundUnsupported.
func (d *SinkDispatcher) SetReaction(ctx context.Context, request subroll.SetReactionRequest) error {
	call, err := d.prepare(subroll.OutboundOperationSetReaction, request, request.Target, request.MessageID)
	if err != nil {
		return err
	}
	if request.ActorID != "" && !d.cfg.self.Is(request.ActorID) {
		return fmt.Errorf("%s: %w: reaction belongs to user %s", call.operation, subroll.ErrOutboundUnsupported, request.ActorID)
	}
	if _, err := parseReaction(request.Emoji); err != nil {
		return fmt.Errorf("%s parse emoji %s: %w", call.operation, request.Emoji, err)
	}

	key := reactionStateKey(request.Target.Conversation, request.MessageID)
	next, changed := nextReactions(d.reactions.get(key), request.Action, request.Emoji, d.cfg.reactionLimit)
	if !changed {
		if d.cfg.logger != nil {
			d.cfg.logger.DebugContext(ctx, "telegram reaction unchanged",
				"conversation", request.Target.Conversation.ID,
				"message_id", call.messageID,
				"emoji", request.Emoji,
				"limit", d.cfg.reactionLimit,
			)
		}
		return nil
	}
	reactions, err := parseReactions(next)
	if err != nil {
		return fmt.Errorf("%s parse set: %w", call.operation, err)
	}

	err = d.invoke(ctx, call, func(ctx context.Context) error {
		return d.telegram.SetReaction(ctx, call.peer, call.messageID, reactions)
	})
	if err != nil {
		return err
	}
	d.reactions.set(key, next)
	d.logDone(ctx, call, "message_id", call.messageID, "action", request.Action, "emoji", request.Emoji)

	return nil
}

// ClearReactions drops every reaction the account holds on a message.
func (d *SinkDispatcher) ClearReactions(ctx context.Context, request subroll.ClearReactionsRequest) error {
	call, err := d.prepare(subroll.OutboundOperationClearReactions, request, request.Target, request.MessageID)
	if err != nil {
		return err
	}

	err = d.invoke(ctx, call, func(ctx context.Context) error {
		return d.telegram.SetReaction(ctx, call.peer, call.messageID, nil)
	})
	if err != nil {
		return err
	}
	d.reactions.forget(reactionStateKey(request.Target.Conversation, request.MessageID))
	d.logDone(ctx, call, "message_id", call.messageID)

	return nil
}

var _ subroll.SinkDispatcher = (*SinkDispatcher)(nil)
