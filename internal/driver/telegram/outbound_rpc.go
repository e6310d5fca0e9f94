package telegram

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"subroll/pkg/subroll"

	"github.com/gotd/td/crypto"
	gotdtelegram "github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/telegram/message/unpack"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
)

// outboundRPC is the slice of the Telegram API the dispatcher needs.
type outboundRPC interface {
	SendText(ctx context.Context, peer tg.InputPeerClass, request subroll.SendMessageRequest) (int, error)
	EditText(ctx context.Context, peer tg.InputPeerClass, messageID int, request subroll.EditMessageRequest) error
	DeleteMessage(ctx context.Context, peer tg.InputPeerClass, messageID int, revoke bool) error
	SetReaction(ctx context.Context, peer tg.InputPeerClass, messageID int, reactions []tg.ReactionClass) error
}

type gotdOutboundRPC struct {
	api    *tg.Client
	random io.Reader
	sender *message.Sender
}

func newGotdOutboundRPC(client *gotdtelegram.Client) gotdOutboundRPC {
	api := client.API()

	return gotdOutboundRPC{api: api, random: crypto.DefaultRand(), sender: message.NewSender(api)}
}

func (r gotdOutboundRPC) SendText(
	ctx context.Context,
	peer tg.InputPeerClass,
	request subroll.SendMessageRequest,
) (int, error) {
	entities, err := mapOutboundTextEntities(request.Text, request.Entities)
	if err != nil {
		return 0, fmt.Errorf("map outbound entities: %w", err)
	}
	replyTo, err := replyHeader(request.ReplyToMessageID)
	if err != nil {
		return 0, err
	}
	randomID, err := crypto.RandInt64(r.random)
	if err != nil {
		return 0, fmt.Errorf("send text random id: %w", err)
	}

	var updates tg.UpdatesClass
	if request.PreviewURL == "" {
		updates, err = r.api.MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
			Peer:      peer,
			ReplyTo:   replyTo,
			Message:   request.Text,
			NoWebpage: request.DisableLinkPreview,
			Silent:    request.Silent,
			Entities:  entities,
			RandomID:  randomID,
		})
	} else {
		// The preview is pinned to PreviewURL instead of the first link in the text.
		updates, err = r.api.MessagesSendMedia(ctx, &tg.MessagesSendMediaRequest{
			Peer:     peer,
			ReplyTo:  replyTo,
			Media:    webPageMedia(request.PreviewURL),
			Message:  request.Text,
			Silent:   request.Silent,
			Entities: entities,
			RandomID: randomID,
		})
	}
	if err != nil {
		return 0, fmt.Errorf("send text: %w", err)
	}

	id, err := unpack.MessageID(updates, nil)
	if err != nil {
		return 0, fmt.Errorf("extract sent message id: %w", err)
	}

	return id, nil
}

func (r gotdOutboundRPC) EditText(
	ctx context.Context,
	peer tg.InputPeerClass,
	messageID int,
	request subroll.EditMessageRequest,
) error {
	entities, err := mapOutboundTextEntities(request.Text, request.Entities)
	if err != nil {
		return fmt.Errorf("map outbound entities: %w", err)
	}

	edit := &tg.MessagesEditMessageRequest{
		Peer:      peer,
		ID:        messageID,
		Message:   request.Text,
		NoWebpage: request.DisableLinkPreview,
		Entities:  entities,
	}
	if request.PreviewURL != "" {
		edit.Media = webPageMedia(request.PreviewURL)
	}

	_, err = r.api.MessagesEditMessage(ctx, edit)
	switch {
	case err == nil, tgerr.Is(err, "MESSAGE_NOT_MODIFIED"):
		// A reroll that lands on the same post leaves the message unchanged.
		return nil
	default:
		return fmt.Errorf("edit text: %w", err)
	}
}

func (r gotdOutboundRPC) DeleteMessage(
	ctx context.Context,
	peer tg.InputPeerClass,
	messageID int,
	revoke bool,
) error {
	var err error
	switch _, isChannel := peer.(*tg.InputPeerChannel); {
	case revoke:
		_, err = r.sender.To(peer).Revoke().Messages(ctx, messageID)
	case isChannel:
		return fmt.Errorf("%w: channel messages are always deleted for everyone", subroll.ErrOutboundUnsupported)
	default:
		_, err = r.sender.Delete().Messages(ctx, messageID)
	}
	if err != nil {
		return fmt.Errorf("delete message (revoke=%t): %w", revoke, err)
	}

	return nil
}

func (r gotdOutboundRPC) SetReaction(
	ctx context.Context,
	peer tg.InputPeerClass,
	messageID int,
	reactions []tg.ReactionClass,
) error {
	if _, err := r.sender.To(peer).Reaction(ctx, messageID, reactions...); err != nil {
		return fmt.Errorf("set reaction: %w", err)
	}

	return nil
}

func replyHeader(rawID string) (tg.InputReplyToClass, error) {
	if rawID == "" {
		return nil, nil
	}
	id, err := parseMessageID(rawID)
	if err != nil {
		return nil, fmt.Errorf("send text parse reply id %s: %w", rawID, err)
	}

	return &tg.InputReplyToMessage{ReplyToMsgID: id}, nil
}

func webPageMedia(rawURL string) *tg.InputMediaWebPage {
	return &tg.InputMediaWebPage{URL: rawURL, ForceLargeMedia: true, Optional: true}
}

func parseMessageID(raw string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(raw))
	switch {
	case err != nil:
		return 0, fmt.Errorf("%w: invalid message id: %w", subroll.ErrInvalidOutboundRequest, err)
	case id <= 0:
		return 0, fmt.Errorf("%w: message id %d is not positive", subroll.ErrInvalidOutboundRequest, id)
	}

	return id, nil
}

// parseReaction accepts a plain emoji, "paid" or "custom:<document id>".
func parseReaction(raw string) (tg.ReactionClass, error) {
	emoji := strings.TrimSpace(raw)
	if emoji == "" {
		return nil, fmt.Errorf("%w: empty emoji", subroll.ErrInvalidOutboundRequest)
	}
	if emoji == "paid" {
		return &tg.ReactionPaid{}, nil
	}
	documentID, custom := strings.CutPrefix(emoji, "custom:")
	if !custom {
		return &tg.ReactionEmoji{Emoticon: emoji}, nil
	}

	id, err := strconv.ParseInt(documentID, 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("%w: invalid custom reaction id %q", subroll.ErrInvalidOutboundRequest, documentID)
	}

	return &tg.ReactionCustomEmoji{DocumentID: id}, nil
}

func parseReactions(emojis []string) ([]tg.ReactionClass, error) {
	reactions := make([]tg.ReactionClass, 0, len(emojis))
	for _, emoji := range emojis {
		reaction, err := parseReaction(emoji)
		if err != nil {
			return nil, err
		}
		reactions = append(reactions, reaction)
	}

	return reactions, nil
}
