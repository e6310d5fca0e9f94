package telegram

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"subroll/pkg/subroll"

	"github.com/gotd/td/tg"
)

const unknownPeerID = "unknown"

// DefaultGotdUpdateMapper turns gotd updates into adapter updates. New
// messages and bot reaction deltas are accepted; everything else is skipped.
type DefaultGotdUpdateMapper struct {
	peerCache *PeerCache
	self      *SelfIdentity
	logger    *slog.Logger
}

// GotdUpdateMapperOption configures a DefaultGotdUpdateMapper.
type GotdUpdateMapperOption func(*DefaultGotdUpdateMapper)

// WithPeerCache makes the mapper record input peers for outbound dispatch.
func WithPeerCache(cache *PeerCache) GotdUpdateMapperOption {
	return func(mapper *DefaultGotdUpdateMapper) {
		if cache != nil {
			mapper.peerCache = cache
		}
	}
}

// WithSelfIdentity flags updates authored by the bot account itself.
func WithSelfIdentity(self *SelfIdentity) GotdUpdateMapperOption {
	return func(mapper *DefaultGotdUpdateMapper) {
		if self != nil {
			mapper.self = self
		}
	}
}

// WithMapperLogger enables debug logs for skipped updates.
func WithMapperLogger(logger *slog.Logger) GotdUpdateMapperOption {
	return func(mapper *DefaultGotdUpdateMapper) {
		if logger != nil {
			mapper.logger = logger
		}
	}
}

func NewDefaultGotdUpdateMapper(options ...GotdUpdateMapperOption) DefaultGotdUpdateMapper {
	var mapper DefaultGotdUpdateMapper
	for _, option := range options {
		option(&mapper)
	}

	return mapper
}

// Map converts one raw value produced by the gotd adapter. The bool result is
// false for updates the bot does not consume.
func (m DefaultGotdUpdateMapper) Map(ctx context.Context, raw any) (Update, bool, error) {
	if err := ctx.Err(); err != nil {
		return Update{}, false, fmt.Errorf("map gotd update context: %w", err)
	}

	envelope, err := asEnvelope(raw)
	if err != nil {
		return Update{}, false, fmt.Errorf("map gotd raw update: %w", err)
	}
	if m.peerCache != nil {
		m.peerCache.RememberEnvelope(envelope)
	}

	if envelope.reaction != nil {
		return m.mapReaction(envelope)
	}

	message, ok := newMessageOf(envelope.update)
	if !ok {
		if m.logger != nil {
			m.logger.DebugContext(ctx, "telegram update skipped", "gotd_update", envelope.updateClass)
		}
		return Update{}, false, nil
	}
	if message == nil {
		return Update{}, false, nil
	}

	return m.mapMessage(message, envelope), true, nil
}

func asEnvelope(raw any) (gotdUpdateEnvelope, error) {
	switch typed := raw.(type) {
	case gotdUpdateEnvelope:
		return typed, nil
	case *gotdUpdateEnvelope:
		if typed != nil {
			return *typed, nil
		}
		return gotdUpdateEnvelope{}, fmt.Errorf("nil envelope")
	case tg.UpdateClass:
		if typed == nil {
			return gotdUpdateEnvelope{}, fmt.Errorf("nil update class")
		}
		return gotdUpdateEnvelope{update: typed, occurredAt: time.Now().UTC(), updateClass: typed.TypeName()}, nil
	}

	return gotdUpdateEnvelope{}, fmt.Errorf("unsupported raw type %T", raw)
}

// newMessageOf reports whether update carries a new message. Service and empty
// messages come back as a nil message with ok set.
func newMessageOf(update tg.UpdateClass) (*tg.Message, bool) {
	var class tg.MessageClass
	switch typed := update.(type) {
	case *tg.UpdateNewMessage:
		class = typed.Message
	case *tg.UpdateNewChannelMessage:
		class = typed.Message
	default:
		return nil, false
	}
	message, _ := class.(*tg.Message)

	return message, true
}

func (m DefaultGotdUpdateMapper) mapMessage(message *tg.Message, envelope gotdUpdateEnvelope) Update {
	chat := envelope.chat(message.PeerID)

	// Channel posts have no author, so the channel stands in for it.
	actor := envelope.actor(message.FromID)
	if actor.ID == unknownPeerID {
		actor = envelope.actor(message.PeerID)
	}
	if selfID := m.self.UserID(); message.Out && selfID != 0 {
		actor.ID = strconv.FormatInt(selfID, 10)
	}
	actor.IsSelf = message.Out || m.self.Is(actor.ID)

	payload := &MessagePayload{
		ID:        strconv.Itoa(message.ID),
		Text:      message.Message,
		Entities:  mapTextEntities(message.Message, message.Entities),
		ReplyToID: replyTargetOf(message),
	}
	m.remember(chat, envelope.inputPeer(message.PeerID))

	occurredAt := intToTimeUTC(message.Date)
	if occurredAt.IsZero() {
		occurredAt = envelope.occurredAt
	}

	return Update{
		ID:         composeUpdateID(UpdateTypeMessage, chat.ID, payload.ID),
		Type:       UpdateTypeMessage,
		OccurredAt: occurredAt,
		Chat:       chat,
		Actor:      actor,
		Message:    payload,
		Metadata:   envelope.metadata(),
	}
}

func replyTargetOf(message *tg.Message) string {
	replyTo, ok := message.GetReplyTo()
	if !ok {
		return ""
	}
	header, ok := replyTo.(*tg.MessageReplyHeader)
	if !ok {
		return ""
	}
	if id, ok := header.GetReplyToMsgID(); ok {
		return strconv.Itoa(id)
	}

	return ""
}

func (m DefaultGotdUpdateMapper) mapReaction(envelope gotdUpdateEnvelope) (Update, bool, error) {
	delta := envelope.reaction
	if delta.emoji == "" {
		return Update{}, false, nil
	}

	chat := envelope.chat(delta.peer)
	actor := envelope.actor(delta.actor)
	actor.IsSelf = m.self.Is(actor.ID)
	m.remember(chat, envelope.inputPeer(delta.peer))

	occurredAt := envelope.occurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	messageID := strconv.Itoa(delta.messageID)

	return Update{
		ID:         composeUpdateID(delta.action, chat.ID, messageID, actor.ID, delta.emoji, occurredAt),
		Type:       delta.action,
		OccurredAt: occurredAt,
		Chat:       chat,
		Actor:      actor,
		Reaction:   &ReactionPayload{MessageID: messageID, Emoji: delta.emoji},
		Metadata:   envelope.metadata(),
	}, true, nil
}

func (m DefaultGotdUpdateMapper) remember(chat ChatRef, peer tg.InputPeerClass) {
	if m.peerCache != nil {
		m.peerCache.RememberConversation(chat, peer)
	}
}

// gotdUpdateEnvelope is one flattened update plus the entities Telegram sent
// alongside it.
type gotdUpdateEnvelope struct {
	update      tg.UpdateClass
	occurredAt  time.Time
	usersByID   map[int64]*tg.User
	chatsByID   map[int64]gotdChatInfo
	updateClass string
	reaction    *gotdReactionDelta
}

type gotdReactionDelta struct {
	action    UpdateType
	messageID int
	emoji     string
	actor     tg.PeerClass
	peer      tg.PeerClass
}

type gotdChatInfo struct {
	title     string
	kind      subroll.ConversationType
	inputPeer tg.InputPeerClass
}

func (e gotdUpdateEnvelope) chat(peer tg.PeerClass) ChatRef {
	var (
		id   int64
		kind subroll.ConversationType
	)
	switch typed := peer.(type) {
	case *tg.PeerUser:
		user := e.user(typed.UserID)
		return ChatRef{ID: user.ID, Type: subroll.ConversationTypePrivate, Title: user.DisplayName}
	case *tg.PeerChat:
		id, kind = typed.ChatID, subroll.ConversationTypeGroup
	case *tg.PeerChannel:
		id, kind = typed.ChannelID, subroll.ConversationTypeChannel
	default:
		return ChatRef{ID: unknownPeerID, Type: subroll.ConversationTypePrivate}
	}

	chat := ChatRef{ID: strconv.FormatInt(id, 10), Type: kind}
	if info, ok := e.chatsByID[id]; ok {
		chat.Title, chat.Type = info.title, info.kind
	}

	return chat
}

func (e gotdUpdateEnvelope) actor(peer tg.PeerClass) ActorRef {
	var id int64
	switch typed := peer.(type) {
	case *tg.PeerUser:
		return e.user(typed.UserID)
	case *tg.PeerChat:
		id = typed.ChatID
	case *tg.PeerChannel:
		id = typed.ChannelID
	default:
		return ActorRef{ID: unknownPeerID}
	}

	return ActorRef{ID: strconv.FormatInt(id, 10), DisplayName: e.chatsByID[id].title}
}

func (e gotdUpdateEnvelope) user(userID int64) ActorRef {
	if userID == 0 {
		return ActorRef{ID: unknownPeerID}
	}

	id := strconv.FormatInt(userID, 10)
	user := e.usersByID[userID]
	if user == nil {
		return ActorRef{ID: id}
	}

	username, _ := user.GetUsername()
	firstName, _ := user.GetFirstName()
	lastName, _ := user.GetLastName()

	return ActorRef{
		ID:          id,
		Username:    username,
		DisplayName: cmp.Or(strings.TrimSpace(firstName+" "+lastName), username, id),
		IsBot:       user.Bot,
		IsSelf:      user.Self,
	}
}

// inputPeer returns nil when the envelope lacks the access hash needed to
// address peer.
func (e gotdUpdateEnvelope) inputPeer(peer tg.PeerClass) tg.InputPeerClass {
	switch typed := peer.(type) {
	case *tg.PeerUser:
		if user := e.usersByID[typed.UserID]; user != nil {
			return user.AsInputPeer()
		}
	case *tg.PeerChat:
		if typed.ChatID != 0 {
			return &tg.InputPeerChat{ChatID: typed.ChatID}
		}
	case *tg.PeerChannel:
		if info, ok := e.chatsByID[typed.ChannelID]; ok && info.inputPeer != nil {
			return cloneInputPeer(info.inputPeer)
		}
	}

	return nil
}

func (e gotdUpdateEnvelope) metadata() map[string]string {
	if e.updateClass == "" {
		return nil
	}

	return map[string]string{"gotd_update": e.updateClass}
}

func indexGotdUsers(users []tg.UserClass) map[int64]*tg.User {
	var out map[int64]*tg.User
	for _, class := range users {
		if class == nil {
			continue
		}
		user, ok := class.AsNotEmpty()
		if !ok || user == nil {
			continue
		}
		if out == nil {
			out = make(map[int64]*tg.User, len(users))
		}
		out[user.ID] = user
	}

	return out
}

func indexGotdChats(chats []tg.ChatClass) map[int64]gotdChatInfo {
	var out map[int64]gotdChatInfo
	for _, chat := range chats {
		id, info, ok := chatInfoOf(chat)
		if !ok {
			continue
		}
		if out == nil {
			out = make(map[int64]gotdChatInfo, len(chats))
		}
		out[id] = info
	}

	return out
}

func chatInfoOf(chat tg.ChatClass) (int64, gotdChatInfo, bool) {
	switch typed := chat.(type) {
	case *tg.Chat:
		return typed.ID, gotdChatInfo{typed.Title, subroll.ConversationTypeGroup, typed.AsInputPeer()}, true
	case *tg.ChatForbidden:
		return typed.ID, gotdChatInfo{typed.Title, subroll.ConversationTypeGroup, &tg.InputPeerChat{ChatID: typed.ID}}, true
	case *tg.Channel:
		return typed.ID, gotdChatInfo{typed.Title, channelKind(typed.Megagroup), typed.AsInputPeer()}, true
	case *tg.ChannelForbidden:
		peer := &tg.InputPeerChannel{ChannelID: typed.ID, AccessHash: typed.AccessHash}
		return typed.ID, gotdChatInfo{typed.Title, channelKind(typed.Megagroup), peer}, true
	}

	return 0, gotdChatInfo{}, false
}

// Supergroups are reported as groups so commands behave the same in both.
func channelKind(megagroup bool) subroll.ConversationType {
	if megagroup {
		return subroll.ConversationTypeGroup
	}

	return subroll.ConversationTypeChannel
}

func reactionToEmoji(reaction tg.ReactionClass) string {
	switch typed := reaction.(type) {
	case *tg.ReactionEmoji:
		return typed.Emoticon
	case *tg.ReactionCustomEmoji:
		return "custom:" + strconv.FormatInt(typed.DocumentID, 10)
	case *tg.ReactionPaid:
		return "paid"
	}

	return ""
}

func intToTimeUTC(unix int) time.Time {
	if unix <= 0 {
		return time.Time{}
	}

	return time.Unix(int64(unix), 0).UTC()
}

// composeUpdateID joins the non-empty parts into "tg:<type>:<chat>:...". Times
// are rendered as Unix nanoseconds.
func composeUpdateID(updateType UpdateType, chatID string, parts ...any) string {
	var b strings.Builder
	b.WriteString("tg:")
	b.WriteString(string(updateType))
	appendPart := func(value string) {
		if value != "" {
			b.WriteByte(':')
			b.WriteString(value)
		}
	}

	appendPart(chatID)
	for _, part := range parts {
		switch typed := part.(type) {
		case string:
			appendPart(typed)
		case time.Time:
			if !typed.IsZero() {
				appendPart(strconv.FormatInt(typed.UnixNano(), 10))
			}
		default:
			appendPart(fmt.Sprint(part))
		}
	}

	return b.String()
}
