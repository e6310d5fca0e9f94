package telegram

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"subroll/pkg/subroll"

	gotdtelegram "github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
)

type moderatorRPC interface {
	ChannelsGetParticipant(ctx context.Context, request *tg.ChannelsGetParticipantRequest) (*tg.ChannelsChannelParticipant, error)
	MessagesGetFullChat(ctx context.Context, chatID int64) (*tg.MessagesChatFull, error)
}

// ModeratorChecker answers whether an actor may manage a Telegram conversation.
//
// Private chats and the logged-in account always qualify. In groups and
// channels the creator qualifies, as do admins holding the ban-users right.
type ModeratorChecker struct {
	rpc     moderatorRPC
	peers   *PeerCache
	self    *SelfIdentity
	timeout time.Duration
}

// NewModeratorChecker creates a checker backed by the gotd raw API.
func NewModeratorChecker(
	client *gotdtelegram.Client,
	peers *PeerCache,
	self *SelfIdentity,
	timeout time.Duration,
) (*ModeratorChecker, error) {
	if client == nil {
		return nil, fmt.Errorf("new telegram moderator checker: nil client")
	}

	return newModeratorCheckerWithRPC(client.API(), peers, self, timeout)
}

func newModeratorCheckerWithRPC(
	rpc moderatorRPC,
	peers *PeerCache,
	self *SelfIdentity,
	timeout time.Duration,
) (*ModeratorChecker, error) {
	if rpc == nil {
		return nil, fmt.Errorf("new telegram moderator checker: nil rpc adapter")
	}
	if peers == nil {
		return nil, fmt.Errorf("new telegram moderator checker: nil peer cache")
	}
	if timeout <= 0 {
		timeout = defaultOutboundTimeout
	}

	return &ModeratorChecker{
		rpc:     rpc,
		peers:   peers,
		self:    self,
		timeout: timeout,
	}, nil
}

// IsModerator implements subroll.ModeratorChecker.
func (c *ModeratorChecker) IsModerator(ctx context.Context, query subroll.ModeratorQuery) (bool, error) {
	if query.Conversation.Type == subroll.ConversationTypePrivate {
		return true, nil
	}
	if query.Actor.IsSelf || c.self.Is(query.Actor.ID) {
		return true, nil
	}

	userID, err := strconv.ParseInt(query.Actor.ID, 10, 64)
	if err != nil || userID <= 0 {
		return false, fmt.Errorf("check moderator: invalid actor id %q", query.Actor.ID)
	}

	peer, err := c.peers.Resolve(query.Conversation)
	if err != nil {
		return false, fmt.Errorf("check moderator resolve conversation: %w", err)
	}

	rpcCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	switch typed := peer.(type) {
	case *tg.InputPeerChannel:
		return c.isChannelModerator(rpcCtx, typed, userID)
	case *tg.InputPeerChat:
		return c.isChatModerator(rpcCtx, typed.ChatID, userID)
	case *tg.InputPeerUser, *tg.InputPeerSelf:
		return true, nil
	default:
		return false, fmt.Errorf("check moderator: unsupported peer %T", peer)
	}
}

func (c *ModeratorChecker) isChannelModerator(
	ctx context.Context,
	channel *tg.InputPeerChannel,
	userID int64,
) (bool, error) {
	result, err := c.rpc.ChannelsGetParticipant(ctx, &tg.ChannelsGetParticipantRequest{
		Channel: &tg.InputChannel{
			ChannelID:  channel.ChannelID,
			AccessHash: channel.AccessHash,
		},
		Participant: c.userPeer(userID),
	})
	if err != nil {
		return false, fmt.Errorf("check moderator get channel participant: %w", err)
	}

	switch participant := result.Participant.(type) {
	case *tg.ChannelParticipantCreator:
		return true, nil
	case *tg.ChannelParticipantAdmin:
		return participant.AdminRights.BanUsers, nil
	default:
		return false, nil
	}
}

// isChatModerator treats every basic group admin as a moderator since basic
// groups carry no per-admin rights.
func (c *ModeratorChecker) isChatModerator(ctx context.Context, chatID int64, userID int64) (bool, error) {
	result, err := c.rpc.MessagesGetFullChat(ctx, chatID)
	if err != nil {
		return false, fmt.Errorf("check moderator get full chat: %w", err)
	}

	full, ok := result.FullChat.(*tg.ChatFull)
	if !ok {
		return false, nil
	}
	participants, ok := full.Participants.(*tg.ChatParticipants)
	if !ok {
		return false, nil
	}

	for _, participant := range participants.Participants {
		switch typed := participant.(type) {
		case *tg.ChatParticipantCreator:
			if typed.UserID == userID {
				return true, nil
			}
		case *tg.ChatParticipantAdmin:
			if typed.UserID == userID {
				return true, nil
			}
		}
	}

	return false, nil
}

func (c *ModeratorChecker) userPeer(userID int64) tg.InputPeerClass {
	peer, err := c.peers.Resolve(subroll.Conversation{
		ID:   strconv.FormatInt(userID, 10),
		Type: subroll.ConversationTypePrivate,
	})
	if err == nil {
		return peer
	}

	return &tg.InputPeerUser{UserID: userID}
}

var _ subroll.ModeratorChecker = (*ModeratorChecker)(nil)
