package telegram

import (
	"context"
	"errors"
	"testing"

	"subroll/pkg/subroll"

	"github.com/gotd/td/tg"
)

func TestModeratorCheckerIsModerator(t *testing.T) {
	t.Parallel()

	self := &SelfIdentity{}
	self.Set(99)

	cache := NewPeerCache()
	cache.RememberConversation(ChatRef{ID: "500", Type: subroll.ConversationTypeGroup}, &tg.InputPeerChannel{ChannelID: 500, AccessHash: 5})
	cache.RememberConversation(ChatRef{ID: "100", Type: subroll.ConversationTypeGroup}, &tg.InputPeerChat{ChatID: 100})

	rpc := &stubModeratorRPC{
		channelParticipants: map[int64]tg.ChannelParticipantClass{
			1: &tg.ChannelParticipantCreator{UserID: 1},
			2: &tg.ChannelParticipantAdmin{UserID: 2, AdminRights: tg.ChatAdminRights{BanUsers: true}},
			3: &tg.ChannelParticipantAdmin{UserID: 3, AdminRights: tg.ChatAdminRights{PinMessages: true}},
			4: &tg.ChannelParticipant{UserID: 4},
		},
		chatParticipants: []tg.ChatParticipantClass{
			&tg.ChatParticipantCreator{UserID: 1},
			&tg.ChatParticipantAdmin{UserID: 2},
			&tg.ChatParticipant{UserID: 4},
		},
	}
	checker, err := newModeratorCheckerWithRPC(rpc, cache, self, 0)
	if err != nil {
		t.Fatalf("new checker failed: %v", err)
	}

	supergroup := subroll.Conversation{ID: "500", Type: subroll.ConversationTypeGroup}
	basicGroup := subroll.Conversation{ID: "100", Type: subroll.ConversationTypeGroup}

	tests := []struct {
		name         string
		conversation subroll.Conversation
		actorID      string
		want         bool
		wantErr      bool
	}{
		{name: "private chat", conversation: subroll.Conversation{ID: "4", Type: subroll.ConversationTypePrivate}, actorID: "4", want: true},
		{name: "self", conversation: supergroup, actorID: "99", want: true},
		{name: "supergroup creator", conversation: supergroup, actorID: "1", want: true},
		{name: "supergroup admin with ban rights", conversation: supergroup, actorID: "2", want: true},
		{name: "supergroup admin without ban rights", conversation: supergroup, actorID: "3"},
		{name: "supergroup member", conversation: supergroup, actorID: "4"},
		{name: "basic group creator", conversation: basicGroup, actorID: "1", want: true},
		{name: "basic group admin", conversation: basicGroup, actorID: "2", want: true},
		{name: "basic group member", conversation: basicGroup, actorID: "4"},
		{name: "invalid actor", conversation: supergroup, actorID: "alice", wantErr: true},
		{
			name:         "unknown conversation",
			conversation: subroll.Conversation{ID: "777", Type: subroll.ConversationTypeGroup},
			actorID:      "1",
			wantErr:      true,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			got, err := checker.IsModerator(context.Background(), subroll.ModeratorQuery{
				Conversation: testCase.conversation,
				Actor:        subroll.Actor{ID: testCase.actorID},
			})
			if testCase.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != testCase.want {
				t.Fatalf("moderator = %v, want %v", got, testCase.want)
			}
		})
	}
}

func TestModeratorCheckerPropagatesRPCErrors(t *testing.T) {
	t.Parallel()

	cache := NewPeerCache()
	cache.RememberConversation(ChatRef{ID: "500", Type: subroll.ConversationTypeGroup}, &tg.InputPeerChannel{ChannelID: 500})
	rpcErr := errors.New("USER_NOT_PARTICIPANT")
	checker, err := newModeratorCheckerWithRPC(&stubModeratorRPC{err: rpcErr}, cache, nil, 0)
	if err != nil {
		t.Fatalf("new checker failed: %v", err)
	}

	_, err = checker.IsModerator(context.Background(), subroll.ModeratorQuery{
		Conversation: subroll.Conversation{ID: "500", Type: subroll.ConversationTypeGroup},
		Actor:        subroll.Actor{ID: "1"},
	})
	if !errors.Is(err, rpcErr) {
		t.Fatalf("error = %v, want %v", err, rpcErr)
	}
}

type stubModeratorRPC struct {
	channelParticipants map[int64]tg.ChannelParticipantClass
	chatParticipants    []tg.ChatParticipantClass
	err                 error
}

func (s *stubModeratorRPC) ChannelsGetParticipant(
	_ context.Context,
	request *tg.ChannelsGetParticipantRequest,
) (*tg.ChannelsChannelParticipant, error) {
	if s.err != nil {
		return nil, s.err
	}

	user, ok := request.Participant.(*tg.InputPeerUser)
	if !ok {
		return nil, errors.New("unexpected participant peer")
	}
	participant, ok := s.channelParticipants[user.UserID]
	if !ok {
		return nil, errors.New("USER_NOT_PARTICIPANT")
	}

	return &tg.ChannelsChannelParticipant{Participant: participant}, nil
}

func (s *stubModeratorRPC) MessagesGetFullChat(_ context.Context, chatID int64) (*tg.MessagesChatFull, error) {
	if s.err != nil {
		return nil, s.err
	}

	return &tg.MessagesChatFull{
		FullChat: &tg.ChatFull{
			ID: chatID,
			Participants: &tg.ChatParticipants{
				ChatID:       chatID,
				Participants: s.chatParticipants,
			},
		},
	}, nil
}
