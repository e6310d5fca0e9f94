package pingpong

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"subroll/pkg/subroll"
)

func TestModuleHandleCommand(t *testing.T) {
	t.Parallel()

	sentAt := time.Unix(1_700_000_000, 0).UTC()
	tests := []struct {
		name     string
		event    *subroll.Event
		sendErr  error
		wantErr  bool
		wantText string
	}{
		{name: "ping answers with delay", event: newCommandEvent("?ping", sentAt), wantText: "pong (1.25s)"},
		{name: "ping with bot mention", event: newCommandEvent("?ping@subrollbot", sentAt), wantText: "pong (1.25s)"},
		{name: "other command ignored", event: newCommandEvent("?listsubs", sentAt)},
		{name: "message without command ignored", event: newMissingCommandPayloadEvent()},
		{
			name:     "send failure returned",
			event:    newCommandEvent("?ping", sentAt),
			sendErr:  errors.New("dispatcher failure"),
			wantErr:  true,
			wantText: "pong (1.25s)",
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			dispatcher := &captureDispatcher{messageID: "sent-1", sendErr: testCase.sendErr}
			module := New()
			module.sink = dispatcher
			module.now = func() time.Time { return sentAt.Add(1250 * time.Millisecond) }

			err := module.handleCommand(context.Background(), testCase.event)
			if (err != nil) != testCase.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, testCase.wantErr)
			}
			if testCase.wantText == "" {
				if dispatcher.calls.Load() != 0 {
					t.Fatalf("sent %q, want nothing", dispatcher.lastRequest.Text)
				}
				return
			}

			request := dispatcher.lastRequest
			if request.Text != testCase.wantText {
				t.Fatalf("text = %q, want %q", request.Text, testCase.wantText)
			}
			if request.ReplyToMessageID != testCase.event.Message.ID {
				t.Fatalf("reply_to = %q, want %q", request.ReplyToMessageID, testCase.event.Message.ID)
			}
			if request.Target.Sink == nil || request.Target.Sink.ID != "tg-main" {
				t.Fatalf("target sink = %+v, want tg-main", request.Target.Sink)
			}
		})
	}
}

func TestPongText(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_010, 0)
	tests := []struct {
		name   string
		sentAt time.Time
		want   string
	}{
		{name: "unknown send time", want: "pong"},
		{name: "clock skew", sentAt: now.Add(time.Second), want: "pong"},
		{name: "rounded to milliseconds", sentAt: now.Add(-2345678 * time.Microsecond), want: "pong (2.346s)"},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			if got := pongText(testCase.sentAt, now); got != testCase.want {
				t.Fatalf("pongText = %q, want %q", got, testCase.want)
			}
		})
	}
}

func TestModuleOnRegister(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		services map[string]any
		wantErr  error
	}{
		{name: "sink resolved", services: map[string]any{subroll.ServiceSinkDispatcher: &captureDispatcher{}}},
		{name: "sink missing", wantErr: subroll.ErrServiceNotFound},
		{name: "wrong service type", services: map[string]any{subroll.ServiceSinkDispatcher: "nope"}, wantErr: errAny},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			module := New()
			err := module.OnRegister(context.Background(), moduleRuntimeStub{registry: serviceRegistryStub(testCase.services)})
			switch {
			case testCase.wantErr == nil:
				if err != nil || module.sink == nil {
					t.Fatalf("OnRegister = %v, sink = %v; want configured sink", err, module.sink)
				}
			case testCase.wantErr == errAny:
				if err == nil {
					t.Fatal("OnRegister succeeded, want error")
				}
			case !errors.Is(err, testCase.wantErr):
				t.Fatalf("OnRegister error = %v, want %v", err, testCase.wantErr)
			}
		})
	}
}

func TestModuleSpecUsesCommandCapability(t *testing.T) {
	t.Parallel()

	spec := New().Spec()
	if len(spec.Handlers) != 1 || len(spec.Commands) != 1 || spec.Commands[0].Name != pingCommandName {
		t.Fatalf("spec = %+v, want one handler and the ping command", spec)
	}

	handler := spec.Handlers[0]
	interest := handler.Capability.Interest
	if !interest.RequireMessage || !interest.RequireCommand || !slices.Equal(interest.CommandNames, []string{pingCommandName}) {
		t.Fatalf("interest = %+v, want message and ping command required", interest)
	}
	if handler.Subscription.Buffer != 0 || handler.Subscription.Workers != 0 || handler.Subscription.HandlerTimeout != 0 {
		t.Fatalf("subscription = %#v, want runtime defaults", handler.Subscription)
	}
}

var errAny = errors.New("any error")

func newCommandEvent(text string, sentAt time.Time) *subroll.Event {
	candidate, matched, err := subroll.ParseCommandCandidate(text, subroll.DefaultCommandPrefix)
	if err != nil || !matched {
		panic("newCommandEvent expects command text: " + text)
	}

	event := newMissingCommandPayloadEvent()
	event.OccurredAt = sentAt
	event.Message.Text = text
	event.Command = &subroll.CommandInvocation{
		Name:            candidate.Name,
		Mention:         candidate.Mention,
		Args:            candidate.Tokens,
		Value:           strings.Join(candidate.Tokens, " "),
		SourceEventID:   "source-event-1",
		SourceEventKind: subroll.EventKindMessageCreated,
		RawInput:        text,
	}

	return event
}

func newMissingCommandPayloadEvent() *subroll.Event {
	return &subroll.Event{
		ID:           "event-1",
		Kind:         subroll.EventKindCommandReceived,
		OccurredAt:   time.Unix(1, 0).UTC(),
		Source:       subroll.EventSource{Platform: subroll.PlatformTelegram, ID: "tg-main"},
		Conversation: subroll.Conversation{ID: "42", Type: subroll.ConversationTypePrivate},
		Message:      &subroll.Message{ID: "msg-1", Text: "?ping"},
	}
}

// captureDispatcher records the last message sent; the other sink methods
// are never reached by this module.
type captureDispatcher struct {
	calls       atomic.Int64
	messageID   string
	sendErr     error
	lastRequest subroll.SendMessageRequest
}

func (d *captureDispatcher) SendMessage(
	_ context.Context,
	request subroll.SendMessageRequest,
) (*subroll.OutboundMessage, error) {
	d.calls.Add(1)
	d.lastRequest = request
	if d.sendErr != nil {
		return nil, d.sendErr
	}

	return &subroll.OutboundMessage{ID: d.messageID}, nil
}

func (*captureDispatcher) EditMessage(context.Context, subroll.EditMessageRequest) error {
	return nil
}

func (*captureDispatcher) DeleteMessage(context.Context, subroll.DeleteMessageRequest) error {
	return nil
}

func (*captureDispatcher) SetReaction(context.Context, subroll.SetReactionRequest) error {
	return nil
}

func (*captureDispatcher) ClearReactions(context.Context, subroll.ClearReactionsRequest) error {
	return nil
}

type moduleRuntimeStub struct {
	registry subroll.ServiceRegistry
}

func (s moduleRuntimeStub) Services() subroll.ServiceRegistry {
	return s.registry
}

func (moduleRuntimeStub) Subscribe(
	context.Context,
	subroll.InterestSet,
	subroll.SubscriptionSpec,
	subroll.EventHandler,
) (subroll.Subscription, error) {
	return nil, nil
}

type serviceRegistryStub map[string]any

func (serviceRegistryStub) Register(string, any) error {
	return nil
}

func (s serviceRegistryStub) Resolve(name string) (any, error) {
	if value, ok := s[name]; ok {
		return value, nil
	}

	return nil, subroll.ErrServiceNotFound
}
