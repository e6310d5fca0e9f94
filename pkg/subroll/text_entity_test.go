package subroll

import (
	"errors"
	"testing"
	"time"
)

func TestValidateTextEntities(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		text     string
		entities []TextEntity
		wantErr  bool
	}{
		{
			name: "empty entities are valid",
			text: "hello",
		},
		{
			name: "valid bold entity",
			text: "hello",
			entities: []TextEntity{
				{Type: TextEntityTypeBold, Offset: 0, Length: 5},
			},
		},
		{
			name: "valid text url entity",
			text: "r/aww",
			entities: []TextEntity{
				{Type: TextEntityTypeTextURL, Offset: 0, Length: 5, URL: "https://reddit.com/r/aww"},
			},
		},
		{
			name: "offsets count code points not bytes",
			text: "héllo wörld",
			entities: []TextEntity{
				{Type: TextEntityTypeItalic, Offset: 6, Length: 5},
			},
		},
		{
			name: "missing type fails",
			text: "hello",
			entities: []TextEntity{
				{Offset: 0, Length: 5},
			},
			wantErr: true,
		},
		{
			name: "negative offset fails",
			text: "hello",
			entities: []TextEntity{
				{Type: TextEntityTypeBold, Offset: -1, Length: 1},
			},
			wantErr: true,
		},
		{
			name: "non-positive length fails",
			text: "hello",
			entities: []TextEntity{
				{Type: TextEntityTypeBold, Offset: 0, Length: 0},
			},
			wantErr: true,
		},
		{
			name: "range overflow fails",
			text: "hello",
			entities: []TextEntity{
				{Type: TextEntityTypeBold, Offset: 3, Length: 3},
			},
			wantErr: true,
		},
		{
			name: "text_url without url fails",
			text: "click me",
			entities: []TextEntity{
				{Type: TextEntityTypeTextURL, Offset: 0, Length: 8},
			},
			wantErr: true,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			err := ValidateTextEntities(testCase.text, testCase.entities)
			if testCase.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !testCase.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	base := func() *Event {
		return &Event{
			ID:         "evt-1",
			Kind:       EventKindMessageCreated,
			OccurredAt: time.Unix(1, 0).UTC(),
			Source:     EventSource{Platform: PlatformTelegram, ID: "tg-main"},
			Conversation: Conversation{
				ID:   "chat-1",
				Type: ConversationTypeGroup,
			},
			Message: &Message{ID: "msg-1", Text: "hello"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(event *Event)
		wantErr bool
	}{
		{
			name:   "valid message event",
			mutate: func(*Event) {},
		},
		{
			name: "missing id fails",
			mutate: func(event *Event) {
				event.ID = ""
			},
			wantErr: true,
		},
		{
			name: "missing conversation fails",
			mutate: func(event *Event) {
				event.Conversation.ID = ""
			},
			wantErr: true,
		},
		{
			name: "message event without message id fails",
			mutate: func(event *Event) {
				event.Message.ID = ""
			},
			wantErr: true,
		},
		{
			name: "message entity overflow fails",
			mutate: func(event *Event) {
				event.Message.Entities = []TextEntity{{Type: TextEntityTypeBold, Offset: 0, Length: 6}}
			},
			wantErr: true,
		},
		{
			name: "valid reaction event",
			mutate: func(event *Event) {
				event.Kind = EventKindReactionAdded
				event.Message = nil
				event.Reaction = &Reaction{MessageID: "msg-1", Emoji: "🔥", Action: ReactionActionAdd}
			},
		},
		{
			name: "reaction event without payload fails",
			mutate: func(event *Event) {
				event.Kind = EventKindReactionRemoved
				event.Message = nil
			},
			wantErr: true,
		},
		{
			name: "command event without invocation fails",
			mutate: func(event *Event) {
				event.Kind = EventKindCommandReceived
			},
			wantErr: true,
		},
		{
			name: "valid command event",
			mutate: func(event *Event) {
				event.Kind = EventKindCommandReceived
				event.Command = &CommandInvocation{
					Name:            "ping",
					SourceEventID:   "evt-0",
					SourceEventKind: EventKindMessageCreated,
				}
			},
		},
		{
			name: "unsupported kind fails",
			mutate: func(event *Event) {
				event.Kind = "member.joined"
			},
			wantErr: true,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			event := base()
			testCase.mutate(event)

			err := event.Validate()
			if testCase.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if !errors.Is(err, ErrInvalidEvent) {
					t.Fatalf("error = %v, want ErrInvalidEvent", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
