package kernel

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"subroll/pkg/subroll"
)

func TestCommandDerivingDispatcherPublishesSourceAndDerivedEvent(t *testing.T) {
	t.Parallel()

	bus := NewEventBus(8, 1, time.Second, nil)
	t.Cleanup(func() {
		_ = bus.Close(context.Background())
	})

	received := make(chan *subroll.Event, 2)
	_, err := bus.Subscribe(
		context.Background(),
		subroll.InterestSet{},
		subroll.SubscriptionSpec{Name: "all-events", Buffer: 4, Workers: 1},
		func(_ context.Context, event *subroll.Event) error {
			received <- event
			return nil
		},
	)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	dispatcher := &commandDerivingDispatcher{
		base:   bus,
		prefix: newPrefixStore(subroll.DefaultCommandPrefix),
		lookupCommand: func(name string) (subroll.CommandSpec, bool) {
			if name == "addsubs" {
				return subroll.CommandSpec{Name: "addsubs"}, true
			}
			return subroll.CommandSpec{}, false
		},
	}

	source := newSourceCreatedEvent("evt-1", "msg-1", "?AddSubs aww  pics")
	source.Metadata = map[string]string{"origin": "test"}
	if err := dispatcher.Publish(context.Background(), source); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	first := waitEvent(t, received)
	second := waitEvent(t, received)

	if first.Kind != subroll.EventKindMessageCreated {
		t.Fatalf("first kind = %s, want %s", first.Kind, subroll.EventKindMessageCreated)
	}
	if second.Kind != subroll.EventKindCommandReceived {
		t.Fatalf("second kind = %s, want %s", second.Kind, subroll.EventKindCommandReceived)
	}
	if second.ID != "evt-1#command" {
		t.Fatalf("derived id = %q, want evt-1#command", second.ID)
	}
	if second.Command == nil {
		t.Fatal("expected command payload")
	}
	if second.Command.Name != "addsubs" {
		t.Fatalf("command name = %q, want addsubs", second.Command.Name)
	}
	if got := strings.Join(second.Command.Args, ","); got != "aww,pics" {
		t.Fatalf("command args = %q, want aww,pics", got)
	}
	if second.Command.Value != "aww pics" {
		t.Fatalf("command value = %q, want %q", second.Command.Value, "aww pics")
	}
	if second.Command.SourceEventID != source.ID {
		t.Fatalf("source event id = %q, want %q", second.Command.SourceEventID, source.ID)
	}
	if second.Message == nil || second.Message.ID != "msg-1" {
		t.Fatalf("derived message = %+v, want msg-1", second.Message)
	}
	if second.Metadata["origin"] != "test" {
		t.Fatalf("metadata = %v, want origin copied", second.Metadata)
	}
	second.Metadata["origin"] = "mutated"
	if source.Metadata["origin"] != "test" {
		t.Fatal("derived metadata must not alias source metadata")
	}
}

func TestCommandDerivingDispatcherSkipsNonCommands(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		event *subroll.Event
	}{
		{
			name:  "plain text",
			event: newSourceCreatedEvent("evt-1", "msg-1", "hello there"),
		},
		{
			name:  "unregistered command",
			event: newSourceCreatedEvent("evt-2", "msg-2", "?unknown"),
		},
		{
			name:  "bare prefix",
			event: newSourceCreatedEvent("evt-3", "msg-3", "?"),
		},
		{
			name:  "other prefix",
			event: newSourceCreatedEvent("evt-4", "msg-4", "/ping"),
		},
		{
			name: "reaction event",
			event: &subroll.Event{
				ID:           "evt-5",
				Kind:         subroll.EventKindReactionAdded,
				OccurredAt:   time.Unix(10, 0).UTC(),
				Conversation: subroll.Conversation{ID: "chat-1", Type: subroll.ConversationTypeGroup},
				Reaction:     &subroll.Reaction{MessageID: "msg-1", Emoji: "👍", Action: subroll.ReactionActionAdd},
			},
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			base := &captureEventDispatcher{}
			dispatcher := &commandDerivingDispatcher{
				base:   base,
				prefix: newPrefixStore("?"),
				lookupCommand: func(name string) (subroll.CommandSpec, bool) {
					if name == "ping" {
						return subroll.CommandSpec{Name: "ping"}, true
					}
					return subroll.CommandSpec{}, false
				},
			}

			if err := dispatcher.Publish(context.Background(), testCase.event); err != nil {
				t.Fatalf("publish failed: %v", err)
			}
			if len(base.events) != 1 {
				t.Fatalf("published events = %d, want 1", len(base.events))
			}
			if base.events[0] != testCase.event {
				t.Fatal("expected source event to be forwarded unchanged")
			}
		})
	}
}

func TestCommandDerivingDispatcherFollowsPrefixChanges(t *testing.T) {
	t.Parallel()

	prefix := newPrefixStore("?")
	base := &captureEventDispatcher{}
	dispatcher := &commandDerivingDispatcher{
		base:   base,
		prefix: prefix,
		lookupCommand: func(name string) (subroll.CommandSpec, bool) {
			return subroll.CommandSpec{Name: name}, name == "ping"
		},
	}

	if err := prefix.SetPrefix("!!"); err != nil {
		t.Fatalf("set prefix failed: %v", err)
	}

	if err := dispatcher.Publish(context.Background(), newSourceCreatedEvent("evt-1", "msg-1", "?ping")); err != nil {
		t.Fatalf("publish old prefix failed: %v", err)
	}
	if len(base.events) != 1 {
		t.Fatalf("events after old prefix = %d, want 1", len(base.events))
	}

	if err := dispatcher.Publish(context.Background(), newSourceCreatedEvent("evt-2", "msg-2", "!!ping")); err != nil {
		t.Fatalf("publish new prefix failed: %v", err)
	}
	if len(base.events) != 3 {
		t.Fatalf("events after new prefix = %d, want 3", len(base.events))
	}
	if base.events[2].Kind != subroll.EventKindCommandReceived {
		t.Fatalf("last kind = %s, want %s", base.events[2].Kind, subroll.EventKindCommandReceived)
	}
}

func TestCommandDerivingDispatcherPropagatesBaseErrors(t *testing.T) {
	t.Parallel()

	base := &captureEventDispatcher{err: errors.New("bus closed")}
	dispatcher := &commandDerivingDispatcher{
		base:          base,
		prefix:        newPrefixStore("?"),
		lookupCommand: func(string) (subroll.CommandSpec, bool) { return subroll.CommandSpec{}, false },
	}

	err := dispatcher.Publish(context.Background(), newSourceCreatedEvent("evt-1", "msg-1", "hi"))
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "bus closed") {
		t.Fatalf("error = %v, want wrapped base error", err)
	}
	if err := dispatcher.Publish(context.Background(), nil); err == nil {
		t.Fatal("expected nil event error")
	}
}

func TestKernelRegisterModuleRejectsDuplicateCommandAcrossModules(t *testing.T) {
	t.Parallel()

	kernelRuntime := New()
	moduleA := &stubModule{
		name: "command-a",
		spec: subroll.ModuleSpec{
			Commands: []subroll.CommandSpec{{Name: "ping"}},
		},
	}
	moduleB := &stubModule{
		name: "command-b",
		spec: subroll.ModuleSpec{
			Commands: []subroll.CommandSpec{{Name: "PING"}},
		},
	}

	if err := kernelRuntime.RegisterModule(context.Background(), moduleA); err != nil {
		t.Fatalf("register module A failed: %v", err)
	}
	err := kernelRuntime.RegisterModule(context.Background(), moduleB)
	if err == nil {
		t.Fatal("expected duplicate command registration to fail")
	}
	if !errors.Is(err, subroll.ErrCommandAlreadyRegistered) {
		t.Fatalf("error = %v, want %v", err, subroll.ErrCommandAlreadyRegistered)
	}
	if !strings.Contains(err.Error(), "command-a") {
		t.Fatalf("error = %v, want owning module name", err)
	}

	spec, ok := kernelRuntime.commands.lookup("ping")
	if !ok || spec.Name != "ping" {
		t.Fatalf("lookup ping = (%+v, %v), want registered by module A", spec, ok)
	}
}

func waitEvent(t *testing.T, events <-chan *subroll.Event) *subroll.Event {
	t.Helper()

	select {
	case event := <-events:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func newSourceCreatedEvent(id string, messageID string, text string) *subroll.Event {
	return &subroll.Event{
		ID:         id,
		Kind:       subroll.EventKindMessageCreated,
		OccurredAt: time.Unix(10, 0).UTC(),
		Source:     subroll.EventSource{Platform: subroll.PlatformTelegram, ID: "tg-main"},
		Conversation: subroll.Conversation{
			ID:   "chat-1",
			Type: subroll.ConversationTypeGroup,
		},
		Actor: subroll.Actor{ID: "actor-1"},
		Message: &subroll.Message{
			ID:   messageID,
			Text: text,
		},
	}
}

type captureEventDispatcher struct {
	events []*subroll.Event
	err    error
}

func (d *captureEventDispatcher) Publish(_ context.Context, event *subroll.Event) error {
	if d.err != nil {
		return d.err
	}
	d.events = append(d.events, event)

	return nil
}
