package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"subroll/pkg/subroll"
)

func TestDriverStartPublishesDecodedEvents(t *testing.T) {
	t.Parallel()

	updates := make(chan Update, 3)
	updates <- Update{
		ID:         "tg:message:100:1",
		Type:       UpdateTypeMessage,
		OccurredAt: time.Unix(1_700_000_000, 0).UTC(),
		Chat:       ChatRef{ID: "100", Type: subroll.ConversationTypeGroup},
		Actor:      ActorRef{ID: "42"},
		Message:    &MessagePayload{ID: "1", Text: "?ping"},
	}
	updates <- Update{ID: "tg:broken", Type: UpdateType("typing"), Chat: ChatRef{ID: "100"}}
	updates <- Update{
		ID:       "tg:reaction_add:100:1",
		Type:     UpdateTypeReactionAdd,
		Chat:     ChatRef{ID: "100", Type: subroll.ConversationTypeGroup},
		Actor:    ActorRef{ID: "42"},
		Reaction: &ReactionPayload{MessageID: "1", Emoji: "🔥"},
	}
	close(updates)

	var (
		mu       sync.Mutex
		reported []error
	)
	driver, err := NewDriver(
		ChannelSource{Updates: updates},
		NewDefaultDecoder(),
		WithName("tg-main"),
		WithErrorHandler(func(_ context.Context, err error) {
			mu.Lock()
			defer mu.Unlock()
			reported = append(reported, err)
		}),
	)
	if err != nil {
		t.Fatalf("new driver failed: %v", err)
	}

	sink := &recordingDispatcher{}
	if err := driver.Start(context.Background(), sink); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	if len(sink.events) != 2 {
		t.Fatalf("published = %d, want 2", len(sink.events))
	}
	for _, event := range sink.events {
		if event.Source.ID != "tg-main" || event.Source.Platform != subroll.PlatformTelegram {
			t.Fatalf("source = %+v, want telegram tg-main", event.Source)
		}
	}
	if len(reported) != 1 {
		t.Fatalf("reported = %d, want 1 decode error", len(reported))
	}
	if driver.Name() != "tg-main" {
		t.Fatalf("name = %q, want tg-main", driver.Name())
	}
}

func TestDriverPublishFailureReported(t *testing.T) {
	t.Parallel()

	updates := make(chan Update, 1)
	updates <- Update{
		ID:      "tg:message:100:1",
		Type:    UpdateTypeMessage,
		Chat:    ChatRef{ID: "100", Type: subroll.ConversationTypeGroup},
		Actor:   ActorRef{ID: "42"},
		Message: &MessagePayload{ID: "1", Text: "hi"},
	}
	close(updates)

	reported := 0
	driver, err := NewDriver(
		ChannelSource{Updates: updates},
		NewDefaultDecoder(),
		WithErrorHandler(func(context.Context, error) { reported++ }),
	)
	if err != nil {
		t.Fatalf("new driver failed: %v", err)
	}

	if err := driver.Start(context.Background(), &recordingDispatcher{err: errors.New("bus closed")}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if reported != 1 {
		t.Fatalf("reported = %d, want 1", reported)
	}
}

type recordingDispatcher struct {
	events []*subroll.Event
	err    error
}

func (d *recordingDispatcher) Publish(_ context.Context, event *subroll.Event) error {
	if d.err != nil {
		return d.err
	}
	d.events = append(d.events, event)

	return nil
}
