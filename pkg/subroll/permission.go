package subroll

import (
	"context"
	"fmt"
)

// ServiceModeratorChecker is the canonical service registry key for moderator checks.
const ServiceModeratorChecker = "subroll.moderator_checker"

// ModeratorQuery asks whether one actor may manage one conversation.
type ModeratorQuery struct {
	// Sink identifies which driver instance owns the conversation.
	Sink *EventSink
	// Conversation is the conversation being managed.
	Conversation Conversation
	// Actor is the account asking.
	Actor Actor
}

// ModeratorChecker decides whether an actor holds moderation rights in a conversation.
type ModeratorChecker interface {
	IsModerator(ctx context.Context, query ModeratorQuery) (bool, error)
}

// ModeratorQueryFromEvent builds a query for the actor and conversation of event.
func ModeratorQueryFromEvent(event *Event) (ModeratorQuery, error) {
	if event == nil {
		return ModeratorQuery{}, fmt.Errorf("moderator query: nil event")
	}
	if event.Conversation.ID == "" {
		return ModeratorQuery{}, fmt.Errorf("moderator query: missing conversation id")
	}

	query := ModeratorQuery{
		Conversation: event.Conversation,
		Actor:        event.Actor,
	}
	if event.Source.Platform != "" || event.Source.ID != "" {
		query.Sink = &EventSink{Platform: event.Source.Platform, ID: event.Source.ID}
	}

	return query, nil
}
