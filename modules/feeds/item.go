package feeds

import (
	"fmt"

	"subroll/pkg/subroll"
)

// FeedItem is one displayable entry extracted from a listing page.
type FeedItem struct {
	Thumbnail string
	Permalink string
	URL       string
	// VideoURL is set when the entry carries a playable video preview.
	VideoURL  string
	Title     string
	FeedLabel string
}

// ChannelKey identifies one subscribed conversation on one driver instance.
type ChannelKey struct {
	// Tenant is the driver instance ID.
	Tenant string
	// Channel is the conversation ID.
	Channel string
}

// MessageKey identifies one message inside a channel.
type MessageKey struct {
	Channel   ChannelKey
	MessageID string
}

// ChannelKeyFromEvent derives the subscription key for event.
func ChannelKeyFromEvent(event *subroll.Event) (ChannelKey, error) {
	if event == nil {
		return ChannelKey{}, fmt.Errorf("channel key: nil event")
	}
	if event.Conversation.ID == "" {
		return ChannelKey{}, fmt.Errorf("channel key: missing conversation id")
	}

	return ChannelKey{Tenant: event.Source.ID, Channel: event.Conversation.ID}, nil
}
