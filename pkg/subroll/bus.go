package subroll

import (
	"context"
	"time"
)

// BackpressurePolicy decides what Publish does when a subscription queue is
// full.
type BackpressurePolicy string

const (
	// BackpressureDropNewest rejects the incoming event with ErrEventDropped.
	BackpressureDropNewest BackpressurePolicy = "drop_newest"
	// BackpressureDropOldest evicts the oldest queued event to make room.
	BackpressureDropOldest BackpressurePolicy = "drop_oldest"
	// BackpressureBlock waits for room until the publish context ends.
	BackpressureBlock BackpressurePolicy = "block"
)

// SubscriptionSpec tunes one subscription. Zero fields take the kernel
// defaults.
type SubscriptionSpec struct {
	Name           string
	Buffer         int
	Workers        int
	HandlerTimeout time.Duration
	Backpressure   BackpressurePolicy
}

func NewDefaultSubscriptionSpec(name string) SubscriptionSpec {
	return SubscriptionSpec{Name: name}
}

type Subscription interface {
	Name() string
	// Close stops delivery and waits for in-flight handlers.
	Close(ctx context.Context) error
}

// EventDispatcher is the publishing half of the bus, handed to drivers.
type EventDispatcher interface {
	Publish(ctx context.Context, event *Event) error
}

// EventBus fans published events out to every subscription whose interest
// matches.
type EventBus interface {
	EventDispatcher
	Subscribe(ctx context.Context, interest InterestSet, spec SubscriptionSpec, handler EventHandler) (Subscription, error)
	Close(ctx context.Context) error
}
