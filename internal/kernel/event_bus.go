package kernel

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"subroll/pkg/subroll"
)

var errBusClosed = errors.New("bus closed")

// EventBus fans published events out to bounded per-subscription queues, each
// drained by its own worker pool.
//
// Subscriptions receive events in registration order, so a command handler
// registered before a reaction handler is always offered the event first.
type EventBus struct {
	defaults     subroll.SubscriptionSpec
	onAsyncError func(context.Context, string, error)
	lastID       atomic.Int64

	mu     sync.RWMutex
	closed bool
	subs   []*subscription
}

// NewEventBus creates an event bus whose subscriptions fall back to the given
// queue size, worker count and handler timeout.
func NewEventBus(
	defaultBuffer int,
	defaultWorkers int,
	defaultHandlerTimeout time.Duration,
	onAsyncError func(context.Context, string, error),
) *EventBus {
	return &EventBus{
		defaults: subroll.SubscriptionSpec{
			Buffer:         defaultBuffer,
			Workers:        defaultWorkers,
			HandlerTimeout: defaultHandlerTimeout,
			Backpressure:   subroll.BackpressureDropNewest,
		},
		onAsyncError: onAsyncError,
	}
}

// Publish validates event and offers it to every subscription whose interest
// matches. Dropped or late deliveries are reported asynchronously; only
// blocking-policy failures are returned.
func (b *EventBus) Publish(ctx context.Context, event *subroll.Event) error {
	if event == nil {
		return fmt.Errorf("publish event: %w", subroll.ErrInvalidEvent)
	}
	if err := event.Validate(); err != nil {
		return fmt.Errorf("publish event %s: %w", event.Kind, err)
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return fmt.Errorf("publish event %s: %w", event.Kind, errBusClosed)
	}
	targets := slices.Clone(b.subs)
	b.mu.RUnlock()

	var failures []error
	for _, target := range targets {
		if !target.interest.Matches(event) {
			continue
		}
		err := target.offer(ctx, event)
		switch {
		case err == nil:
		case errors.Is(err, subroll.ErrEventDropped), errors.Is(err, subroll.ErrSubscriptionClosed):
			b.report(ctx, target.spec.Name, err)
		default:
			failures = append(failures, err)
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("publish event %s: %w", event.Kind, errors.Join(failures...))
	}

	return nil
}

// Subscribe starts a subscription's workers and registers it for delivery.
func (b *EventBus) Subscribe(
	ctx context.Context,
	interest subroll.InterestSet,
	spec subroll.SubscriptionSpec,
	handler subroll.EventHandler,
) (subroll.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", spec.Name, err)
	}
	if handler == nil {
		return nil, fmt.Errorf("subscribe %s: nil handler", spec.Name)
	}

	id := b.lastID.Add(1)
	sub := newSubscription(b, id, interest, b.withDefaults(spec, id), handler)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.stop()
		return nil, fmt.Errorf("subscribe %s: %w", sub.spec.Name, errBusClosed)
	}
	b.subs = append(b.subs, sub)

	return sub, nil
}

// Close rejects further publishes and waits for every subscription's workers
// to exit, bounded by ctx.
func (b *EventBus) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	errs := make([]error, 0)
	for _, sub := range subs {
		if err := sub.drain(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close event bus: %w", err)
	}

	return nil
}

func (b *EventBus) withDefaults(spec subroll.SubscriptionSpec, id int64) subroll.SubscriptionSpec {
	if spec.Name == "" {
		spec.Name = fmt.Sprintf("subscription-%d", id)
	}
	if spec.Buffer <= 0 {
		spec.Buffer = b.defaults.Buffer
	}
	if spec.Workers <= 0 {
		spec.Workers = b.defaults.Workers
	}
	if spec.HandlerTimeout <= 0 {
		spec.HandlerTimeout = b.defaults.HandlerTimeout
	}
	if spec.Backpressure == "" {
		spec.Backpressure = b.defaults.Backpressure
	}

	return spec
}

func (b *EventBus) remove(ctx context.Context, id int64) error {
	b.mu.Lock()
	index := slices.IndexFunc(b.subs, func(sub *subscription) bool { return sub.id == id })
	var removed *subscription
	if index >= 0 {
		removed = b.subs[index]
		b.subs = slices.Delete(b.subs, index, index+1)
	}
	b.mu.Unlock()

	if removed == nil {
		return nil
	}
	if err := removed.drain(ctx); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", removed.spec.Name, err)
	}

	return nil
}

func (b *EventBus) report(ctx context.Context, scope string, err error) {
	if b.onAsyncError != nil {
		b.onAsyncError(ctx, scope, err)
	}
}

// subscription owns one bounded queue and the workers draining it. Workers
// stop on context cancellation; the queue channel is never closed.
type subscription struct {
	owner    *EventBus
	id       int64
	interest subroll.InterestSet
	spec     subroll.SubscriptionSpec
	handler  subroll.EventHandler

	queue    chan *subroll.Event
	ctx      context.Context
	cancel   context.CancelFunc
	exited   chan struct{}
	stopped  atomic.Bool
	stopOnce sync.Once
}

func newSubscription(
	owner *EventBus,
	id int64,
	interest subroll.InterestSet,
	spec subroll.SubscriptionSpec,
	handler subroll.EventHandler,
) *subscription {
	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		owner:    owner,
		id:       id,
		interest: copyInterest(interest),
		spec:     spec,
		handler:  handler,
		queue:    make(chan *subroll.Event, spec.Buffer),
		ctx:      ctx,
		cancel:   cancel,
		exited:   make(chan struct{}),
	}

	var workers sync.WaitGroup
	for workerID := range spec.Workers {
		workers.Go(func() {
			sub.work(workerID)
		})
	}
	go func() {
		workers.Wait()
		close(sub.exited)
	}()

	return sub
}

func copyInterest(interest subroll.InterestSet) subroll.InterestSet {
	interest.Kinds = slices.Clone(interest.Kinds)
	interest.Sources = slices.Clone(interest.Sources)
	interest.CommandNames = slices.Clone(interest.CommandNames)

	return interest
}

// Name returns the subscription name.
func (s *subscription) Name() string {
	return s.spec.Name
}

// Close removes the subscription from its bus and waits for its workers.
func (s *subscription) Close(ctx context.Context) error {
	return s.owner.remove(ctx, s.id)
}

// offer places event on the queue according to the backpressure policy.
func (s *subscription) offer(ctx context.Context, event *subroll.Event) error {
	if s.stopped.Load() {
		busDeliveries.WithLabelValues(s.spec.Name, deliveryClosed).Inc()
		return fmt.Errorf("enqueue %s: %w", s.spec.Name, subroll.ErrSubscriptionClosed)
	}

	var queued bool
	switch s.spec.Backpressure {
	case subroll.BackpressureDropNewest:
		queued = s.tryPush(event)
	case subroll.BackpressureDropOldest:
		queued = s.tryPush(event)
		if !queued {
			select {
			case <-s.queue:
			default:
			}
			queued = s.tryPush(event)
		}
	case subroll.BackpressureBlock:
		select {
		case s.queue <- event:
			queued = true
		case <-ctx.Done():
			return fmt.Errorf("enqueue %s: %w", s.spec.Name, ctx.Err())
		}
	default:
		return fmt.Errorf("enqueue %s: %w", s.spec.Name, subroll.ErrInvalidSubscription)
	}

	if !queued {
		busDeliveries.WithLabelValues(s.spec.Name, deliveryDropped).Inc()
		return fmt.Errorf("enqueue %s: %w", s.spec.Name, subroll.ErrEventDropped)
	}
	busDeliveries.WithLabelValues(s.spec.Name, deliveryQueued).Inc()

	return nil
}

func (s *subscription) tryPush(event *subroll.Event) bool {
	select {
	case s.queue <- event:
		return true
	default:
		return false
	}
}

func (s *subscription) work(workerID int) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case event := <-s.queue:
			s.dispatch(workerID, event)
		}
	}
}

// dispatch runs the handler for one event under the subscription's handler
// timeout, recording duration and failures.
func (s *subscription) dispatch(workerID int, event *subroll.Event) {
	ctx := s.ctx
	if s.spec.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.spec.HandlerTimeout)
		defer cancel()
	}

	scope := fmt.Sprintf("subscription %s worker %d", s.spec.Name, workerID)
	started := time.Now()
	err := runSafely(scope, func() error {
		return s.handler(ctx, event)
	})
	busHandlerDuration.WithLabelValues(s.spec.Name).Observe(time.Since(started).Seconds())
	if err == nil {
		return
	}

	reason := failureError
	switch {
	case errors.Is(err, errPanicked):
		reason = failurePanic
	case errors.Is(err, context.DeadlineExceeded):
		reason = failureTimeout
	}
	busHandlerFailures.WithLabelValues(s.spec.Name, reason).Inc()
	s.owner.report(s.ctx, s.spec.Name, fmt.Errorf("%s handle event %s: %w", scope, event.Kind, err))
}

func (s *subscription) stop() {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		s.cancel()
	})
}

// drain stops the workers and waits for them, bounded by ctx.
func (s *subscription) drain(ctx context.Context) error {
	s.stop()

	select {
	case <-s.exited:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown subscription %s: %w", s.spec.Name, ctx.Err())
	}
}
