package kernel

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"subroll/pkg/subroll"
)

// newDriverDispatcher returns the dispatcher handed to drivers. It publishes
// to the bus and derives command events from registered commands.
func (k *Kernel) newDriverDispatcher() subroll.EventDispatcher {
	return &commandDerivingDispatcher{
		base:          k.bus,
		prefix:        k.prefix,
		lookupCommand: k.commands.lookup,
		reportAsync:   k.cfg.onAsyncError,
	}
}

// commandDerivingDispatcher publishes source events and derives command events.
type commandDerivingDispatcher struct {
	base          subroll.EventDispatcher
	prefix        subroll.CommandPrefixStore
	lookupCommand func(name string) (subroll.CommandSpec, bool)
	reportAsync   func(context.Context, string, error)
}

// Publish forwards one source event and conditionally derives one command event.
//
// The source event is always published first so observers of raw messages see
// the message before the command handler acts on it.
func (d *commandDerivingDispatcher) Publish(ctx context.Context, event *subroll.Event) error {
	if event == nil {
		return fmt.Errorf("publish command deriving dispatcher: nil event")
	}
	if d.base == nil {
		return fmt.Errorf("publish command deriving dispatcher: nil base dispatcher")
	}

	if err := d.base.Publish(ctx, event); err != nil {
		return fmt.Errorf("publish source event %s: %w", event.Kind, err)
	}

	if event.Kind != subroll.EventKindMessageCreated || event.Message == nil {
		return nil
	}
	candidate, matched, parseErr := subroll.ParseCommandCandidate(event.Message.Text, d.prefix.Prefix())
	if !matched || parseErr != nil {
		return nil
	}

	spec, registered := d.lookupCommand(candidate.Name)
	if !registered {
		return nil
	}

	invocation, err := subroll.BindCommand(candidate, spec, event)
	if err != nil {
		d.reportAsyncError(ctx, "bind command "+candidate.Name, err)
		return nil
	}

	if err := d.base.Publish(ctx, derivedCommandEvent(event, invocation)); err != nil {
		return fmt.Errorf("publish derived command %s: %w", invocation.Name, err)
	}

	return nil
}

func (d *commandDerivingDispatcher) reportAsyncError(ctx context.Context, scope string, err error) {
	if d.reportAsync != nil {
		d.reportAsync(ctx, scope, err)
	}
}

func derivedCommandEvent(sourceEvent *subroll.Event, invocation subroll.CommandInvocation) *subroll.Event {
	message := *sourceEvent.Message
	message.Entities = slices.Clone(sourceEvent.Message.Entities)
	invocation.Args = slices.Clone(invocation.Args)

	return &subroll.Event{
		ID:           sourceEvent.ID + "#command",
		Kind:         subroll.EventKindCommandReceived,
		OccurredAt:   sourceEvent.OccurredAt,
		Source:       sourceEvent.Source,
		Conversation: sourceEvent.Conversation,
		Actor:        sourceEvent.Actor,
		Message:      &message,
		Command:      &invocation,
		Metadata:     cloneStringMap(sourceEvent.Metadata),
	}
}

func cloneStringMap(metadata map[string]string) map[string]string {
	if len(metadata) == 0 {
		return nil
	}

	return maps.Clone(metadata)
}
