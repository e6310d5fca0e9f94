package pingpong

import (
	"context"
	"fmt"
	"time"

	"subroll/pkg/subroll"
)

const pingCommandName = "ping"

// Module answers ping with pong and the delivery delay of the command, so
// operators can check the bot is alive and keeping up with updates.
type Module struct {
	now  func() time.Time
	sink subroll.SinkDispatcher
}

// New creates the module.
func New() *Module {
	return &Module{now: time.Now}
}

// Name implements subroll.Module.
func (m *Module) Name() string {
	return "pingpong"
}

// Spec implements subroll.Module.
func (m *Module) Spec() subroll.ModuleSpec {
	interest := subroll.InterestSet{
		Kinds:          []subroll.EventKind{subroll.EventKindCommandReceived},
		RequireCommand: true,
		CommandNames:   []string{pingCommandName},
		RequireMessage: true,
	}

	return subroll.ModuleSpec{
		Handlers: []subroll.ModuleHandler{{
			Capability: subroll.Capability{
				Name:             "ping-command-handler",
				Description:      "answers ping with pong",
				Interest:         interest,
				RequiredServices: []string{subroll.ServiceSinkDispatcher},
			},
			Subscription: subroll.NewDefaultSubscriptionSpec("pingpong-commands"),
			Handler:      m.handleCommand,
		}},
		Commands: []subroll.CommandSpec{{Name: pingCommandName, Description: "check the bot is alive"}},
	}
}

// OnRegister implements subroll.ModuleRegistrar.
func (m *Module) OnRegister(_ context.Context, runtime subroll.ModuleRuntime) error {
	sink, err := subroll.ResolveAs[subroll.SinkDispatcher](runtime.Services(), subroll.ServiceSinkDispatcher)
	if err != nil {
		return fmt.Errorf("pingpong resolve sink dispatcher: %w", err)
	}
	m.sink = sink

	return nil
}

func (m *Module) OnStart(context.Context) error {
	return nil
}

func (m *Module) OnShutdown(context.Context) error {
	return nil
}

func (m *Module) handleCommand(ctx context.Context, event *subroll.Event) error {
	if event == nil || event.Message == nil || event.Command == nil || event.Command.Name != pingCommandName {
		return nil
	}

	target, err := subroll.OutboundTargetFromEvent(event)
	if err != nil {
		return fmt.Errorf("pingpong derive outbound target: %w", err)
	}
	_, err = m.sink.SendMessage(ctx, subroll.SendMessageRequest{
		Target:           target,
		Text:             pongText(event.OccurredAt, m.now()),
		ReplyToMessageID: event.Message.ID,
	})
	if err != nil {
		return fmt.Errorf("pingpong send pong message: %w", err)
	}

	return nil
}

// pongText reports the delay between the command being sent and handled.
// The delay is omitted when unknown or negative from clock skew.
func pongText(sentAt, now time.Time) string {
	if sentAt.IsZero() || now.Before(sentAt) {
		return "pong"
	}

	return fmt.Sprintf("pong (%s)", now.Sub(sentAt).Round(time.Millisecond))
}
