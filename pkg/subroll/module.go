package subroll

import "context"

// EventHandler processes a single neutral event.
type EventHandler func(ctx context.Context, event *Event) error

// ModuleHandler binds one declared capability to a subscription and handler.
type ModuleHandler struct {
	Capability   Capability
	Subscription SubscriptionSpec
	Handler      EventHandler
}

// ModuleSpec is the declarative registration surface of a module.
type ModuleSpec struct {
	// Handlers are subscribed by the kernel during registration.
	Handlers []ModuleHandler
	// AdditionalCapabilities declares capabilities used by manual subscriptions.
	AdditionalCapabilities []Capability
	// Commands are registered in the kernel command table.
	Commands []CommandSpec
}

// Capabilities returns every capability declared by the module spec.
func (s ModuleSpec) Capabilities() []Capability {
	capabilities := make([]Capability, 0, len(s.Handlers)+len(s.AdditionalCapabilities))
	for _, handler := range s.Handlers {
		capabilities = append(capabilities, handler.Capability)
	}
	capabilities = append(capabilities, s.AdditionalCapabilities...)

	return capabilities
}

// ModuleRuntime provides kernel facilities to modules during registration.
type ModuleRuntime interface {
	// Services exposes the service registry for dependency lookup.
	Services() ServiceRegistry
	// Subscribe registers an asynchronous event handler owned by the module.
	Subscribe(
		ctx context.Context,
		interest InterestSet,
		spec SubscriptionSpec,
		handler EventHandler,
	) (Subscription, error)
}

// Module is a lifecycle-aware plugin contract.
//
// Modules must be concurrency-safe because handlers can run on multiple workers.
type Module interface {
	// Name returns a stable module identifier.
	Name() string
	// Spec returns declarative handlers and commands.
	Spec() ModuleSpec
	// OnStart is called when the kernel begins runtime execution.
	OnStart(ctx context.Context) error
	// OnShutdown is called during orderly shutdown.
	OnShutdown(ctx context.Context) error
}

// ModuleRegistrar is implemented by modules that resolve services at registration time.
type ModuleRegistrar interface {
	// OnRegister is called once before declared handlers are subscribed.
	OnRegister(ctx context.Context, runtime ModuleRuntime) error
}

// Driver adapts external platforms into neutral events.
//
// Drivers own transport/session concerns and must publish only subroll.Event.
type Driver interface {
	// Name returns a stable driver identifier.
	Name() string
	// Start starts consuming external updates and publishing neutral events.
	// It should return only after context cancellation or fatal error.
	Start(ctx context.Context, dispatcher EventDispatcher) error
	// Shutdown stops external resources that are not tied to Start context alone.
	Shutdown(ctx context.Context) error
}
