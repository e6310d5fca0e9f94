package subroll

import "errors"

// Event and bus errors.
var (
	ErrInvalidEvent        = errors.New("subroll: invalid event")
	ErrInvalidSubscription = errors.New("subroll: invalid subscription")
	ErrSubscriptionClosed  = errors.New("subroll: subscription closed")
	// ErrEventDropped is returned to publishers when a drop_newest queue is full.
	ErrEventDropped = errors.New("subroll: event dropped due to backpressure")
)

// Registration errors.
var (
	ErrServiceAlreadyRegistered = errors.New("subroll: service already registered")
	ErrServiceNotFound          = errors.New("subroll: service not found")
	ErrModuleAlreadyRegistered  = errors.New("subroll: module already registered")
	ErrDriverAlreadyRegistered  = errors.New("subroll: driver already registered")
	// ErrCommandAlreadyRegistered means two modules claimed one command name.
	ErrCommandAlreadyRegistered = errors.New("subroll: command already registered")
	ErrInvalidCommandPrefix     = errors.New("subroll: invalid command prefix")
)

// Outbound errors.
var (
	ErrInvalidOutboundRequest = errors.New("subroll: invalid outbound request")
	// ErrOutboundUnsupported means the platform cannot perform the operation.
	ErrOutboundUnsupported = errors.New("subroll: outbound operation unsupported")
)
