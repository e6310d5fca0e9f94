package kernel

import (
	"context"
	"log/slog"
	"time"

	"subroll/pkg/subroll"
)

// Kernel defaults, overridden by the matching options.
const (
	defaultModuleHookTimeout   = 5 * time.Second
	defaultShutdownTimeout     = 10 * time.Second
	defaultSubscriptionBuffer  = 256
	defaultSubscriptionWorkers = 1
	defaultHandlerTimeout      = 3 * time.Second
)

type config struct {
	moduleHookTimeout  time.Duration
	shutdownTimeout    time.Duration
	subscriptionBuffer int
	subscriptionWorker int
	handlerTimeout     time.Duration
	commandPrefix      string
	logger             *slog.Logger
	onAsyncError       func(context.Context, string, error)
}

// Option configures a Kernel.
type Option func(*config)

func newConfig(options []Option) config {
	cfg := config{
		moduleHookTimeout:  defaultModuleHookTimeout,
		shutdownTimeout:    defaultShutdownTimeout,
		subscriptionBuffer: defaultSubscriptionBuffer,
		subscriptionWorker: defaultSubscriptionWorkers,
		handlerTimeout:     defaultHandlerTimeout,
		commandPrefix:      subroll.DefaultCommandPrefix,
		logger:             slog.Default(),
	}
	for _, option := range options {
		option(&cfg)
	}
	if cfg.onAsyncError == nil {
		logger := cfg.logger
		cfg.onAsyncError = func(ctx context.Context, scope string, err error) {
			logger.ErrorContext(ctx, "subroll async error", "scope", scope, "error", err)
		}
	}

	return cfg
}

// setPositive assigns value when it is above zero, leaving the default otherwise.
func setPositive[T int | time.Duration](target *T, value T) {
	if value > 0 {
		*target = value
	}
}

// WithModuleHookTimeout bounds each OnRegister, OnStart and OnShutdown call.
func WithModuleHookTimeout(timeout time.Duration) Option {
	return func(cfg *config) { setPositive(&cfg.moduleHookTimeout, timeout) }
}

// WithShutdownTimeout bounds the whole shutdown sequence.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(cfg *config) { setPositive(&cfg.shutdownTimeout, timeout) }
}

// WithDefaultSubscriptionBuffer sets the queue depth for subscriptions that
// do not choose one.
func WithDefaultSubscriptionBuffer(size int) Option {
	return func(cfg *config) { setPositive(&cfg.subscriptionBuffer, size) }
}

// WithDefaultSubscriptionWorkers sets the worker count for subscriptions
// that do not choose one.
func WithDefaultSubscriptionWorkers(workers int) Option {
	return func(cfg *config) { setPositive(&cfg.subscriptionWorker, workers) }
}

// WithDefaultHandlerTimeout sets the per-event handler timeout for
// subscriptions that do not choose one.
func WithDefaultHandlerTimeout(timeout time.Duration) Option {
	return func(cfg *config) { setPositive(&cfg.handlerTimeout, timeout) }
}

// WithCommandPrefix sets the initial command prefix. Invalid prefixes are
// ignored.
func WithCommandPrefix(prefix string) Option {
	return func(cfg *config) {
		if subroll.ValidateCommandPrefix(prefix) == nil {
			cfg.commandPrefix = prefix
		}
	}
}

// WithLogger sets the kernel logger. Unless WithAsyncErrorHandler is given,
// async errors are logged through it too.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithAsyncErrorHandler receives errors from subscription workers and other
// background paths.
func WithAsyncErrorHandler(handler func(context.Context, string, error)) Option {
	return func(cfg *config) {
		if handler != nil {
			cfg.onAsyncError = handler
		}
	}
}
