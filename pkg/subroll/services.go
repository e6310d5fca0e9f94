package subroll

import (
	"fmt"
	"log/slog"
)

// ServiceLogger is the service key of the process *slog.Logger.
const ServiceLogger = "subroll.logger"

// ServiceRegistry holds named singletons shared between modules and drivers.
type ServiceRegistry interface {
	Register(name string, service any) error
	Resolve(name string) (any, error)
}

// ResolveAs resolves name and asserts it to T. A missing service wraps
// ErrServiceNotFound.
func ResolveAs[T any](registry ServiceRegistry, name string) (T, error) {
	var zero T

	service, err := registry.Resolve(name)
	if err != nil {
		return zero, fmt.Errorf("resolve service %s: %w", name, err)
	}
	typed, ok := service.(T)
	if !ok {
		return zero, fmt.Errorf("resolve service %s: unexpected type %T", name, service)
	}

	return typed, nil
}

// ResolveLogger falls back to slog.Default when no logger is registered.
func ResolveLogger(registry ServiceRegistry) *slog.Logger {
	if registry == nil {
		return slog.Default()
	}
	if logger, err := ResolveAs[*slog.Logger](registry, ServiceLogger); err == nil && logger != nil {
		return logger
	}

	return slog.Default()
}
