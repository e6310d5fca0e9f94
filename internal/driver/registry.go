package driver

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"subroll/pkg/subroll"
)

// Definition is one driver entry from configuration. Config holds the
// type-specific section re-encoded as JSON.
type Definition struct {
	Name    string
	Type    string
	Enabled bool
	Config  []byte
}

// Runtime is a built driver together with the outbound services it offers.
// SinkDispatcher and ModeratorChecker are nil for inbound-only drivers.
type Runtime struct {
	Source           subroll.EventSource
	Driver           subroll.Driver
	SinkDispatcher   subroll.SinkDispatcher
	ModeratorChecker subroll.ModeratorChecker
}

type BuilderFunc func(ctx context.Context, definition Definition, logger *slog.Logger) (Runtime, error)

// Descriptor registers a builder for one configuration type token.
type Descriptor struct {
	Type     string
	Platform subroll.Platform
	Builder  BuilderFunc
}

// Registry is an immutable lookup from driver type to Descriptor.
type Registry struct {
	byType map[string]Descriptor
}

func NewRegistry(descriptors []Descriptor) (*Registry, error) {
	byType := make(map[string]Descriptor, len(descriptors))
	for _, descriptor := range descriptors {
		var problem string
		switch _, duplicate := byType[descriptor.Type]; {
		case descriptor.Type == "":
			return nil, fmt.Errorf("new registry: empty descriptor type")
		case descriptor.Platform == "":
			problem = "empty platform"
		case descriptor.Builder == nil:
			problem = "nil builder"
		case duplicate:
			problem = "duplicate"
		}
		if problem != "" {
			return nil, fmt.Errorf("new registry type %s: %s", descriptor.Type, problem)
		}
		byType[descriptor.Type] = descriptor
	}

	return &Registry{byType: byType}, nil
}

// Types lists the registered driver types in sorted order.
func (r *Registry) Types() []string {
	if r == nil {
		return nil
	}

	return slices.Sorted(maps.Keys(r.byType))
}

func (r *Registry) PlatformForType(driverType string) (subroll.Platform, error) {
	if r == nil {
		return "", fmt.Errorf("resolve platform: nil registry")
	}
	descriptor, ok := r.byType[driverType]
	if !ok {
		return "", fmt.Errorf("resolve platform: unsupported type %s", driverType)
	}

	return descriptor.Platform, nil
}

// BuildEnabled builds the enabled definitions in configuration order. The
// source of each runtime defaults to the descriptor platform and the
// definition name.
func (r *Registry) BuildEnabled(ctx context.Context, definitions []Definition, logger *slog.Logger) ([]Runtime, error) {
	if r == nil {
		return nil, fmt.Errorf("build drivers: nil registry")
	}

	var runtimes []Runtime
	seen := make(map[string]bool, len(definitions))
	for _, definition := range definitions {
		if !definition.Enabled {
			continue
		}
		runtime, err := r.build(ctx, definition, seen, logger)
		if err != nil {
			return nil, err
		}
		runtimes = append(runtimes, runtime)
	}

	return runtimes, nil
}

func (r *Registry) build(ctx context.Context, definition Definition, seen map[string]bool, logger *slog.Logger) (Runtime, error) {
	switch {
	case definition.Name == "":
		return Runtime{}, fmt.Errorf("build driver: empty name")
	case seen[definition.Name]:
		return Runtime{}, fmt.Errorf("build driver %s: duplicate name", definition.Name)
	case definition.Type == "":
		return Runtime{}, fmt.Errorf("build driver %s: empty type", definition.Name)
	}
	seen[definition.Name] = true

	descriptor, ok := r.byType[definition.Type]
	if !ok {
		return Runtime{}, fmt.Errorf("build driver %s type %s: unsupported type", definition.Name, definition.Type)
	}
	runtime, err := descriptor.Builder(ctx, definition, logger)
	if err != nil {
		return Runtime{}, fmt.Errorf("build driver %s type %s: %w", definition.Name, definition.Type, err)
	}
	if runtime.Driver == nil {
		return Runtime{}, fmt.Errorf("build driver %s type %s: nil driver", definition.Name, definition.Type)
	}
	if runtime.Source.Platform == "" {
		runtime.Source.Platform = descriptor.Platform
	}
	if runtime.Source.ID == "" {
		runtime.Source.ID = definition.Name
	}

	return runtime, nil
}
