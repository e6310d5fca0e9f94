package kernel

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"subroll/pkg/subroll"
)

// RegisterModule adds module to the kernel. Its commands are registered,
// OnRegister runs if implemented, and declared handlers are subscribed.
// Any failure undoes the partial registration.
func (k *Kernel) RegisterModule(ctx context.Context, module subroll.Module) error {
	if module == nil {
		return fmt.Errorf("register module: nil module")
	}
	name := module.Name()
	if name == "" {
		return fmt.Errorf("register module: empty module name")
	}

	spec := module.Spec()
	if err := validateModuleSpec(spec); err != nil {
		return fmt.Errorf("register module %s: %w", name, err)
	}
	record := &moduleRecord{name: name, module: module, capabilities: spec.Capabilities()}
	if err := k.checkRequiredServices(record.capabilities); err != nil {
		return fmt.Errorf("register module %s: %w", name, err)
	}

	k.mu.Lock()
	if k.findModule(name) >= 0 {
		k.mu.Unlock()
		return fmt.Errorf("register module %s: %w", name, subroll.ErrModuleAlreadyRegistered)
	}
	k.modules = append(k.modules, record)
	k.mu.Unlock()

	if err := k.bindModule(ctx, record, spec); err != nil {
		k.unregisterModule(ctx, record)
		return fmt.Errorf("register module %s: %w", name, err)
	}

	return nil
}

func (k *Kernel) bindModule(ctx context.Context, record *moduleRecord, spec subroll.ModuleSpec) error {
	if err := k.commands.add(record.name, spec.Commands); err != nil {
		return err
	}

	hookCtx, cancel := context.WithTimeout(ctx, k.cfg.moduleHookTimeout)
	defer cancel()

	runtime := &moduleRuntime{
		moduleName: record.name,
		services:   k.services,
		bus:        k.bus,
		record:     record,
	}
	if registrar, ok := record.module.(subroll.ModuleRegistrar); ok {
		err := runSafely("module "+record.name+" OnRegister", func() error {
			return registrar.OnRegister(hookCtx, runtime)
		})
		if err != nil {
			return err
		}
	}

	for index, declared := range spec.Handlers {
		subscription := declared.Subscription
		if subscription.Name == "" {
			subscription.Name = fmt.Sprintf("%s-handler-%d", record.name, index+1)
		}
		if _, err := runtime.Subscribe(hookCtx, declared.Capability.Interest, subscription, declared.Handler); err != nil {
			return fmt.Errorf("register handler %s for capability %s: %w", subscription.Name, declared.Capability.Name, err)
		}
	}

	return nil
}

func (k *Kernel) unregisterModule(ctx context.Context, record *moduleRecord) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), k.cfg.moduleHookTimeout)
	defer cancel()

	if err := record.closeSubscriptions(cleanupCtx); err != nil {
		k.cfg.onAsyncError(cleanupCtx, "rollback_module_registration", err)
	}
	k.commands.removeModule(record.name)

	k.mu.Lock()
	k.modules = slices.DeleteFunc(k.modules, func(candidate *moduleRecord) bool {
		return candidate == record
	})
	k.mu.Unlock()
}

// findModule returns the index of the named module. Callers hold k.mu.
func (k *Kernel) findModule(name string) int {
	return slices.IndexFunc(k.modules, func(record *moduleRecord) bool {
		return record.name == name
	})
}

func (k *Kernel) checkRequiredServices(capabilities []subroll.Capability) error {
	for _, capability := range capabilities {
		for _, serviceName := range capability.RequiredServices {
			if _, err := k.services.Resolve(serviceName); err != nil {
				return fmt.Errorf("capability %s requires service %s: %w", capability.Name, serviceName, err)
			}
		}
	}

	return nil
}

// startModules runs OnStart in registration order and stops at the first
// failure.
func (k *Kernel) startModules(ctx context.Context) error {
	for _, record := range k.moduleSnapshot() {
		if err := k.moduleHook(ctx, record, "OnStart", record.module.OnStart); err != nil {
			return fmt.Errorf("start module %s: %w", record.name, err)
		}
	}

	return nil
}

// shutdownModules closes subscriptions and runs OnShutdown in reverse
// registration order, collecting every failure.
func (k *Kernel) shutdownModules(ctx context.Context) error {
	records := k.moduleSnapshot()
	slices.Reverse(records)

	var errs []error
	for _, record := range records {
		if err := record.closeSubscriptions(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown module %s subscriptions: %w", record.name, err))
		}
		if err := k.moduleHook(ctx, record, "OnShutdown", record.module.OnShutdown); err != nil {
			errs = append(errs, fmt.Errorf("shutdown module %s: %w", record.name, err))
		}
	}

	return errors.Join(errs...)
}

func (k *Kernel) moduleHook(ctx context.Context, record *moduleRecord, hook string, call func(context.Context) error) error {
	hookCtx, cancel := context.WithTimeout(ctx, k.cfg.moduleHookTimeout)
	defer cancel()

	return runSafely("module "+record.name+" "+hook, func() error {
		return call(hookCtx)
	})
}

func (k *Kernel) moduleSnapshot() []*moduleRecord {
	k.mu.RLock()
	defer k.mu.RUnlock()

	return slices.Clone(k.modules)
}

// validateModuleSpec rejects specs whose capability, subscription or
// command names collide, and handlers without a function.
func validateModuleSpec(spec subroll.ModuleSpec) error {
	capabilities := make(map[string]struct{}, len(spec.Handlers)+len(spec.AdditionalCapabilities))
	claimCapability := func(label string, name string) error {
		if name == "" {
			return fmt.Errorf("%s: empty capability name", label)
		}
		if _, exists := capabilities[name]; exists {
			return fmt.Errorf("%s: duplicate capability name %s", label, name)
		}
		capabilities[name] = struct{}{}
		return nil
	}

	subscriptions := make(map[string]struct{}, len(spec.Handlers))
	for index, handler := range spec.Handlers {
		if err := claimCapability(fmt.Sprintf("module handler %d", index), handler.Capability.Name); err != nil {
			return err
		}
		if handler.Handler == nil {
			return fmt.Errorf("module handler %s: nil handler", handler.Capability.Name)
		}
		name := handler.Subscription.Name
		if name == "" {
			continue
		}
		if _, exists := subscriptions[name]; exists {
			return fmt.Errorf("module handler %s: duplicate subscription name %s", handler.Capability.Name, name)
		}
		subscriptions[name] = struct{}{}
	}

	for index, capability := range spec.AdditionalCapabilities {
		if err := claimCapability(fmt.Sprintf("additional capability %d", index), capability.Name); err != nil {
			return err
		}
	}

	commands := make(map[string]struct{}, len(spec.Commands))
	for index, command := range spec.Commands {
		if err := command.Validate(); err != nil {
			return fmt.Errorf("module command %d: %w", index, err)
		}
		name := subroll.NormalizeCommandName(command.Name)
		if _, exists := commands[name]; exists {
			return fmt.Errorf("module command %d: duplicate command %s", index, name)
		}
		commands[name] = struct{}{}
	}

	return nil
}
