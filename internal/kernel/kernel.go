package kernel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"subroll/pkg/subroll"
)

// Kernel owns the event bus, the service registry and the command table,
// and runs registered modules and drivers.
type Kernel struct {
	cfg config

	bus      *EventBus
	services *ServiceRegistry
	prefix   *PrefixStore
	commands *commandTable

	mu      sync.RWMutex
	modules []*moduleRecord
	drivers []subroll.Driver

	running atomic.Bool
}

// New creates a kernel and registers its built-in services: the logger,
// the command catalog and the command prefix store.
func New(options ...Option) *Kernel {
	cfg := newConfig(options)
	k := &Kernel{
		cfg:      cfg,
		bus:      NewEventBus(cfg.subscriptionBuffer, cfg.subscriptionWorker, cfg.handlerTimeout, cfg.onAsyncError),
		services: NewServiceRegistry(),
		prefix:   newPrefixStore(cfg.commandPrefix),
		commands: newCommandTable(),
	}

	builtins := []struct {
		name    string
		service any
	}{
		{subroll.ServiceLogger, cfg.logger},
		{subroll.ServiceCommandCatalog, k.commands},
		{subroll.ServiceCommandPrefix, k.prefix},
	}
	for _, builtin := range builtins {
		if err := k.services.Register(builtin.name, builtin.service); err != nil {
			cfg.onAsyncError(context.Background(), "register builtin service "+builtin.name, err)
		}
	}

	return k
}

// EventBus returns the kernel's bus.
func (k *Kernel) EventBus() subroll.EventBus {
	return k.bus
}

// Services returns the kernel's service registry.
func (k *Kernel) Services() subroll.ServiceRegistry {
	return k.services
}

// CommandPrefix returns the live command prefix store.
func (k *Kernel) CommandPrefix() subroll.CommandPrefixStore {
	return k.prefix
}

// RegisterService registers a named service for modules to resolve.
func (k *Kernel) RegisterService(name string, service any) error {
	if err := k.services.Register(name, service); err != nil {
		return fmt.Errorf("register service %s: %w", name, err)
	}

	return nil
}

// Run starts modules and then drivers, and blocks until ctx is cancelled,
// a driver fails, or every driver has returned. Shutdown always follows.
// Cancellation is not reported as an error.
func (k *Kernel) Run(ctx context.Context) error {
	if !k.running.CompareAndSwap(false, true) {
		return fmt.Errorf("kernel run: already running")
	}
	defer k.running.Store(false)

	if err := k.startModules(ctx); err != nil {
		return errors.Join(err, k.shutdownAll(ctx))
	}

	k.cfg.logger.InfoContext(ctx, "kernel running",
		"modules", k.moduleNames(),
		"drivers", k.driverNames(),
		"services", k.services.Names(),
		"command_prefix", k.prefix.Prefix(),
	)

	driverCtx, stopDrivers := context.WithCancel(ctx)
	group := k.startDrivers(driverCtx, k.newDriverDispatcher())
	finished := group.done
	if len(k.driverSnapshot()) == 0 {
		// Without drivers only cancellation ends the run.
		finished = nil
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-group.fatal:
	case <-finished:
	}
	stopDrivers()
	k.awaitDrivers(group)
	if runErr == nil {
		select {
		case runErr = <-group.fatal:
		default:
		}
	}

	return errors.Join(runErr, k.shutdownAll(ctx))
}

func (k *Kernel) awaitDrivers(group *driverGroup) {
	timer := time.NewTimer(k.cfg.shutdownTimeout)
	defer timer.Stop()

	select {
	case <-group.done:
	case <-timer.C:
		k.cfg.logger.Warn("drivers did not stop before shutdown timeout", "timeout", k.cfg.shutdownTimeout)
	}
}

// shutdownAll stops drivers, then modules, then the bus. It runs on a
// context detached from ctx's cancellation and bounded by the shutdown
// timeout.
func (k *Kernel) shutdownAll(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), k.cfg.shutdownTimeout)
	defer cancel()

	err := errors.Join(
		k.shutdownDrivers(shutdownCtx),
		k.shutdownModules(shutdownCtx),
		k.bus.Close(shutdownCtx),
	)
	if err != nil {
		return fmt.Errorf("kernel shutdown: %w", err)
	}

	return nil
}

func (k *Kernel) moduleNames() []string {
	records := k.moduleSnapshot()
	names := make([]string, len(records))
	for index, record := range records {
		names[index] = record.name
	}

	return names
}

func isContextCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
