package kernel

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"subroll/pkg/subroll"
)

// RegisterDriver adds a platform driver. Drivers start in registration
// order once Run is called.
func (k *Kernel) RegisterDriver(driver subroll.Driver) error {
	if driver == nil {
		return fmt.Errorf("register driver: nil driver")
	}
	name := driver.Name()
	if name == "" {
		return fmt.Errorf("register driver: empty name")
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if slices.ContainsFunc(k.drivers, func(existing subroll.Driver) bool { return existing.Name() == name }) {
		return fmt.Errorf("register driver %s: %w", name, subroll.ErrDriverAlreadyRegistered)
	}
	k.drivers = append(k.drivers, driver)

	return nil
}

// driverGroup tracks the Start goroutines of all drivers.
type driverGroup struct {
	wg    sync.WaitGroup
	fatal chan error
	done  chan struct{}
}

// startDrivers launches every driver with dispatcher. The first
// non-cancellation failure is delivered on fatal; done closes once every
// Start has returned.
func (k *Kernel) startDrivers(ctx context.Context, dispatcher subroll.EventDispatcher) *driverGroup {
	group := &driverGroup{fatal: make(chan error, 1), done: make(chan struct{})}
	for _, driver := range k.driverSnapshot() {
		group.wg.Go(func() {
			err := runSafely("driver "+driver.Name()+" Start", func() error {
				return driver.Start(ctx, dispatcher)
			})
			if err == nil || isContextCancellation(err) {
				return
			}
			select {
			case group.fatal <- fmt.Errorf("run driver %s: %w", driver.Name(), err):
			default:
			}
		})
	}
	go func() {
		group.wg.Wait()
		close(group.done)
	}()

	return group
}

// shutdownDrivers runs Shutdown in reverse registration order.
func (k *Kernel) shutdownDrivers(ctx context.Context) error {
	drivers := k.driverSnapshot()
	slices.Reverse(drivers)

	var errs []error
	for _, driver := range drivers {
		err := runSafely("driver "+driver.Name()+" Shutdown", func() error {
			return driver.Shutdown(ctx)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("shutdown driver %s: %w", driver.Name(), err))
		}
	}

	return errors.Join(errs...)
}

func (k *Kernel) driverSnapshot() []subroll.Driver {
	k.mu.RLock()
	defer k.mu.RUnlock()

	return slices.Clone(k.drivers)
}

func (k *Kernel) driverNames() []string {
	drivers := k.driverSnapshot()
	names := make([]string, len(drivers))
	for index, driver := range drivers {
		names[index] = driver.Name()
	}

	return names
}
