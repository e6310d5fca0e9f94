package kernel

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"subroll/pkg/subroll"

	"github.com/samber/lo"
)

// moduleRecord is the kernel's bookkeeping for one registered module.
type moduleRecord struct {
	name         string
	module       subroll.Module
	capabilities []subroll.Capability

	subMu         sync.Mutex
	subscriptions []subroll.Subscription
}

func (m *moduleRecord) track(subscription subroll.Subscription) {
	m.subMu.Lock()
	m.subscriptions = append(m.subscriptions, subscription)
	m.subMu.Unlock()
}

// closeSubscriptions closes and forgets every tracked subscription. Calling
// it again closes nothing.
func (m *moduleRecord) closeSubscriptions(ctx context.Context) error {
	m.subMu.Lock()
	subscriptions := m.subscriptions
	m.subscriptions = nil
	m.subMu.Unlock()

	errs := make([]error, 0, len(subscriptions))
	for _, subscription := range subscriptions {
		if err := subscription.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close subscription %s: %w", subscription.Name(), err))
		}
	}

	return errors.Join(errs...)
}

// moduleRuntime is the subroll.ModuleRuntime handed to one module.
type moduleRuntime struct {
	moduleName string
	services   subroll.ServiceRegistry
	bus        subroll.EventBus
	record     *moduleRecord
}

func (r *moduleRuntime) Services() subroll.ServiceRegistry {
	return r.services
}

// Subscribe subscribes on behalf of the module. The interest must be
// covered by one of the module's declared capabilities.
func (r *moduleRuntime) Subscribe(
	ctx context.Context,
	interest subroll.InterestSet,
	spec subroll.SubscriptionSpec,
	handler subroll.EventHandler,
) (subroll.Subscription, error) {
	if spec.Name == "" {
		spec.Name = r.moduleName + "-subscription"
	}

	if err := assertSubscriptionAllowed(r.record.capabilities, spec.Name, interest); err != nil {
		return nil, fmt.Errorf("module %s subscribe %s: %w", r.moduleName, spec.Name, err)
	}
	subscription, err := r.bus.Subscribe(ctx, interest, spec, handler)
	if err != nil {
		return nil, fmt.Errorf("module %s subscribe %s: %w", r.moduleName, spec.Name, err)
	}
	r.record.track(subscription)

	return subscription, nil
}

func assertSubscriptionAllowed(
	capabilities []subroll.Capability,
	subscriptionName string,
	interest subroll.InterestSet,
) error {
	if len(capabilities) == 0 {
		return fmt.Errorf("subscription %s requires at least one declared capability", subscriptionName)
	}
	if !lo.SomeBy(capabilities, func(capability subroll.Capability) bool {
		return capability.Interest.Allows(interest)
	}) {
		return fmt.Errorf("subscription %s does not match declared module capabilities", subscriptionName)
	}

	return nil
}
