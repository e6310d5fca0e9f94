package kernel

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"

	"subroll/pkg/subroll"
)

// ServiceRegistry holds named runtime singletons shared between the entry
// point, the kernel and modules. Names are case-sensitive and trimmed.
type ServiceRegistry struct {
	mu      sync.RWMutex
	entries map[string]any
	order   []string
}

// NewServiceRegistry creates an empty service registry.
func NewServiceRegistry() *ServiceRegistry {
	return &ServiceRegistry{entries: make(map[string]any)}
}

// Register stores service under name. A name may be registered once.
func (r *ServiceRegistry) Register(name string, service any) error {
	key, err := serviceKey("register", name)
	if err != nil {
		return err
	}
	if isNilService(service) {
		return fmt.Errorf("register service %s: nil service", key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.entries[key]; taken {
		return fmt.Errorf("register service %s: %w", key, subroll.ErrServiceAlreadyRegistered)
	}
	r.entries[key] = service
	r.order = append(r.order, key)

	return nil
}

// Resolve returns the service registered under name.
func (r *ServiceRegistry) Resolve(name string) (any, error) {
	key, err := serviceKey("resolve", name)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	service, found := r.entries[key]
	r.mu.RUnlock()
	if !found {
		return nil, fmt.Errorf("resolve service %s: %w", key, subroll.ErrServiceNotFound)
	}

	return service, nil
}

// Names lists registered service names in registration order.
func (r *ServiceRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Clone(r.order)
}

func serviceKey(operation string, name string) (string, error) {
	key := strings.TrimSpace(name)
	if key == "" {
		return "", fmt.Errorf("%s service: empty name", operation)
	}

	return key, nil
}

func isNilService(service any) bool {
	if service == nil {
		return true
	}
	value := reflect.ValueOf(service)
	switch value.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return value.IsNil()
	default:
		return false
	}
}
