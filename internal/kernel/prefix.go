package kernel

import (
	"fmt"
	"sync"

	"subroll/pkg/subroll"
)

// PrefixStore is the kernel-owned runtime command prefix.
type PrefixStore struct {
	mu    sync.RWMutex
	value string
}

func newPrefixStore(initial string) *PrefixStore {
	if subroll.ValidateCommandPrefix(initial) != nil {
		initial = subroll.DefaultCommandPrefix
	}

	return &PrefixStore{value: initial}
}

// Prefix returns the current prefix.
func (s *PrefixStore) Prefix() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.value
}

// SetPrefix replaces the prefix after validation.
func (s *PrefixStore) SetPrefix(value string) error {
	if err := subroll.ValidateCommandPrefix(value); err != nil {
		return fmt.Errorf("set command prefix: %w", err)
	}

	s.mu.Lock()
	s.value = value
	s.mu.Unlock()

	return nil
}

var _ subroll.CommandPrefixStore = (*PrefixStore)(nil)
