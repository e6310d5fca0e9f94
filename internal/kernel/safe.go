package kernel

import (
	"errors"
	"fmt"
)

// errPanicked marks errors produced from a recovered panic.
var errPanicked = errors.New("panic recovered")

// runSafely calls fn, tagging its error with scope and turning a panic into an
// error wrapping errPanicked.
func runSafely(scope string, fn func() error) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("%s: %w: %v", scope, errPanicked, recovered)
		}
	}()

	if callErr := fn(); callErr != nil {
		return fmt.Errorf("%s: %w", scope, callErr)
	}

	return nil
}
