package feeds

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyFeed indicates that the first page of a full-depth population had no entries.
	ErrEmptyFeed = errors.New("feeds: feed does not exist or is empty")
	// ErrNoItems indicates that a population finished without any displayable item.
	ErrNoItems = errors.New("feeds: no displayable items")
	// ErrInvalidConfig indicates a rejected feeds configuration.
	ErrInvalidConfig = errors.New("feeds: invalid config")
)

// FetchError describes a failed listing page request.
type FetchError struct {
	// Feed is the feed whose page was requested.
	Feed string
	// After is the continuation cursor of the request, empty for the first page.
	After string
	// StatusCode is the HTTP status when a response was received.
	StatusCode int
	// Err is the underlying transport or decode failure.
	Err error
}

// Error implements error.
func (e *FetchError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("feeds: fetch %s page (after=%q): status %d: %v", e.Feed, e.After, e.StatusCode, e.Err)
	}

	return fmt.Sprintf("feeds: fetch %s page (after=%q): %v", e.Feed, e.After, e.Err)
}

// Unwrap returns the underlying failure.
func (e *FetchError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Err
}

// PopulationError attaches the feed name to a failed cache population.
type PopulationError struct {
	Feed string
	Err  error
}

// Error implements error.
func (e *PopulationError) Error() string {
	if e == nil {
		return "<nil>"
	}

	return fmt.Sprintf("feeds: populate %s: %v", e.Feed, e.Err)
}

// Unwrap returns the underlying failure so errors.Is can match ErrEmptyFeed.
func (e *PopulationError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Err
}
