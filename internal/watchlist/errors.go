package watchlist

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable is matched by every *UnavailableError via errors.Is.
	ErrUnavailable = errors.New("watchlist unavailable")

	// ErrUnexpectedStatus is returned when the exit list server does not answer 200 OK.
	ErrUnexpectedStatus = errors.New("unexpected HTTP status")

	// ErrEmptyList is returned when a fetched exit list contains no address.
	// An empty download never replaces a cached list.
	ErrEmptyList = errors.New("exit list is empty")
)

// UnavailableError is returned when no exit list could be obtained.
// It is not fatal for an analysis run: the run proceeds with an empty set.
type UnavailableError struct {
	// Source names the file, URL or provider chain that failed.
	Source string

	// Err is the underlying cause; it may join several causes.
	Err error
}

// Error implements error.
func (e *UnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("watchlist unavailable from %s", e.Source)
	}
	return fmt.Sprintf("watchlist unavailable from %s: %v", e.Source, e.Err)
}

// Unwrap returns the underlying cause.
func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrUnavailable.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}
