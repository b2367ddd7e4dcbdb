package client

import (
	"context"
	"errors"
)

// Common errors returned by the request cache.
var (
	// ErrRetryExhausted is returned when all attempts failed.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the fetch context ends during backoff.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrFetchPanicked is returned to waiters when a fetch function panics.
	ErrFetchPanicked = errors.New("fetch panicked")
)

// permanent is implemented by errors that retrying cannot fix, such as
// upstream 4xx responses.
type permanent interface {
	Permanent() bool
}

// DefaultRetryable retries every failure except permanent errors and
// cancellation.
func DefaultRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var p permanent
	if errors.As(err, &p) && p.Permanent() {
		return false
	}
	return true
}
