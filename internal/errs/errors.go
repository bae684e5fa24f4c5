// Package errs defines the error taxonomy surfaced across the engine
// boundary. Callers distinguish kinds with errors.Is so the API layer can
// render an empty state versus a retry affordance.
package errs

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the target userkey is unknown to the provider.
	ErrNotFound = errors.New("userkey not found")

	// ErrDataFormat means the provider returned a malformed record. Single
	// malformed records are skipped; the error surfaces only when a request
	// itself cannot be interpreted.
	ErrDataFormat = errors.New("malformed provider data")

	// ErrTimeout means a single analysis exceeded its wall-clock budget.
	// The analysis is not retried automatically.
	ErrTimeout = errors.New("analysis timed out")

	// ErrUpstream means the provider was unreachable or failing, after the
	// internal retry was exhausted.
	ErrUpstream = errors.New("reputation provider unavailable")
)

// NotFound wraps ErrNotFound with the offending userkey.
func NotFound(userkey string) error {
	return fmt.Errorf("userkey %q: %w", userkey, ErrNotFound)
}

// DataFormat wraps ErrDataFormat with a description of the defect.
func DataFormat(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrDataFormat)...)
}

// Timeout wraps ErrTimeout with the operation that ran out of budget.
func Timeout(op string) error {
	return fmt.Errorf("%s: %w", op, ErrTimeout)
}

// Upstream wraps ErrUpstream with the underlying cause.
func Upstream(cause error) error {
	return fmt.Errorf("%v: %w", cause, ErrUpstream)
}

// FromContext converts a context cancellation into the taxonomy, so a
// deadline hit inside a provider call surfaces as ErrTimeout rather than a
// bare context error.
func FromContext(err error, op string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout(op)
	}
	return err
}

// Kind returns the wire name of an error's taxonomy kind, or "internal"
// for errors outside the taxonomy.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrDataFormat):
		return "data_format"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrUpstream):
		return "upstream"
	default:
		return "internal"
	}
}
