// Package errs defines the error kinds the flow core reports to callers
// and maps them onto HTTP statuses at the handler boundary.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrConflict marks a lost race (queue-number assignment, call-next).
	// Callers should re-read and retry with backoff.
	ErrConflict = errors.New("conflict")

	// ErrInvalidTransition marks a state change the lifecycle table does
	// not permit. Never retried.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrNotFound marks a missing patient, doctor, appointment, entry,
	// or notification.
	ErrNotFound = errors.New("not found")

	// ErrUnavailable marks an unreachable store or feed. Retried with
	// bounded backoff by the caller.
	ErrUnavailable = errors.New("dependency unavailable")
)

func Conflict(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrConflict)...)
}

func InvalidTransition(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrInvalidTransition)...)
}

func NotFound(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
}

func Unavailable(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrUnavailable)...)
}

// HTTPStatus maps an error to the status code handlers should return.
// Unclassified errors map to 500.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidTransition):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
