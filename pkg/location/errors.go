package location

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for location-source failures.
var (
	// ErrPermissionDenied is returned when the platform refuses access to
	// location data. Terminal until the user explicitly retries.
	ErrPermissionDenied = errors.New("location: permission denied")

	// ErrPositionUnavailable is returned when the hardware cannot produce
	// a fix. Terminal until the user explicitly retries.
	ErrPositionUnavailable = errors.New("location: position unavailable")

	// ErrTimeout is returned when a fix fetch exceeds its deadline.
	ErrTimeout = errors.New("location: fix timed out")

	// ErrInvalidConfig is returned when debounce thresholds are not
	// positive at construction time.
	ErrInvalidConfig = errors.New("location: invalid config")
)

// DaemonError represents an error response from the on-device location
// daemon.
type DaemonError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is the error message from the daemon, if any.
	Message string
}

// Error implements the error interface.
func (e *DaemonError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("location: daemon error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("location: daemon error %d", e.StatusCode)
}

// Unwrap maps daemon status codes onto the sentinel taxonomy so callers
// can use errors.Is without inspecting status codes.
func (e *DaemonError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusForbidden, http.StatusUnauthorized:
		return ErrPermissionDenied
	case http.StatusServiceUnavailable, http.StatusNotFound:
		return ErrPositionUnavailable
	case http.StatusGatewayTimeout:
		return ErrTimeout
	}
	return nil
}

// IsTerminal returns true for errors that should halt automatic location
// updates until the user explicitly retries.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrPositionUnavailable)
}
