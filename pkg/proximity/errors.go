package proximity

import "errors"

// Sentinel errors for common error conditions.
var (
	// ErrInvalidConfig is returned for unusable thresholds or missing
	// collaborators at construction time.
	ErrInvalidConfig = errors.New("proximity: invalid config")

	// ErrUpdateInFlight is returned when ForceUpdate is called while a
	// previous forced fetch has not finished.
	ErrUpdateInFlight = errors.New("proximity: forced update already in flight")

	// ErrNotStarted is returned when operating on a session before Start.
	ErrNotStarted = errors.New("proximity: session not started")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("proximity: session already started")

	// ErrSessionClosed is returned when operating on a stopped session.
	ErrSessionClosed = errors.New("proximity: session closed")

	// ErrNoSource is returned by ForceUpdate when the session has no
	// location source to fetch from.
	ErrNoSource = errors.New("proximity: no location source")

	// ErrNoConsent is returned by ForceUpdate when location consent has
	// not been granted. Fixes are never fetched without it.
	ErrNoConsent = errors.New("proximity: location consent not granted")

	// ErrPairExists is returned by Engine.Track for an already tracked pair.
	ErrPairExists = errors.New("proximity: pair already tracked")

	// ErrPairNotFound is returned by Engine.Untrack for an unknown pair.
	ErrPairNotFound = errors.New("proximity: pair not tracked")
)
