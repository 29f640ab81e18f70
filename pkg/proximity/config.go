package proximity

import (
	"fmt"
	"time"

	"github.com/heyduet/go-duet/pkg/location"
)

// Config holds all tunable parameters for a proximity session.
// Parameters are organized by stage for clarity.
type Config struct {
	// Debounce gates
	MovementThresholdMeters  float64       // Minimum movement before a new fix is accepted (default: 50)
	MinInterval              time.Duration // Minimum time between accepted fixes (default: 5s)
	StaleAfter               time.Duration // Unrefreshed stable location turns stale (default: 60s)
	WeakSignalAccuracyMeters float64       // Accuracy worse than this flags weak signal (default: 100)

	// Mode derivation
	DistanceThresholdKm float64       // Live vs cloud-memo boundary (default: 5)
	HeartbeatTimeout    time.Duration // Counterpart counts as offline after this silence (default: 10m)

	// Sources
	FetchTimeout time.Duration // Bound on one forced location fetch (default: 15s)
}

// DefaultConfig returns a Config with the production thresholds.
func DefaultConfig() Config {
	return Config{
		MovementThresholdMeters:  50,
		MinInterval:              5 * time.Second,
		StaleAfter:               60 * time.Second,
		WeakSignalAccuracyMeters: 100,

		DistanceThresholdKm: 5,
		HeartbeatTimeout:    10 * time.Minute,

		FetchTimeout: 15 * time.Second,
	}
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	if c.MovementThresholdMeters <= 0 {
		return fmt.Errorf("%w: movement threshold must be positive, got %v", ErrInvalidConfig, c.MovementThresholdMeters)
	}
	if c.MinInterval <= 0 {
		return fmt.Errorf("%w: min interval must be positive, got %v", ErrInvalidConfig, c.MinInterval)
	}
	if c.StaleAfter <= 0 {
		return fmt.Errorf("%w: stale window must be positive, got %v", ErrInvalidConfig, c.StaleAfter)
	}
	if c.WeakSignalAccuracyMeters <= 0 {
		return fmt.Errorf("%w: weak signal accuracy must be positive, got %v", ErrInvalidConfig, c.WeakSignalAccuracyMeters)
	}
	if c.DistanceThresholdKm <= 0 {
		return fmt.Errorf("%w: distance threshold must be positive, got %v", ErrInvalidConfig, c.DistanceThresholdKm)
	}
	if c.HeartbeatTimeout <= 0 {
		return fmt.Errorf("%w: heartbeat timeout must be positive, got %v", ErrInvalidConfig, c.HeartbeatTimeout)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("%w: fetch timeout must be positive, got %v", ErrInvalidConfig, c.FetchTimeout)
	}
	return nil
}

// debounceConfig maps the session config onto the debouncer's subset.
func (c Config) debounceConfig() location.Config {
	return location.Config{
		MovementThresholdMeters:  c.MovementThresholdMeters,
		MinInterval:              c.MinInterval,
		StaleAfter:               c.StaleAfter,
		WeakSignalAccuracyMeters: c.WeakSignalAccuracyMeters,
	}
}

// WithMovementThreshold returns a copy with the movement gate set.
func (c Config) WithMovementThreshold(meters float64) Config {
	c.MovementThresholdMeters = meters
	return c
}

// WithMinInterval returns a copy with the time gate set.
func (c Config) WithMinInterval(d time.Duration) Config {
	c.MinInterval = d
	return c
}

// WithStaleAfter returns a copy with the staleness window set.
func (c Config) WithStaleAfter(d time.Duration) Config {
	c.StaleAfter = d
	return c
}

// WithDistanceThreshold returns a copy with the live/cloud-memo boundary set.
func (c Config) WithDistanceThreshold(km float64) Config {
	c.DistanceThresholdKm = km
	return c
}

// WithHeartbeatTimeout returns a copy with the offline cutoff set.
func (c Config) WithHeartbeatTimeout(d time.Duration) Config {
	c.HeartbeatTimeout = d
	return c
}

// WithFetchTimeout returns a copy with the forced-fetch bound set.
func (c Config) WithFetchTimeout(d time.Duration) Config {
	c.FetchTimeout = d
	return c
}
