package location

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/heyduet/go-duet/internal/log"
	"github.com/heyduet/go-duet/pkg/geo"
)

// Config controls the debounce gates.
type Config struct {
	// MovementThresholdMeters is the minimum great-circle movement from
	// the accepted position before a new fix can be accepted.
	MovementThresholdMeters float64

	// MinInterval is the minimum time between accepted fixes, measured
	// between fix capture times.
	MinInterval time.Duration

	// StaleAfter is how long the stable location may go unrefreshed
	// before it is marked stale.
	StaleAfter time.Duration

	// WeakSignalAccuracyMeters flags accepted fixes whose reported
	// accuracy is worse than this value. Weak signal never blocks
	// acceptance.
	WeakSignalAccuracyMeters float64
}

// DefaultConfig returns the production debounce thresholds.
func DefaultConfig() Config {
	return Config{
		MovementThresholdMeters:  50,
		MinInterval:              5 * time.Second,
		StaleAfter:               60 * time.Second,
		WeakSignalAccuracyMeters: 100,
	}
}

// Validate checks that all thresholds are usable.
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
	return nil
}

// Decision classifies what Ingest did with a fix.
type Decision int

const (
	// Accepted means the fix became the new stable location.
	Accepted Decision = iota

	// RejectedCooldown means the fix arrived before the minimum interval
	// elapsed. The fix is retained as pending.
	RejectedCooldown

	// RejectedMovement means the fix did not move far enough from the
	// stable location.
	RejectedMovement

	// RejectedOutOfOrder means the fix was captured before the current
	// stable location and was discarded outright.
	RejectedOutOfOrder

	// RejectedNoConsent means the fix was dropped before the gates
	// because location consent is absent. Produced by session-level
	// gating, never by the debouncer itself.
	RejectedNoConsent
)

// String returns the decision name for logs.
func (d Decision) String() string {
	switch d {
	case Accepted:
		return "accepted"
	case RejectedCooldown:
		return "rejected_cooldown"
	case RejectedMovement:
		return "rejected_movement"
	case RejectedOutOfOrder:
		return "rejected_out_of_order"
	case RejectedNoConsent:
		return "rejected_no_consent"
	default:
		return "unknown"
	}
}

// Outcome reports the result of ingesting one fix. Stable always holds
// the post-call stable location; every path except a cold-start accept
// implies one already existed.
type Outcome struct {
	Decision Decision

	// Stable is the current stable location after this call.
	Stable StableLocation

	// Cooldown is the time remaining on the interval gate when the
	// decision is RejectedCooldown.
	Cooldown time.Duration

	// MovedMeters is the measured movement from the previous stable
	// location, set on RejectedMovement and on non-cold accepts.
	MovedMeters float64
}

// Debouncer filters a raw fix stream into infrequent, significant stable
// locations. Not safe for concurrent use: a session loop owns one and
// serializes access.
type Debouncer struct {
	cfg       Config
	stable    *StableLocation
	pending   *RawFix
	forceNext bool
	logger    *slog.Logger
}

// NewDebouncer creates a debouncer. Returns ErrInvalidConfig for unusable
// thresholds; configuration mistakes surface here, never mid-stream.
func NewDebouncer(cfg Config) (*Debouncer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Debouncer{
		cfg:    cfg,
		logger: log.Component("debounce"),
	}, nil
}

// Ingest runs one fix through the gates, in order: monotonicity, cold
// start / forced bypass, interval, movement. Only an accept mutates the
// stable location.
func (d *Debouncer) Ingest(fix RawFix) Outcome {
	// Out-of-order fixes are dropped before any gate, forced or not.
	if d.stable != nil && fix.CapturedAt.Before(d.stable.CapturedAt) {
		d.logger.Debug("discarded out-of-order fix",
			"fix_captured_at", fix.CapturedAt,
			"stable_captured_at", d.stable.CapturedAt)
		return Outcome{Decision: RejectedOutOfOrder, Stable: *d.stable}
	}

	if d.stable == nil {
		return d.accept(fix, 0)
	}

	if d.forceNext {
		d.forceNext = false
		return d.accept(fix, geo.DistanceMeters(d.stable.Point(), fix.Point()))
	}

	elapsed := fix.CapturedAt.Sub(d.stable.CapturedAt)
	if elapsed < d.cfg.MinInterval {
		f := fix
		d.pending = &f
		remaining := d.cfg.MinInterval - elapsed
		return Outcome{Decision: RejectedCooldown, Stable: *d.stable, Cooldown: remaining}
	}

	moved := geo.DistanceMeters(d.stable.Point(), fix.Point())
	if moved < d.cfg.MovementThresholdMeters {
		d.logger.Debug("fix below movement threshold",
			"moved_m", moved,
			"threshold_m", d.cfg.MovementThresholdMeters)
		return Outcome{Decision: RejectedMovement, Stable: *d.stable, MovedMeters: moved}
	}

	return d.accept(fix, moved)
}

func (d *Debouncer) accept(fix RawFix, moved float64) Outcome {
	loc := StableLocation{
		Lat:            fix.Lat,
		Lon:            fix.Lon,
		AccuracyMeters: fix.AccuracyMeters,
		CapturedAt:     fix.CapturedAt,
		IsWeakSignal:   fix.AccuracyMeters > d.cfg.WeakSignalAccuracyMeters,
	}
	d.stable = &loc
	d.pending = nil
	return Outcome{Decision: Accepted, Stable: loc, MovedMeters: moved}
}

// Force arms a one-shot bypass: the very next fix is accepted
// unconditionally (monotonicity still applies) and resets both gate
// baselines. Ordinary gating resumes with the fix after that. The arm is
// consumed only by an actual acceptance, so an out-of-order discard does
// not swallow a user's refresh.
func (d *Debouncer) Force() {
	d.forceNext = true
}

// Stable returns the current stable location, if any fix was accepted yet.
func (d *Debouncer) Stable() (StableLocation, bool) {
	if d.stable == nil {
		return StableLocation{}, false
	}
	return *d.stable, true
}

// Pending returns the most recent fix rejected by the interval gate.
// Cleared whenever a fix is accepted.
func (d *Debouncer) Pending() (RawFix, bool) {
	if d.pending == nil {
		return RawFix{}, false
	}
	return *d.pending, true
}

// RemainingCooldown reports how much of the interval gate is left at the
// given wall time, for UI feedback. Zero when the gate is open or no fix
// was accepted yet.
func (d *Debouncer) RemainingCooldown(now time.Time) time.Duration {
	if d.stable == nil {
		return 0
	}
	remaining := d.cfg.MinInterval - now.Sub(d.stable.CapturedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// StaleDeadline returns when the current stable location should be marked
// stale. False when there is nothing to expire.
func (d *Debouncer) StaleDeadline() (time.Time, bool) {
	if d.stable == nil || d.stable.IsStale {
		return time.Time{}, false
	}
	return d.stable.CapturedAt.Add(d.cfg.StaleAfter), true
}

// MarkStaleIfDue flips the stable location to stale when its deadline has
// passed. Returns the location and whether this call changed it. The
// debouncer stays the sole mutator of stable locations; callers only
// schedule the check.
func (d *Debouncer) MarkStaleIfDue(now time.Time) (StableLocation, bool) {
	if d.stable == nil || d.stable.IsStale {
		return StableLocation{}, false
	}
	if now.Sub(d.stable.CapturedAt) < d.cfg.StaleAfter {
		return *d.stable, false
	}
	d.stable.IsStale = true
	return *d.stable, true
}

// Reset drops all baselines and pending state. The next fix is a cold
// start. Used when location consent is revoked.
func (d *Debouncer) Reset() {
	d.stable = nil
	d.pending = nil
	d.forceNext = false
}

// SetConfig swaps the gate thresholds. Baselines are kept; the new
// thresholds apply from the next fix.
func (d *Debouncer) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	d.cfg = cfg
	return nil
}
