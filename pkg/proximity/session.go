package proximity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/heyduet/go-duet/internal/log"
	"github.com/heyduet/go-duet/pkg/geo"
	"github.com/heyduet/go-duet/pkg/location"
	"github.com/heyduet/go-duet/pkg/presence"
)

// Deps bundles a session's collaborators.
type Deps struct {
	// CounterpartID names the paired user whose presence this session
	// follows. Required.
	CounterpartID string

	// Tracker supplies the counterpart presence stream. Required.
	Tracker presence.Tracker

	// Source serves forced location updates. Optional; without it
	// ForceUpdate returns ErrNoSource.
	Source location.Source

	// Watcher pushes raw fixes into the session. Optional; Ingest
	// covers the discrete-call style either way.
	Watcher location.Watcher
}

// Session runs one pair's evaluation pipeline: raw fixes through the
// debouncer, presence into the derivation, modes out through callbacks.
// All evaluation happens on a single goroutine; public methods hand
// events to it through channels, so callbacks never race each other.
type Session struct {
	id   string
	deps Deps

	logger *slog.Logger

	// Callbacks, set before Start. OnState fires on state change only;
	// OnLocation on accepted or stale-marked locations; OnGate for
	// every ingested fix with its gate decision; OnError for terminal
	// source errors and stream failures.
	OnState    func(State)
	OnLocation func(location.StableLocation)
	OnGate     func(location.Outcome)
	OnError    func(error)

	deb *location.Debouncer

	// Loop channels
	fixCh     chan location.RawFix
	forceCh   chan location.RawFix
	consentCh chan bool
	cfgCh     chan Config
	errCh     chan error

	presenceCh <-chan presence.Update
	watchCh    <-chan location.RawFix

	// Lifecycle
	startMu sync.Mutex
	started bool
	stopped bool
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	forceInFlight atomic.Bool

	// Snapshots for cross-goroutine reads, written only by the loop
	mu       sync.RWMutex
	cfg      Config
	state    State
	loc      location.StableLocation
	locKnown bool
	consent  bool

	// Loop-owned, never touched outside run
	counterpart         *geo.Point
	counterpartLastSeen time.Time
	staleTimer          *time.Timer
}

// NewSession creates a session for one pair. Configuration mistakes and
// missing collaborators surface here, never at runtime.
func NewSession(cfg Config, deps Deps) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Tracker == nil {
		return nil, fmt.Errorf("%w: tracker required", ErrInvalidConfig)
	}
	if deps.CounterpartID == "" {
		return nil, fmt.Errorf("%w: counterpart id required", ErrInvalidConfig)
	}

	deb, err := location.NewDebouncer(cfg.debounceConfig())
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:        uuid.NewString(),
		deps:      deps,
		deb:       deb,
		cfg:       cfg,
		fixCh:     make(chan location.RawFix, 8),
		forceCh:   make(chan location.RawFix),
		consentCh: make(chan bool),
		cfgCh:     make(chan Config),
		errCh:     make(chan error),
		done:      make(chan struct{}),
	}
	s.logger = log.Component("proximity.session").With("session_id", s.id)

	// Pre-derive so State never returns a zero value.
	s.state = Derive(Input{Now: time.Now()}, cfg)

	return s, nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// CounterpartID returns the paired user this session follows.
func (s *Session) CounterpartID() string {
	return s.deps.CounterpartID
}

// Start subscribes to the counterpart presence stream (and the fix
// watcher, when configured) and begins evaluation. The context bounds
// the session; cancelling it tears the session down like Stop, minus
// the synchronous wait.
func (s *Session) Start(ctx context.Context) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	if s.stopped {
		return ErrSessionClosed
	}
	if s.started {
		return ErrAlreadyStarted
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	presenceCh, err := s.deps.Tracker.Subscribe(s.ctx, s.deps.CounterpartID)
	if err != nil {
		s.cancel()
		return err
	}
	s.presenceCh = presenceCh

	if s.deps.Watcher != nil {
		watchCh, err := s.deps.Watcher.Watch(s.ctx)
		if err != nil {
			s.cancel()
			return err
		}
		s.watchCh = watchCh
	}

	s.started = true
	s.logger.Info("session started", "counterpart", s.deps.CounterpartID)
	go s.run()
	return nil
}

// Stop tears the session down: cancels the subscriptions, stops the
// stale timer, and waits for the loop to exit. No callback fires after
// Stop returns. Idempotent. Must not be called from a session callback.
func (s *Session) Stop() {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	if !s.started || s.stopped {
		s.stopped = true
		return
	}
	s.stopped = true
	s.cancel()
	<-s.done
	s.logger.Info("session stopped")
}

// loopCtx returns the loop's context when events can be delivered.
func (s *Session) loopCtx() (context.Context, error) {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if s.stopped {
		return nil, ErrSessionClosed
	}
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.ctx, nil
}

// Ingest pushes one raw fix into the pipeline. Safe from any goroutine.
func (s *Session) Ingest(fix location.RawFix) error {
	ctx, err := s.loopCtx()
	if err != nil {
		return err
	}
	select {
	case s.fixCh <- fix:
		return nil
	case <-ctx.Done():
		return ErrSessionClosed
	}
}

// SetConsent injects a location-consent change. Until consent is
// granted, fixes are dropped and no baseline forms; revoking clears the
// own location and the mode falls back to unavailable.
func (s *Session) SetConsent(granted bool) error {
	ctx, err := s.loopCtx()
	if err != nil {
		return err
	}
	select {
	case s.consentCh <- granted:
		return nil
	case <-ctx.Done():
		return ErrSessionClosed
	}
}

// Reconfigure validates the new configuration and swaps it in whole
// between evaluations; no derivation ever observes a partial mix of old
// and new values.
func (s *Session) Reconfigure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctx, err := s.loopCtx()
	if err != nil {
		return err
	}
	select {
	case s.cfgCh <- cfg:
		return nil
	case <-ctx.Done():
		return ErrSessionClosed
	}
}

// ForceUpdate fetches one fix from the source within the configured
// timeout, bypasses the gates for it, and ingests it. Meant for an
// explicit user refresh, and as the retry path after a terminal source
// error; never call it on a timer. A call while a fetch is in flight is
// rejected with ErrUpdateInFlight rather than queued.
func (s *Session) ForceUpdate(ctx context.Context) error {
	loopCtx, err := s.loopCtx()
	if err != nil {
		return err
	}
	if s.deps.Source == nil {
		return ErrNoSource
	}

	s.mu.RLock()
	consent := s.consent
	timeout := s.cfg.FetchTimeout
	s.mu.RUnlock()

	if !consent {
		return ErrNoConsent
	}

	if !s.forceInFlight.CompareAndSwap(false, true) {
		return ErrUpdateInFlight
	}
	defer s.forceInFlight.Store(false)

	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fix, err := s.deps.Source.Current(fetchCtx)
	if err != nil {
		// The error also surfaces on the error callback; the session
		// keeps serving the last state and staleness marks it.
		select {
		case s.errCh <- err:
		case <-loopCtx.Done():
		}
		return err
	}

	select {
	case s.forceCh <- fix:
		return nil
	case <-loopCtx.Done():
		return ErrSessionClosed
	}
}

// State returns the last derived proximity state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Location returns the current stable location, if one exists.
func (s *Session) Location() (location.StableLocation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loc, s.locKnown
}

// Config returns the active configuration.
func (s *Session) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// run is the session loop. Everything that evaluates or mutates
// pipeline state happens here.
func (s *Session) run() {
	defer close(s.done)

	// Armed only while a fresh stable location exists
	s.staleTimer = time.NewTimer(time.Hour)
	if !s.staleTimer.Stop() {
		<-s.staleTimer.C
	}
	defer s.staleTimer.Stop()

	s.derive()

	for {
		select {
		case <-s.ctx.Done():
			return

		case fix := <-s.fixCh:
			s.handleFix(fix, false)

		case fix := <-s.forceCh:
			s.handleFix(fix, true)

		case u, ok := <-s.presenceCh:
			if !ok {
				s.presenceCh = nil
				if s.ctx.Err() == nil {
					s.reportError(fmt.Errorf("%w: presence stream ended", presence.ErrSubscriptionFailed))
				}
				continue
			}
			s.handlePresence(u)

		case fix, ok := <-s.watchCh:
			if !ok {
				s.watchCh = nil
				if s.ctx.Err() == nil {
					s.reportError(fmt.Errorf("proximity: location watch ended"))
				}
				continue
			}
			s.handleFix(fix, false)

		case granted := <-s.consentCh:
			s.handleConsent(granted)

		case cfg := <-s.cfgCh:
			s.applyConfig(cfg)

		case err := <-s.errCh:
			s.reportError(err)

		case <-s.staleTimer.C:
			s.handleStale()
		}
	}
}

// handleFix runs one fix through consent and the debounce gates.
func (s *Session) handleFix(fix location.RawFix, forced bool) {
	if !s.consent {
		s.logger.Debug("fix dropped, no consent")
		s.emitGate(location.Outcome{Decision: location.RejectedNoConsent})
		return
	}

	if forced {
		s.deb.Force()
	}

	out := s.deb.Ingest(fix)
	s.emitGate(out)

	if out.Decision != location.Accepted {
		s.logger.Debug("fix rejected",
			"decision", out.Decision.String(),
			"cooldown", out.Cooldown,
			"moved_m", out.MovedMeters)
		return
	}

	s.storeLocation(out.Stable)
	if s.OnLocation != nil {
		s.OnLocation(out.Stable)
	}
	s.rearmStale()
	s.derive()
}

// handlePresence records the counterpart observation and re-derives.
func (s *Session) handlePresence(u presence.Update) {
	s.counterpart = u.Location
	s.counterpartLastSeen = u.LastSeenAt
	s.derive()
}

// handleConsent applies a consent change. Revoking drops every location
// trace; the next granted fix is a cold start.
func (s *Session) handleConsent(granted bool) {
	s.mu.Lock()
	prev := s.consent
	s.consent = granted
	s.mu.Unlock()

	if granted == prev {
		return
	}

	s.logger.Info("consent changed", "granted", granted)

	if !granted {
		s.deb.Reset()
		s.clearLocation()
		s.rearmStale()
		s.derive()
	}
}

// applyConfig swaps the configuration, already validated by Reconfigure.
func (s *Session) applyConfig(cfg Config) {
	if err := s.deb.SetConfig(cfg.debounceConfig()); err != nil {
		s.reportError(err)
		return
	}

	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()

	s.logger.Info("reconfigured",
		"movement_threshold_m", cfg.MovementThresholdMeters,
		"min_interval", cfg.MinInterval,
		"distance_threshold_km", cfg.DistanceThresholdKm)

	s.rearmStale()
	s.derive()
}

// handleStale marks the stable location stale once its deadline passes.
func (s *Session) handleStale() {
	loc, changed := s.deb.MarkStaleIfDue(time.Now())
	if !changed {
		// Fired early or already refreshed
		s.rearmStale()
		return
	}

	s.logger.Info("location stale", "captured_at", loc.CapturedAt)

	s.storeLocation(loc)
	if s.OnLocation != nil {
		s.OnLocation(loc)
	}
	s.derive()
}

// rearmStale resets the stale timer to the debouncer's current deadline,
// or leaves it stopped when there is nothing to expire.
func (s *Session) rearmStale() {
	if !s.staleTimer.Stop() {
		select {
		case <-s.staleTimer.C:
		default:
		}
	}
	if deadline, ok := s.deb.StaleDeadline(); ok {
		s.staleTimer.Reset(time.Until(deadline))
	}
}

// derive recomputes the proximity state and emits it when it changed.
func (s *Session) derive() {
	in := Input{
		Counterpart:         s.counterpart,
		CounterpartLastSeen: s.counterpartLastSeen,
		Now:                 time.Now(),
	}
	if stable, ok := s.deb.Stable(); ok {
		in.Own = &stable
	}

	s.mu.Lock()
	next := Derive(in, s.cfg)
	changed := next != s.state
	s.state = next
	s.mu.Unlock()

	if !changed {
		return
	}

	s.logger.Info("state changed",
		"mode", next.Mode,
		"distance", next.DistanceLabel,
		"counterpart_online", next.CounterpartOnline)

	if s.OnState != nil {
		s.OnState(next)
	}
}

func (s *Session) storeLocation(loc location.StableLocation) {
	s.mu.Lock()
	s.loc = loc
	s.locKnown = true
	s.mu.Unlock()
}

func (s *Session) clearLocation() {
	s.mu.Lock()
	s.loc = location.StableLocation{}
	s.locKnown = false
	s.mu.Unlock()
}

func (s *Session) emitGate(out location.Outcome) {
	if s.OnGate != nil {
		s.OnGate(out)
	}
}

func (s *Session) reportError(err error) {
	s.logger.Error("session error", "error", err)
	if s.OnError != nil {
		s.OnError(err)
	}
}
