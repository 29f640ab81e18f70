package location

import (
	"context"
	"sync"
	"time"

	"github.com/heyduet/go-duet/pkg/geo"
)

// SimSource is a deterministic walker for demos and tests: each fix
// advances the position one step along the current bearing. Implements
// both Source and Watcher.
type SimSource struct {
	mu         sync.Mutex
	pos        geo.Point
	bearingDeg float64
	stepMeters float64
	accuracyM  float64
	interval   time.Duration
}

// NewSimSource creates a walker at the start point heading along
// bearingDeg, moving stepMeters per fix. Defaults: 15 m accuracy, one fix
// per second in Watch mode.
func NewSimSource(start geo.Point, bearingDeg, stepMeters float64) *SimSource {
	return &SimSource{
		pos:        start,
		bearingDeg: bearingDeg,
		stepMeters: stepMeters,
		accuracyM:  15,
		interval:   time.Second,
	}
}

// SetAccuracy overrides the reported fix accuracy.
func (s *SimSource) SetAccuracy(meters float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accuracyM = meters
}

// SetInterval overrides the Watch emission interval.
func (s *SimSource) SetInterval(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interval = d
}

// SetBearing turns the walker.
func (s *SimSource) SetBearing(deg float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bearingDeg = deg
}

// SetStep changes the distance covered per fix.
func (s *SimSource) SetStep(meters float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stepMeters = meters
}

// Position returns the walker's current position.
func (s *SimSource) Position() geo.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

// Current returns a fix at the walker's position, then advances one step.
func (s *SimSource) Current(ctx context.Context) (RawFix, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fix := RawFix{
		Lat:            s.pos.Lat,
		Lon:            s.pos.Lon,
		AccuracyMeters: s.accuracyM,
		CapturedAt:     time.Now(),
	}
	s.pos = geo.Offset(s.pos, s.bearingDeg, s.stepMeters)
	return fix, nil
}

// Watch emits one fix per interval until ctx is cancelled.
func (s *SimSource) Watch(ctx context.Context) (<-chan RawFix, error) {
	s.mu.Lock()
	interval := s.interval
	s.mu.Unlock()

	out := make(chan RawFix, 16)
	go func() {
		defer close(out)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fix, err := s.Current(ctx)
				if err != nil {
					return
				}
				select {
				case out <- fix:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
