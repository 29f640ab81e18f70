package location

import (
	"errors"
	"testing"
	"time"

	"github.com/heyduet/go-duet/pkg/geo"
)

var testBase = geo.Point{Lat: 40.7128, Lon: -74.0060}

func testFix(p geo.Point, at time.Time) RawFix {
	return RawFix{Lat: p.Lat, Lon: p.Lon, AccuracyMeters: 10, CapturedAt: at}
}

func newTestDebouncer(t *testing.T) *Debouncer {
	t.Helper()
	d, err := NewDebouncer(DefaultConfig())
	if err != nil {
		t.Fatalf("NewDebouncer() error = %v", err)
	}
	return d
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"defaults", DefaultConfig(), false},
		{"zero movement threshold", Config{MovementThresholdMeters: 0, MinInterval: time.Second, StaleAfter: time.Minute, WeakSignalAccuracyMeters: 100}, true},
		{"negative movement threshold", Config{MovementThresholdMeters: -1, MinInterval: time.Second, StaleAfter: time.Minute, WeakSignalAccuracyMeters: 100}, true},
		{"zero interval", Config{MovementThresholdMeters: 50, MinInterval: 0, StaleAfter: time.Minute, WeakSignalAccuracyMeters: 100}, true},
		{"zero stale window", Config{MovementThresholdMeters: 50, MinInterval: time.Second, StaleAfter: 0, WeakSignalAccuracyMeters: 100}, true},
		{"zero weak signal accuracy", Config{MovementThresholdMeters: 50, MinInterval: time.Second, StaleAfter: time.Minute, WeakSignalAccuracyMeters: 0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestDebouncerColdStart(t *testing.T) {
	d := newTestDebouncer(t)
	t0 := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	out := d.Ingest(testFix(testBase, t0))
	if out.Decision != Accepted {
		t.Fatalf("cold start decision = %v, want accepted", out.Decision)
	}
	if out.Stable.Lat != testBase.Lat || out.Stable.Lon != testBase.Lon {
		t.Errorf("stable location = (%v, %v), want (%v, %v)",
			out.Stable.Lat, out.Stable.Lon, testBase.Lat, testBase.Lon)
	}
	if out.Stable.IsStale || out.Stable.IsWeakSignal {
		t.Errorf("fresh stable location flagged: stale=%v weak=%v",
			out.Stable.IsStale, out.Stable.IsWeakSignal)
	}
}

func TestDebouncerGateBoundaries(t *testing.T) {
	t0 := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		offsetMeters float64
		elapsed      time.Duration
		want         Decision
	}{
		{"sufficient movement after interval", 60, 6 * time.Second, Accepted},
		{"exactly min interval", 60, 5000 * time.Millisecond, Accepted},
		{"one ms under interval", 60, 4999 * time.Millisecond, RejectedCooldown},
		{"49m under threshold", 49, 6 * time.Second, RejectedMovement},
		{"10m jitter", 10, 6 * time.Second, RejectedMovement},
		{"both gates closed", 10, time.Second, RejectedCooldown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDebouncer(t)
			d.Ingest(testFix(testBase, t0))

			moved := geo.Offset(testBase, 90, tt.offsetMeters)
			out := d.Ingest(testFix(moved, t0.Add(tt.elapsed)))
			if out.Decision != tt.want {
				t.Errorf("Ingest() decision = %v, want %v", out.Decision, tt.want)
			}
		})
	}
}

func TestDebouncerExactMovementThreshold(t *testing.T) {
	// A fix exactly at the movement threshold must be accepted. The
	// threshold is set to the measured distance so the comparison is
	// exercised at true equality, no float slack.
	t0 := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	moved := geo.Offset(testBase, 90, 50)

	cfg := DefaultConfig()
	cfg.MovementThresholdMeters = geo.DistanceMeters(testBase, moved)
	d, err := NewDebouncer(cfg)
	if err != nil {
		t.Fatalf("NewDebouncer() error = %v", err)
	}

	d.Ingest(testFix(testBase, t0))
	out := d.Ingest(testFix(moved, t0.Add(6*time.Second)))
	if out.Decision != Accepted {
		t.Errorf("fix exactly at threshold = %v, want accepted", out.Decision)
	}
}

func TestDebouncerIdempotentUnderNoise(t *testing.T) {
	// GPS jitter while stationary: every fix inside the movement
	// threshold, arriving every second. Some pass the interval gate, all
	// must fail the movement gate; the stable location never changes.
	d := newTestDebouncer(t)
	t0 := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	first := d.Ingest(testFix(testBase, t0))
	if first.Decision != Accepted {
		t.Fatalf("first fix decision = %v, want accepted", first.Decision)
	}

	jitter := []float64{10, 25, 48, 5, 33, 49, 18, 2, 44, 30}
	for i, meters := range jitter {
		p := geo.Offset(testBase, float64(i*36), meters)
		out := d.Ingest(testFix(p, t0.Add(time.Duration(i+1)*time.Second)))
		if out.Decision == Accepted {
			t.Fatalf("fix %d (%.0fm jitter) was accepted, stable location drifted", i, meters)
		}
		if out.Stable != first.Stable {
			t.Fatalf("fix %d changed the stable location: %+v -> %+v", i, first.Stable, out.Stable)
		}
	}
}

func TestDebouncerCooldownReporting(t *testing.T) {
	d := newTestDebouncer(t)
	t0 := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	d.Ingest(testFix(testBase, t0))

	moved := geo.Offset(testBase, 90, 200)
	out := d.Ingest(testFix(moved, t0.Add(2*time.Second)))
	if out.Decision != RejectedCooldown {
		t.Fatalf("decision = %v, want rejected_cooldown", out.Decision)
	}
	if want := 3 * time.Second; out.Cooldown != want {
		t.Errorf("Cooldown = %v, want %v", out.Cooldown, want)
	}

	// The rejected fix is retained as pending for UI feedback.
	pending, ok := d.Pending()
	if !ok {
		t.Fatal("Pending() returned none after a cooldown rejection")
	}
	if pending.Lat != moved.Lat || pending.Lon != moved.Lon {
		t.Errorf("pending fix = (%v, %v), want (%v, %v)", pending.Lat, pending.Lon, moved.Lat, moved.Lon)
	}

	if got := d.RemainingCooldown(t0.Add(2 * time.Second)); got != 3*time.Second {
		t.Errorf("RemainingCooldown() = %v, want 3s", got)
	}
	if got := d.RemainingCooldown(t0.Add(time.Minute)); got != 0 {
		t.Errorf("RemainingCooldown() after gate opened = %v, want 0", got)
	}
}

func TestDebouncerMovementReporting(t *testing.T) {
	d := newTestDebouncer(t)
	t0 := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	d.Ingest(testFix(testBase, t0))

	moved := geo.Offset(testBase, 0, 30)
	out := d.Ingest(testFix(moved, t0.Add(10*time.Second)))
	if out.Decision != RejectedMovement {
		t.Fatalf("decision = %v, want rejected_movement", out.Decision)
	}
	if out.MovedMeters < 29.9 || out.MovedMeters > 30.1 {
		t.Errorf("MovedMeters = %v, want ~30", out.MovedMeters)
	}
}

func TestDebouncerMonotonicity(t *testing.T) {
	d := newTestDebouncer(t)
	t0 := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	d.Ingest(testFix(testBase, t0))

	// Far away and past every gate, but captured before the stable
	// location: discarded outright.
	old := geo.Offset(testBase, 90, 5000)
	out := d.Ingest(testFix(old, t0.Add(-time.Second)))
	if out.Decision != RejectedOutOfOrder {
		t.Errorf("decision = %v, want rejected_out_of_order", out.Decision)
	}
	if out.Stable.Lat != testBase.Lat {
		t.Errorf("out-of-order fix mutated the stable location")
	}
}

func TestDebouncerForce(t *testing.T) {
	d := newTestDebouncer(t)
	t0 := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	d.Ingest(testFix(testBase, t0))

	// Forced: a stationary fix 100ms later is accepted and re-baselines.
	d.Force()
	near := geo.Offset(testBase, 90, 2)
	out := d.Ingest(testFix(near, t0.Add(100*time.Millisecond)))
	if out.Decision != Accepted {
		t.Fatalf("forced fix decision = %v, want accepted", out.Decision)
	}

	// Force does not disable debouncing: the next ordinary fix is gated
	// against the new baseline.
	after := geo.Offset(near, 90, 10)
	out = d.Ingest(testFix(after, t0.Add(200*time.Millisecond)))
	if out.Decision != RejectedCooldown {
		t.Errorf("fix after forced update = %v, want rejected_cooldown", out.Decision)
	}
	if out.Stable.Lat != near.Lat {
		t.Errorf("baseline after force = %v, want forced fix latitude %v", out.Stable.Lat, near.Lat)
	}
}

func TestDebouncerForceSurvivesOutOfOrderFix(t *testing.T) {
	d := newTestDebouncer(t)
	t0 := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	d.Ingest(testFix(testBase, t0))

	d.Force()
	out := d.Ingest(testFix(testBase, t0.Add(-time.Second)))
	if out.Decision != RejectedOutOfOrder {
		t.Fatalf("stale fix decision = %v, want rejected_out_of_order", out.Decision)
	}

	// The arm is only consumed by an acceptance; the user's refresh still
	// lands with the next valid fix.
	out = d.Ingest(testFix(testBase, t0.Add(100*time.Millisecond)))
	if out.Decision != Accepted {
		t.Errorf("fix after discarded stale fix = %v, want accepted", out.Decision)
	}
}

func TestDebouncerWeakSignal(t *testing.T) {
	d := newTestDebouncer(t)
	t0 := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	fix := RawFix{Lat: testBase.Lat, Lon: testBase.Lon, AccuracyMeters: 150, CapturedAt: t0}
	out := d.Ingest(fix)
	if out.Decision != Accepted {
		t.Fatalf("weak signal fix decision = %v, want accepted", out.Decision)
	}
	if !out.Stable.IsWeakSignal {
		t.Error("accuracy 150m not flagged as weak signal")
	}

	// Accuracy exactly at the threshold is not weak.
	d2 := newTestDebouncer(t)
	out = d2.Ingest(RawFix{Lat: testBase.Lat, Lon: testBase.Lon, AccuracyMeters: 100, CapturedAt: t0})
	if out.Stable.IsWeakSignal {
		t.Error("accuracy exactly 100m flagged as weak signal")
	}
}

func TestDebouncerStaleness(t *testing.T) {
	d := newTestDebouncer(t)
	t0 := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	d.Ingest(testFix(testBase, t0))

	deadline, ok := d.StaleDeadline()
	if !ok {
		t.Fatal("StaleDeadline() returned none with a stable location present")
	}
	if want := t0.Add(60 * time.Second); !deadline.Equal(want) {
		t.Errorf("StaleDeadline() = %v, want %v", deadline, want)
	}

	if _, changed := d.MarkStaleIfDue(t0.Add(30 * time.Second)); changed {
		t.Error("MarkStaleIfDue() marked stale before the deadline")
	}

	loc, changed := d.MarkStaleIfDue(t0.Add(61 * time.Second))
	if !changed || !loc.IsStale {
		t.Errorf("MarkStaleIfDue() after deadline: changed=%v stale=%v, want true/true", changed, loc.IsStale)
	}

	// Second check is a no-op.
	if _, changed := d.MarkStaleIfDue(t0.Add(2 * time.Minute)); changed {
		t.Error("MarkStaleIfDue() reported a change twice")
	}

	// A fresh acceptance clears staleness.
	moved := geo.Offset(testBase, 90, 500)
	out := d.Ingest(testFix(moved, t0.Add(2*time.Minute)))
	if out.Decision != Accepted {
		t.Fatalf("fix after staleness = %v, want accepted", out.Decision)
	}
	if out.Stable.IsStale {
		t.Error("freshly accepted location still marked stale")
	}
}

func TestDebouncerReset(t *testing.T) {
	d := newTestDebouncer(t)
	t0 := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	d.Ingest(testFix(testBase, t0))

	d.Reset()
	if _, ok := d.Stable(); ok {
		t.Fatal("Stable() still set after Reset()")
	}

	// Next fix is a cold start again, even stationary and immediate.
	out := d.Ingest(testFix(testBase, t0.Add(time.Millisecond)))
	if out.Decision != Accepted {
		t.Errorf("fix after reset = %v, want accepted", out.Decision)
	}
}

func TestDebouncerSetConfig(t *testing.T) {
	d := newTestDebouncer(t)
	t0 := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	d.Ingest(testFix(testBase, t0))

	cfg := DefaultConfig()
	cfg.MovementThresholdMeters = 10
	if err := d.SetConfig(cfg); err != nil {
		t.Fatalf("SetConfig() error = %v", err)
	}

	// 30m movement now clears the lowered threshold.
	moved := geo.Offset(testBase, 90, 30)
	out := d.Ingest(testFix(moved, t0.Add(6*time.Second)))
	if out.Decision != Accepted {
		t.Errorf("decision after reconfigure = %v, want accepted", out.Decision)
	}

	if err := d.SetConfig(Config{}); err == nil {
		t.Error("SetConfig() accepted an invalid config")
	}
}
