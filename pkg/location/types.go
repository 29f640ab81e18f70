// Package location turns a noisy stream of raw GPS fixes into rare,
// meaningful stable-location events. The debouncer is the only writer of
// stable locations; everything downstream (mode derivation, UI, network
// writes) sees debounced positions, never raw fixes.
package location

import (
	"time"

	"github.com/heyduet/go-duet/pkg/geo"
)

// RawFix is a single sample from a location source. Ephemeral: it is
// consumed by the debouncer immediately and never stored.
type RawFix struct {
	Lat            float64   `json:"lat"`
	Lon            float64   `json:"lon"`
	AccuracyMeters float64   `json:"accuracy_m"`
	CapturedAt     time.Time `json:"captured_at"`
}

// Point returns the fix coordinate.
func (f RawFix) Point() geo.Point {
	return geo.Point{Lat: f.Lat, Lon: f.Lon}
}

// StableLocation is a debounced position. It persists until superseded by
// the next accepted fix or marked stale after going unrefreshed too long.
//
// IsStale means no fix has been accepted within the stale window; the
// position is still served, consumers decide how to present it.
// IsWeakSignal means the fix that produced it reported poor accuracy; it
// never blocks acceptance.
type StableLocation struct {
	Lat            float64   `json:"lat"`
	Lon            float64   `json:"lon"`
	AccuracyMeters float64   `json:"accuracy_m"`
	CapturedAt     time.Time `json:"captured_at"`
	IsStale        bool      `json:"is_stale"`
	IsWeakSignal   bool      `json:"is_weak_signal"`
}

// Point returns the stable coordinate.
func (l StableLocation) Point() geo.Point {
	return geo.Point{Lat: l.Lat, Lon: l.Lon}
}
