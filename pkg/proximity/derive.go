// Package proximity derives the communication mode between two paired
// users from their locations and presence: live voice when both are
// present and nearby, cloud memos when the counterpart is far or
// offline, unavailable when a location is missing. Sessions run one
// evaluation pipeline per pair; the derivation itself is a pure
// function.
package proximity

import (
	"time"

	"github.com/heyduet/go-duet/pkg/geo"
	"github.com/heyduet/go-duet/pkg/location"
)

// Mode is the communication mode offered to a pair.
type Mode string

const (
	// ModeLive means both parties are present and within the distance
	// threshold: the app offers live voice.
	ModeLive Mode = "live"

	// ModeCloudMemo means the counterpart is known but far away or
	// offline: the app offers async voice memos.
	ModeCloudMemo Mode = "cloud_memo"

	// ModeUnavailable means a location is missing on either side.
	// Absence of data, never an error.
	ModeUnavailable Mode = "unavailable"
)

// State is one derived proximity snapshot. A plain comparable value:
// deriving twice from identical inputs yields identical States.
type State struct {
	Mode Mode

	// DistanceKm is the great-circle distance between the pair.
	// Meaningful only when DistanceKnown is true.
	DistanceKm    float64
	DistanceKnown bool

	// DistanceLabel is the UI-ready distance string, geo.UnknownDistanceLabel
	// when the distance is unknown.
	DistanceLabel string

	CounterpartOnline bool
}

// Input bundles everything one derivation reads.
type Input struct {
	// Own is the debounced own location. Nil until a fix is accepted,
	// and again after consent is revoked.
	Own *location.StableLocation

	// Counterpart is the counterpart's last reported coordinate. Nil
	// when never reported.
	Counterpart *geo.Point

	// CounterpartLastSeen is when the counterpart was last heard from.
	// Zero means never.
	CounterpartLastSeen time.Time

	// Now anchors the heartbeat-timeout comparison.
	Now time.Time
}

// Derive computes the proximity state from current inputs, in order:
// online-ness, location availability, distance, mode. Pure and
// idempotent; it reads no clocks and mutates nothing, so it is safe to
// call redundantly.
func Derive(in Input, cfg Config) State {
	online := !in.CounterpartLastSeen.IsZero() &&
		in.Now.Sub(in.CounterpartLastSeen) < cfg.HeartbeatTimeout

	st := State{
		CounterpartOnline: online,
		DistanceLabel:     geo.UnknownDistanceLabel,
	}

	// Missing data on either side dominates everything else.
	if in.Own == nil || in.Counterpart == nil {
		st.Mode = ModeUnavailable
		return st
	}

	st.DistanceKm = geo.DistanceKm(in.Own.Point(), *in.Counterpart)
	st.DistanceKnown = true
	st.DistanceLabel = geo.FormatDistance(st.DistanceKm)

	// Offline dominates distance: even side by side, an offline
	// counterpart gets memos, not live voice.
	if !online {
		st.Mode = ModeCloudMemo
		return st
	}

	if st.DistanceKm <= cfg.DistanceThresholdKm {
		st.Mode = ModeLive
	} else {
		st.Mode = ModeCloudMemo
	}
	return st
}
