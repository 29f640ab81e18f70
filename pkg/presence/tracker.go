// Package presence delivers counterpart presence updates to proximity
// sessions. The Feed implementation speaks the Duet hub's WebSocket
// protocol; tests substitute a Mock.
//
// Online-ness is deliberately absent from this package: a tracker only
// reports raw observations (last location, last seen time) and the
// proximity engine derives online/offline from them, so the policy lives
// in exactly one place.
package presence

import (
	"context"
	"time"

	"github.com/heyduet/go-duet/pkg/geo"
)

// Update is one observation of a counterpart. A nil Location means no
// location has ever been reported; a zero LastSeenAt means the
// counterpart has never been seen.
type Update struct {
	Location   *geo.Point
	LastSeenAt time.Time
}

// Tracker is the presence contract consumed by proximity sessions.
// Subscribe returns a read-only stream of observations for the given
// user. The stream closes when ctx is cancelled or the tracker shuts
// down; transport hiccups are the tracker's problem, not the caller's.
type Tracker interface {
	Subscribe(ctx context.Context, userID string) (<-chan Update, error)
}
