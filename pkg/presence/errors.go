package presence

import "errors"

// Sentinel errors for common error conditions.
var (
	// ErrSubscriptionFailed is returned when a presence subscription
	// cannot be established.
	ErrSubscriptionFailed = errors.New("presence: subscription failed")

	// ErrAlreadySubscribed is returned when Subscribe is called twice
	// on a feed that supports a single subscription.
	ErrAlreadySubscribed = errors.New("presence: already subscribed")

	// ErrFeedClosed is returned when sending on a closed feed.
	ErrFeedClosed = errors.New("presence: feed closed")
)
