package presence

import (
	"context"
	"sync"
	"time"
)

// Mock implements Tracker for testing.
// Behavior can be customized via function fields.
type Mock struct {
	// SubscribeFunc is called when Subscribe is invoked.
	// If nil, returns a channel that closes when ctx ends.
	SubscribeFunc func(ctx context.Context, userID string) (<-chan Update, error)

	// Tracking
	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a method invocation for verification.
type MockCall struct {
	Method string
	UserID string
	Time   time.Time
}

// Subscribe calls SubscribeFunc and records the call.
func (m *Mock) Subscribe(ctx context.Context, userID string) (<-chan Update, error) {
	m.recordCall("Subscribe", userID)
	if m.SubscribeFunc != nil {
		return m.SubscribeFunc(ctx, userID)
	}
	out := make(chan Update)
	go func() {
		<-ctx.Done()
		close(out)
	}()
	return out, nil
}

// recordCall adds a call to the tracking list.
func (m *Mock) recordCall(method, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Method: method, UserID: userID, Time: time.Now()})
}

// Calls returns all recorded calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of calls to a specific method.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Reset clears recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// Verify interface compliance at compile time.
var _ Tracker = (*Mock)(nil)
