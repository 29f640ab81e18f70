package location

import (
	"context"
	"sync"
	"time"
)

// Mock implements Source and Watcher for testing.
// All methods can be customized via function fields.
type Mock struct {
	// CurrentFunc is called when Current is invoked.
	// If nil, returns ErrPositionUnavailable.
	CurrentFunc func(ctx context.Context) (RawFix, error)

	// WatchFunc is called when Watch is invoked.
	// If nil, returns a channel that closes when ctx ends.
	WatchFunc func(ctx context.Context) (<-chan RawFix, error)

	// Tracking
	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a method invocation for verification.
type MockCall struct {
	Method string
	Time   time.Time
}

// Current calls CurrentFunc and records the call.
func (m *Mock) Current(ctx context.Context) (RawFix, error) {
	m.recordCall("Current")
	if m.CurrentFunc != nil {
		return m.CurrentFunc(ctx)
	}
	return RawFix{}, ErrPositionUnavailable
}

// Watch calls WatchFunc and records the call.
func (m *Mock) Watch(ctx context.Context) (<-chan RawFix, error) {
	m.recordCall("Watch")
	if m.WatchFunc != nil {
		return m.WatchFunc(ctx)
	}
	out := make(chan RawFix)
	go func() {
		<-ctx.Done()
		close(out)
	}()
	return out, nil
}

// recordCall adds a call to the tracking list.
func (m *Mock) recordCall(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Method: method, Time: time.Now()})
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
var (
	_ Source  = (*Mock)(nil)
	_ Watcher = (*Mock)(nil)
)
