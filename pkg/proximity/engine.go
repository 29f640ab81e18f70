package proximity

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/heyduet/go-duet/internal/log"
)

// Engine tracks multiple pairs, one session each. Sessions are fully
// independent; nothing is shared between pairs.
type Engine struct {
	mu       sync.Mutex
	sessions map[string]*Session
	logger   *slog.Logger
}

// NewEngine creates an empty pair registry.
func NewEngine() *Engine {
	return &Engine{
		sessions: make(map[string]*Session),
		logger:   log.Component("proximity.engine"),
	}
}

// Track creates a session for a pair and registers it. The session
// comes back unstarted so callbacks can be attached first; call Start
// on it when ready.
func (e *Engine) Track(pairID string, cfg Config, deps Deps) (*Session, error) {
	if pairID == "" {
		return nil, fmt.Errorf("%w: empty pair id", ErrInvalidConfig)
	}

	sess, err := NewSession(cfg, deps)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.sessions[pairID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrPairExists, pairID)
	}
	e.sessions[pairID] = sess

	e.logger.Info("tracking pair", "pair_id", pairID, "session_id", sess.ID())
	return sess, nil
}

// Get returns the session for a pair, or nil when untracked.
func (e *Engine) Get(pairID string) *Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessions[pairID]
}

// Untrack stops a pair's session and removes it from the registry.
func (e *Engine) Untrack(pairID string) error {
	e.mu.Lock()
	sess, ok := e.sessions[pairID]
	if ok {
		delete(e.sessions, pairID)
	}
	e.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrPairNotFound, pairID)
	}

	sess.Stop()
	e.logger.Info("untracked pair", "pair_id", pairID)
	return nil
}

// Pairs returns the tracked pair IDs in no particular order.
func (e *Engine) Pairs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.sessions))
	for id := range e.sessions {
		out = append(out, id)
	}
	return out
}

// Count returns the number of tracked pairs.
func (e *Engine) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

// StopAll stops every session and clears the registry.
func (e *Engine) StopAll() {
	e.mu.Lock()
	sessions := e.sessions
	e.sessions = make(map[string]*Session)
	e.mu.Unlock()

	for id, sess := range sessions {
		sess.Stop()
		e.logger.Debug("stopped pair", "pair_id", id)
	}
}
