// Package session scopes a virtual clock and a cancellation flag to one
// experiment.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/kilianp07/fleetsim/core/clock"
)

// DefaultID names the process wide session.
const DefaultID = "default"

// Session holds the state shared by every component of one experiment.
type Session struct {
	ID        string
	Clock     *clock.Clock
	cancelled atomic.Bool
}

// New creates a session with its own clock.
func New(id string, cfg clock.Config) *Session {
	return &Session{ID: id, Clock: clock.New(cfg)}
}

// Cancel flags the experiment as stopped.
func (s *Session) Cancel() { s.cancelled.Store(true) }

// Cancelled reports whether Cancel was called.
func (s *Session) Cancelled() bool { return s.cancelled.Load() }

// ShouldAbort is the predicate handed to long running planners.
func (s *Session) ShouldAbort() bool { return s.Cancelled() }

// Registry tracks live sessions. The default session always exists.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	def      *Session
}

// NewRegistry returns a registry whose default session uses cfg.
func NewRegistry(cfg clock.Config) *Registry {
	def := New(DefaultID, cfg)
	return &Registry{sessions: map[string]*Session{DefaultID: def}, def: def}
}

// Default returns the process wide session.
func (r *Registry) Default() *Session { return r.def }

// Register creates and stores a session. The clock starts ticking under ctx.
func (r *Registry) Register(ctx context.Context, id string, cfg clock.Config) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; ok {
		return nil, fmt.Errorf("session %s already registered", id)
	}
	s := New(id, cfg)
	s.Clock.Start(ctx)
	r.sessions[id] = s
	return s, nil
}

// Get returns the session for id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Cancel flags the session id as cancelled. It reports whether it existed.
func (r *Registry) Cancel(id string) bool {
	s, ok := r.Get(id)
	if ok {
		s.Cancel()
	}
	return ok
}

// Unregister cancels the session, stops its clock and forgets it. The default
// session cannot be removed.
func (r *Registry) Unregister(id string) {
	if id == DefaultID {
		return
	}
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		s.Cancel()
		s.Clock.Stop()
	}
}

// IDs lists registered session ids.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		out = append(out, id)
	}
	return out
}
