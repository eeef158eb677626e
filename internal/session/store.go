// Package session keeps dashboard sessions in memory.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/climate-risk-explorer/internal/domain"
	"github.com/couchcryptid/climate-risk-explorer/internal/observability"
)

// ErrNoSession is returned for unknown or expired session IDs.
var ErrNoSession = errors.New("session not found")

type entry struct {
	state    domain.AppState
	lastSeen time.Time
}

// Store holds one AppState per browser session. Sessions idle for longer
// than the TTL are dropped by Sweep.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*entry
	ttl      time.Duration
	clock    clockwork.Clock
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewStore creates an empty store.
func NewStore(ttl time.Duration, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Store {
	return &Store{
		sessions: make(map[string]*entry),
		ttl:      ttl,
		clock:    clock,
		metrics:  metrics,
		logger:   logger,
	}
}

// Create starts a session in the default state.
func (s *Store) Create() (string, domain.AppState) {
	id := uuid.NewString()
	state := domain.DefaultState()

	s.mu.Lock()
	s.sessions[id] = &entry{state: state, lastSeen: s.clock.Now()}
	n := len(s.sessions)
	s.mu.Unlock()

	s.metrics.ActiveSessions.Set(float64(n))
	s.logger.Debug("session created", "session", id)
	return id, state
}

// Get returns the state of session id and marks it as used.
func (s *Store) Get(id string) (domain.AppState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(id)
	if !ok {
		return domain.AppState{}, ErrNoSession
	}
	e.lastSeen = s.clock.Now()
	return e.state, nil
}

// Update replaces the state of session id with fn's result. fn runs under
// the store lock; when it fails the session is left unchanged.
func (s *Store) Update(id string, fn func(domain.AppState) (domain.AppState, error)) (domain.AppState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(id)
	if !ok {
		return domain.AppState{}, ErrNoSession
	}
	next, err := fn(e.state)
	if err != nil {
		return e.state, err
	}
	e.state = next
	e.lastSeen = s.clock.Now()
	return next, nil
}

// Delete drops session id.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	n := len(s.sessions)
	s.mu.Unlock()

	if !ok {
		return ErrNoSession
	}
	s.metrics.ActiveSessions.Set(float64(n))
	return nil
}

// Len returns the number of sessions held, expired ones included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// live returns the entry for id unless it has expired. Callers hold mu.
func (s *Store) live(id string) (*entry, bool) {
	e, ok := s.sessions[id]
	if !ok || s.expired(e) {
		return nil, false
	}
	return e, true
}

func (s *Store) expired(e *entry) bool {
	return s.clock.Since(e.lastSeen) > s.ttl
}

// Sweep removes expired sessions and returns how many were dropped.
func (s *Store) Sweep() int {
	s.mu.Lock()
	removed := 0
	for id, e := range s.sessions {
		if s.expired(e) {
			delete(s.sessions, id)
			removed++
		}
	}
	n := len(s.sessions)
	s.mu.Unlock()

	s.metrics.ActiveSessions.Set(float64(n))
	if removed > 0 {
		s.logger.Info("expired sessions removed", "count", removed, "remaining", n)
	}
	return removed
}

// Run sweeps expired sessions every half TTL until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.Sweep()
		}
	}
}
