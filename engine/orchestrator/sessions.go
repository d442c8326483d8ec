package orchestrator

import (
	"errors"
	"sync"
)

// ErrTurnActive is returned when a session already has a turn in flight.
// One turn per session at a time preserves conversation-history ordering;
// different sessions run fully in parallel.
var ErrTurnActive = errors.New("orchestrator: a turn is already active for this session")

type sessions struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func newSessions() *sessions {
	return &sessions{active: make(map[string]struct{})}
}

// acquire reserves the session for one turn. An empty session id opts out
// of serialization.
func (s *sessions) acquire(id string) error {
	if id == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.active[id]; busy {
		return ErrTurnActive
	}
	s.active[id] = struct{}{}
	return nil
}

func (s *sessions) release(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, id)
}
