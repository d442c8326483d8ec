package transcript

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/roundslab/rounds/engine/core"
)

// MemoryStore keeps transcripts in process memory. It is the default for
// one-shot runs and tests; nothing survives a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	turns    map[core.ID]*Transcript
	sessions map[string][]core.ID
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		turns:    make(map[core.ID]*Transcript),
		sessions: make(map[string][]core.ID),
	}
}

func (s *MemoryStore) SaveTurn(_ context.Context, t *Transcript) error {
	if t == nil || t.TurnID.IsZero() {
		return errors.New("transcript: turn id is required")
	}
	copied, err := core.DeepCopy(t)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.turns[t.TurnID]; exists {
		return ErrDuplicateTurn
	}
	s.turns[t.TurnID] = copied
	s.sessions[t.SessionID] = append(s.sessions[t.SessionID], t.TurnID)
	return nil
}

func (s *MemoryStore) GetTurn(_ context.Context, turnID core.ID) (*Transcript, error) {
	s.mu.RLock()
	stored, ok := s.turns[turnID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return core.DeepCopy(stored)
}

func (s *MemoryStore) ListTurns(_ context.Context, sessionID string, limit int) ([]*Transcript, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	s.mu.RLock()
	ids := s.sessions[sessionID]
	loaded := make([]*Transcript, 0, len(ids))
	for _, id := range ids {
		loaded = append(loaded, s.turns[id])
	}
	s.mu.RUnlock()
	sort.SliceStable(loaded, func(i, j int) bool {
		return loaded[i].CompletedAt.After(loaded[j].CompletedAt)
	})
	if len(loaded) > limit {
		loaded = loaded[:limit]
	}
	out := make([]*Transcript, 0, len(loaded))
	for _, t := range loaded {
		copied, err := core.DeepCopy(t)
		if err != nil {
			return nil, err
		}
		out = append(out, copied)
	}
	return out, nil
}

func (s *MemoryStore) Close(_ context.Context) error {
	return nil
}
