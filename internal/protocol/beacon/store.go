package beacon

import (
	"context"
	"errors"
	"sync"
)

var ErrRoundNotFound = errors.New("beacon round not found")

// RoundStore é o cache durável de rounds. Append-only: Put de um round já
// existente é um no-op (rounds publicados são imutáveis).
type RoundStore interface {
	Get(ctx context.Context, round uint64) (*Round, error)
	Put(ctx context.Context, r Round) error
	Latest(ctx context.Context) (*Round, error)
}

// MemoryStore guarda rounds em memória. Vale como implementação do RoundStore
// pra testes; produção usa o Postgres.
type MemoryStore struct {
	mu     sync.RWMutex
	rounds map[uint64]Round
}

func NewMemoryStore(seed ...Round) *MemoryStore {
	s := &MemoryStore{rounds: make(map[uint64]Round)}
	for _, r := range seed {
		s.rounds[r.Round] = r
	}
	return s
}

func (s *MemoryStore) Get(_ context.Context, round uint64) (*Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rounds[round]
	if !ok {
		return nil, ErrRoundNotFound
	}
	cp := r
	return &cp, nil
}

func (s *MemoryStore) Put(_ context.Context, r Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rounds[r.Round]; ok {
		return nil
	}
	s.rounds[r.Round] = r
	return nil
}

func (s *MemoryStore) Latest(_ context.Context) (*Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *Round
	for n := range s.rounds {
		if best == nil || n > best.Round {
			r := s.rounds[n]
			best = &r
		}
	}
	if best == nil {
		return nil, ErrRoundNotFound
	}
	return best, nil
}
