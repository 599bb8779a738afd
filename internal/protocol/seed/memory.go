package seed

import (
	"context"
	"sync"
)

// MemoryStore é a implementação em memória do Store, usada em testes.
// Produção usa o Postgres.
type MemoryStore struct {
	mu    sync.Mutex
	slots map[string]Commitment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{slots: make(map[string]Commitment)}
}

func (s *MemoryStore) Insert(_ context.Context, c Commitment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.slots[c.SlotID]; ok {
		return ErrDuplicateSlot
	}
	s.slots[c.SlotID] = c
	return nil
}

func (s *MemoryStore) Get(_ context.Context, slotID string) (*Commitment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.slots[slotID]
	if !ok {
		return nil, ErrUnknownSlot
	}
	cp := c
	return &cp, nil
}
