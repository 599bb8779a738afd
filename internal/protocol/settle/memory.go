package settle

import (
	"context"
	"sync"
	"time"
)

// MemoryBetStore implementa o BetStore em memória, com as mesmas regras de
// transição do Postgres. Usado em testes.
type MemoryBetStore struct {
	mu   sync.Mutex
	bets map[string]*Bet
}

func NewMemoryBetStore() *MemoryBetStore {
	return &MemoryBetStore{bets: make(map[string]*Bet)}
}

func (s *MemoryBetStore) Create(_ context.Context, b *Bet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *b
	s.bets[b.ID] = &cp
	return nil
}

func (s *MemoryBetStore) Get(_ context.Context, id string) (*Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bets[id]
	if !ok {
		return nil, ErrBetNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *MemoryBetStore) Activate(_ context.Context, id, participantB string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bets[id]
	if !ok {
		return ErrBetNotFound
	}
	if b.Status != StatusPending {
		return ErrInvalidTransition
	}
	b.Status = StatusActive
	b.ParticipantB = participantB
	return nil
}

func (s *MemoryBetStore) PinRound(_ context.Context, id string, round uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bets[id]
	if !ok {
		return ErrBetNotFound
	}
	if b.Status != StatusActive || b.BeaconRound != 0 {
		return ErrInvalidTransition
	}
	b.BeaconRound = round
	return nil
}

func (s *MemoryBetStore) MarkSettling(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bets[id]
	if !ok {
		return ErrBetNotFound
	}
	if b.Status != StatusActive {
		return ErrInvalidTransition
	}
	b.Status = StatusSettling
	return nil
}

func (s *MemoryBetStore) ReleaseSettling(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bets[id]
	if !ok {
		return ErrBetNotFound
	}
	if b.Status != StatusSettling {
		return ErrInvalidTransition
	}
	b.Status = StatusActive
	return nil
}

func (s *MemoryBetStore) MarkSettled(_ context.Context, id string, res Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bets[id]
	if !ok {
		return ErrBetNotFound
	}
	if b.Status != StatusSettling {
		return ErrInvalidTransition
	}
	b.Status = StatusSettled
	b.BeaconRound = res.BeaconRound
	b.Randomness = res.Randomness
	b.RollA = res.RollA
	b.RollB = res.RollB
	b.Winner = res.Winner
	b.TxHash = res.TxHash
	t := res.SettledAt
	b.SettledAt = &t
	return nil
}

func (s *MemoryBetStore) MarkCanceled(_ context.Context, id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bets[id]
	if !ok {
		return ErrBetNotFound
	}
	if b.Status != StatusPending && b.Status != StatusActive {
		return ErrInvalidTransition
	}
	b.Status = StatusCanceled
	b.Reason = reason
	return nil
}

func (s *MemoryBetStore) MarkFaulted(_ context.Context, id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bets[id]
	if !ok {
		return ErrBetNotFound
	}
	if b.Status != StatusSettling {
		return ErrInvalidTransition
	}
	b.Status = StatusFaulted
	b.Reason = reason
	return nil
}

func (s *MemoryBetStore) ListByStatus(_ context.Context, status string) ([]*Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Bet
	for _, b := range s.bets {
		if b.Status == status {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryBetStore) ListPendingBefore(_ context.Context, cutoff time.Time) ([]*Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Bet
	for _, b := range s.bets {
		if b.Status == StatusPending && b.CreatedAt.Before(cutoff) {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}
