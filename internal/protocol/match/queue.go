package match

import (
	"sync"
	"time"
)

// PendingParticipant é um apostador esperando pareamento. Sai da fila
// exatamente uma vez: pareado (TryMatch) ou retirado (Withdraw/RemoveBet).
type PendingParticipant struct {
	ParticipantID string
	BetID         string
	StakeCents    int64
	GameClass     string
	EnqueuedAt    time.Time
}

// Queue é a fila de matchmaking. FIFO puro por game class, sem ranking por
// stake ou skill: quem chegou primeiro pareia primeiro.
// Todas as operações são atômicas entre si (um mutex sobre a fila inteira).
type Queue struct {
	mu      sync.Mutex
	waiting []PendingParticipant
}

func NewQueue() *Queue { return &Queue{} }

func (q *Queue) Enqueue(p PendingParticipant) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if p.EnqueuedAt.IsZero() {
		p.EnqueuedAt = time.Now()
	}
	q.waiting = append(q.waiting, p)
}

// TryMatch remove e retorna o participante esperando há mais tempo na game
// class pedida. Segundo retorno false com fila vazia pra classe.
func (q *Queue) TryMatch(gameClass string) (PendingParticipant, bool) {
	return q.MatchFor(gameClass, "")
}

// MatchFor é TryMatch com exclusão de um participante — evita parear um
// apostador com ele mesmo quando ele já está na fila.
func (q *Queue) MatchFor(gameClass, excludeParticipant string) (PendingParticipant, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, p := range q.waiting {
		if p.GameClass != gameClass {
			continue
		}
		if excludeParticipant != "" && p.ParticipantID == excludeParticipant {
			continue
		}
		q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
		return p, true
	}
	return PendingParticipant{}, false
}

// Withdraw remove todas as entradas do participante. No-op se ausente.
func (q *Queue) Withdraw(participantID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.waiting[:0]
	removed := 0
	for _, p := range q.waiting {
		if p.ParticipantID == participantID {
			removed++
			continue
		}
		kept = append(kept, p)
	}
	q.waiting = kept
	return removed
}

// RemoveBet retira a entrada associada a uma aposta específica (usado no
// cancelamento por timeout, que é por aposta e não por participante).
func (q *Queue) RemoveBet(betID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, p := range q.waiting {
		if p.BetID == betID {
			q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
			return true
		}
	}
	return false
}

type WaitingEntry struct {
	Participant string  `json:"participant"`
	BetID       string  `json:"bet_id"`
	GameClass   string  `json:"game_class"`
	StakeCents  int64   `json:"stake_cents"`
	WaitSeconds float64 `json:"wait_time_seconds"`
}

type Status struct {
	QueueSize int            `json:"queue_size"`
	Waiting   []WaitingEntry `json:"waiting_participants"`
}

// Status tira um snapshot read-only da fila.
func (q *Queue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	st := Status{QueueSize: len(q.waiting), Waiting: make([]WaitingEntry, 0, len(q.waiting))}
	now := time.Now()
	for _, p := range q.waiting {
		st.Waiting = append(st.Waiting, WaitingEntry{
			Participant: p.ParticipantID,
			BetID:       p.BetID,
			GameClass:   p.GameClass,
			StakeCents:  p.StakeCents,
			WaitSeconds: now.Sub(p.EnqueuedAt).Seconds(),
		})
	}
	return st
}
