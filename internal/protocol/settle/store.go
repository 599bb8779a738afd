package settle

import (
	"context"
	"errors"
	"time"
)

var (
	ErrBetNotFound       = errors.New("bet not found")
	ErrInvalidTransition = errors.New("invalid bet status transition")
)

// BetStore persiste apostas e garante as transições de status no nível do
// armazenamento: cada mutação só vale a partir do status de origem correto,
// então um restart não perde nem corrompe apostas em voo.
type BetStore interface {
	Create(ctx context.Context, b *Bet) error
	Get(ctx context.Context, id string) (*Bet, error)
	// Activate faz PENDING -> ACTIVE preenchendo o segundo participante.
	Activate(ctx context.Context, id, participantB string) error
	// PinRound fixa o round do beacon numa aposta ACTIVE que ainda não tem
	// round. Retentativas de liquidação reusam o round fixado.
	PinRound(ctx context.Context, id string, round uint64) error
	// MarkSettling faz ACTIVE -> SETTLING: o claim atômico que dá a uma única
	// instância o direito de chamar o ledger. Perder o claim é
	// ErrInvalidTransition.
	MarkSettling(ctx context.Context, id string) error
	// ReleaseSettling devolve SETTLING -> ACTIVE depois de uma falha
	// transitória de ledger, liberando o retry.
	ReleaseSettling(ctx context.Context, id string) error
	// MarkSettled faz SETTLING -> SETTLED gravando o resultado completo.
	MarkSettled(ctx context.Context, id string, s Settlement) error
	// MarkCanceled faz PENDING|ACTIVE -> CANCELED.
	MarkCanceled(ctx context.Context, id, reason string) error
	// MarkFaulted faz SETTLING -> FAULTED (falha de integridade).
	MarkFaulted(ctx context.Context, id, reason string) error
	ListByStatus(ctx context.Context, status string) ([]*Bet, error)
	ListPendingBefore(ctx context.Context, cutoff time.Time) ([]*Bet, error)
}
