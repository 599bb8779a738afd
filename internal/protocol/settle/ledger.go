package settle

import (
	"context"
	"errors"
	"math/big"
)

var (
	ErrLedgerUnavailable = errors.New("ledger unavailable")
	// ErrIntegrityFault indica que o resultado derivado localmente divergiu
	// do reportado pelo ledger. Nunca é reconciliado automaticamente: a
	// aposta vai pra FAULTED e fica travada até intervenção manual.
	ErrIntegrityFault = errors.New("integrity fault: local outcome diverges from ledger")
)

type LedgerReceipt struct {
	TxHash  string
	Success bool
}

// LedgerBet é o registro autoritativo da aposta no contrato.
type LedgerBet struct {
	BetID     string
	Status    string
	RollA     int
	RollB     int
	Winner    string // lado vencedor ("A"|"B") derivado on-chain
	SettledAt int64
}

// Ledger é a capability externa do contrato on-chain. Register abre o escrow
// da aposta pareada (o contrato precisa do stake pra calcular pot e taxa);
// Settle precisa ser idempotente do lado do ledger, chaveado por betID, pra
// retry ser seguro.
type Ledger interface {
	Register(ctx context.Context, betID, participantA, participantB string, stakeCents int64) error
	Settle(ctx context.Context, betID string, round uint64, randomness *big.Int) (*LedgerReceipt, error)
	GetBet(ctx context.Context, betID string) (*LedgerBet, error)
	GetBalance(ctx context.Context, address string) (*big.Int, error)
}
