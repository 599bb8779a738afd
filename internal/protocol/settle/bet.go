package settle

import "time"

// Status de uma aposta. Transições monotônicas:
// PENDING -> ACTIVE -> SETTLING -> SETTLED | FAULTED
// PENDING|ACTIVE -> CANCELED (timeout sem par, rejeição)
// SETTLING -> ACTIVE (claim liberado após falha de ledger, pra retry)
// SETTLED, CANCELED e FAULTED são terminais.
const (
	StatusPending = "PENDING"
	StatusActive  = "ACTIVE"
	// SETTLING é o claim de liquidação no banco: só quem fez ACTIVE -> SETTLING
	// chama o ledger. Duas instâncias (API e worker) compartilham o store, e o
	// lock por aposta em memória não atravessa processos.
	StatusSettling = "SETTLING"
	StatusSettled  = "SETTLED"
	StatusCanceled = "CANCELED"
	StatusFaulted  = "FAULTED" // divergência local vs on-chain; intervenção manual
)

// Bet é a aposta acompanhada pelo orquestrador. O ledger on-chain mantém o
// espelho autoritativo depois da liquidação.
type Bet struct {
	ID           string
	ParticipantA string
	ParticipantB string // vazio até o pareamento
	StakeCents   int64
	GameClass    string
	Status       string
	BeaconRound  uint64 // 0 até a primeira tentativa de liquidação fixar o round
	Randomness   string
	RollA        int
	RollB        int
	Winner       string // participante vencedor
	TxHash       string
	Reason       string // motivo de cancelamento/fault
	CreatedAt    time.Time
	SettledAt    *time.Time
}

// Settlement é o resultado gravado junto com a transição pra SETTLED.
// Outcome e round entram juntos, exatamente uma vez.
type Settlement struct {
	BeaconRound uint64
	Randomness  string
	RollA       int
	RollB       int
	Winner      string
	TxHash      string
	SettledAt   time.Time
}
