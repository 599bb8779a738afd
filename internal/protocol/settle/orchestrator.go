package settle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vfurtado/drand-wager-platform-poc/internal/protocol/beacon"
	"github.com/vfurtado/drand-wager-platform-poc/internal/protocol/match"
	"github.com/vfurtado/drand-wager-platform-poc/internal/protocol/outcome"
)

var (
	ErrInvalidWager = errors.New("invalid wager")
	ErrNotActive    = errors.New("bet is not active")
	ErrFaulted      = errors.New("bet halted by integrity fault")
)

type Config struct {
	MinStakeCents    int64
	MaxStakeCents    int64
	MatchmakeTimeout time.Duration
	BeaconWait       time.Duration // espera máxima por um round do beacon
}

// Orchestrator conduz cada aposta pelo ciclo de vida e garante liquidação
// at-most-once: lock por aposta, round fixado antes da chamada on-chain e
// transições guardadas no store. Dependências todas injetadas — nada de
// singleton de fila nem de cliente de contrato.
type Orchestrator struct {
	log      *zap.Logger
	cfg      Config
	bets     BetStore
	queue    *match.Queue
	verifier *beacon.Verifier
	feed     beacon.Feed
	ledger   Ledger

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	// Callbacks opcionais pra métricas/eventos, ligadas nos mains
	OnPlaced   func(*Bet)
	OnMatched  func(*Bet)
	OnSettled  func(*Bet)
	OnCanceled func(*Bet)
}

func NewOrchestrator(log *zap.Logger, cfg Config, bets BetStore, queue *match.Queue,
	verifier *beacon.Verifier, feed beacon.Feed, ledger Ledger) *Orchestrator {
	return &Orchestrator{
		log:      log,
		cfg:      cfg,
		bets:     bets,
		queue:    queue,
		verifier: verifier,
		feed:     feed,
		ledger:   ledger,
		locks:    make(map[string]*sync.Mutex),
	}
}

// lockBet serializa mutações de uma mesma aposta. Locks nunca são removidos
// do mapa — o volume de apostas de um processo não justifica a limpeza.
func (o *Orchestrator) lockBet(id string) func() {
	o.mu.Lock()
	l, ok := o.locks[id]
	if !ok {
		l = &sync.Mutex{}
		o.locks[id] = l
	}
	o.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// PlaceWager registra uma aposta. Se já existe alguém esperando na mesma
// game class, o novo apostador entra como participante B da aposta que
// esperava (ACTIVE); senão a aposta nasce PENDING e entra na fila.
func (o *Orchestrator) PlaceWager(ctx context.Context, participantID string, stakeCents int64, gameClass string) (*Bet, error) {
	if participantID == "" || gameClass == "" {
		return nil, fmt.Errorf("%w: participant and game class required", ErrInvalidWager)
	}
	if stakeCents < o.cfg.MinStakeCents || stakeCents > o.cfg.MaxStakeCents {
		return nil, fmt.Errorf("%w: stake %d out of [%d,%d]", ErrInvalidWager,
			stakeCents, o.cfg.MinStakeCents, o.cfg.MaxStakeCents)
	}

	// Tenta parear antes de criar aposta nova. MatchFor exclui o próprio
	// participante — ninguém aposta contra si mesmo.
	if opp, ok := o.queue.MatchFor(gameClass, participantID); ok {
		bet, err := o.OnMatchFound(ctx, opp.BetID, participantID)
		if err == nil {
			return bet, nil
		}
		// A aposta que esperava pode ter sido cancelada entre o sweep de
		// timeout e a remoção da fila; segue criando uma pendente nova.
		o.log.Warn("stale queue entry, enqueueing fresh bet",
			zap.String("staleBetId", opp.BetID), zap.Error(err))
	}

	bet := &Bet{
		ID:           uuid.NewString(),
		ParticipantA: participantID,
		StakeCents:   stakeCents,
		GameClass:    gameClass,
		Status:       StatusPending,
		CreatedAt:    time.Now(),
	}
	if err := o.bets.Create(ctx, bet); err != nil {
		return nil, err
	}
	o.queue.Enqueue(match.PendingParticipant{
		ParticipantID: participantID,
		BetID:         bet.ID,
		StakeCents:    stakeCents,
		GameClass:     gameClass,
		EnqueuedAt:    bet.CreatedAt,
	})
	if o.OnPlaced != nil {
		o.OnPlaced(bet)
	}
	return bet, nil
}

// OnMatchFound completa o pareamento: PENDING -> ACTIVE com o segundo
// participante preenchido.
func (o *Orchestrator) OnMatchFound(ctx context.Context, betID, otherParticipant string) (*Bet, error) {
	unlock := o.lockBet(betID)
	defer unlock()

	if err := o.bets.Activate(ctx, betID, otherParticipant); err != nil {
		return nil, err
	}
	bet, err := o.bets.Get(ctx, betID)
	if err != nil {
		return nil, err
	}

	// Abre o escrow no contrato. Best-effort: o Settle do ledger auto-cria a
	// aposta se o register falhou, só que com stake zero — por isso o warn.
	if rerr := o.ledger.Register(ctx, bet.ID, bet.ParticipantA, bet.ParticipantB, bet.StakeCents); rerr != nil {
		o.log.Warn("ledger register failed, escrow not funded",
			zap.String("betId", bet.ID), zap.Error(rerr))
	}

	if o.OnMatched != nil {
		o.OnMatched(bet)
	}
	return bet, nil
}

// Settle liquida uma aposta ACTIVE: resolve o round do beacon, deriva o
// resultado, chama o ledger exatamente uma vez e só então marca SETTLED.
// Idempotente: repetir Settle numa aposta SETTLED devolve o resultado
// gravado sem nova chamada on-chain. Falha de beacon/ledger deixa a aposta
// ACTIVE (com round fixado) pra retry.
func (o *Orchestrator) Settle(ctx context.Context, betID string) (*Bet, error) {
	// fase 1: decide o round alvo sem segurar o lock durante I/O de rede
	pinned, done, bet, err := o.settleTarget(betID)
	if done || err != nil {
		return bet, err
	}

	for {
		round, err := o.resolveRound(ctx, pinned)
		if err != nil {
			return nil, err
		}

		bet, retryRound, err := o.settleWithRound(ctx, betID, round)
		if retryRound != 0 {
			// outra tentativa fixou um round diferente enquanto buscávamos;
			// o round fixado vence — nada liquida com round substituído
			pinned = retryRound
			continue
		}
		return bet, err
	}
}

// settleTarget inspeciona a aposta sob lock e devolve o round fixado (0 se
// ainda não há). done=true quando não há nada a fazer (já SETTLED).
func (o *Orchestrator) settleTarget(betID string) (uint64, bool, *Bet, error) {
	unlock := o.lockBet(betID)
	defer unlock()

	bet, err := o.bets.Get(context.Background(), betID)
	if err != nil {
		return 0, false, nil, err
	}
	switch bet.Status {
	case StatusSettled:
		return 0, true, bet, nil // no-op: resultado já gravado
	case StatusSettling:
		// outra instância segura o claim; devolve o estado atual sem erro,
		// igual ao no-op de SETTLED — quem chamou consulta de novo depois
		return 0, true, bet, nil
	case StatusFaulted:
		return 0, false, nil, fmt.Errorf("%w: %s", ErrFaulted, bet.Reason)
	case StatusActive:
		return bet.BeaconRound, false, nil, nil
	default:
		return 0, false, nil, fmt.Errorf("%w: status %s", ErrNotActive, bet.Status)
	}
}

// resolveRound materializa o round alvo: cache primeiro, feed depois.
// Nenhum lock de aposta é segurado aqui.
func (o *Orchestrator) resolveRound(ctx context.Context, pinned uint64) (*beacon.Round, error) {
	fctx, cancel := context.WithTimeout(ctx, o.cfg.BeaconWait)
	defer cancel()

	if pinned != 0 {
		if r, err := o.verifier.GetRound(ctx, pinned); err == nil {
			return r, nil
		} else if !errors.Is(err, beacon.ErrRoundNotFound) {
			return nil, err
		}
		r, err := o.feed.FetchByRound(fctx, pinned)
		if err != nil {
			return nil, err
		}
		if err := o.verifier.AddRound(ctx, r.Round, r.Randomness, r.Signature, r.Timestamp); err != nil {
			return nil, err
		}
		return r, nil
	}

	r, err := o.feed.FetchLatest(fctx)
	if err != nil {
		return nil, err
	}
	if err := o.verifier.AddRound(ctx, r.Round, r.Randomness, r.Signature, r.Timestamp); err != nil {
		return nil, err
	}
	return r, nil
}

// settleWithRound executa a liquidação sob o lock da aposta usando o round
// já materializado. retryRound != 0 sinaliza que o chamador deve refazer a
// resolução com o round fixado por outra tentativa concorrente.
func (o *Orchestrator) settleWithRound(ctx context.Context, betID string, round *beacon.Round) (*Bet, uint64, error) {
	unlock := o.lockBet(betID)
	defer unlock()

	bet, err := o.bets.Get(ctx, betID)
	if err != nil {
		return nil, 0, err
	}
	switch bet.Status {
	case StatusSettled, StatusSettling:
		return bet, 0, nil // concorrente ganhou a corrida; no-op
	case StatusFaulted:
		return nil, 0, fmt.Errorf("%w: %s", ErrFaulted, bet.Reason)
	case StatusActive:
	default:
		return nil, 0, fmt.Errorf("%w: status %s", ErrNotActive, bet.Status)
	}

	if bet.BeaconRound != 0 && bet.BeaconRound != round.Round {
		return nil, bet.BeaconRound, nil
	}
	if bet.BeaconRound == 0 {
		if err := o.bets.PinRound(ctx, bet.ID, round.Round); err != nil {
			return nil, 0, err
		}
	}

	value, err := beacon.ToInteger(round.Randomness)
	if err != nil {
		return nil, 0, err
	}
	res := outcome.DeriveTwoPlayer(value)
	winner := bet.ParticipantA
	if res.Winner == outcome.WinnerB {
		winner = bet.ParticipantB
	}

	// Claim no banco: o lock em memória só serializa este processo, mas a API
	// e o worker compartilham o store. Só quem ganha ACTIVE -> SETTLING chama
	// o ledger; o perdedor trata como a corrida já decidida.
	if err := o.bets.MarkSettling(ctx, bet.ID); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			cur, gerr := o.bets.Get(ctx, bet.ID)
			if gerr != nil {
				return nil, 0, gerr
			}
			return cur, 0, nil
		}
		return nil, 0, err
	}

	// Chamada on-chain, exatamente uma por aposta: o claim SETTLING impede
	// Settle concorrente entre processos e o ledger é idempotente por betID
	// pro caso de retry após falha de rede.
	receipt, err := o.ledger.Settle(ctx, bet.ID, round.Round, value)
	if err != nil {
		o.releaseClaim(ctx, bet.ID)
		return nil, 0, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	if !receipt.Success {
		o.releaseClaim(ctx, bet.ID)
		return nil, 0, fmt.Errorf("%w: settle rejected for bet %s", ErrLedgerUnavailable, bet.ID)
	}

	// Confere o resultado reportado pelo contrato contra o derivado aqui.
	// Divergência é falha de integridade: a aposta trava em FAULTED.
	if lb, gerr := o.ledger.GetBet(ctx, bet.ID); gerr == nil && lb.Winner != "" && lb.Winner != res.Winner {
		reason := fmt.Sprintf("ledger reports winner side %s, local derivation %s (round %d)",
			lb.Winner, res.Winner, round.Round)
		o.log.Error("integrity fault, halting bet",
			zap.String("betId", bet.ID), zap.String("detail", reason))
		if ferr := o.bets.MarkFaulted(ctx, bet.ID, reason); ferr != nil {
			o.log.Error("mark faulted failed", zap.String("betId", bet.ID), zap.Error(ferr))
		}
		return nil, 0, fmt.Errorf("%w: %s", ErrIntegrityFault, reason)
	}

	st := Settlement{
		BeaconRound: round.Round,
		Randomness:  round.Randomness,
		RollA:       res.RollA,
		RollB:       res.RollB,
		Winner:      winner,
		TxHash:      receipt.TxHash,
		SettledAt:   time.Now(),
	}
	if err := o.bets.MarkSettled(ctx, bet.ID, st); err != nil {
		return nil, 0, err
	}

	settled, err := o.bets.Get(ctx, bet.ID)
	if err != nil {
		return nil, 0, err
	}
	if o.OnSettled != nil {
		o.OnSettled(settled)
	}
	return settled, 0, nil
}

// releaseClaim devolve o claim de liquidação após falha transitória de
// ledger, deixando a aposta ACTIVE (com round fixado) pra retry.
func (o *Orchestrator) releaseClaim(ctx context.Context, betID string) {
	if err := o.bets.ReleaseSettling(ctx, betID); err != nil {
		o.log.Error("release settling claim failed", zap.String("betId", betID), zap.Error(err))
	}
}

// RecoverSettling demove claims órfãos (SETTLING sem processo vivo, tipo
// crash entre o claim e o MarkSettled) de volta pra ACTIVE e retorna as
// apostas pra re-liquidação. Só pra rodar no boot do settlement-worker,
// quando se sabe que este processo não tem liquidação em voo; re-chamar o
// ledger é seguro porque ele é idempotente por betID.
func (o *Orchestrator) RecoverSettling(ctx context.Context) ([]*Bet, error) {
	stuck, err := o.bets.ListByStatus(ctx, StatusSettling)
	if err != nil {
		return nil, err
	}
	var out []*Bet
	for _, b := range stuck {
		if err := o.bets.ReleaseSettling(ctx, b.ID); err != nil {
			o.log.Warn("recover settling skip", zap.String("betId", b.ID), zap.Error(err))
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// Cancel encerra uma aposta PENDING ou ACTIVE (timeout de matchmaking,
// rejeição do ledger). Terminal; apostas já liquidadas não cancelam.
func (o *Orchestrator) Cancel(ctx context.Context, betID, reason string) (*Bet, error) {
	unlock := o.lockBet(betID)
	defer unlock()

	bet, err := o.bets.Get(ctx, betID)
	if err != nil {
		return nil, err
	}
	if bet.Status == StatusPending {
		o.queue.RemoveBet(betID)
	}
	if err := o.bets.MarkCanceled(ctx, betID, reason); err != nil {
		return nil, err
	}
	bet, err = o.bets.Get(ctx, betID)
	if err != nil {
		return nil, err
	}
	if o.OnCanceled != nil {
		o.OnCanceled(bet)
	}
	return bet, nil
}

// ExpirePending cancela apostas paradas em PENDING além do timeout de
// matchmaking. Chamado periodicamente pelo wager-service.
func (o *Orchestrator) ExpirePending(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-o.cfg.MatchmakeTimeout)
	stale, err := o.bets.ListPendingBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, b := range stale {
		if _, err := o.Cancel(ctx, b.ID, "matchmaking timeout"); err != nil {
			// outra transição venceu a corrida; segue pros demais
			o.log.Debug("expire skip", zap.String("betId", b.ID), zap.Error(err))
			continue
		}
		n++
	}
	return n, nil
}

// ListActive expõe as apostas aguardando liquidação — usada no sweep de
// recuperação do settlement-worker após restart.
func (o *Orchestrator) ListActive(ctx context.Context) ([]*Bet, error) {
	return o.bets.ListByStatus(ctx, StatusActive)
}

// GetBet retorna a aposta pelo id.
func (o *Orchestrator) GetBet(ctx context.Context, betID string) (*Bet, error) {
	return o.bets.Get(ctx, betID)
}

// QueueStatus expõe o snapshot da fila de matchmaking.
func (o *Orchestrator) QueueStatus() match.Status {
	return o.queue.Status()
}
