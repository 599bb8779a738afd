package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	ldto "github.com/vfurtado/drand-wager-platform-poc/internal/ledger/dto"
	"github.com/vfurtado/drand-wager-platform-poc/internal/protocol/beacon"
	"github.com/vfurtado/drand-wager-platform-poc/internal/protocol/outcome"
	"github.com/vfurtado/drand-wager-platform-poc/internal/shared/config"
	"github.com/vfurtado/drand-wager-platform-poc/internal/shared/logger"
	"github.com/vfurtado/drand-wager-platform-poc/internal/shared/metrics"
)

// Taxa da casa aplicada sobre o pote na liquidação, em porcento.
const feePercent = 2

var settleCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "ledger_simulator_settles_total",
	Help: "Liquidações executadas (não conta repetições idempotentes)",
})

// ledgerBet é o registro da aposta "no contrato".
type ledgerBet struct {
	BetID        string `json:"betId"`
	ParticipantA string `json:"participantA,omitempty"`
	ParticipantB string `json:"participantB,omitempty"`
	StakeCents   int64  `json:"stakeCents,omitempty"`
	Status       string `json:"status"`
	Round        uint64 `json:"round,omitempty"`
	RollA        int    `json:"rollA,omitempty"`
	RollB        int    `json:"rollB,omitempty"`
	Winner       string `json:"winner,omitempty"` // lado "A" | "B"
	TxHash       string `json:"txHash,omitempty"`
	SettledAt    int64  `json:"settledAt,omitempty"`
}

// chainState simula o contrato de escrow: apostas, saldos e liquidação
// idempotente chaveada por betId.
type chainState struct {
	mu       sync.Mutex
	bets     map[string]*ledgerBet
	balances map[string]*big.Int // wei
	log      *zap.Logger
}

func newChainState(log *zap.Logger) *chainState {
	return &chainState{
		bets:     make(map[string]*ledgerBet),
		balances: make(map[string]*big.Int),
		log:      log,
	}
}

func (c *chainState) register(req ldto.RegisterRequest) *ledgerBet {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.bets[req.BetID]; ok {
		return b
	}
	b := &ledgerBet{
		BetID:        req.BetID,
		ParticipantA: req.ParticipantA,
		ParticipantB: req.ParticipantB,
		StakeCents:   req.StakeCents,
		Status:       "ACTIVE",
	}
	c.bets[req.BetID] = b
	return b
}

// settle deriva o resultado do mesmo randomness do beacon e paga o vencedor.
// Repetir a chamada pro mesmo betId devolve o recibo original sem nova
// mutação de estado.
func (c *chainState) settle(betID string, round uint64, value *big.Int) *ledgerBet {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.bets[betID]
	if !ok {
		// Liquidação sem registro prévio: o contrato real guardaria o escrow
		// desde o placement; aqui o registro nasce junto.
		b = &ledgerBet{BetID: betID, Status: "ACTIVE"}
		c.bets[betID] = b
	}
	if b.Status == "SETTLED" {
		return b
	}

	res := outcome.DeriveTwoPlayer(value)
	b.Status = "SETTLED"
	b.Round = round
	b.RollA = res.RollA
	b.RollB = res.RollB
	b.Winner = res.Winner
	b.TxHash = txHash(betID, round)
	b.SettledAt = time.Now().Unix()

	// Pagamento: pote menos a taxa da casa, creditado ao vencedor
	if b.StakeCents > 0 {
		winner := b.ParticipantA
		if res.Winner == outcome.WinnerB {
			winner = b.ParticipantB
		}
		if winner != "" {
			pot := big.NewInt(2 * b.StakeCents)
			fee := new(big.Int).Div(new(big.Int).Mul(pot, big.NewInt(feePercent)), big.NewInt(100))
			payout := new(big.Int).Sub(pot, fee)
			cur, ok := c.balances[winner]
			if !ok {
				cur = big.NewInt(0)
			}
			c.balances[winner] = new(big.Int).Add(cur, payout)
		}
	}

	settleCounter.Inc()
	c.log.Info("bet settled on ledger",
		zap.String("betId", betID),
		zap.Uint64("round", round),
		zap.String("winnerSide", b.Winner),
	)
	return b
}

func (c *chainState) get(betID string) (*ledgerBet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.bets[betID]
	return b, ok
}

func (c *chainState) balance(addr string) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.balances[addr]; ok {
		return new(big.Int).Set(b)
	}
	return big.NewInt(0)
}

// txHash determinístico por (betId, round): retry devolve o mesmo recibo.
func txHash(betID string, round uint64) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", betID, round)))
	return "0x" + hex.EncodeToString(h[:])
}

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	state := newChainState(log)

	r := chi.NewRouter()

	// Chamado pelo orquestrador quando a aposta pareia: abre o escrow com o
	// stake, que a liquidação usa pra calcular pote e taxa.
	r.Post("/ledger/bets", func(w http.ResponseWriter, req *http.Request) {
		var body ldto.RegisterRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.BetID == "" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusCreated, state.register(body))
	})

	r.Post("/ledger/settle", func(w http.ResponseWriter, req *http.Request) {
		var body ldto.SettleRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.BetID == "" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		value, err := beacon.ToInteger(body.Randomness)
		if err != nil {
			writeJSON(w, http.StatusOK, ldto.SettleResponse{Success: false, Reason: "malformed randomness"})
			return
		}
		b := state.settle(body.BetID, body.Round, value)
		writeJSON(w, http.StatusOK, ldto.SettleResponse{TxHash: b.TxHash, Success: true})
	})

	r.Get("/ledger/bets/{id}", func(w http.ResponseWriter, req *http.Request) {
		b, ok := state.get(chi.URLParam(req, "id"))
		if !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, ldto.BetResponse{
			BetID:     b.BetID,
			Status:    b.Status,
			RollA:     b.RollA,
			RollB:     b.RollB,
			Winner:    b.Winner,
			SettledAt: b.SettledAt,
		})
	})

	r.Get("/ledger/balance/{address}", func(w http.ResponseWriter, req *http.Request) {
		addr := chi.URLParam(req, "address")
		writeJSON(w, http.StatusOK, ldto.BalanceResponse{
			Address:    addr,
			BalanceWei: state.balance(addr).String(),
		})
	})

	metrics.StartMetricsServer(cfg.MetricsPort, func(context.Context) error { return nil })

	addr := fmt.Sprintf(":%s", cfg.HTTPPort)
	log.Info("ledger simulator running", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, r); err != nil {
		log.Fatal("public server error", zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
