package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vfurtado/drand-wager-platform-poc/internal/prices"
	"github.com/vfurtado/drand-wager-platform-poc/internal/protocol/beacon"
	"github.com/vfurtado/drand-wager-platform-poc/internal/protocol/seed"
	"github.com/vfurtado/drand-wager-platform-poc/internal/protocol/settle"
	"github.com/vfurtado/drand-wager-platform-poc/internal/wager-service/dto"
	"github.com/vfurtado/drand-wager-platform-poc/internal/wager-service/ws"
	"github.com/vfurtado/drand-wager-platform-poc/pkg/contracts/events"
)

// Publisher publica eventos de domínio no Kafka.
type Publisher interface {
	PublishWagerPlaced(ctx context.Context, e events.WagerPlaced) error
	PublishWagerMatched(ctx context.Context, e events.WagerMatched) error
}

// Server é a API pública do wager-service. Toda a lógica de protocolo mora
// no orquestrador/verifier; aqui só validação de payload e tradução de erro
// pra status HTTP.
type Server struct {
	log        *zap.Logger
	orch       *settle.Orchestrator
	seeds      *seed.Manager
	verifier   *beacon.Verifier
	roundCache *beacon.RoundCache
	rdb        *redis.Client
	hub        *ws.Hub
	publ       Publisher
}

func NewServer(log *zap.Logger, orch *settle.Orchestrator, seeds *seed.Manager,
	verifier *beacon.Verifier, roundCache *beacon.RoundCache, rdb *redis.Client,
	hub *ws.Hub, publ Publisher) *Server {
	return &Server{
		log: log, orch: orch, seeds: seeds, verifier: verifier,
		roundCache: roundCache, rdb: rdb, hub: hub, publ: publ,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Post("/v1/wagers", s.placeWager)
	r.Get("/v1/wagers/{id}", s.getWager)
	r.Post("/v1/wagers/{id}/settle", s.settleWager)
	r.Post("/v1/wagers/{id}/cancel", s.cancelWager)

	r.Post("/v1/seeds/{slot}", s.createCommitment)
	r.Get("/v1/seeds/{slot}", s.revealSeed)
	r.Post("/v1/seeds/{slot}/verify", s.verifySeed)

	r.Get("/v1/rounds/{round}", s.getRound)
	r.Post("/v1/rounds", s.addRound)
	r.Post("/v1/verify", s.verifyOutcome)

	r.Get("/v1/queue/status", s.queueStatus)
	r.Get("/v1/prices", s.getPrices)

	if s.hub != nil {
		r.Get("/ws", s.hub.HandleWS)
	}

	return r
}

func (s *Server) placeWager(w http.ResponseWriter, r *http.Request) {
	var req dto.PlaceWagerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "bad json"})
		return
	}
	if req.GameClass == "" {
		req.GameClass = "dice"
	}

	bet, err := s.orch.PlaceWager(r.Context(), req.ParticipantID, req.StakeCents, req.GameClass)
	if err != nil {
		s.writeError(w, err)
		return
	}

	// Eventos best-effort; a aposta já está durável no banco
	if bet.Status == settle.StatusActive {
		_ = s.publ.PublishWagerMatched(r.Context(), events.WagerMatched{
			BetID:        bet.ID,
			ParticipantA: bet.ParticipantA,
			ParticipantB: bet.ParticipantB,
			StakeCents:   bet.StakeCents,
			GameClass:    bet.GameClass,
			TsUnixMs:     time.Now().UnixMilli(),
		})
	} else {
		_ = s.publ.PublishWagerPlaced(r.Context(), events.WagerPlaced{
			BetID:       bet.ID,
			Participant: bet.ParticipantA,
			StakeCents:  bet.StakeCents,
			GameClass:   bet.GameClass,
			TsUnixMs:    time.Now().UnixMilli(),
		})
	}

	writeJSON(w, http.StatusCreated, toWagerResponse(bet))
}

func (s *Server) getWager(w http.ResponseWriter, r *http.Request) {
	bet, err := s.orch.GetBet(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWagerResponse(bet))
}

func (s *Server) settleWager(w http.ResponseWriter, r *http.Request) {
	bet, err := s.orch.Settle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWagerResponse(bet))
}

func (s *Server) cancelWager(w http.ResponseWriter, r *http.Request) {
	var req dto.CancelWagerRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Reason == "" {
		req.Reason = "canceled by caller"
	}
	bet, err := s.orch.Cancel(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWagerResponse(bet))
}

func (s *Server) createCommitment(w http.ResponseWriter, r *http.Request) {
	slot := chi.URLParam(r, "slot")
	commitment, err := s.seeds.CreateCommitment(r.Context(), slot)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.CommitmentResponse{SlotID: slot, Commitment: commitment})
}

func (s *Server) revealSeed(w http.ResponseWriter, r *http.Request) {
	slot := chi.URLParam(r, "slot")
	seedHex, err := s.seeds.RevealSeed(r.Context(), slot)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.RevealResponse{SlotID: slot, SeedHex: seedHex})
}

func (s *Server) verifySeed(w http.ResponseWriter, r *http.Request) {
	slot := chi.URLParam(r, "slot")
	var req dto.VerifySeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "bad json"})
		return
	}
	valid := s.seeds.VerifyCommitment(r.Context(), slot, req.SeedHex)
	writeJSON(w, http.StatusOK, dto.VerifySeedResponse{SlotID: slot, Valid: valid})
}

func (s *Server) getRound(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.ParseUint(chi.URLParam(r, "round"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "bad round number"})
		return
	}

	// camada quente primeiro, Postgres como fonte de verdade
	if s.roundCache != nil {
		if round, ok, _ := s.roundCache.Get(r.Context(), n); ok {
			writeJSON(w, http.StatusOK, round)
			return
		}
	}

	round, err := s.verifier.GetRound(r.Context(), n)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if s.roundCache != nil {
		_ = s.roundCache.Set(r.Context(), *round)
	}
	writeJSON(w, http.StatusOK, round)
}

func (s *Server) addRound(w http.ResponseWriter, r *http.Request) {
	var req dto.AddRoundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "bad json"})
		return
	}
	if err := s.verifier.AddRound(r.Context(), req.Round, req.Randomness, req.Signature, req.Timestamp); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) verifyOutcome(w http.ResponseWriter, r *http.Request) {
	var req dto.VerifyOutcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "bad json"})
		return
	}
	res, err := s.verifier.VerifyOutcome(r.Context(), req.Round, req.ClaimedOutcome, req.Min, req.Max)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) queueStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.QueueStatus())
}

func (s *Server) getPrices(w http.ResponseWriter, r *http.Request) {
	cur, ok, err := prices.Get(r.Context(), s.rdb)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, prices.Current{PolPrice: 0.11, UsdcPrice: 1.0, Source: "initializing"})
		return
	}
	writeJSON(w, http.StatusOK, cur)
}

// writeError traduz a taxonomia de erros do protocolo pra HTTP
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, settle.ErrInvalidWager),
		errors.Is(err, beacon.ErrMalformedRandomness):
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	case errors.Is(err, settle.ErrBetNotFound),
		errors.Is(err, seed.ErrUnknownSlot),
		errors.Is(err, beacon.ErrRoundNotFound):
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: err.Error()})
	case errors.Is(err, seed.ErrDuplicateSlot),
		errors.Is(err, settle.ErrNotActive),
		errors.Is(err, settle.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: err.Error()})
	case errors.Is(err, beacon.ErrBeaconUnavailable),
		errors.Is(err, settle.ErrLedgerUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, dto.ErrorResponse{Error: err.Error()})
	case errors.Is(err, settle.ErrIntegrityFault), errors.Is(err, settle.ErrFaulted):
		s.log.Error("integrity fault surfaced", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
	}
}

func toWagerResponse(b *settle.Bet) dto.WagerResponse {
	return dto.WagerResponse{
		BetID:        b.ID,
		ParticipantA: b.ParticipantA,
		ParticipantB: b.ParticipantB,
		StakeCents:   b.StakeCents,
		GameClass:    b.GameClass,
		Status:       b.Status,
		BeaconRound:  b.BeaconRound,
		Randomness:   b.Randomness,
		RollA:        b.RollA,
		RollB:        b.RollB,
		Winner:       b.Winner,
		TxHash:       b.TxHash,
		Reason:       b.Reason,
		SettledAt:    b.SettledAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
