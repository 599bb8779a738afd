package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	ldto "github.com/vfurtado/drand-wager-platform-poc/internal/ledger/dto"
	"github.com/vfurtado/drand-wager-platform-poc/internal/protocol/settle"
)

// Client fala com o gateway HTTP do contrato de escrow. O gateway assina e
// envia a transação; aqui só viaja (betId, round, randomness) — o vencedor é
// derivado on-chain do mesmo valor do beacon.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func New(base string) *Client {
	return &Client{
		BaseURL: base,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Register abre o escrow no contrato quando a aposta pareia. Sem isso o
// contrato liquida com stake zero e não movimenta saldo nenhum.
func (c *Client) Register(ctx context.Context, betID, participantA, participantB string, stakeCents int64) error {
	body, _ := json.Marshal(ldto.RegisterRequest{
		BetID:        betID,
		ParticipantA: participantA,
		ParticipantB: participantB,
		StakeCents:   stakeCents,
	})
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/ledger/bets", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	res, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		return fmt.Errorf("ledger register http %d", res.StatusCode)
	}
	return nil
}

func (c *Client) Settle(ctx context.Context, betID string, round uint64, randomness *big.Int) (*settle.LedgerReceipt, error) {
	body, _ := json.Marshal(ldto.SettleRequest{
		BetID:      betID,
		Round:      round,
		Randomness: "0x" + randomness.Text(16),
	})
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/ledger/settle", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	res, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		return nil, fmt.Errorf("ledger settle http %d", res.StatusCode)
	}

	var out ldto.SettleResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &settle.LedgerReceipt{TxHash: out.TxHash, Success: out.Success}, nil
}

func (c *Client) GetBet(ctx context.Context, betID string) (*settle.LedgerBet, error) {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/ledger/bets/"+betID, nil)
	res, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("ledger bet %s not found", betID)
	}
	if res.StatusCode >= 300 {
		return nil, fmt.Errorf("ledger get bet http %d", res.StatusCode)
	}

	var out ldto.BetResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &settle.LedgerBet{
		BetID:     out.BetID,
		Status:    out.Status,
		RollA:     out.RollA,
		RollB:     out.RollB,
		Winner:    out.Winner,
		SettledAt: out.SettledAt,
	}, nil
}

func (c *Client) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/ledger/balance/"+address, nil)
	res, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		return nil, fmt.Errorf("ledger balance http %d", res.StatusCode)
	}

	var out ldto.BalanceResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, err
	}
	bal, ok := new(big.Int).SetString(out.BalanceWei, 10)
	if !ok {
		return nil, fmt.Errorf("ledger balance: bad integer %q", out.BalanceWei)
	}
	return bal, nil
}
