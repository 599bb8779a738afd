package ledger

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ldto "github.com/vfurtado/drand-wager-platform-poc/internal/ledger/dto"
)

func TestSettleSendsHexRandomness(t *testing.T) {
	var got ldto.SettleRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/ledger/settle", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(ldto.SettleResponse{TxHash: "0xdef", Success: true})
	}))
	defer srv.Close()

	c := New(srv.URL)
	value := big.NewInt(0x2e0a)
	receipt, err := c.Settle(context.Background(), "bet-1", 17598, value)
	require.NoError(t, err)
	assert.True(t, receipt.Success)
	assert.Equal(t, "0xdef", receipt.TxHash)

	assert.Equal(t, "bet-1", got.BetID)
	assert.EqualValues(t, 17598, got.Round)
	assert.Equal(t, "0x2e0a", got.Randomness)
}

func TestSettleGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Settle(context.Background(), "bet-1", 1, big.NewInt(1))
	assert.Error(t, err)
}

func TestGetBet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/ledger/bets/bet-1", r.URL.Path)
		_ = json.NewEncoder(w).Encode(ldto.BetResponse{
			BetID: "bet-1", Status: "SETTLED", RollA: 2, RollB: 2, Winner: "A", SettledAt: 1708643700,
		})
	}))
	defer srv.Close()

	b, err := New(srv.URL).GetBet(context.Background(), "bet-1")
	require.NoError(t, err)
	assert.Equal(t, "SETTLED", b.Status)
	assert.Equal(t, "A", b.Winner)
	assert.Equal(t, 2, b.RollA)
}

func TestGetBetNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := New(srv.URL).GetBet(context.Background(), "ghost")
	assert.Error(t, err)
}

func TestGetBalanceParsesDecimal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/ledger/balance/0xAlice", r.URL.Path)
		_ = json.NewEncoder(w).Encode(ldto.BalanceResponse{
			Address: "0xAlice", BalanceWei: "123456789012345678901234567890",
		})
	}))
	defer srv.Close()

	bal, err := New(srv.URL).GetBalance(context.Background(), "0xAlice")
	require.NoError(t, err)
	want, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	assert.Zero(t, bal.Cmp(want))
}

func TestGetBalanceBadPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ldto.BalanceResponse{Address: "0xAlice", BalanceWei: "not-a-number"})
	}))
	defer srv.Close()

	_, err := New(srv.URL).GetBalance(context.Background(), "0xAlice")
	assert.Error(t, err)
}
