package settle

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vfurtado/drand-wager-platform-poc/internal/protocol/beacon"
	"github.com/vfurtado/drand-wager-platform-poc/internal/protocol/match"
)

// fakeFeed serve rounds fixos sem rede.
type fakeFeed struct {
	mu     sync.Mutex
	rounds map[uint64]beacon.Round
	latest uint64
	err    error
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{rounds: make(map[uint64]beacon.Round)}
}

func (f *fakeFeed) add(r beacon.Round) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rounds[r.Round] = r
	if r.Round > f.latest {
		f.latest = r.Round
	}
}

func (f *fakeFeed) FetchLatest(_ context.Context) (*beacon.Round, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	r, ok := f.rounds[f.latest]
	if !ok {
		return nil, beacon.ErrBeaconUnavailable
	}
	return &r, nil
}

func (f *fakeFeed) FetchByRound(_ context.Context, round uint64) (*beacon.Round, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	r, ok := f.rounds[round]
	if !ok {
		return nil, beacon.ErrBeaconUnavailable
	}
	return &r, nil
}

// fakeLedger conta chamadas de Settle e permite forçar falha ou divergência.
type fakeLedger struct {
	mu          sync.Mutex
	settleCalls int
	failNext    int
	delay       time.Duration     // latência simulada da chamada on-chain
	reportSide  map[string]string // betID -> lado reportado no GetBet
	registered  map[string]int64  // betID -> stake registrado no escrow
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		reportSide: make(map[string]string),
		registered: make(map[string]int64),
	}
}

func (l *fakeLedger) Register(_ context.Context, betID, _, _ string, stakeCents int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.registered[betID] = stakeCents
	return nil
}

func (l *fakeLedger) registeredStake(betID string) (int64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.registered[betID]
	return s, ok
}

func (l *fakeLedger) Settle(_ context.Context, _ string, _ uint64, _ *big.Int) (*LedgerReceipt, error) {
	if l.delay > 0 {
		time.Sleep(l.delay)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failNext > 0 {
		l.failNext--
		return nil, errors.New("rpc timeout")
	}
	l.settleCalls++
	return &LedgerReceipt{TxHash: "0xabc", Success: true}, nil
}

func (l *fakeLedger) GetBet(_ context.Context, betID string) (*LedgerBet, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &LedgerBet{
		BetID:  betID,
		Status: "SETTLED",
		Winner: l.reportSide[betID],
	}, nil
}

func (l *fakeLedger) GetBalance(_ context.Context, _ string) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (l *fakeLedger) calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.settleCalls
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *fakeFeed, *fakeLedger) {
	t.Helper()
	feed := newFakeFeed()
	// randomness 0x102: rollA=1, rollB=2, vence B
	feed.add(beacon.Round{Round: 100, Randomness: "0x102", Timestamp: 1708643700, Verified: true})
	ledger := newFakeLedger()

	orch := NewOrchestrator(zap.NewNop(), Config{
		MinStakeCents:    100,
		MaxStakeCents:    10_000,
		MatchmakeTimeout: time.Minute,
		BeaconWait:       time.Second,
	}, NewMemoryBetStore(), match.NewQueue(), beacon.NewVerifier(beacon.NewMemoryStore()), feed, ledger)
	return orch, feed, ledger
}

func TestPlaceWagerValidation(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t)
	ctx := context.Background()

	_, err := orch.PlaceWager(ctx, "", 500, "dice")
	assert.ErrorIs(t, err, ErrInvalidWager)

	_, err = orch.PlaceWager(ctx, "alice", 500, "")
	assert.ErrorIs(t, err, ErrInvalidWager)

	_, err = orch.PlaceWager(ctx, "alice", 50, "dice")
	assert.ErrorIs(t, err, ErrInvalidWager)

	_, err = orch.PlaceWager(ctx, "alice", 50_000, "dice")
	assert.ErrorIs(t, err, ErrInvalidWager)
}

func TestPlaceAndMatch(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t)
	ctx := context.Background()

	first, err := orch.PlaceWager(ctx, "alice", 500, "dice")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, first.Status)
	assert.Equal(t, 1, orch.QueueStatus().QueueSize)

	second, err := orch.PlaceWager(ctx, "bob", 500, "dice")
	require.NoError(t, err)
	// bob entra como participante B da aposta que esperava
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, StatusActive, second.Status)
	assert.Equal(t, "alice", second.ParticipantA)
	assert.Equal(t, "bob", second.ParticipantB)
	assert.Equal(t, 0, orch.QueueStatus().QueueSize)
}

func TestMatchRegistersEscrow(t *testing.T) {
	orch, _, ledger := newTestOrchestrator(t)
	ctx := context.Background()

	bet, err := orch.PlaceWager(ctx, "alice", 500, "dice")
	require.NoError(t, err)
	// pendente ainda não tem escrow
	_, ok := ledger.registeredStake(bet.ID)
	assert.False(t, ok)

	_, err = orch.PlaceWager(ctx, "bob", 500, "dice")
	require.NoError(t, err)

	stake, ok := ledger.registeredStake(bet.ID)
	require.True(t, ok, "matched bet must be registered on the ledger")
	assert.EqualValues(t, 500, stake)
}

func TestNoSelfMatch(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t)
	ctx := context.Background()

	first, err := orch.PlaceWager(ctx, "alice", 500, "dice")
	require.NoError(t, err)
	second, err := orch.PlaceWager(ctx, "alice", 500, "dice")
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, StatusPending, second.Status)
	assert.Equal(t, 2, orch.QueueStatus().QueueSize)
}

func TestSettleHappyPath(t *testing.T) {
	orch, _, ledger := newTestOrchestrator(t)
	ctx := context.Background()

	bet, _ := orch.PlaceWager(ctx, "alice", 500, "dice")
	_, err := orch.PlaceWager(ctx, "bob", 500, "dice")
	require.NoError(t, err)

	settled, err := orch.Settle(ctx, bet.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSettled, settled.Status)
	assert.EqualValues(t, 100, settled.BeaconRound)
	assert.Equal(t, 1, settled.RollA)
	assert.Equal(t, 2, settled.RollB)
	assert.Equal(t, "bob", settled.Winner)
	assert.Equal(t, "0xabc", settled.TxHash)
	require.NotNil(t, settled.SettledAt)
	assert.Equal(t, 1, ledger.calls())
}

func TestSettleIsIdempotent(t *testing.T) {
	orch, _, ledger := newTestOrchestrator(t)
	ctx := context.Background()

	bet, _ := orch.PlaceWager(ctx, "alice", 500, "dice")
	_, _ = orch.PlaceWager(ctx, "bob", 500, "dice")

	first, err := orch.Settle(ctx, bet.ID)
	require.NoError(t, err)

	again, err := orch.Settle(ctx, bet.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Winner, again.Winner)
	assert.Equal(t, first.BeaconRound, again.BeaconRound)
	assert.Equal(t, 1, ledger.calls(), "repeated settle must not hit the ledger again")
}

func TestSettleConcurrent(t *testing.T) {
	orch, _, ledger := newTestOrchestrator(t)
	ctx := context.Background()

	bet, _ := orch.PlaceWager(ctx, "alice", 500, "dice")
	_, _ = orch.PlaceWager(ctx, "bob", 500, "dice")

	const n = 8
	var wg sync.WaitGroup
	results := make([]*Bet, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b, err := orch.Settle(ctx, bet.ID)
			if err == nil {
				results[i] = b
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, ledger.calls())
	for _, b := range results {
		if b == nil {
			continue
		}
		assert.Equal(t, StatusSettled, b.Status)
		assert.Equal(t, "bob", b.Winner)
	}
}

func TestSettleTwoInstancesSingleLedgerCall(t *testing.T) {
	// API e worker rodam orquestradores separados sobre o mesmo banco; o lock
	// em memória não cruza processos, então o claim SETTLING no store é quem
	// decide. Ledger lento alarga a janela da corrida.
	feed := newFakeFeed()
	feed.add(beacon.Round{Round: 100, Randomness: "0x102", Timestamp: 1708643700, Verified: true})
	ledger := newFakeLedger()
	ledger.delay = 150 * time.Millisecond
	store := NewMemoryBetStore()

	cfg := Config{
		MinStakeCents:    100,
		MaxStakeCents:    10_000,
		MatchmakeTimeout: time.Minute,
		BeaconWait:       time.Second,
	}
	newInstance := func() *Orchestrator {
		return NewOrchestrator(zap.NewNop(), cfg, store, match.NewQueue(),
			beacon.NewVerifier(beacon.NewMemoryStore()), feed, ledger)
	}
	api := newInstance()
	worker := newInstance()
	ctx := context.Background()

	bet, err := api.PlaceWager(ctx, "alice", 500, "dice")
	require.NoError(t, err)
	_, err = api.PlaceWager(ctx, "bob", 500, "dice")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, o := range []*Orchestrator{api, worker} {
		wg.Add(1)
		go func(o *Orchestrator) {
			defer wg.Done()
			_, serr := o.Settle(ctx, bet.ID)
			assert.NoError(t, serr)
		}(o)
	}
	wg.Wait()

	assert.Equal(t, 1, ledger.calls(), "both instances settling must produce one on-chain call")
	final, err := store.Get(ctx, bet.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSettled, final.Status)
	assert.Equal(t, "bob", final.Winner)
}

func TestRecoverSettlingReleasesOrphanedClaims(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t)
	ctx := context.Background()

	bet, _ := orch.PlaceWager(ctx, "alice", 500, "dice")
	_, _ = orch.PlaceWager(ctx, "bob", 500, "dice")

	// simula um crash entre o claim e o MarkSettled
	store := orch.bets
	require.NoError(t, store.MarkSettling(ctx, bet.ID))

	recovered, err := orch.RecoverSettling(ctx)
	require.NoError(t, err)
	require.Len(t, recovered, 1)
	assert.Equal(t, bet.ID, recovered[0].ID)

	after, err := orch.GetBet(ctx, bet.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, after.Status)

	// destravada, liquida normalmente
	settled, err := orch.Settle(ctx, bet.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSettled, settled.Status)
}

func TestSettleRetryReusesPinnedRound(t *testing.T) {
	orch, feed, ledger := newTestOrchestrator(t)
	ctx := context.Background()

	bet, _ := orch.PlaceWager(ctx, "alice", 500, "dice")
	_, _ = orch.PlaceWager(ctx, "bob", 500, "dice")

	ledger.failNext = 1
	_, err := orch.Settle(ctx, bet.ID)
	require.ErrorIs(t, err, ErrLedgerUnavailable)

	// a falha deixou a aposta ACTIVE com o round fixado
	after, err := orch.GetBet(ctx, bet.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, after.Status)
	assert.EqualValues(t, 100, after.BeaconRound)

	// o beacon avançou, mas o retry precisa liquidar com o round original
	feed.add(beacon.Round{Round: 200, Randomness: "0x05", Timestamp: 1708643730, Verified: true})

	settled, err := orch.Settle(ctx, bet.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSettled, settled.Status)
	assert.EqualValues(t, 100, settled.BeaconRound)
	assert.Equal(t, "bob", settled.Winner)
}

func TestSettleBeaconUnavailable(t *testing.T) {
	orch, feed, ledger := newTestOrchestrator(t)
	ctx := context.Background()

	bet, _ := orch.PlaceWager(ctx, "alice", 500, "dice")
	_, _ = orch.PlaceWager(ctx, "bob", 500, "dice")

	feed.mu.Lock()
	feed.err = beacon.ErrBeaconUnavailable
	feed.mu.Unlock()

	_, err := orch.Settle(ctx, bet.ID)
	require.ErrorIs(t, err, beacon.ErrBeaconUnavailable)
	assert.Equal(t, 0, ledger.calls())

	after, _ := orch.GetBet(ctx, bet.ID)
	assert.Equal(t, StatusActive, after.Status)
}

func TestSettleRejectsNonActive(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t)
	ctx := context.Background()

	bet, _ := orch.PlaceWager(ctx, "alice", 500, "dice")
	_, err := orch.Settle(ctx, bet.ID)
	assert.ErrorIs(t, err, ErrNotActive)

	_, err = orch.Settle(ctx, "ghost")
	assert.ErrorIs(t, err, ErrBetNotFound)
}

func TestIntegrityFaultHaltsBet(t *testing.T) {
	orch, _, ledger := newTestOrchestrator(t)
	ctx := context.Background()

	bet, _ := orch.PlaceWager(ctx, "alice", 500, "dice")
	_, _ = orch.PlaceWager(ctx, "bob", 500, "dice")

	// ledger reporta o lado A, derivação local dá B: divergência
	ledger.mu.Lock()
	ledger.reportSide[bet.ID] = "A"
	ledger.mu.Unlock()

	_, err := orch.Settle(ctx, bet.ID)
	require.ErrorIs(t, err, ErrIntegrityFault)

	after, err := orch.GetBet(ctx, bet.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFaulted, after.Status)
	assert.NotEmpty(t, after.Reason)

	// aposta travada: nenhum retry destrava sozinho
	_, err = orch.Settle(ctx, bet.ID)
	assert.ErrorIs(t, err, ErrFaulted)
	assert.Equal(t, 1, ledger.calls())
}

func TestCancelPendingRemovesFromQueue(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t)
	ctx := context.Background()

	bet, _ := orch.PlaceWager(ctx, "alice", 500, "dice")
	canceled, err := orch.Cancel(ctx, bet.ID, "caller gave up")
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, canceled.Status)
	assert.Equal(t, "caller gave up", canceled.Reason)
	assert.Equal(t, 0, orch.QueueStatus().QueueSize)

	// cancelada não pareia com ninguém
	fresh, err := orch.PlaceWager(ctx, "bob", 500, "dice")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, fresh.Status)
}

func TestCancelSettledFails(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t)
	ctx := context.Background()

	bet, _ := orch.PlaceWager(ctx, "alice", 500, "dice")
	_, _ = orch.PlaceWager(ctx, "bob", 500, "dice")
	_, err := orch.Settle(ctx, bet.ID)
	require.NoError(t, err)

	_, err = orch.Cancel(ctx, bet.ID, "too late")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestExpirePending(t *testing.T) {
	feed := newFakeFeed()
	ledger := newFakeLedger()
	store := NewMemoryBetStore()
	orch := NewOrchestrator(zap.NewNop(), Config{
		MinStakeCents:    100,
		MaxStakeCents:    10_000,
		MatchmakeTimeout: time.Minute,
		BeaconWait:       time.Second,
	}, store, match.NewQueue(), beacon.NewVerifier(beacon.NewMemoryStore()), feed, ledger)
	ctx := context.Background()

	old := &Bet{
		ID:           "stale-1",
		ParticipantA: "alice",
		StakeCents:   500,
		GameClass:    "dice",
		Status:       StatusPending,
		CreatedAt:    time.Now().Add(-2 * time.Minute),
	}
	require.NoError(t, store.Create(ctx, old))

	fresh, err := orch.PlaceWager(ctx, "bob", 500, "dice")
	require.NoError(t, err)

	n, err := orch.ExpirePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	b, _ := orch.GetBet(ctx, "stale-1")
	assert.Equal(t, StatusCanceled, b.Status)
	b, _ = orch.GetBet(ctx, fresh.ID)
	assert.Equal(t, StatusPending, b.Status)
}

func TestListActive(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t)
	ctx := context.Background()

	bet, _ := orch.PlaceWager(ctx, "alice", 500, "dice")
	_, _ = orch.PlaceWager(ctx, "bob", 500, "dice")

	active, err := orch.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, bet.ID, active[0].ID)
}
