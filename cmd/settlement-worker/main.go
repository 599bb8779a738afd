package main

import (
	"context"
	"encoding/json"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/vfurtado/drand-wager-platform-poc/internal/ledger"
	"github.com/vfurtado/drand-wager-platform-poc/internal/protocol/beacon"
	"github.com/vfurtado/drand-wager-platform-poc/internal/protocol/match"
	"github.com/vfurtado/drand-wager-platform-poc/internal/protocol/settle"
	sharedcache "github.com/vfurtado/drand-wager-platform-poc/internal/shared/cache"
	"github.com/vfurtado/drand-wager-platform-poc/internal/shared/config"
	"github.com/vfurtado/drand-wager-platform-poc/internal/shared/db"
	skafka "github.com/vfurtado/drand-wager-platform-poc/internal/shared/kafka"
	"github.com/vfurtado/drand-wager-platform-poc/internal/shared/logger"
	"github.com/vfurtado/drand-wager-platform-poc/internal/shared/metrics"
	ev "github.com/vfurtado/drand-wager-platform-poc/pkg/contracts/events"
)

var (
	settledCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_worker_settled_total",
		Help: "Apostas liquidadas com sucesso",
	})
	faultedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_worker_faulted_total",
		Help: "Apostas travadas por falha de integridade",
	})
	dlqCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_worker_dlq_total",
		Help: "Eventos wager_matched enviados pra DLQ após retries",
	})
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("pg connect", zap.Error(err))
	}
	defer pg.Close()

	rdb, err := sharedcache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	// Consome os pareamentos; cada wager_matched dispara uma liquidação
	reader := skafka.NewReader(cfg.KafkaBrokers, cfg.TopicWagerMatched, "settlement-worker")
	defer reader.Close()

	settledWriter := skafka.NewWriter(cfg.KafkaBrokers, cfg.TopicWagerSettled)
	defer settledWriter.Close()

	var dlqWriter *kafkago.Writer
	if cfg.TopicWagerMatchedDLQ != "" {
		dlqWriter = skafka.NewWriter(cfg.KafkaBrokers, cfg.TopicWagerMatchedDLQ)
		defer dlqWriter.Close()
	}

	verifier := beacon.NewVerifier(beacon.NewPostgres(pg))
	feed := beacon.NewDrandClient(cfg.DrandURL)
	lcli := ledger.New(cfg.LedgerURL)

	orch := settle.NewOrchestrator(log, settle.Config{
		MinStakeCents:    cfg.MinStakeCents,
		MaxStakeCents:    cfg.MaxStakeCents,
		MatchmakeTimeout: cfg.MatchmakeTimeout,
		BeaconWait:       cfg.BeaconWait,
	}, settle.NewPostgres(pg), match.NewQueue(), verifier, feed, lcli)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		return pg.PingContext(ctx)
	})

	log.Info("settlement-worker started",
		zap.String("consume", cfg.TopicWagerMatched),
		zap.String("publish", cfg.TopicWagerSettled),
	)

	// Sweep de recuperação: claims SETTLING órfãos de um crash anterior voltam
	// pra ACTIVE, e tudo que aguarda liquidação re-entra no fluxo. O round já
	// fixado é respeitado pelo orquestrador.
	if stuck, err := orch.RecoverSettling(ctx); err != nil {
		log.Warn("recovery sweep settling", zap.Error(err))
	} else if len(stuck) > 0 {
		log.Info("recovered orphaned settling claims", zap.Int("count", len(stuck)))
	}
	if active, err := orch.ListActive(ctx); err != nil {
		log.Warn("recovery sweep list", zap.Error(err))
	} else {
		for _, b := range active {
			log.Info("recovery sweep", zap.String("betId", b.ID), zap.Uint64("round", b.BeaconRound))
			settleOne(ctx, log, cfg, rdb, orch, settledWriter, dlqWriter, b.ID)
		}
	}

	for {
		_, value, err := skafka.ReadNext(ctx, reader)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("kafka read", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		var matched ev.WagerMatched
		if jerr := json.Unmarshal(value, &matched); jerr != nil {
			log.Error("unmarshal wager_matched", zap.Error(jerr))
			continue
		}
		settleOne(ctx, log, cfg, rdb, orch, settledWriter, dlqWriter, matched.BetID)
	}
}

// settleOne liquida uma aposta com retry pra indisponibilidade transitória.
// Falha de integridade nunca é retentada — a aposta já travou em FAULTED.
func settleOne(
	ctx context.Context,
	log *zap.Logger,
	cfg config.Config,
	rdb *redis.Client,
	orch *settle.Orchestrator,
	settledWriter *kafkago.Writer,
	dlqWriter *kafkago.Writer,
	betID string,
) {
	var bet *settle.Bet
	var err error

	const retries = 3
	for i := 0; i < retries; i++ {
		bet, err = orch.Settle(ctx, betID)
		if err == nil {
			break
		}
		if errors.Is(err, settle.ErrIntegrityFault) {
			faultedCounter.Inc()
			log.Error("integrity fault, bet halted", zap.String("betId", betID), zap.Error(err))
			return
		}
		if !errors.Is(err, beacon.ErrBeaconUnavailable) &&
			!errors.Is(err, settle.ErrLedgerUnavailable) {
			log.Error("settle failed", zap.String("betId", betID), zap.Error(err))
			return
		}
		time.Sleep(time.Duration(300*(i+1)) * time.Millisecond)
	}
	if err != nil {
		dlqCounter.Inc()
		log.Error("settle exhausted retries", zap.String("betId", betID), zap.Error(err))
		if dlqWriter != nil {
			payload, _ := json.Marshal(map[string]any{"betId": betID, "error": err.Error()})
			_ = skafka.WriteJSON(ctx, dlqWriter, betID, payload)
		}
		return
	}

	settledCounter.Inc()
	evt := ev.WagerSettled{
		BetID:       bet.ID,
		BeaconRound: bet.BeaconRound,
		Randomness:  bet.Randomness,
		RollA:       bet.RollA,
		RollB:       bet.RollB,
		Winner:      bet.Winner,
		TxHash:      bet.TxHash,
		Ts:          time.Now(),
	}
	b, _ := json.Marshal(evt)
	if werr := skafka.WriteJSON(ctx, settledWriter, bet.ID, b); werr != nil {
		log.Warn("publish wager_settled", zap.Error(werr))
	}

	// Broadcast pro WS via Redis Pub/Sub
	msg, _ := json.Marshal(ev.Broadcast{Topic: "bet:" + bet.ID, Payload: evt})
	if perr := rdb.Publish(ctx, cfg.RedisPubSubChannel, msg).Err(); perr != nil {
		log.Warn("broadcast publish", zap.Error(perr))
	}

	log.Info("wager settled",
		zap.String("betId", bet.ID),
		zap.Uint64("round", bet.BeaconRound),
		zap.String("winner", bet.Winner),
	)
}
