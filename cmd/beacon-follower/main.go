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
	"go.uber.org/zap"

	"github.com/vfurtado/drand-wager-platform-poc/internal/protocol/beacon"
	sharedcache "github.com/vfurtado/drand-wager-platform-poc/internal/shared/cache"
	"github.com/vfurtado/drand-wager-platform-poc/internal/shared/config"
	"github.com/vfurtado/drand-wager-platform-poc/internal/shared/db"
	skafka "github.com/vfurtado/drand-wager-platform-poc/internal/shared/kafka"
	"github.com/vfurtado/drand-wager-platform-poc/internal/shared/logger"
	"github.com/vfurtado/drand-wager-platform-poc/internal/shared/metrics"
	ev "github.com/vfurtado/drand-wager-platform-poc/pkg/contracts/events"
)

var (
	observedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beacon_follower_rounds_observed_total",
		Help: "Rounds novos observados no drand",
	})
	fetchErrCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beacon_follower_fetch_errors_total",
		Help: "Falhas de fetch no drand",
	})
)

// beacon-follower acompanha o drand e mantém o registro local de rounds
// aquecido: cada round novo vai pro Postgres, pro cache Redis e pros
// assinantes (Kafka + broadcast WS).
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

	roundsWriter := skafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBeaconRounds)
	defer roundsWriter.Close()

	verifier := beacon.NewVerifier(beacon.NewPostgres(pg))
	feed := beacon.NewDrandClient(cfg.DrandURL)
	cache := beacon.NewRoundCache(rdb, 10*time.Minute)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		return pg.PingContext(ctx)
	})

	log.Info("beacon-follower started",
		zap.String("drand", cfg.DrandURL),
		zap.Duration("interval", cfg.BeaconPollInterval),
	)

	var lastSeen uint64

	poll := func() {
		fctx, fcancel := context.WithTimeout(ctx, cfg.BeaconWait)
		defer fcancel()

		r, err := feed.FetchLatest(fctx)
		if err != nil {
			fetchErrCounter.Inc()
			log.Warn("drand fetch", zap.Error(err))
			return
		}
		if r.Round == lastSeen {
			return
		}
		lastSeen = r.Round

		if err := verifier.AddRound(ctx, r.Round, r.Randomness, r.Signature, r.Timestamp); err != nil {
			if !errors.Is(err, beacon.ErrMalformedRandomness) {
				log.Warn("round store", zap.Uint64("round", r.Round), zap.Error(err))
			}
			return
		}
		if err := cache.Set(ctx, *r); err != nil {
			log.Warn("round cache set", zap.Uint64("round", r.Round), zap.Error(err))
		}
		observedCounter.Inc()

		evt := ev.RoundObserved{
			Round:      r.Round,
			Randomness: r.Randomness,
			Signature:  r.Signature,
			Timestamp:  r.Timestamp,
			Source:     "drand-follower",
		}
		b, _ := json.Marshal(evt)
		if werr := skafka.WriteJSON(ctx, roundsWriter, "rounds", b); werr != nil {
			log.Warn("publish beacon_rounds", zap.Error(werr))
		}

		msg, _ := json.Marshal(ev.Broadcast{Topic: "rounds", Payload: evt})
		if perr := rdb.Publish(ctx, cfg.RedisPubSubChannel, msg).Err(); perr != nil {
			log.Warn("broadcast publish", zap.Error(perr))
		}

		log.Info("round observed", zap.Uint64("round", r.Round))
	}

	poll()
	tick := time.NewTicker(cfg.BeaconPollInterval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			poll()
		}
	}
}
