package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/vfurtado/drand-wager-platform-poc/internal/ledger"
	"github.com/vfurtado/drand-wager-platform-poc/internal/prices"
	"github.com/vfurtado/drand-wager-platform-poc/internal/protocol/beacon"
	"github.com/vfurtado/drand-wager-platform-poc/internal/protocol/match"
	"github.com/vfurtado/drand-wager-platform-poc/internal/protocol/seed"
	"github.com/vfurtado/drand-wager-platform-poc/internal/protocol/settle"
	sharedcache "github.com/vfurtado/drand-wager-platform-poc/internal/shared/cache"
	"github.com/vfurtado/drand-wager-platform-poc/internal/shared/config"
	"github.com/vfurtado/drand-wager-platform-poc/internal/shared/db"
	skafka "github.com/vfurtado/drand-wager-platform-poc/internal/shared/kafka"
	"github.com/vfurtado/drand-wager-platform-poc/internal/shared/logger"
	"github.com/vfurtado/drand-wager-platform-poc/internal/shared/metrics"
	"github.com/vfurtado/drand-wager-platform-poc/internal/wager-service/httpapi"
	"github.com/vfurtado/drand-wager-platform-poc/internal/wager-service/producer"
	"github.com/vfurtado/drand-wager-platform-poc/internal/wager-service/ws"
	"github.com/vfurtado/drand-wager-platform-poc/pkg/contracts/events"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Postgres
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("pg", zap.Error(err))
	}
	defer pg.Close()

	// Redis
	rdb, err := sharedcache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	// Kafka writers
	placedWriter := skafka.NewWriter(cfg.KafkaBrokers, cfg.TopicWagerPlaced)
	defer placedWriter.Close()
	matchedWriter := skafka.NewWriter(cfg.KafkaBrokers, cfg.TopicWagerMatched)
	defer matchedWriter.Close()

	// deps do protocolo, todos injetados
	verifier := beacon.NewVerifier(beacon.NewPostgres(pg))
	feed := beacon.NewDrandClient(cfg.DrandURL)
	seeds := seed.NewManager(seed.NewPostgres(pg))
	queue := match.NewQueue()
	lcli := ledger.New(cfg.LedgerURL)

	orch := settle.NewOrchestrator(log, settle.Config{
		MinStakeCents:    cfg.MinStakeCents,
		MaxStakeCents:    cfg.MaxStakeCents,
		MatchmakeTimeout: cfg.MatchmakeTimeout,
		BeaconWait:       cfg.BeaconWait,
	}, settle.NewPostgres(pg), queue, verifier, feed, lcli)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// WebSocket hub alimentado pelo Pub/Sub do Redis
	hub := ws.NewHub(func(r *http.Request) bool { return true })
	ws.StartRedisSubscriber(ctx, log, rdb, cfg.RedisPubSubChannel, hub)

	// Pareamentos e cancelamentos vão direto pro canal de broadcast; quem
	// assina bet:<id> no WS acompanha a aposta sem polling
	broadcast := func(b *settle.Bet) {
		msg, _ := json.Marshal(events.Broadcast{Topic: "bet:" + b.ID, Payload: b})
		if err := rdb.Publish(ctx, cfg.RedisPubSubChannel, msg).Err(); err != nil {
			log.Warn("broadcast publish", zap.Error(err))
		}
	}
	orch.OnMatched = broadcast
	orch.OnCanceled = broadcast

	// Ticker de preços POL/USDC
	go prices.NewTicker(log, rdb, cfg.CoinGeckoURL).Run(ctx)

	// Sweeper de matchmaking: expira apostas PENDING além do timeout
	go func() {
		tick := time.NewTicker(10 * time.Second)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				if n, err := orch.ExpirePending(ctx); err != nil {
					log.Warn("expire pending", zap.Error(err))
				} else if n > 0 {
					log.Info("expired pending wagers", zap.Int("count", n))
				}
			}
		}
	}()

	// metrics/health
	metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if err := pg.PingContext(ctx); err != nil {
			return err
		}
		return rdb.Ping(ctx).Err()
	})

	// HTTP público
	roundCache := beacon.NewRoundCache(rdb, 10*time.Minute)
	publ := producer.NewKafkaPublisher(placedWriter, matchedWriter)
	api := httpapi.NewServer(log, orch, seeds, verifier, roundCache, rdb, hub, publ)
	apiSrv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler: api.Router(),
	}
	go func() {
		<-ctx.Done()
		shCtx, shCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shCancel()
		_ = apiSrv.Shutdown(shCtx)
	}()

	log.Info("wager-service listening", zap.String("addr", apiSrv.Addr))
	if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("api", zap.Error(err))
	}
}
