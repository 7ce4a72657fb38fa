package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/emekauja/shopflow/pkg/config"
	"github.com/emekauja/shopflow/pkg/idempotency"
	"github.com/emekauja/shopflow/pkg/logging"
	"github.com/emekauja/shopflow/pkg/outbox"
	"github.com/emekauja/shopflow/pkg/shutdown"
	"github.com/emekauja/shopflow/pkg/tracing"

	alertsapp "github.com/emekauja/shopflow/internal/alerts/application"
	alertskafka "github.com/emekauja/shopflow/internal/alerts/infrastructure/kafka"
	catalogpg "github.com/emekauja/shopflow/internal/catalog/infrastructure/postgres"
	invapp "github.com/emekauja/shopflow/internal/inventory/application"
	invpg "github.com/emekauja/shopflow/internal/inventory/infrastructure/postgres"
	orderapp "github.com/emekauja/shopflow/internal/order/application"
	orderhttp "github.com/emekauja/shopflow/internal/order/infrastructure/http"
	orderkafka "github.com/emekauja/shopflow/internal/order/infrastructure/kafka"
	orderpg "github.com/emekauja/shopflow/internal/order/infrastructure/postgres"
	"github.com/emekauja/shopflow/internal/storage"
)

func main() {
	log := logging.New()

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	cfg := config.Load(log)

	tp, err := tracing.Init(ctx, "shopflow", cfg.OTLPEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	// Postgres
	pool, err := pgxpool.New(ctx, cfg.PGURL)
	if err != nil {
		log.Error("pg connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := storage.Migrate(ctx, pool); err != nil {
		log.Error("schema migrate failed", "err", err)
		os.Exit(1)
	}

	// Redis idempotency cache
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	idem := idempotency.NewStore(rdb, cfg.IdempotencyTTL)

	// Kafka producer + outbox relay
	writer := orderkafka.NewWriter(cfg.KafkaBrokers)
	defer writer.Close()

	orderRepo := orderpg.NewRepository(log, pool)
	outboxStore := orderpg.NewOutboxStore(log, pool)
	dispatch := outbox.NewDispatcher(log, writer, cfg.OrderEventsTopic)
	relay := outbox.NewRelay(log, outboxStore, dispatch, "shopflow-relay")

	// Services
	catalogRepo := catalogpg.NewRepository(log, pool)
	stockRepo := invpg.NewRepository(log, pool)
	stockSvc := invapp.NewService(log, stockRepo)
	orderSvc := orderapp.NewService(log, orderRepo, catalogRepo, stockSvc, idem, cfg.CatalogTimeout)

	notifier := alertskafka.NewNotifier(log, cfg.KafkaBrokers, cfg.AlertsTopic)
	defer notifier.Close()
	sweeper := alertsapp.NewSweeper(log, stockSvc, notifier, cfg.SweepInterval, cfg.NotifyTimeout)

	handler := orderhttp.NewHandler(log, orderSvc, stockSvc, sweeper)
	consumer := orderkafka.NewConsumer(log, cfg.KafkaBrokers, cfg.PaymentEventsTopic, cfg.PaymentGroup, orderSvc, idem)

	// HTTP server
	r := chi.NewRouter()
	r.Mount("/", handler.Routes())
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if err := pool.Ping(req.Context()); err != nil {
			http.Error(w, "db unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		if err := relay.Run(ctx); err != nil {
			log.Error("relay stopped with error", "err", err)
		}
	}()

	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		if err := sweeper.Run(ctx); err != nil {
			log.Error("sweeper stopped with error", "err", err)
		}
	}()

	go func() {
		if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("payment consumer stopped with error", "err", err)
			cancel()
		}
	}()

	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)

	// An in-flight sweep keeps running after the signal; wait for it to drain.
	<-sweeperDone
	log.Info("shopflow shutdown complete")
}
