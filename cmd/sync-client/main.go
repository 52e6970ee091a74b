package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/lwgs/searchindex-client/pkg/apiserver"
	"github.com/lwgs/searchindex-client/pkg/broker"
	"github.com/lwgs/searchindex-client/pkg/config"
	"github.com/lwgs/searchindex-client/pkg/metrics"
	"github.com/lwgs/searchindex-client/pkg/seed"
	"github.com/lwgs/searchindex-client/pkg/state"
	"github.com/lwgs/searchindex-client/pkg/store/postgres"
	redisclient "github.com/lwgs/searchindex-client/pkg/store/redis"
	syncmgr "github.com/lwgs/searchindex-client/pkg/sync"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := buildLogger(&cfg.Logging)
	defer logger.Sync()

	db, err := postgres.NewStore(&cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.AutoMigrate(); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}

	var deduper broker.Deduper
	if len(cfg.Redis.Addresses) > 0 {
		redis, err := redisclient.NewClient(&cfg.Redis, logger)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer redis.Close()
		deduper = broker.NewRedisDeduper(redis.Client(), cfg.Redis.DedupTTL)
	} else {
		deduper = broker.NewMemoryDeduper(cfg.Redis.DedupTTL)
	}

	conn, err := amqp.Dial(cfg.Broker.URL)
	if err != nil {
		logger.Fatal("failed to connect to broker", zap.Error(err))
	}
	defer conn.Close()

	topologyCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("failed to open broker channel", zap.Error(err))
	}
	if err := broker.DeclareTopology(topologyCh); err != nil {
		logger.Fatal("failed to declare broker topology", zap.Error(err))
	}
	topologyCh.Close()

	publisher, err := broker.NewPublisher(conn, logger)
	if err != nil {
		logger.Fatal("failed to create publisher", zap.Error(err))
	}
	defer publisher.Close()

	stats := broker.NewQueueStats(conn)
	defer stats.Close()

	fullSync := syncmgr.NewStateManager(db.Settings(), logger)
	seeder := seed.NewService(&cfg.Sedex, publisher, stats, fullSync, logger)

	transactionProcessor := state.NewTransactionStateProcessor(db, logger)
	sedexProcessor := state.NewSedexMessageStateProcessor(db, logger)

	transactionConsumer := broker.NewConsumer(conn, broker.ConsumerConfig{
		Queue:    broker.QueueTransactionState,
		Workers:  cfg.Broker.TransactionStateWorkers,
		Prefetch: cfg.Broker.Prefetch,
		Priority: 10,
	}, transactionProcessor.Handle, deduper, logger)

	sedexConsumer := broker.NewConsumer(conn, broker.ConsumerConfig{
		Queue:    broker.QueueSedexState,
		Workers:  cfg.Broker.SedexStateWorkers,
		Prefetch: cfg.Broker.Prefetch,
	}, sedexProcessor.Handle, deduper, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	runConsumer := func(name string, consumer *broker.Consumer) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("consumer stopped", zap.String("consumer", name), zap.Error(err))
			}
		}()
	}
	runConsumer("transaction-state", transactionConsumer)
	runConsumer("sedex-state", sedexConsumer)

	wg.Add(1)
	go func() {
		defer wg.Done()
		pollQueueDepth(ctx, stats)
	}()

	admin := apiserver.NewServer(seeder, fullSync, stats, cfg, logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := admin.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("admin server stopped", zap.Error(err))
		}
	}()

	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler: promhttp.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()

	logger.Info("sync client started",
		zap.Int("transaction_state_workers", cfg.Broker.TransactionStateWorkers),
		zap.Int("sedex_state_workers", cfg.Broker.SedexStateWorkers),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("sync client shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = metricsServer.Shutdown(shutdownCtx)

	wg.Wait()
}

var depthQueues = []string{
	broker.QueuePersonDataPartialIncoming,
	broker.QueuePersonDataPartialOutgoing,
	broker.QueuePersonDataPartialFailed,
	broker.QueuePersonDataFullIncoming,
	broker.QueuePersonDataFullOutgoing,
	broker.QueuePersonDataFullFailed,
	broker.QueueTransactionState,
	broker.QueueSedexState,
	broker.QueueSedexOutgoing,
}

func pollQueueDepth(ctx context.Context, stats *broker.QueueStats) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, queue := range depthQueues {
				count, err := stats.GetQueueCount(queue)
				if err != nil {
					continue
				}
				metrics.QueueDepth.WithLabelValues(queue).Set(float64(count))
			}
		}
	}
}

func buildLogger(cfg *config.LoggingConfig) *zap.Logger {
	zapConfig := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zapConfig = zap.NewDevelopmentConfig()
	}
	if level, err := zap.ParseAtomicLevel(cfg.Level); err == nil {
		zapConfig.Level = level
	}
	logger, err := zapConfig.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
