package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/lwgs/searchindex-client/pkg/broker"
	"github.com/lwgs/searchindex-client/pkg/config"
	"github.com/lwgs/searchindex-client/pkg/sedex"
	"github.com/lwgs/searchindex-client/pkg/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	db, err := postgres.NewStore(&cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

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

	relay := sedex.NewRelay(
		cfg.Sedex.ReceiptDir,
		cfg.Sedex.ArchiveDir,
		cfg.Sedex.RescanPeriod,
		db,
		publisher,
		logger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("sedex relay stopped", zap.Error(err))
		}
	}()

	logger.Info("sedex relay started", zap.String("receipt_dir", cfg.Sedex.ReceiptDir))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("sedex relay shutting down")
	cancel()
	<-relayDone
}
