package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/lwgs/searchindex-client/pkg/metrics"
)

// ErrReject marks a delivery as unprocessable: it is rejected without
// requeue and falls through to the queue's dead-letter policy. Any other
// handler error is nacked with requeue so the broker may redeliver.
var ErrReject = errors.New("broker: reject delivery")

// Handler processes one delivery. A nil return acknowledges the delivery.
type Handler func(ctx context.Context, delivery amqp.Delivery) error

// Deduper suppresses redeliveries that were already handled. Dedup is an
// optimization only; handlers stay idempotent regardless.
type Deduper interface {
	Seen(ctx context.Context, key string) (bool, error)
	MarkSeen(ctx context.Context, key string) error
}

type ConsumerConfig struct {
	Queue    string
	Workers  int
	Prefetch int
	// Priority elevates the consumer at the broker (x-priority).
	Priority int
}

// Consumer runs a bounded worker pool over one queue. Deliveries are
// unordered across workers.
type Consumer struct {
	conn    *amqp.Connection
	config  ConsumerConfig
	handler Handler
	deduper Deduper
	logger  *zap.Logger
}

func NewConsumer(conn *amqp.Connection, cfg ConsumerConfig, handler Handler, deduper Deduper, logger *zap.Logger) *Consumer {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = cfg.Workers
	}
	return &Consumer{
		conn:    conn,
		config:  cfg,
		handler: handler,
		deduper: deduper,
		logger:  logger,
	}
}

// Run consumes until ctx is cancelled, then drains in-flight workers.
func (c *Consumer) Run(ctx context.Context) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel for %s: %w", c.config.Queue, err)
	}
	defer ch.Close()

	if err := ch.Qos(c.config.Prefetch, 0, false); err != nil {
		return err
	}

	var args amqp.Table
	if c.config.Priority > 0 {
		args = amqp.Table{"x-priority": c.config.Priority}
	}

	deliveries, err := ch.Consume(c.config.Queue, "", false, false, false, false, args)
	if err != nil {
		return fmt.Errorf("failed to consume %s: %w", c.config.Queue, err)
	}

	go func() {
		<-ctx.Done()
		_ = ch.Close()
	}()

	var wg sync.WaitGroup
	for i := 0; i < c.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for delivery := range deliveries {
				c.process(ctx, delivery)
			}
		}()
	}
	wg.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

func (c *Consumer) process(ctx context.Context, delivery amqp.Delivery) {
	key := dedupKey(delivery)
	if c.deduper != nil && key != "" && delivery.Redelivered {
		if seen, err := c.deduper.Seen(ctx, key); err == nil && seen {
			c.ack(delivery)
			return
		}
	}

	err := c.handler(ctx, delivery)
	switch {
	case err == nil:
		if c.deduper != nil && key != "" {
			_ = c.deduper.MarkSeen(ctx, key)
		}
		c.ack(delivery)
		metrics.MessagesConsumed.WithLabelValues(c.config.Queue, "acked").Inc()
	case errors.Is(err, ErrReject):
		c.logger.Warn("rejecting delivery",
			zap.String("queue", c.config.Queue),
			zap.String("correlation_id", delivery.CorrelationId),
			zap.Error(err),
		)
		if nackErr := delivery.Reject(false); nackErr != nil {
			c.logger.Error("failed to reject delivery", zap.Error(nackErr))
		}
		metrics.MessagesConsumed.WithLabelValues(c.config.Queue, "rejected").Inc()
	default:
		c.logger.Error("delivery handler failed, requeueing",
			zap.String("queue", c.config.Queue),
			zap.String("correlation_id", delivery.CorrelationId),
			zap.Error(err),
		)
		if nackErr := delivery.Nack(false, true); nackErr != nil {
			c.logger.Error("failed to nack delivery", zap.Error(nackErr))
		}
		metrics.MessagesConsumed.WithLabelValues(c.config.Queue, "requeued").Inc()
	}
}

func (c *Consumer) ack(delivery amqp.Delivery) {
	if err := delivery.Ack(false); err != nil {
		c.logger.Error("failed to ack delivery",
			zap.String("queue", c.config.Queue),
			zap.Error(err),
		)
	}
}

func dedupKey(delivery amqp.Delivery) string {
	if delivery.CorrelationId == "" {
		return ""
	}
	state, _ := delivery.Headers[HeaderTransactionState].(string)
	return delivery.CorrelationId + "/" + state
}
