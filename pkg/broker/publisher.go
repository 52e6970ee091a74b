package broker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// PersonData is the record payload carried on the lwgs exchange. The
// payload itself is opaque to this client.
type PersonData struct {
	TransactionID uuid.UUID `json:"transactionId"`
	Payload       string    `json:"payload"`
}

// Publisher serializes publishes onto a single confirm-mode channel.
// Confirmation is left to the broker; the application layer is
// fire-and-forget.
type Publisher struct {
	mu     sync.Mutex
	ch     *amqp.Channel
	logger *zap.Logger
}

func NewPublisher(conn *amqp.Connection, logger *zap.Logger) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		logger.Warn("publisher channel confirm mode unavailable", zap.Error(err))
	}
	return &Publisher{ch: ch, logger: logger}, nil
}

// PublishPersonData publishes a record payload on the lwgs exchange.
func (p *Publisher) PublishPersonData(ctx context.Context, topic string, data PersonData, headers CommonHeaders) error {
	body, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return p.publish(ctx, ExchangeLWGS, topic, "application/json", body, headers)
}

// PublishStateShadow publishes an empty-payload message carrying only
// headers on the lwgs-state exchange.
func (p *Publisher) PublishStateShadow(ctx context.Context, topic string, headers CommonHeaders) error {
	return p.publish(ctx, ExchangeLWGSState, topic, "text/plain", nil, headers)
}

func (p *Publisher) publish(ctx context.Context, exchange, topic, contentType string, body []byte, headers CommonHeaders) error {
	pub := amqp.Publishing{
		ContentType:  contentType,
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	}
	headers.Apply(&pub)

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(ctx, exchange, topic, false, false, pub)
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.Close()
}
