package broker

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange and queue names are contractual.
const (
	ExchangeLWGS      = "lwgs"
	ExchangeLWGSState = "lwgs-state"
	ExchangeDLX       = "lwgs-dlx"

	QueuePersonDataPartialIncoming = "persondata-partial-incoming"
	QueuePersonDataPartialOutgoing = "persondata-partial-outgoing"
	QueuePersonDataPartialFailed   = "persondata-partial-failed"
	QueuePersonDataFullIncoming    = "persondata-full-incoming"
	QueuePersonDataFullOutgoing    = "persondata-full-outgoing"
	QueuePersonDataFullFailed      = "persondata-full-failed"
	QueueTransactionState          = "transaction-state"
	QueueSedexState                = "sedex-state"
	QueueSedexOutgoing             = "sedex-outgoing"
	QueueSedexStateFailed          = "sedex-state-failed"
)

var recordQueues = []string{
	QueuePersonDataPartialIncoming,
	QueuePersonDataPartialOutgoing,
	QueuePersonDataPartialFailed,
	QueuePersonDataFullIncoming,
	QueuePersonDataFullOutgoing,
	QueuePersonDataFullFailed,
	QueueSedexOutgoing,
}

// DeclareTopology declares the exchanges, queues and bindings. Record
// payloads travel on the lwgs exchange routed by queue name; empty state
// shadows travel on lwgs-state. The transaction-state queue receives every
// state topic and filters by message category; sedex-state receives only
// its own topic and dead-letters rejected deliveries.
func DeclareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(ExchangeLWGS, "topic", true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(ExchangeLWGSState, "topic", true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(ExchangeDLX, "direct", true, false, false, false, nil); err != nil {
		return err
	}

	for _, queue := range recordQueues {
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			return err
		}
		if err := ch.QueueBind(queue, queue, ExchangeLWGS, false, nil); err != nil {
			return err
		}
	}

	if _, err := ch.QueueDeclare(QueueTransactionState, true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.QueueBind(QueueTransactionState, "#", ExchangeLWGSState, false, nil); err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(QueueSedexState, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    ExchangeDLX,
		"x-dead-letter-routing-key": QueueSedexState,
	}); err != nil {
		return err
	}
	if err := ch.QueueBind(QueueSedexState, QueueSedexState, ExchangeLWGSState, false, nil); err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(QueueSedexStateFailed, true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.QueueBind(QueueSedexStateFailed, QueueSedexState, ExchangeDLX, false, nil); err != nil {
		return err
	}

	return nil
}
