package broker

import (
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// QueueStats is a read-only, best-effort view into broker queue depths.
type QueueStats struct {
	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewQueueStats(conn *amqp.Connection) *QueueStats {
	return &QueueStats{conn: conn}
}

// GetQueueCount returns the number of messages currently ready on a queue.
func (s *QueueStats) GetQueueCount(queue string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, err := s.channel()
	if err != nil {
		return 0, err
	}

	state, err := ch.QueueInspect(queue)
	if err != nil {
		// Inspecting a missing queue closes the channel; reopen lazily.
		s.ch = nil
		return 0, err
	}
	return state.Messages, nil
}

func (s *QueueStats) channel() (*amqp.Channel, error) {
	if s.ch != nil && !s.ch.IsClosed() {
		return s.ch, nil
	}
	ch, err := s.conn.Channel()
	if err != nil {
		return nil, err
	}
	s.ch = ch
	return ch, nil
}

func (s *QueueStats) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch != nil {
		return s.ch.Close()
	}
	return nil
}
