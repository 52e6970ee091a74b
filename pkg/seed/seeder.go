package seed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lwgs/searchindex-client/pkg/broker"
	"github.com/lwgs/searchindex-client/pkg/config"
	"github.com/lwgs/searchindex-client/pkg/metrics"
	"github.com/lwgs/searchindex-client/pkg/model"
)

// ErrSenderIDValidation rejects admission with an unknown sender identity.
var ErrSenderIDValidation = errors.New("seed: sender id validation failed")

// Publisher is the outbound broker surface the seeder needs.
type Publisher interface {
	PublishPersonData(ctx context.Context, topic string, data broker.PersonData, headers broker.CommonHeaders) error
	PublishStateShadow(ctx context.Context, topic string, headers broker.CommonHeaders) error
}

// QueueStats reports broker queue depths.
type QueueStats interface {
	GetQueueCount(queue string) (int, error)
}

// FullSyncState is the view of the full-sync lifecycle the seeder consults.
type FullSyncState interface {
	IsInStateSeeding() bool
	CurrentJobID() (uuid.UUID, bool)
	IncSeedMessageCounter()
}

// Service admits single person-data records into the pipeline.
type Service struct {
	publisher Publisher
	stats     QueueStats
	fullSync  FullSyncState
	logger    *zap.Logger

	multiSender    bool
	singleSenderID string
	validSenderIDs map[string]struct{}
}

func NewService(cfg *config.SedexConfig, publisher Publisher, stats QueueStats, fullSync FullSyncState, logger *zap.Logger) *Service {
	valid := make(map[string]struct{})
	for _, id := range cfg.ValidSenderIDs() {
		valid[id] = struct{}{}
	}

	return &Service{
		publisher:      publisher,
		stats:          stats,
		fullSync:       fullSync,
		logger:         logger,
		multiSender:    cfg.MultiSender,
		singleSenderID: cfg.SenderID,
		validSenderIDs: valid,
	}
}

// SeedToPartial admits one record in streaming mode. An empty senderID is
// defaulted to the configured id in single-sender mode.
func (s *Service) SeedToPartial(ctx context.Context, payload, senderID string) (uuid.UUID, error) {
	sender, err := s.validateOrDefaultSenderID(senderID)
	if err != nil {
		return uuid.Nil, err
	}
	return s.seedToQueue(ctx, payload, broker.QueuePersonDataPartialIncoming, model.JobTypePartial, nil, sender)
}

// SeedToFull admits one record under the current full-sync job. It reports
// ok=false without publishing when no seeding phase is open.
func (s *Service) SeedToFull(ctx context.Context, payload, senderID string) (uuid.UUID, bool, error) {
	if !s.fullSync.IsInStateSeeding() {
		return uuid.Nil, false, nil
	}

	sender, err := s.validateOrDefaultSenderID(senderID)
	if err != nil {
		return uuid.Nil, false, err
	}

	jobID, ok := s.fullSync.CurrentJobID()
	if !ok {
		return uuid.Nil, false, errors.New("seed: seeding state without job id")
	}

	transactionID, err := s.seedToQueue(ctx, payload, broker.QueuePersonDataFullIncoming, model.JobTypeFull, &jobID, sender)
	if err != nil {
		return uuid.Nil, false, err
	}

	s.fullSync.IncSeedMessageCounter()
	return transactionID, true, nil
}

func (s *Service) validateOrDefaultSenderID(senderID string) (string, error) {
	if !s.multiSender && senderID == "" {
		return s.singleSenderID, nil
	}
	if _, ok := s.validSenderIDs[senderID]; ok {
		return senderID, nil
	}
	return "", fmt.Errorf("%w: given sender id %q", ErrSenderIDValidation, senderID)
}

func (s *Service) seedToQueue(ctx context.Context, payload, topic string, jobType model.JobType, jobID *uuid.UUID, senderID string) (uuid.UUID, error) {
	transactionID := uuid.New()
	headers := broker.CommonHeaders{
		SenderID:         senderID,
		JobType:          jobType,
		JobID:            jobID,
		MessageCategory:  model.CategoryTransactionEvent,
		TransactionState: model.TransactionNew,
		TransactionID:    &transactionID,
		Timestamp:        time.Now(),
	}

	data := broker.PersonData{
		TransactionID: transactionID,
		Payload:       payload,
	}

	if err := s.publisher.PublishPersonData(ctx, topic, data, headers); err != nil {
		return uuid.Nil, fmt.Errorf("failed to publish record: %w", err)
	}

	// Not atomic with the record publish; the state consumer upserts on
	// NEW, so a redelivered shadow is harmless.
	if err := s.publisher.PublishStateShadow(ctx, topic, headers); err != nil {
		return uuid.Nil, fmt.Errorf("failed to publish state shadow: %w", err)
	}

	metrics.RecordsSeeded.WithLabelValues(string(jobType)).Inc()
	s.logger.Debug("record seeded",
		zap.String("transaction_id", transactionID.String()),
		zap.String("job_type", string(jobType)),
	)
	return transactionID, nil
}

// Queue depth accessors for the operator surface.

func (s *Service) PartialQueued() (int, error) {
	return s.stats.GetQueueCount(broker.QueuePersonDataPartialIncoming)
}

func (s *Service) PartialProcessed() (int, error) {
	return s.stats.GetQueueCount(broker.QueuePersonDataPartialOutgoing)
}

func (s *Service) PartialFailed() (int, error) {
	return s.stats.GetQueueCount(broker.QueuePersonDataPartialFailed)
}

func (s *Service) FullQueued() (int, error) {
	return s.stats.GetQueueCount(broker.QueuePersonDataFullIncoming)
}

func (s *Service) FullProcessed() (int, error) {
	return s.stats.GetQueueCount(broker.QueuePersonDataFullOutgoing)
}

func (s *Service) FullFailed() (int, error) {
	return s.stats.GetQueueCount(broker.QueuePersonDataFullFailed)
}
