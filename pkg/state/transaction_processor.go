package state

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/lwgs/searchindex-client/pkg/broker"
	"github.com/lwgs/searchindex-client/pkg/metrics"
	"github.com/lwgs/searchindex-client/pkg/model"
	"github.com/lwgs/searchindex-client/pkg/store"
)

// TransactionStateProcessor consumes the transaction-state queue and is the
// sole writer of Transaction rows and the lazy creator of SyncJob rows.
type TransactionStateProcessor struct {
	store  store.Store
	logger *zap.Logger

	// syncJobCache is populated on observation only, never on creation,
	// and never invalidated; the repository stays the source of truth.
	mu           sync.Mutex
	syncJobCache map[uuid.UUID]*model.SyncJob
}

func NewTransactionStateProcessor(st store.Store, logger *zap.Logger) *TransactionStateProcessor {
	return &TransactionStateProcessor{
		store:        st,
		logger:       logger,
		syncJobCache: make(map[uuid.UUID]*model.SyncJob),
	}
}

// Handle processes one delivery inside a single database transaction; the
// broker acknowledgement happens only after the commit.
func (p *TransactionStateProcessor) Handle(ctx context.Context, delivery amqp.Delivery) error {
	headers := broker.ParseHeaders(delivery.Headers)
	if headers.MessageCategory != model.CategoryTransactionEvent {
		return nil
	}

	return p.store.InTransaction(ctx, func(repos store.Repositories) error {
		return p.handleTransactionMessage(ctx, repos, headers)
	})
}

func (p *TransactionStateProcessor) handleTransactionMessage(ctx context.Context, repos store.Repositories, headers broker.CommonHeaders) error {
	switch headers.TransactionState {
	case model.TransactionNew:
		return p.processNewTransaction(ctx, repos, headers)
	case model.TransactionFailed:
		if err := p.updateJobStateIfRequired(ctx, repos, headers); err != nil {
			return err
		}
		return p.updateTransaction(ctx, repos, headers)
	default:
		return p.updateTransaction(ctx, repos, headers)
	}
}

func (p *TransactionStateProcessor) processNewTransaction(ctx context.Context, repos store.Repositories, headers broker.CommonHeaders) error {
	if headers.TransactionID == nil {
		p.logger.Warn("transaction event without transaction id, dropping")
		return nil
	}

	transaction := &model.Transaction{
		TransactionID: *headers.TransactionID,
		State:         model.TransactionNew,
		CreatedAt:     headers.Timestamp,
		UpdatedAt:     headers.Timestamp,
	}

	if headers.JobID != nil {
		if err := p.ensureSyncJob(ctx, repos, headers); err != nil {
			return err
		}
		transaction.JobID = headers.JobID
	}

	err := repos.Transactions().Save(ctx, transaction)
	if errors.Is(err, store.ErrDuplicateKey) {
		// Redelivery of NEW; the existing row is authoritative.
		metrics.DuplicateTransactions.Inc()
		p.logger.Debug("transaction already existing",
			zap.String("transaction_id", headers.TransactionID.String()),
		)
		return nil
	}
	return err
}

// updateJobStateIfRequired escalates a failing transaction of a full-sync
// job to FAILED_PROCESSING. COMPLETED and FAILED stay the exclusive
// decision of the sedex message state processor.
func (p *TransactionStateProcessor) updateJobStateIfRequired(ctx context.Context, repos store.Repositories, headers broker.CommonHeaders) error {
	if headers.JobID == nil {
		return nil
	}

	job, err := repos.SyncJobs().FindByJobID(ctx, *headers.JobID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if job.JobType != model.JobTypeFull {
		return nil
	}
	if !job.SetStateWithTimestamp(model.JobFailedProcessing, headers.Timestamp) {
		p.logger.Warn("refusing job state change on terminal job",
			zap.String("job_id", job.JobID.String()),
			zap.String("job_state", string(job.JobState)),
		)
		return nil
	}
	metrics.JobStateTransitions.WithLabelValues(string(model.JobFailedProcessing)).Inc()
	return repos.SyncJobs().Save(ctx, job)
}

func (p *TransactionStateProcessor) updateTransaction(ctx context.Context, repos store.Repositories, headers broker.CommonHeaders) error {
	if headers.TransactionID == nil {
		return nil
	}

	transaction, err := repos.Transactions().FindByTransactionID(ctx, *headers.TransactionID)
	if errors.Is(err, store.ErrNotFound) {
		// The NEW event has not been observed; drop the update. The
		// counter makes the loss visible to operators.
		metrics.StateEventsDropped.Inc()
		p.logger.Debug("dropping state update for unknown transaction",
			zap.String("transaction_id", headers.TransactionID.String()),
			zap.String("state", string(headers.TransactionState)),
		)
		return nil
	}
	if err != nil {
		return err
	}

	if !transaction.SetStateWithTimestamp(headers.TransactionState, headers.Timestamp) {
		p.logger.Debug("ignoring non-monotone transaction state update",
			zap.String("transaction_id", transaction.TransactionID.String()),
			zap.String("from", string(transaction.State)),
			zap.String("to", string(headers.TransactionState)),
		)
		return nil
	}
	return repos.Transactions().Save(ctx, transaction)
}

// ensureSyncJob makes sure the referenced SyncJob row exists. The check
// and insert are serialized in-process; a cross-process race surfaces as a
// unique-key violation and means another writer got there first.
func (p *TransactionStateProcessor) ensureSyncJob(ctx context.Context, repos store.Repositories, headers broker.CommonHeaders) error {
	jobID := *headers.JobID

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.syncJobCache[jobID]; ok {
		return nil
	}

	job, err := repos.SyncJobs().FindByJobID(ctx, jobID)
	if err == nil {
		p.syncJobCache[jobID] = job
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	created := &model.SyncJob{
		JobID:     jobID,
		JobType:   headers.JobType,
		JobState:  model.JobNew,
		CreatedAt: headers.Timestamp,
		UpdatedAt: headers.Timestamp,
	}
	err = repos.SyncJobs().Save(ctx, created)
	if errors.Is(err, store.ErrDuplicateKey) {
		p.logger.Debug("sync job created concurrently", zap.String("job_id", jobID.String()))
		return nil
	}
	return err
}
