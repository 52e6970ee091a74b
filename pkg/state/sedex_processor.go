package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/lwgs/searchindex-client/pkg/broker"
	"github.com/lwgs/searchindex-client/pkg/metrics"
	"github.com/lwgs/searchindex-client/pkg/model"
	"github.com/lwgs/searchindex-client/pkg/store"
)

// ErrSyncJobNotFound marks a sedex-state event that cannot be reconciled
// with any persisted job; the delivery is rejected to the dead-letter
// policy.
var ErrSyncJobNotFound = errors.New("state: sync job not found")

// SedexMessageStateProcessor consumes the sedex-state queue and owns the
// terminal COMPLETED/FAILED decision of SyncJob rows. The decision is a
// pure function of the currently persisted SedexMessage set, so it is safe
// to recompute on every event regardless of ordering.
type SedexMessageStateProcessor struct {
	store  store.Store
	logger *zap.Logger
}

func NewSedexMessageStateProcessor(st store.Store, logger *zap.Logger) *SedexMessageStateProcessor {
	return &SedexMessageStateProcessor{store: st, logger: logger}
}

func (p *SedexMessageStateProcessor) Handle(ctx context.Context, delivery amqp.Delivery) error {
	headers := broker.ParseHeaders(delivery.Headers)

	err := p.store.InTransaction(ctx, func(repos store.Repositories) error {
		return p.reconcileJob(ctx, repos, headers)
	})
	if errors.Is(err, ErrSyncJobNotFound) {
		return fmt.Errorf("%w: %v", broker.ErrReject, err)
	}
	return err
}

func (p *SedexMessageStateProcessor) reconcileJob(ctx context.Context, repos store.Repositories, headers broker.CommonHeaders) error {
	if headers.JobID == nil {
		return fmt.Errorf("%w: event carries no job id", ErrSyncJobNotFound)
	}
	jobID := *headers.JobID

	job, err := repos.SyncJobs().FindByJobID(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrSyncJobNotFound, jobID)
	}
	if err != nil {
		return err
	}

	if job.JobState.Terminal() {
		p.logger.Warn("ignoring sedex state event for terminal job",
			zap.String("job_id", jobID.String()),
			zap.String("job_state", string(job.JobState)),
		)
		return nil
	}

	messages, err := repos.SedexMessages().FindAllByJobID(ctx, jobID)
	if err != nil {
		return err
	}

	next, changed := nextJobState(messages)
	if !changed {
		return nil
	}

	if !job.SetStateWithTimestamp(next, time.Now()) {
		return nil
	}
	metrics.JobStateTransitions.WithLabelValues(string(next)).Inc()
	p.logger.Info("sync job state decided",
		zap.String("job_id", jobID.String()),
		zap.String("state", string(next)),
		zap.Int("messages", len(messages)),
	)
	return repos.SyncJobs().Save(ctx, job)
}

// nextJobState: COMPLETED requires a non-empty, unanimously SUCCESSFUL
// message set; a single FAILED message fails the job; anything else leaves
// the job untouched.
func nextJobState(messages []model.SedexMessage) (model.JobState, bool) {
	if len(messages) == 0 {
		return "", false
	}

	allSuccessful := true
	anyFailed := false
	for _, message := range messages {
		if message.State != model.SedexMessageSuccessful {
			allSuccessful = false
		}
		if message.State == model.SedexMessageFailed {
			anyFailed = true
		}
	}

	switch {
	case allSuccessful:
		return model.JobCompleted, true
	case anyFailed:
		return model.JobFailed, true
	default:
		return "", false
	}
}
