package state

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/lwgs/searchindex-client/pkg/broker"
	"github.com/lwgs/searchindex-client/pkg/model"
	"github.com/lwgs/searchindex-client/pkg/store/storetest"
)

func deliveryFor(headers broker.CommonHeaders) amqp.Delivery {
	var pub amqp.Publishing
	headers.Apply(&pub)
	return amqp.Delivery{
		Headers:       pub.Headers,
		CorrelationId: pub.CorrelationId,
	}
}

func transactionEvent(state model.TransactionState, transactionID uuid.UUID, jobID *uuid.UUID, ts time.Time) amqp.Delivery {
	return deliveryFor(broker.CommonHeaders{
		SenderID:         "S1",
		JobType:          model.JobTypeFull,
		JobID:            jobID,
		MessageCategory:  model.CategoryTransactionEvent,
		TransactionState: state,
		TransactionID:    &transactionID,
		Timestamp:        ts,
	})
}

func TestNewTransactionCreatesRowAndLazySyncJob(t *testing.T) {
	st := storetest.New()
	processor := NewTransactionStateProcessor(st, zap.NewNop())

	transactionID := uuid.New()
	jobID := uuid.New()
	ts := time.Now().Truncate(time.Millisecond)

	if err := processor.Handle(context.Background(), transactionEvent(model.TransactionNew, transactionID, &jobID, ts)); err != nil {
		t.Fatalf("Handle error: %v", err)
	}

	transaction, ok := st.GetTransaction(transactionID)
	if !ok {
		t.Fatalf("expected transaction row")
	}
	if transaction.State != model.TransactionNew {
		t.Fatalf("expected NEW state, got %q", transaction.State)
	}
	if transaction.JobID == nil || *transaction.JobID != jobID {
		t.Fatalf("expected job id %s, got %v", jobID, transaction.JobID)
	}

	job, ok := st.GetSyncJob(jobID)
	if !ok {
		t.Fatalf("expected lazily created sync job")
	}
	if job.JobState != model.JobNew || job.JobType != model.JobTypeFull {
		t.Fatalf("unexpected job row: %+v", job)
	}
}

func TestNewTransactionWithoutJobID(t *testing.T) {
	st := storetest.New()
	processor := NewTransactionStateProcessor(st, zap.NewNop())

	transactionID := uuid.New()
	event := deliveryFor(broker.CommonHeaders{
		SenderID:         "S1",
		JobType:          model.JobTypePartial,
		MessageCategory:  model.CategoryTransactionEvent,
		TransactionState: model.TransactionNew,
		TransactionID:    &transactionID,
		Timestamp:        time.Now(),
	})

	if err := processor.Handle(context.Background(), event); err != nil {
		t.Fatalf("Handle error: %v", err)
	}

	transaction, ok := st.GetTransaction(transactionID)
	if !ok {
		t.Fatalf("expected transaction row")
	}
	if transaction.JobID != nil {
		t.Fatalf("expected no job id on partial transaction")
	}
}

func TestDuplicateNewIsDropped(t *testing.T) {
	st := storetest.New()
	processor := NewTransactionStateProcessor(st, zap.NewNop())

	transactionID := uuid.New()
	ts := time.Now()

	if err := processor.Handle(context.Background(), transactionEvent(model.TransactionNew, transactionID, nil, ts)); err != nil {
		t.Fatalf("first Handle error: %v", err)
	}
	if err := processor.Handle(context.Background(), transactionEvent(model.TransactionProcessed, transactionID, nil, ts.Add(time.Second))); err != nil {
		t.Fatalf("update Handle error: %v", err)
	}
	// Redelivered NEW must not clobber the advanced row.
	if err := processor.Handle(context.Background(), transactionEvent(model.TransactionNew, transactionID, nil, ts)); err != nil {
		t.Fatalf("redelivered NEW Handle error: %v", err)
	}

	transaction, _ := st.GetTransaction(transactionID)
	if transaction.State != model.TransactionProcessed {
		t.Fatalf("expected PROCESSED to survive NEW redelivery, got %q", transaction.State)
	}
}

func TestFailedEscalatesFullJob(t *testing.T) {
	st := storetest.New()
	processor := NewTransactionStateProcessor(st, zap.NewNop())

	jobID := uuid.New()
	transactionID := uuid.New()
	ts := time.Now().Truncate(time.Millisecond)

	st.PutSyncJob(model.SyncJob{JobID: jobID, JobType: model.JobTypeFull, JobState: model.JobNew})
	st.PutTransaction(model.Transaction{TransactionID: transactionID, JobID: &jobID, State: model.TransactionNew})

	if err := processor.Handle(context.Background(), transactionEvent(model.TransactionFailed, transactionID, &jobID, ts)); err != nil {
		t.Fatalf("Handle error: %v", err)
	}

	transaction, _ := st.GetTransaction(transactionID)
	if transaction.State != model.TransactionFailed {
		t.Fatalf("expected FAILED transaction, got %q", transaction.State)
	}

	job, _ := st.GetSyncJob(jobID)
	if job.JobState != model.JobFailedProcessing {
		t.Fatalf("expected FAILED_PROCESSING job, got %q", job.JobState)
	}
}

func TestFailedDoesNotEscalateTerminalJob(t *testing.T) {
	st := storetest.New()
	processor := NewTransactionStateProcessor(st, zap.NewNop())

	jobID := uuid.New()
	transactionID := uuid.New()

	st.PutSyncJob(model.SyncJob{JobID: jobID, JobType: model.JobTypeFull, JobState: model.JobCompleted})
	st.PutTransaction(model.Transaction{TransactionID: transactionID, JobID: &jobID, State: model.TransactionSent})

	if err := processor.Handle(context.Background(), transactionEvent(model.TransactionFailed, transactionID, &jobID, time.Now())); err != nil {
		t.Fatalf("Handle error: %v", err)
	}

	job, _ := st.GetSyncJob(jobID)
	if job.JobState != model.JobCompleted {
		t.Fatalf("expected COMPLETED to stay, got %q", job.JobState)
	}
}

func TestUpdateForUnknownTransactionIsDropped(t *testing.T) {
	st := storetest.New()
	processor := NewTransactionStateProcessor(st, zap.NewNop())

	transactionID := uuid.New()
	if err := processor.Handle(context.Background(), transactionEvent(model.TransactionProcessed, transactionID, nil, time.Now())); err != nil {
		t.Fatalf("Handle error: %v", err)
	}

	if _, ok := st.GetTransaction(transactionID); ok {
		t.Fatalf("expected no transaction row for dropped update")
	}
}

func TestNonTransactionCategoryIgnored(t *testing.T) {
	st := storetest.New()
	processor := NewTransactionStateProcessor(st, zap.NewNop())

	jobID := uuid.New()
	event := deliveryFor(broker.CommonHeaders{
		JobID:           &jobID,
		MessageCategory: model.CategorySedexEvent,
		Timestamp:       time.Now(),
	})

	if err := processor.Handle(context.Background(), event); err != nil {
		t.Fatalf("Handle error: %v", err)
	}
	if _, ok := st.GetSyncJob(jobID); ok {
		t.Fatalf("expected no job row for foreign category")
	}
}

func TestSyncJobCreatedOncePerJob(t *testing.T) {
	st := storetest.New()
	processor := NewTransactionStateProcessor(st, zap.NewNop())

	jobID := uuid.New()
	ts := time.Now()

	for i := 0; i < 3; i++ {
		if err := processor.Handle(context.Background(), transactionEvent(model.TransactionNew, uuid.New(), &jobID, ts)); err != nil {
			t.Fatalf("Handle error: %v", err)
		}
	}

	job, ok := st.GetSyncJob(jobID)
	if !ok {
		t.Fatalf("expected sync job row")
	}
	if job.JobState != model.JobNew {
		t.Fatalf("expected NEW job state, got %q", job.JobState)
	}
}

func TestReplayProducesIdenticalRows(t *testing.T) {
	ts := time.Now().Truncate(time.Millisecond)
	jobID := uuid.New()
	first := uuid.New()
	second := uuid.New()

	events := []amqp.Delivery{
		transactionEvent(model.TransactionNew, first, &jobID, ts),
		transactionEvent(model.TransactionProcessed, first, &jobID, ts.Add(time.Second)),
		transactionEvent(model.TransactionNew, second, &jobID, ts),
		transactionEvent(model.TransactionSent, first, &jobID, ts.Add(2*time.Second)),
		transactionEvent(model.TransactionFailed, second, &jobID, ts.Add(3*time.Second)),
	}

	run := func(rounds int) (*storetest.Store, *TransactionStateProcessor) {
		st := storetest.New()
		processor := NewTransactionStateProcessor(st, zap.NewNop())
		for round := 0; round < rounds; round++ {
			for _, event := range events {
				if err := processor.Handle(context.Background(), event); err != nil {
					t.Fatalf("Handle error: %v", err)
				}
			}
		}
		return st, processor
	}

	once, _ := run(1)
	twice, _ := run(2)

	for _, transactionID := range []uuid.UUID{first, second} {
		a, okA := once.GetTransaction(transactionID)
		b, okB := twice.GetTransaction(transactionID)
		if !okA || !okB {
			t.Fatalf("expected transaction %s in both runs", transactionID)
		}
		if a.State != b.State || !a.UpdatedAt.Equal(b.UpdatedAt) {
			t.Fatalf("replay diverged for %s: %+v vs %+v", transactionID, a, b)
		}
	}

	jobA, _ := once.GetSyncJob(jobID)
	jobB, _ := twice.GetSyncJob(jobID)
	if jobA.JobState != jobB.JobState {
		t.Fatalf("replay diverged for job: %q vs %q", jobA.JobState, jobB.JobState)
	}
	if jobA.JobState != model.JobFailedProcessing {
		t.Fatalf("expected FAILED_PROCESSING after failed transaction, got %q", jobA.JobState)
	}
}
