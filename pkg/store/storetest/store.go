// Package storetest provides an in-memory store.Store for package tests.
package storetest

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/lwgs/searchindex-client/pkg/model"
	"github.com/lwgs/searchindex-client/pkg/store"
)

// Store keeps all entities in maps and hands out copies, so tests observe
// the same stale-read behavior a real repository would show.
type Store struct {
	mu           sync.Mutex
	nextID       uint
	settings     map[string]model.Setting
	transactions map[uuid.UUID]model.Transaction
	jobs         map[uuid.UUID]model.SyncJob
	messages     map[uuid.UUID]model.SedexMessage
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		settings:     make(map[string]model.Setting),
		transactions: make(map[uuid.UUID]model.Transaction),
		jobs:         make(map[uuid.UUID]model.SyncJob),
		messages:     make(map[uuid.UUID]model.SedexMessage),
	}
}

func (s *Store) Settings() store.SettingRepository           { return settingRepo{s} }
func (s *Store) Transactions() store.TransactionRepository   { return transactionRepo{s} }
func (s *Store) SyncJobs() store.SyncJobRepository           { return syncJobRepo{s} }
func (s *Store) SedexMessages() store.SedexMessageRepository { return sedexMessageRepo{s} }

func (s *Store) InTransaction(ctx context.Context, fn func(store.Repositories) error) error {
	return fn(s)
}

func (s *Store) allocateID() uint {
	s.nextID++
	return s.nextID
}

// PutSyncJob seeds a job row directly.
func (s *Store) PutSyncJob(job model.SyncJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.ID == 0 {
		job.ID = s.allocateID()
	}
	s.jobs[job.JobID] = job
}

// PutTransaction seeds a transaction row directly.
func (s *Store) PutTransaction(transaction model.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if transaction.ID == 0 {
		transaction.ID = s.allocateID()
	}
	s.transactions[transaction.TransactionID] = transaction
}

// PutSedexMessage seeds a sedex message row directly.
func (s *Store) PutSedexMessage(message model.SedexMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if message.ID == 0 {
		message.ID = s.allocateID()
	}
	s.messages[message.MessageID] = message
}

// GetSyncJob reads a job row directly.
func (s *Store) GetSyncJob(jobID uuid.UUID) (model.SyncJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	return job, ok
}

// GetTransaction reads a transaction row directly.
func (s *Store) GetTransaction(transactionID uuid.UUID) (model.Transaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	transaction, ok := s.transactions[transactionID]
	return transaction, ok
}

// GetSedexMessage reads a sedex message row directly.
func (s *Store) GetSedexMessage(messageID uuid.UUID) (model.SedexMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	message, ok := s.messages[messageID]
	return message, ok
}

type settingRepo struct{ s *Store }

func (r settingRepo) FindByKey(ctx context.Context, key string) (*model.Setting, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	setting, ok := r.s.settings[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := setting
	return &copied, nil
}

func (r settingRepo) Save(ctx context.Context, setting *model.Setting) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if setting.ID == 0 {
		if _, exists := r.s.settings[setting.Key]; exists {
			return store.ErrDuplicateKey
		}
		setting.ID = r.s.allocateID()
	}
	r.s.settings[setting.Key] = *setting
	return nil
}

type transactionRepo struct{ s *Store }

func (r transactionRepo) FindByTransactionID(ctx context.Context, transactionID uuid.UUID) (*model.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	transaction, ok := r.s.transactions[transactionID]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := transaction
	return &copied, nil
}

func (r transactionRepo) Save(ctx context.Context, transaction *model.Transaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if transaction.ID == 0 {
		if _, exists := r.s.transactions[transaction.TransactionID]; exists {
			return store.ErrDuplicateKey
		}
		transaction.ID = r.s.allocateID()
	}
	r.s.transactions[transaction.TransactionID] = *transaction
	return nil
}

type syncJobRepo struct{ s *Store }

func (r syncJobRepo) FindByJobID(ctx context.Context, jobID uuid.UUID) (*model.SyncJob, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	job, ok := r.s.jobs[jobID]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := job
	return &copied, nil
}

func (r syncJobRepo) Save(ctx context.Context, job *model.SyncJob) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if job.ID == 0 {
		if _, exists := r.s.jobs[job.JobID]; exists {
			return store.ErrDuplicateKey
		}
		job.ID = r.s.allocateID()
	}
	r.s.jobs[job.JobID] = *job
	return nil
}

type sedexMessageRepo struct{ s *Store }

func (r sedexMessageRepo) FindByMessageID(ctx context.Context, messageID uuid.UUID) (*model.SedexMessage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	message, ok := r.s.messages[messageID]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := message
	return &copied, nil
}

func (r sedexMessageRepo) FindAllByJobID(ctx context.Context, jobID uuid.UUID) ([]model.SedexMessage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var messages []model.SedexMessage
	for _, message := range r.s.messages {
		if message.JobID != nil && *message.JobID == jobID {
			messages = append(messages, message)
		}
	}
	return messages, nil
}

func (r sedexMessageRepo) Save(ctx context.Context, message *model.SedexMessage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if message.ID == 0 {
		if _, exists := r.s.messages[message.MessageID]; exists {
			return store.ErrDuplicateKey
		}
		message.ID = r.s.allocateID()
	}
	r.s.messages[message.MessageID] = *message
	return nil
}
