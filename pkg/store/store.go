package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/lwgs/searchindex-client/pkg/model"
)

var (
	// ErrNotFound is returned when a lookup by natural key matches no row.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicateKey is returned when a save violates a unique constraint.
	// Consumers treat it as "another writer got there first".
	ErrDuplicateKey = errors.New("store: duplicate key")
)

type SettingRepository interface {
	FindByKey(ctx context.Context, key string) (*model.Setting, error)
	Save(ctx context.Context, setting *model.Setting) error
}

type TransactionRepository interface {
	FindByTransactionID(ctx context.Context, transactionID uuid.UUID) (*model.Transaction, error)
	Save(ctx context.Context, transaction *model.Transaction) error
}

type SyncJobRepository interface {
	FindByJobID(ctx context.Context, jobID uuid.UUID) (*model.SyncJob, error)
	Save(ctx context.Context, job *model.SyncJob) error
}

type SedexMessageRepository interface {
	FindByMessageID(ctx context.Context, messageID uuid.UUID) (*model.SedexMessage, error)
	FindAllByJobID(ctx context.Context, jobID uuid.UUID) ([]model.SedexMessage, error)
	Save(ctx context.Context, message *model.SedexMessage) error
}

// Repositories bundles the per-entity repositories bound to one database
// handle, either the root connection or an open transaction.
type Repositories interface {
	Settings() SettingRepository
	Transactions() TransactionRepository
	SyncJobs() SyncJobRepository
	SedexMessages() SedexMessageRepository
}

// Store is the durable state surface. InTransaction runs fn inside a single
// database transaction; the state processors use one transaction per
// consumed message and acknowledge only after commit.
type Store interface {
	Repositories
	InTransaction(ctx context.Context, fn func(Repositories) error) error
}
