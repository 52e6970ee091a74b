package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lwgs/searchindex-client/pkg/model"
	"github.com/lwgs/searchindex-client/pkg/store"
)

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return store.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return store.ErrDuplicateKey
	default:
		return err
	}
}

type SettingRepository struct {
	db *gorm.DB
}

func (r *SettingRepository) FindByKey(ctx context.Context, key string) (*model.Setting, error) {
	var setting model.Setting
	err := r.db.WithContext(ctx).First(&setting, "key = ?", key).Error
	if err != nil {
		return nil, translate(err)
	}
	return &setting, nil
}

func (r *SettingRepository) Save(ctx context.Context, setting *model.Setting) error {
	if setting.ID == 0 {
		return translate(r.db.WithContext(ctx).Create(setting).Error)
	}
	return translate(r.db.WithContext(ctx).Save(setting).Error)
}

type TransactionRepository struct {
	db *gorm.DB
}

func (r *TransactionRepository) FindByTransactionID(ctx context.Context, transactionID uuid.UUID) (*model.Transaction, error) {
	var transaction model.Transaction
	err := r.db.WithContext(ctx).First(&transaction, "transaction_id = ?", transactionID).Error
	if err != nil {
		return nil, translate(err)
	}
	return &transaction, nil
}

func (r *TransactionRepository) Save(ctx context.Context, transaction *model.Transaction) error {
	if transaction.ID == 0 {
		return translate(r.db.WithContext(ctx).Create(transaction).Error)
	}
	return translate(r.db.WithContext(ctx).Save(transaction).Error)
}

type SyncJobRepository struct {
	db *gorm.DB
}

func (r *SyncJobRepository) FindByJobID(ctx context.Context, jobID uuid.UUID) (*model.SyncJob, error) {
	var job model.SyncJob
	err := r.db.WithContext(ctx).First(&job, "job_id = ?", jobID).Error
	if err != nil {
		return nil, translate(err)
	}
	return &job, nil
}

func (r *SyncJobRepository) Save(ctx context.Context, job *model.SyncJob) error {
	if job.ID == 0 {
		return translate(r.db.WithContext(ctx).Create(job).Error)
	}
	return translate(r.db.WithContext(ctx).Save(job).Error)
}

type SedexMessageRepository struct {
	db *gorm.DB
}

func (r *SedexMessageRepository) FindByMessageID(ctx context.Context, messageID uuid.UUID) (*model.SedexMessage, error) {
	var message model.SedexMessage
	err := r.db.WithContext(ctx).First(&message, "message_id = ?", messageID).Error
	if err != nil {
		return nil, translate(err)
	}
	return &message, nil
}

func (r *SedexMessageRepository) FindAllByJobID(ctx context.Context, jobID uuid.UUID) ([]model.SedexMessage, error) {
	var messages []model.SedexMessage
	err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Find(&messages).Error
	return messages, translate(err)
}

func (r *SedexMessageRepository) Save(ctx context.Context, message *model.SedexMessage) error {
	if message.ID == 0 {
		return translate(r.db.WithContext(ctx).Create(message).Error)
	}
	return translate(r.db.WithContext(ctx).Save(message).Error)
}
