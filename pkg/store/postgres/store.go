package postgres

import (
	"context"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/lwgs/searchindex-client/pkg/config"
	"github.com/lwgs/searchindex-client/pkg/model"
	"github.com/lwgs/searchindex-client/pkg/store"
)

type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

func NewStore(cfg *config.DatabaseConfig) (*Store, error) {
	gormConfig := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)

	return &Store{db: db}, nil
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(
		&model.Setting{},
		&model.Transaction{},
		&model.SyncJob{},
		&model.SedexMessage{},
	)
}

func (s *Store) Settings() store.SettingRepository {
	return &SettingRepository{db: s.db}
}

func (s *Store) Transactions() store.TransactionRepository {
	return &TransactionRepository{db: s.db}
}

func (s *Store) SyncJobs() store.SyncJobRepository {
	return &SyncJobRepository{db: s.db}
}

func (s *Store) SedexMessages() store.SedexMessageRepository {
	return &SedexMessageRepository{db: s.db}
}

// InTransaction binds a fresh repository set to one database transaction.
func (s *Store) InTransaction(ctx context.Context, fn func(store.Repositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&txRepositories{db: tx})
	})
}

type txRepositories struct {
	db *gorm.DB
}

func (r *txRepositories) Settings() store.SettingRepository {
	return &SettingRepository{db: r.db}
}

func (r *txRepositories) Transactions() store.TransactionRepository {
	return &TransactionRepository{db: r.db}
}

func (r *txRepositories) SyncJobs() store.SyncJobRepository {
	return &SyncJobRepository{db: r.db}
}

func (r *txRepositories) SedexMessages() store.SedexMessageRepository {
	return &SedexMessageRepository{db: r.db}
}
