package model

import (
	"time"

	"github.com/google/uuid"
)

// Transaction tracks one admitted person-data record across the pipeline.
type Transaction struct {
	ID            uint             `gorm:"primaryKey"`
	TransactionID uuid.UUID        `gorm:"type:uuid;uniqueIndex;not null"`
	JobID         *uuid.UUID       `gorm:"type:uuid;index"`
	State         TransactionState `gorm:"type:varchar(32);not null"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (Transaction) TableName() string {
	return "transactions"
}

var transactionStateRank = map[TransactionState]int{
	TransactionNew:       0,
	TransactionProcessed: 1,
	TransactionSent:      2,
}

// SetStateWithTimestamp applies the new state and update time. Transitions
// are monotone: FAILED is a terminal sink reachable from any non-terminal
// state, all other states only advance. Returns false when the transition
// is not allowed.
func (t *Transaction) SetStateWithTimestamp(state TransactionState, ts time.Time) bool {
	if t.State == TransactionFailed {
		return false
	}
	if state == TransactionFailed {
		t.State = state
		t.UpdatedAt = ts
		return true
	}
	if transactionStateRank[state] < transactionStateRank[t.State] {
		return false
	}
	t.State = state
	t.UpdatedAt = ts
	return true
}
