package model

import (
	"time"

	"github.com/google/uuid"
)

// SedexMessage is one outbound transport message written by the batcher.
// The receipt relay moves it to SUCCESSFUL or FAILED when the transport
// confirms or rejects delivery.
type SedexMessage struct {
	ID        uint              `gorm:"primaryKey"`
	MessageID uuid.UUID         `gorm:"type:uuid;uniqueIndex;not null"`
	JobID     *uuid.UUID        `gorm:"type:uuid;index"`
	State     SedexMessageState `gorm:"type:varchar(32);not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (SedexMessage) TableName() string {
	return "sedex_messages"
}

func (m *SedexMessage) SetStateWithTimestamp(state SedexMessageState, ts time.Time) bool {
	if m.State.Terminal() {
		return false
	}
	m.State = state
	m.UpdatedAt = ts
	return true
}
