package model

import (
	"time"

	"github.com/google/uuid"
)

// SyncJob is one full-synchronization cycle. COMPLETED and FAILED are
// terminal; FAILED_PROCESSING marks a job whose transactions failed during
// processing and is escalated to FAILED only by the sedex message state
// processor.
type SyncJob struct {
	ID        uint      `gorm:"primaryKey"`
	JobID     uuid.UUID `gorm:"type:uuid;uniqueIndex;not null"`
	JobType   JobType   `gorm:"type:varchar(16);not null"`
	JobState  JobState  `gorm:"type:varchar(32);not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (SyncJob) TableName() string {
	return "sync_jobs"
}

// SetStateWithTimestamp applies the new state and update time. Terminal
// states are sinks; the attempt is refused once the job is COMPLETED or
// FAILED.
func (j *SyncJob) SetStateWithTimestamp(state JobState, ts time.Time) bool {
	if j.JobState.Terminal() {
		return false
	}
	j.JobState = state
	j.UpdatedAt = ts
	return true
}
