package model

import "time"

// Setting is a persisted key/value pair surviving restarts. The full-sync
// state manager stores its state word, job id and counters here.
type Setting struct {
	ID        uint   `gorm:"primaryKey"`
	Key       string `gorm:"uniqueIndex;not null"`
	Value     string `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Setting) TableName() string {
	return "settings"
}
