package model

import (
	"time"

	"gorm.io/gorm"
)

// JobRecord is the persisted terminal view of a job.
type JobRecord struct {
	gorm.Model       `json:"-"`
	JobID            string    `gorm:"uniqueIndex;not null" json:"job_id"`
	OwnerID          string    `gorm:"index;not null" json:"owner_id"`
	Kind             Kind      `gorm:"not null" json:"kind"`
	State            JobState  `gorm:"not null" json:"state"`
	ItemsTotal       int       `gorm:"not null" json:"items_total"`
	ItemsCompleted   int       `gorm:"not null" json:"items_completed"`
	ErrorCount       int       `gorm:"not null" json:"error_count"`
	BytesTransferred int64     `gorm:"not null" json:"bytes_transferred"`
	FatalError       string    `json:"fatal_error,omitempty"`
	Errors           string    `gorm:"type:text" json:"-"`
	StartedAt        time.Time `gorm:"not null" json:"started_at"`
	FinishedAt       time.Time `gorm:"not null" json:"finished_at"`
}
