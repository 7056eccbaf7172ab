package repository

import (
	"encoding/json"
	"fmt"
	"streamjobs/internal/db"
	"streamjobs/internal/model"
	"time"

	"gorm.io/gorm/clause"
)

type JobRepository struct{}

func NewJobRepository() *JobRepository {
	return &JobRepository{}
}

// Save stores the terminal snapshot of a job. Saving the same job twice
// overwrites the earlier row.
func (r *JobRepository) Save(snap model.JobSnapshot) error {
	if !snap.State.Terminal() {
		return fmt.Errorf("job %s is not terminal: %s", snap.JobID, snap.State)
	}

	errs, err := json.Marshal(snap.Errors)
	if err != nil {
		return fmt.Errorf("failed to encode errors: %w", err)
	}

	finishedAt := time.Now()
	if snap.FinishedAt != nil {
		finishedAt = *snap.FinishedAt
	}

	record := model.JobRecord{
		JobID:            snap.JobID,
		OwnerID:          snap.OwnerID,
		Kind:             snap.Kind,
		State:            snap.State,
		ItemsTotal:       snap.ItemsTotal,
		ItemsCompleted:   snap.ItemsCompleted,
		ErrorCount:       len(snap.Errors),
		BytesTransferred: snap.BytesTransferred,
		FatalError:       snap.FatalError,
		Errors:           string(errs),
		StartedAt:        snap.StartedAt,
		FinishedAt:       finishedAt,
	}

	return db.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_id"}},
		UpdateAll: true,
	}).Create(&record).Error
}

func (r *JobRepository) GetByJobID(jobID string) (model.JobRecord, error) {
	var record model.JobRecord
	return record, db.DB.Where("job_id = ?", jobID).First(&record).Error
}

func (r *JobRepository) GetRecent(ownerID string, limit int) ([]model.JobRecord, error) {
	var records []model.JobRecord
	result := db.DB.
		Where("owner_id = ?", ownerID).
		Order("finished_at desc").
		Limit(limit).
		Find(&records)

	return records, result.Error
}

type Stats struct {
	Total     int64 `json:"total"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Cancelled int64 `json:"cancelled"`
}

func (r *JobRepository) GetStats(ownerID string) (Stats, error) {
	var rows []struct {
		State model.JobState
		Count int64
	}

	if err := db.DB.Model(&model.JobRecord{}).
		Select("state, count(*) as count").
		Where("owner_id = ?", ownerID).
		Group("state").
		Scan(&rows).Error; err != nil {
		return Stats{}, err
	}

	var stats Stats
	for _, row := range rows {
		stats.Total += row.Count
		switch row.State {
		case model.JobStateCompleted:
			stats.Completed = row.Count
		case model.JobStateError:
			stats.Failed = row.Count
		case model.JobStateCancelled:
			stats.Cancelled = row.Count
		}
	}

	return stats, nil
}

// DecodeErrors returns the item errors stored with a record.
func DecodeErrors(record model.JobRecord) []model.ItemError {
	var errs []model.ItemError
	if record.Errors == "" {
		return errs
	}

	_ = json.Unmarshal([]byte(record.Errors), &errs)
	return errs
}
