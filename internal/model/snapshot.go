package model

import "time"

// StatusResponse is what pollers of /jobs/:kind/status receive.
type StatusResponse struct {
	JobID              string      `json:"job_id,omitempty"`
	Kind               Kind        `json:"kind"`
	Status             string      `json:"status"`
	State              JobState    `json:"state"`
	Phase              Phase       `json:"phase,omitempty"`
	Progress           *int        `json:"progress"`
	Indeterminate      bool        `json:"indeterminate"`
	Completed          int         `json:"completed"`
	Total              int         `json:"total"`
	Errors             []ItemError `json:"errors"`
	Error              string      `json:"error,omitempty"`
	Uptime             int64       `json:"uptime"`
	FinalSize          int64       `json:"final_size"`
	TotalSize          *int64      `json:"total_size,omitempty"`
	EstimatedRemaining *float64    `json:"estimated_remaining,omitempty"`
	CurrentItem        string      `json:"current_item,omitempty"`
	ItemProgress       *int        `json:"item_progress,omitempty"`
	CancelRequested    bool        `json:"cancel_requested"`
	StartedAt          *time.Time  `json:"started_at,omitempty"`
	FinishedAt         *time.Time  `json:"finished_at,omitempty"`
}
