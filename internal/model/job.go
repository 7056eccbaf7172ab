package model

import (
	"fmt"
	"time"
)

type Kind string

const (
	KindMigration  Kind = "migration"
	KindDownload   Kind = "download"
	KindConversion Kind = "conversion"
)

var Kinds = []Kind{KindMigration, KindDownload, KindConversion}

func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}

	return "", fmt.Errorf("unknown job kind: %q", s)
}

type JobState string

const (
	JobStateIdle      JobState = "idle"
	JobStateRunning   JobState = "running"
	JobStateCompleted JobState = "completed"
	JobStateError     JobState = "error"
	JobStateCancelled JobState = "cancelled"
)

func (s JobState) Terminal() bool {
	return s == JobStateCompleted || s == JobStateError || s == JobStateCancelled
}

// Phase labels a step inside the running state. It never drives transitions.
type Phase string

const (
	PhaseNone        Phase = ""
	PhaseDiscovering Phase = "discovering"
	PhaseMigrating   Phase = "migrating"
	PhaseDownloading Phase = "downloading"
	PhaseUploading   Phase = "uploading"
	PhaseConverting  Phase = "converting"
)

type WorkItem struct {
	Ref           string `json:"ref"`
	Label         string `json:"label"`
	Destination   string `json:"destination"`
	EstimatedSize int64  `json:"estimated_size,omitempty"`
}

func (w WorkItem) DisplayName() string {
	if w.Label != "" {
		return w.Label
	}

	return w.Ref
}

type ItemError struct {
	ItemRef string `json:"item"`
	Message string `json:"message"`
}

type JobSnapshot struct {
	JobID              string         `json:"job_id"`
	OwnerID            string         `json:"owner_id"`
	Kind               Kind           `json:"kind"`
	State              JobState       `json:"state"`
	Phase              Phase          `json:"phase,omitempty"`
	Discovering        bool           `json:"discovering"`
	ItemsTotal         int            `json:"items_total"`
	ItemsCompleted     int            `json:"items_completed"`
	BytesTotal         *int64         `json:"bytes_total,omitempty"`
	BytesTransferred   int64          `json:"bytes_transferred"`
	StartedAt          time.Time      `json:"started_at"`
	FinishedAt         *time.Time     `json:"finished_at,omitempty"`
	UpdatedAt          time.Time      `json:"updated_at"`
	Errors             []ItemError    `json:"errors"`
	FatalError         string         `json:"fatal_error,omitempty"`
	CancelRequested    bool           `json:"cancel_requested"`
	CurrentItemLabel   string         `json:"current_item,omitempty"`
	ItemPercent        *int           `json:"item_percent,omitempty"`
	EstimatedRemaining *time.Duration `json:"estimated_remaining,omitempty"`
}
