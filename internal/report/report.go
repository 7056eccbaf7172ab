// Package report turns job snapshots into the payload pollers receive.
package report

import (
	"slices"
	"streamjobs/internal/model"
	"time"
)

var vocabularies = map[model.Kind]map[model.JobState]string{
	model.KindMigration: {
		model.JobStateIdle:      "idle",
		model.JobStateRunning:   "migrating",
		model.JobStateCompleted: "completed",
		model.JobStateError:     "error",
		model.JobStateCancelled: "cancelled",
	},
	model.KindDownload: {
		model.JobStateIdle:      "idle",
		model.JobStateRunning:   "downloading",
		model.JobStateCompleted: "completed",
		model.JobStateError:     "error",
		model.JobStateCancelled: "cancelled",
	},
	model.KindConversion: {
		model.JobStateIdle:      "nao_iniciada",
		model.JobStateRunning:   "em_andamento",
		model.JobStateCompleted: "concluida",
		model.JobStateError:     "erro",
		model.JobStateCancelled: "cancelada",
	},
}

// StatusToken renders state in the vocabulary the kind's UI expects.
func StatusToken(kind model.Kind, state model.JobState, phase model.Phase) string {
	if kind == model.KindDownload && state == model.JobStateRunning && phase == model.PhaseUploading {
		return "uploading"
	}

	if token, ok := vocabularies[kind][state]; ok {
		return token
	}

	return string(state)
}

// Idle is the status of a kind that has never run for the owner.
func Idle(kind model.Kind) model.StatusResponse {
	return model.StatusResponse{
		Kind:   kind,
		Status: StatusToken(kind, model.JobStateIdle, model.PhaseNone),
		State:  model.JobStateIdle,
		Errors: []model.ItemError{},
	}
}

// Project is a pure function of snap: it never looks at the clock, so two
// calls without executor progress in between give the same payload.
func Project(snap model.JobSnapshot) model.StatusResponse {
	resp := model.StatusResponse{
		JobID:           snap.JobID,
		Kind:            snap.Kind,
		Status:          StatusToken(snap.Kind, snap.State, snap.Phase),
		State:           snap.State,
		Phase:           snap.Phase,
		Indeterminate:   snap.Discovering,
		Completed:       snap.ItemsCompleted,
		Total:           snap.ItemsTotal,
		Errors:          slices.Clone(snap.Errors),
		Error:           snap.FatalError,
		FinalSize:       snap.BytesTransferred,
		CurrentItem:     snap.CurrentItemLabel,
		CancelRequested: snap.CancelRequested,
		FinishedAt:      snap.FinishedAt,
	}

	if resp.Errors == nil {
		resp.Errors = []model.ItemError{}
	}

	if !snap.StartedAt.IsZero() {
		resp.StartedAt = new(snap.StartedAt)
		resp.Uptime = int64(uptimeEnd(snap).Sub(snap.StartedAt) / time.Second)
	}

	if !snap.Discovering {
		resp.Progress = new(percent(snap.ItemsCompleted, snap.ItemsTotal))
	}

	if snap.BytesTotal != nil {
		resp.TotalSize = new(*snap.BytesTotal)
	}

	if snap.ItemPercent != nil {
		resp.ItemProgress = new(*snap.ItemPercent)
	}

	if snap.EstimatedRemaining != nil {
		resp.EstimatedRemaining = new(snap.EstimatedRemaining.Minutes())
	}

	return resp
}

func uptimeEnd(snap model.JobSnapshot) time.Time {
	if snap.FinishedAt != nil {
		return *snap.FinishedAt
	}

	return snap.UpdatedAt
}

func percent(done, total int) int {
	if total <= 0 {
		return 100
	}

	return min(100*done/total, 100)
}
