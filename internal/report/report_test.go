package report

import (
	"reflect"
	"streamjobs/internal/model"
	"testing"
	"time"
)

func runningSnapshot() model.JobSnapshot {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	eta := 90 * time.Second

	return model.JobSnapshot{
		JobID:              "job-1",
		OwnerID:            "owner-1",
		Kind:               model.KindMigration,
		State:              model.JobStateRunning,
		Phase:              model.PhaseMigrating,
		ItemsTotal:         3,
		ItemsCompleted:     1,
		BytesTransferred:   2048,
		StartedAt:          started,
		UpdatedAt:          started.Add(42 * time.Second),
		Errors:             []model.ItemError{{ItemRef: "/a.mp4", Message: "550"}},
		CurrentItemLabel:   "b.mp4",
		EstimatedRemaining: &eta,
	}
}

func TestProjectRunning(t *testing.T) {
	resp := Project(runningSnapshot())

	if resp.Status != "migrating" || resp.State != model.JobStateRunning {
		t.Errorf("unexpected status %q/%q", resp.Status, resp.State)
	}
	if resp.Progress == nil || *resp.Progress != 33 {
		t.Errorf("expected progress 33, got %v", resp.Progress)
	}
	if resp.Indeterminate {
		t.Error("expected determinate progress")
	}
	if resp.Uptime != 42 {
		t.Errorf("expected uptime 42, got %d", resp.Uptime)
	}
	if resp.FinalSize != 2048 {
		t.Errorf("expected final size 2048, got %d", resp.FinalSize)
	}
	if resp.EstimatedRemaining == nil || *resp.EstimatedRemaining != 1.5 {
		t.Errorf("expected 1.5 minutes remaining, got %v", resp.EstimatedRemaining)
	}
	if resp.TotalSize != nil {
		t.Error("unknown total size should be omitted")
	}
	if len(resp.Errors) != 1 || resp.CurrentItem != "b.mp4" {
		t.Errorf("unexpected errors/current item: %+v", resp)
	}
}

func TestProjectIsReadIdempotent(t *testing.T) {
	snap := runningSnapshot()

	first := Project(snap)
	time.Sleep(10 * time.Millisecond)
	second := Project(snap)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("projection changed without progress:\n%+v\n%+v", first, second)
	}
}

func TestProjectDiscovering(t *testing.T) {
	snap := runningSnapshot()
	snap.Discovering = true
	snap.Phase = model.PhaseDiscovering

	resp := Project(snap)
	if resp.Progress != nil || !resp.Indeterminate {
		t.Errorf("expected indeterminate progress, got %v/%v", resp.Progress, resp.Indeterminate)
	}
}

func TestProjectZeroItems(t *testing.T) {
	finished := time.Date(2026, 3, 1, 10, 0, 5, 0, time.UTC)
	snap := model.JobSnapshot{
		Kind:       model.KindMigration,
		State:      model.JobStateCompleted,
		StartedAt:  finished.Add(-5 * time.Second),
		UpdatedAt:  finished,
		FinishedAt: &finished,
	}

	resp := Project(snap)
	if resp.Progress == nil || *resp.Progress != 100 {
		t.Errorf("expected progress 100, got %v", resp.Progress)
	}
	if resp.Uptime != 5 {
		t.Errorf("expected uptime 5, got %d", resp.Uptime)
	}
	if resp.Errors == nil {
		t.Error("errors should be an empty list, not null")
	}
}

func TestStatusToken(t *testing.T) {
	tests := []struct {
		kind  model.Kind
		state model.JobState
		phase model.Phase
		want  string
	}{
		{model.KindMigration, model.JobStateIdle, model.PhaseNone, "idle"},
		{model.KindMigration, model.JobStateRunning, model.PhaseDiscovering, "migrating"},
		{model.KindMigration, model.JobStateCancelled, model.PhaseNone, "cancelled"},
		{model.KindDownload, model.JobStateRunning, model.PhaseDownloading, "downloading"},
		{model.KindDownload, model.JobStateRunning, model.PhaseUploading, "uploading"},
		{model.KindDownload, model.JobStateCompleted, model.PhaseNone, "completed"},
		{model.KindConversion, model.JobStateIdle, model.PhaseNone, "nao_iniciada"},
		{model.KindConversion, model.JobStateRunning, model.PhaseConverting, "em_andamento"},
		{model.KindConversion, model.JobStateCompleted, model.PhaseNone, "concluida"},
		{model.KindConversion, model.JobStateError, model.PhaseNone, "erro"},
		{model.KindConversion, model.JobStateCancelled, model.PhaseNone, "cancelada"},
	}

	for _, tt := range tests {
		if got := StatusToken(tt.kind, tt.state, tt.phase); got != tt.want {
			t.Errorf("StatusToken(%s, %s, %s) = %q, want %q", tt.kind, tt.state, tt.phase, got, tt.want)
		}
	}
}

func TestIdle(t *testing.T) {
	resp := Idle(model.KindConversion)
	if resp.Status != "nao_iniciada" || resp.State != model.JobStateIdle || resp.Progress != nil {
		t.Errorf("unexpected idle payload: %+v", resp)
	}
}
