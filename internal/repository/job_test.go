package repository

import (
	"path/filepath"
	"streamjobs/internal/db"
	"streamjobs/internal/model"
	"testing"
	"time"
)

func setupDB(t *testing.T) {
	t.Helper()
	if err := db.Init(filepath.Join(t.TempDir(), "test.db")); err != nil {
		t.Fatalf("db init failed: %v", err)
	}
}

func terminalSnapshot(id, owner string, state model.JobState, finished time.Time) model.JobSnapshot {
	return model.JobSnapshot{
		JobID:          id,
		OwnerID:        owner,
		Kind:           model.KindMigration,
		State:          state,
		ItemsTotal:     3,
		ItemsCompleted: 3,
		Errors: []model.ItemError{
			{ItemRef: "/videos/b.mp4", Message: "550 file unavailable"},
		},
		StartedAt:  finished.Add(-time.Minute),
		FinishedAt: &finished,
	}
}

func TestJobRepository_SaveAndGet(t *testing.T) {
	setupDB(t)
	repo := NewJobRepository()

	now := time.Now().UTC().Truncate(time.Second)
	if err := repo.Save(terminalSnapshot("job-1", "owner-a", model.JobStateCompleted, now)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	record, err := repo.GetByJobID("job-1")
	if err != nil {
		t.Fatalf("GetByJobID failed: %v", err)
	}

	if record.ErrorCount != 1 {
		t.Errorf("expected 1 error, got %d", record.ErrorCount)
	}

	errs := DecodeErrors(record)
	if len(errs) != 1 || errs[0].ItemRef != "/videos/b.mp4" {
		t.Errorf("unexpected decoded errors: %+v", errs)
	}
}

func TestJobRepository_SaveRejectsRunning(t *testing.T) {
	setupDB(t)
	repo := NewJobRepository()

	snap := terminalSnapshot("job-2", "owner-a", model.JobStateRunning, time.Now())
	if err := repo.Save(snap); err == nil {
		t.Fatal("expected error for non-terminal snapshot")
	}
}

func TestJobRepository_SaveTwiceOverwrites(t *testing.T) {
	setupDB(t)
	repo := NewJobRepository()

	now := time.Now().UTC()
	snap := terminalSnapshot("job-3", "owner-a", model.JobStateCompleted, now)
	if err := repo.Save(snap); err != nil {
		t.Fatal(err)
	}

	snap.State = model.JobStateCancelled
	if err := repo.Save(snap); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	records, err := repo.GetRecent("owner-a", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].State != model.JobStateCancelled {
		t.Errorf("expected overwritten state, got %s", records[0].State)
	}
}

func TestJobRepository_RecentAndStats(t *testing.T) {
	setupDB(t)
	repo := NewJobRepository()

	base := time.Now().UTC()
	saves := []model.JobSnapshot{
		terminalSnapshot("a1", "owner-a", model.JobStateCompleted, base.Add(-3*time.Minute)),
		terminalSnapshot("a2", "owner-a", model.JobStateError, base.Add(-2*time.Minute)),
		terminalSnapshot("a3", "owner-a", model.JobStateCancelled, base.Add(-1*time.Minute)),
		terminalSnapshot("b1", "owner-b", model.JobStateCompleted, base),
	}
	for _, s := range saves {
		if err := repo.Save(s); err != nil {
			t.Fatal(err)
		}
	}

	recent, err := repo.GetRecent("owner-a", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recent))
	}
	if recent[0].JobID != "a3" || recent[1].JobID != "a2" {
		t.Errorf("unexpected order: %s, %s", recent[0].JobID, recent[1].JobID)
	}

	stats, err := repo.GetStats("owner-a")
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 3 || stats.Completed != 1 || stats.Failed != 1 || stats.Cancelled != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}
