package jobstore_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"

	_ "modernc.org/sqlite"

	"reelforge/internal/jobstore"
	"reelforge/internal/services"
	"reelforge/internal/testsupport"
)

func TestOpenInitializesSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.SeedJobs(t, store, "proj-1",
		testsupport.CharacterJob("char-hero", "Hero"),
		testsupport.VideoJob("video-s1", "s1", "char-hero"),
	)

	job, err := store.GetJob(ctx, "proj-1", "video-s1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if job.Status != jobstore.StatusPending {
		t.Fatalf("expected pending status, got %s", job.Status)
	}
	if job.Attempts != 0 {
		t.Fatalf("expected zero attempts, got %d", job.Attempts)
	}
	if len(job.DependsOn) != 1 || job.DependsOn[0] != "char-hero" {
		t.Fatalf("unexpected depends_on: %v", job.DependsOn)
	}
	if job.Payload.Video == nil || job.Payload.Video.SceneID != "s1" {
		t.Fatalf("unexpected payload: %#v", job.Payload)
	}
	if job.CreatedAt.IsZero() || job.UpdatedAt.IsZero() {
		t.Fatal("expected timestamps to be assigned")
	}
}

func TestCreateJobsRejectsSecondPlan(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.SeedJobs(t, store, "proj-1", testsupport.VideoJob("video-s1", "s1"))

	err := store.CreateJobs(ctx, "proj-1", []jobstore.Job{testsupport.VideoJob("video-s2", "s2")})
	if !errors.Is(err, jobstore.ErrProjectExists) {
		t.Fatalf("expected ErrProjectExists, got %v", err)
	}
}

func TestCreateJobsValidatesPayload(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	mismatched := jobstore.Job{
		ID:   "video-s1",
		Type: jobstore.TypeVideo,
		Payload: jobstore.Payload{
			Audio: &jobstore.AudioSpec{SceneID: "s1", Text: "wrong spec"},
		},
	}
	err := store.CreateJobs(ctx, "proj-1", []jobstore.Job{mismatched})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	duplicate := []jobstore.Job{
		testsupport.VideoJob("video-s1", "s1"),
		testsupport.VideoJob("video-s1", "s1"),
	}
	err = store.CreateJobs(ctx, "proj-1", duplicate)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected duplicate id rejection, got %v", err)
	}
}

func TestGetJobMissingReturnsNotFound(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	_, err := store.GetJob(context.Background(), "proj-1", "absent")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListJobsFiltersByStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.SeedJobs(t, store, "proj-1",
		testsupport.VideoJob("video-s1", "s1"),
		testsupport.VideoJob("video-s2", "s2"),
		testsupport.VideoJob("video-s3", "s3"),
	)

	tracker := jobstore.NewTracker(store)
	if _, err := tracker.Claim(ctx, "proj-1", "video-s1"); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if err := tracker.Complete(ctx, "proj-1", "video-s1", "cache/abc"); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	all, err := store.ListJobs(ctx, "proj-1")
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(all))
	}

	pending, err := store.ListJobs(ctx, "proj-1", jobstore.StatusPending)
	if err != nil {
		t.Fatalf("ListJobs pending failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending jobs, got %d", len(pending))
	}

	completed, err := store.ListJobs(ctx, "proj-1", jobstore.StatusCompleted)
	if err != nil {
		t.Fatalf("ListJobs completed failed: %v", err)
	}
	if len(completed) != 1 || completed[0].OutputRef != "cache/abc" {
		t.Fatalf("unexpected completed jobs: %#v", completed)
	}
}

func TestStatsCountsByStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.SeedJobs(t, store, "proj-1",
		testsupport.VideoJob("video-s1", "s1"),
		testsupport.VideoJob("video-s2", "s2"),
	)

	tracker := jobstore.NewTracker(store)
	if _, err := tracker.Claim(ctx, "proj-1", "video-s1"); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if err := tracker.Fail(ctx, "proj-1", "video-s1", "backend exploded", services.KindTransient); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}

	stats, err := store.Stats(ctx, "proj-1")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats[jobstore.StatusPending] != 1 || stats[jobstore.StatusFailed] != 1 {
		t.Fatalf("unexpected stats: %#v", stats)
	}
}

func TestStateSnapshotsAppendOnly(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	first, err := store.SaveState(ctx, jobstore.PipelineState{
		ProjectID: "proj-1",
		JobIDs:    []string{"video-s1"},
	})
	if err != nil {
		t.Fatalf("SaveState failed: %v", err)
	}

	second, err := store.SaveState(ctx, first.WithStageDone("plan"))
	if err != nil {
		t.Fatalf("SaveState second failed: %v", err)
	}
	if second.Seq <= first.Seq {
		t.Fatalf("expected increasing seq, got %d then %d", first.Seq, second.Seq)
	}

	latest, err := store.LoadState(ctx, "proj-1")
	if err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if latest == nil || latest.Seq != second.Seq {
		t.Fatalf("expected latest snapshot, got %#v", latest)
	}
	if !latest.StageDone("plan") {
		t.Fatal("expected plan stage recorded on latest snapshot")
	}

	history, err := store.StateHistory(ctx, "proj-1")
	if err != nil {
		t.Fatalf("StateHistory failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(history))
	}
	if history[0].StageDone("plan") {
		t.Fatal("earlier snapshot must not change")
	}
}

func TestLoadStateMissingProjectReturnsNil(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	state, err := store.LoadState(context.Background(), "fresh")
	if err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if state != nil {
		t.Fatalf("expected nil state for fresh project, got %#v", state)
	}
}

func TestScanSurfacesCorruption(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.SeedJobs(t, store, "proj-1", testsupport.VideoJob("video-s1", "s1"))

	raw, err := sql.Open("sqlite", store.Path())
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	defer raw.Close()
	if _, err := raw.ExecContext(ctx, "UPDATE jobs SET payload_json = 'not-json' WHERE id = 'video-s1'"); err != nil {
		t.Fatalf("corrupt payload: %v", err)
	}

	_, err = store.ListJobs(ctx, "proj-1")
	if !errors.Is(err, services.ErrStoreCorruption) {
		t.Fatalf("expected ErrStoreCorruption, got %v", err)
	}

	// A payload that parses but disagrees with the job type is equally corrupt.
	wrongTag, err := json.Marshal(jobstore.Payload{Audio: &jobstore.AudioSpec{SceneID: "s1", Text: "x"}})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if _, err := raw.ExecContext(ctx, "UPDATE jobs SET payload_json = ? WHERE id = 'video-s1'", string(wrongTag)); err != nil {
		t.Fatalf("swap payload: %v", err)
	}
	_, err = store.GetJob(ctx, "proj-1", "video-s1")
	if !errors.Is(err, services.ErrStoreCorruption) {
		t.Fatalf("expected ErrStoreCorruption for tag mismatch, got %v", err)
	}
}

func TestClearProjectRemovesJobsAndStates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.SeedJobs(t, store, "proj-1", testsupport.VideoJob("video-s1", "s1"))
	testsupport.SeedJobs(t, store, "proj-2", testsupport.VideoJob("video-s1", "s1"))
	if _, err := store.SaveState(ctx, jobstore.PipelineState{ProjectID: "proj-1", JobIDs: []string{"video-s1"}}); err != nil {
		t.Fatalf("SaveState failed: %v", err)
	}

	if err := store.ClearProject(ctx, "proj-1"); err != nil {
		t.Fatalf("ClearProject failed: %v", err)
	}

	has, err := store.HasJobs(ctx, "proj-1")
	if err != nil {
		t.Fatalf("HasJobs failed: %v", err)
	}
	if has {
		t.Fatal("expected proj-1 jobs to be gone")
	}
	state, err := store.LoadState(ctx, "proj-1")
	if err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if state != nil {
		t.Fatal("expected proj-1 snapshots to be gone")
	}

	projects, err := store.Projects(ctx)
	if err != nil {
		t.Fatalf("Projects failed: %v", err)
	}
	if len(projects) != 1 || projects[0] != "proj-2" {
		t.Fatalf("unexpected surviving projects: %v", projects)
	}
}
