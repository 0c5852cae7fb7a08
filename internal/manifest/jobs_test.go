package manifest_test

import (
	"errors"
	"strings"
	"testing"

	"reelforge/internal/jobstore"
	"reelforge/internal/manifest"
	"reelforge/internal/services"
)

func sampleParsed(t *testing.T) *manifest.Manifest {
	t.Helper()
	m, err := manifest.Parse([]byte(sampleManifest))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return m
}

func jobByID(t *testing.T, jobs []jobstore.Job, id string) jobstore.Job {
	t.Helper()
	for _, job := range jobs {
		if job.ID == id {
			return job
		}
	}
	t.Fatalf("job %q not built", id)
	return jobstore.Job{}
}

func dependsOn(job jobstore.Job, depID string) bool {
	for _, dep := range job.DependsOn {
		if dep == depID {
			return true
		}
	}
	return false
}

func TestBuildJobsWiresDependencies(t *testing.T) {
	jobs, err := manifest.BuildJobs(sampleParsed(t))
	if err != nil {
		t.Fatalf("BuildJobs failed: %v", err)
	}
	if len(jobs) != 8 {
		t.Fatalf("expected 8 jobs, got %d", len(jobs))
	}

	firstFrame := jobByID(t, jobs, "img-s1-first")
	if !dependsOn(firstFrame, "char-hero") {
		t.Fatalf("first frame should wait for character sheet: %v", firstFrame.DependsOn)
	}
	if firstFrame.Payload.Image.Kind != jobstore.ImageKindFirstFrame {
		t.Fatalf("unexpected frame kind %q", firstFrame.Payload.Image.Kind)
	}

	video1 := jobByID(t, jobs, "vid-s1")
	for _, dep := range []string{"char-hero", "img-s1-first", "img-s1-last"} {
		if !dependsOn(video1, dep) {
			t.Fatalf("vid-s1 missing dependency %s: %v", dep, video1.DependsOn)
		}
	}
	spec := video1.Payload.Video
	if spec.FirstFrameJobID != "img-s1-first" || spec.LastFrameJobID != "img-s1-last" {
		t.Fatalf("unexpected frame wiring: %q / %q", spec.FirstFrameJobID, spec.LastFrameJobID)
	}
	if spec.ReferenceJobIDs["hero"] != "char-hero" {
		t.Fatalf("unexpected reference map: %v", spec.ReferenceJobIDs)
	}
	if len(spec.Segments) != 1 || spec.Segments[0].Text != "It began here." {
		t.Fatalf("unexpected segments: %#v", spec.Segments)
	}

	video2 := jobByID(t, jobs, "vid-s2")
	if !dependsOn(video2, "vid-s1") {
		t.Fatalf("vid-s2 should wait for vid-s1: %v", video2.DependsOn)
	}
	if !dependsOn(video2, "style-noir") {
		t.Fatalf("vid-s2 should wait for style reference: %v", video2.DependsOn)
	}

	post := jobByID(t, jobs, manifest.PostJobID)
	for _, dep := range []string{"vid-s1", "vid-s2", "aud-s1"} {
		if !dependsOn(post, dep) {
			t.Fatalf("post missing dependency %s: %v", dep, post.DependsOn)
		}
	}
	if got := post.Payload.Post.VideoJobIDs; len(got) != 2 || got[0] != "vid-s1" || got[1] != "vid-s2" {
		t.Fatalf("post should keep scene order: %v", got)
	}
}

func TestBuildJobsAppliesAspectRatioFallback(t *testing.T) {
	m, err := manifest.Parse([]byte(`{
		"project_id": "demo",
		"scenes": [{"id": "s1", "prompt": "wide shot", "duration_seconds": 4}]
	}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	jobs, err := manifest.BuildJobs(m)
	if err != nil {
		t.Fatalf("BuildJobs failed: %v", err)
	}
	video := jobByID(t, jobs, "vid-s1")
	if video.Payload.Video.AspectRatio != manifest.DefaultAspectRatio {
		t.Fatalf("expected default aspect ratio, got %q", video.Payload.Video.AspectRatio)
	}
}

func TestBuildJobsDetectsCycle(t *testing.T) {
	m, err := manifest.Parse([]byte(`{
		"project_id": "demo",
		"scenes": [
			{"id": "a", "prompt": "first", "duration_seconds": 4, "depends_on": ["b"]},
			{"id": "b", "prompt": "second", "duration_seconds": 4, "depends_on": ["a"]}
		]
	}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	jobs, err := manifest.BuildJobs(m)
	if !errors.Is(err, services.ErrCycleDetected) {
		t.Fatalf("expected ErrCycleDetected, got %v", err)
	}
	if jobs != nil {
		t.Fatal("cyclic manifest must not produce jobs")
	}
	if !strings.Contains(err.Error(), "vid-a") || !strings.Contains(err.Error(), "vid-b") {
		t.Fatalf("cycle error should name members, got %q", err.Error())
	}
}

func TestVerifyAcyclicRejectsUnknownDependency(t *testing.T) {
	jobs := []jobstore.Job{
		{
			ID:        "vid-s1",
			Type:      jobstore.TypeVideo,
			DependsOn: []string{"ghost"},
			Payload:   jobstore.Payload{Video: &jobstore.VideoSpec{SceneID: "s1", Prompt: "p", DurationSeconds: 4}},
		},
	}
	err := manifest.VerifyAcyclic(jobs)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "ghost") {
		t.Fatalf("error should name the unknown dependency, got %q", err.Error())
	}
}
