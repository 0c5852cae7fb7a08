package testsupport

import (
	"context"
	"testing"

	"reelforge/internal/config"
	"reelforge/internal/jobstore"
)

// MustOpenStore opens a jobstore.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *jobstore.Store {
	t.Helper()

	store, err := jobstore.Open(cfg)
	if err != nil {
		t.Fatalf("jobstore.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// SeedJobs creates the given jobs for a project and fails the test on error.
func SeedJobs(t testing.TB, store *jobstore.Store, projectID string, jobs ...jobstore.Job) {
	t.Helper()

	if err := store.CreateJobs(context.Background(), projectID, jobs); err != nil {
		t.Fatalf("store.CreateJobs: %v", err)
	}
}

// CharacterJob builds a minimal valid character job for tests.
func CharacterJob(id, name string, deps ...string) jobstore.Job {
	return jobstore.Job{
		ID:        id,
		Type:      jobstore.TypeCharacter,
		DependsOn: deps,
		Payload: jobstore.Payload{
			Character: &jobstore.CharacterSpec{Name: name, Prompt: "reference sheet for " + name},
		},
	}
}

// ImageJob builds a minimal valid image job for tests.
func ImageJob(id, sceneID, kind string, deps ...string) jobstore.Job {
	return jobstore.Job{
		ID:        id,
		Type:      jobstore.TypeImage,
		DependsOn: deps,
		Payload: jobstore.Payload{
			Image: &jobstore.ImageSpec{SceneID: sceneID, Kind: kind, Prompt: "frame for " + sceneID},
		},
	}
}

// VideoJob builds a minimal valid text-to-video job for tests.
func VideoJob(id, sceneID string, deps ...string) jobstore.Job {
	return jobstore.Job{
		ID:        id,
		Type:      jobstore.TypeVideo,
		DependsOn: deps,
		Payload: jobstore.Payload{
			Video: &jobstore.VideoSpec{SceneID: sceneID, Prompt: "clip for " + sceneID, DurationSeconds: 6},
		},
	}
}

// AudioJob builds a minimal valid audio job for tests.
func AudioJob(id, sceneID string, deps ...string) jobstore.Job {
	return jobstore.Job{
		ID:        id,
		Type:      jobstore.TypeAudio,
		DependsOn: deps,
		Payload: jobstore.Payload{
			Audio: &jobstore.AudioSpec{SceneID: sceneID, Text: "line for " + sceneID},
		},
	}
}

// PostJob builds a minimal valid post-production job for tests.
func PostJob(id string, videoIDs []string, deps ...string) jobstore.Job {
	return jobstore.Job{
		ID:        id,
		Type:      jobstore.TypePost,
		DependsOn: deps,
		Payload: jobstore.Payload{
			Post: &jobstore.PostSpec{VideoJobIDs: videoIDs},
		},
	}
}
