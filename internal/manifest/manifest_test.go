package manifest_test

import (
	"errors"
	"strings"
	"testing"

	"reelforge/internal/manifest"
	"reelforge/internal/services"
	"reelforge/internal/testsupport"
)

const sampleManifest = `{
  "project_id": "demo",
  "title": "Rainy Night",
  "aspect_ratio": "16:9",
  "characters": [
    {"id": "hero", "name": "Hero", "prompt": "a stoic explorer in a long coat"}
  ],
  "styles": [
    {"id": "noir", "prompt": "high contrast noir lighting"}
  ],
  "scenes": [
    {
      "id": "s1",
      "prompt": "hero walks through rain toward a neon sign",
      "duration_seconds": 8,
      "first_frame": {"prompt": "hero at the alley entrance"},
      "last_frame": {"prompt": "hero under the neon sign"},
      "character_ids": ["hero"],
      "dialogue": [
        {"start_seconds": 0, "end_seconds": 3.5, "text": "It began here.", "speaker": "hero"}
      ],
      "narration": {"text": "The city never slept.", "voice": "male-1"}
    },
    {
      "id": "s2",
      "prompt": "hero pauses at the empty docks",
      "duration_seconds": 6,
      "style_ids": ["noir"],
      "depends_on": ["s1"]
    }
  ],
  "post_production": {"container": "mp4"}
}`

func TestLoadParsesManifest(t *testing.T) {
	path := testsupport.WriteManifest(t, t.TempDir(), sampleManifest)

	m, err := manifest.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.ProjectID != "demo" {
		t.Fatalf("unexpected project id %q", m.ProjectID)
	}
	if len(m.Scenes) != 2 {
		t.Fatalf("expected 2 scenes, got %d", len(m.Scenes))
	}
	if !m.Scenes[0].HasDialogue() {
		t.Fatal("expected scene s1 to carry dialogue")
	}
	if m.Scenes[1].DependsOn[0] != "s1" {
		t.Fatalf("unexpected scene ordering constraint: %v", m.Scenes[1].DependsOn)
	}
	if m.Post == nil || m.Post.Container != "mp4" {
		t.Fatalf("unexpected post production: %#v", m.Post)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := manifest.Load("/nonexistent/manifest.json"); err == nil {
		t.Fatal("expected error for missing manifest")
	}
}

func TestParseRejectsInvalidManifests(t *testing.T) {
	cases := []struct {
		name     string
		json     string
		fragment string
	}{
		{
			name:     "missing project id",
			json:     `{"scenes": [{"id": "s1", "prompt": "p", "duration_seconds": 4}]}`,
			fragment: "project_id",
		},
		{
			name:     "no scenes",
			json:     `{"project_id": "demo"}`,
			fragment: "at least one scene",
		},
		{
			name: "duplicate scene ids",
			json: `{"project_id": "demo", "scenes": [
				{"id": "s1", "prompt": "p", "duration_seconds": 4},
				{"id": "s1", "prompt": "q", "duration_seconds": 4}
			]}`,
			fragment: "duplicate scene id",
		},
		{
			name: "unknown character reference",
			json: `{"project_id": "demo", "scenes": [
				{"id": "s1", "prompt": "p", "duration_seconds": 4, "character_ids": ["ghost"]}
			]}`,
			fragment: "unknown character",
		},
		{
			name: "unknown scene dependency",
			json: `{"project_id": "demo", "scenes": [
				{"id": "s1", "prompt": "p", "duration_seconds": 4, "depends_on": ["s9"]}
			]}`,
			fragment: "unknown scene",
		},
		{
			name: "self dependency",
			json: `{"project_id": "demo", "scenes": [
				{"id": "s1", "prompt": "p", "duration_seconds": 4, "depends_on": ["s1"]}
			]}`,
			fragment: "depends on itself",
		},
		{
			name: "nonpositive duration",
			json: `{"project_id": "demo", "scenes": [
				{"id": "s1", "prompt": "p", "duration_seconds": 0}
			]}`,
			fragment: "duration must be positive",
		},
		{
			name: "inverted dialogue bounds",
			json: `{"project_id": "demo", "scenes": [
				{"id": "s1", "prompt": "p", "duration_seconds": 4,
				 "dialogue": [{"start_seconds": 3, "end_seconds": 1, "text": "x"}]}
			]}`,
			fragment: "invalid bounds",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := manifest.Parse([]byte(tc.json))
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.fragment) {
				t.Fatalf("expected %q in error, got %q", tc.fragment, err.Error())
			}
		})
	}
}
