package workflow_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"reelforge/internal/jobstore"
	"reelforge/internal/logging"
	"reelforge/internal/services/llm"
	"reelforge/internal/testsupport"
	"reelforge/internal/workflow"
)

func TestRuleSelectorPicksSoleStructuralMatch(t *testing.T) {
	cases := []struct {
		name  string
		facts workflow.SceneFacts
		want  workflow.Type
	}{
		{
			name:  "both keyframes",
			facts: workflow.SceneFacts{SceneID: "s1", Prompt: "dawn over the bay", DurationSeconds: 6, HasFirstFrame: true, HasLastFrame: true},
			want:  workflow.Interpolation,
		},
		{
			name:  "voiced subject references",
			facts: workflow.SceneFacts{SceneID: "s2", Prompt: "hero speaks", DurationSeconds: 8, ReferenceCount: 2, HasDialogue: true},
			want:  workflow.Ingredients,
		},
		{
			name:  "starting frame only",
			facts: workflow.SceneFacts{SceneID: "s3", Prompt: "pan away", DurationSeconds: 5, HasFirstFrame: true},
			want:  workflow.ImageToVideo,
		},
		{
			name:  "declared timestamp technique",
			facts: workflow.SceneFacts{SceneID: "s4", Prompt: "timed banter", DurationSeconds: 9, HasDialogue: true, DeclaredTechnique: workflow.Timestamp},
			want:  workflow.Timestamp,
		},
	}

	cfg := testsupport.NewConfig(t)
	cfg.Workflow.DefaultWorkflow = string(workflow.Ingredients)
	selector := workflow.NewSelector(cfg, nil, logging.NewNop())

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			classification, err := selector.Select(context.Background(), tc.facts)
			if err != nil {
				t.Fatalf("Select failed: %v", err)
			}
			if classification.Workflow != tc.want {
				t.Fatalf("expected %s, got %s (%s)", tc.want, classification.Workflow, classification.Reason)
			}
			if len(classification.Warnings) != 0 {
				t.Fatalf("unexpected warnings: %v", classification.Warnings)
			}
		})
	}
}

func TestRuleSelectorFallsBackToTextToVideo(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	selector := workflow.NewSelector(cfg, nil, logging.NewNop())

	facts := workflow.SceneFacts{SceneID: "s1", Prompt: "abstract shapes", DurationSeconds: 7}
	classification, err := selector.Select(context.Background(), facts)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if classification.Workflow != workflow.TextToVideo {
		t.Fatalf("expected text_to_video fallback, got %s", classification.Workflow)
	}
}

func TestRuleSelectorTieIgnoresDeclaredTechnique(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.DefaultWorkflow = string(workflow.Interpolation)
	selector := workflow.NewSelector(cfg, nil, logging.NewNop())

	// The declared technique feeds eligibility, not tie-breaking. Ties go to
	// the configured default.
	facts := tieFacts()
	facts.DeclaredTechnique = workflow.Ingredients
	classification, err := selector.Select(context.Background(), facts)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if classification.Workflow != workflow.Interpolation {
		t.Fatalf("expected configured default on tie, got %s (%s)", classification.Workflow, classification.Reason)
	}
}

func TestRuleSelectorBreaksTiesWithConfiguredDefault(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.DefaultWorkflow = string(workflow.Ingredients)
	selector := workflow.NewSelector(cfg, nil, logging.NewNop())

	classification, err := selector.Select(context.Background(), tieFacts())
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if classification.Workflow != workflow.Ingredients {
		t.Fatalf("expected configured default, got %s (%s)", classification.Workflow, classification.Reason)
	}
	if !strings.Contains(classification.Reason, "interpolation") {
		t.Fatalf("expected reason to list eligible workflows, got %q", classification.Reason)
	}
}

func TestForcedModeRecordsStructuralWarning(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithSelectionMode(workflow.ModeAlwaysInterpolation))
	selector := workflow.NewSelector(cfg, nil, logging.NewNop())

	facts := workflow.SceneFacts{SceneID: "s1", Prompt: "no keyframes here", DurationSeconds: 6}
	classification, err := selector.Select(context.Background(), facts)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if classification.Workflow != workflow.Interpolation {
		t.Fatalf("forced mode must pick interpolation, got %s", classification.Workflow)
	}
	if len(classification.Warnings) != 1 {
		t.Fatalf("expected one structural warning, got %v", classification.Warnings)
	}

	supported := workflow.SceneFacts{SceneID: "s2", Prompt: "framed scene", DurationSeconds: 6, HasFirstFrame: true, HasLastFrame: true}
	classification, err = selector.Select(context.Background(), supported)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if len(classification.Warnings) != 0 {
		t.Fatalf("supported forced choice must not warn, got %v", classification.Warnings)
	}
}

func TestForcedModeWarnsWhenDisabled(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithSelectionMode(workflow.ModeAlwaysInterpolation))
	cfg.Workflow.EnabledWorkflows = []string{"ingredients", "text_to_video"}
	selector := workflow.NewSelector(cfg, nil, logging.NewNop())

	facts := workflow.SceneFacts{SceneID: "s1", Prompt: "framed scene", DurationSeconds: 6, HasFirstFrame: true, HasLastFrame: true}
	classification, err := selector.Select(context.Background(), facts)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if classification.Workflow != workflow.Interpolation {
		t.Fatalf("forced mode must still pick interpolation, got %s", classification.Workflow)
	}
	if len(classification.Warnings) != 1 {
		t.Fatalf("expected one disabled warning, got %v", classification.Warnings)
	}
	if !strings.Contains(classification.Warnings[0], "disabled") {
		t.Fatalf("expected disabled warning, got %q", classification.Warnings[0])
	}
}

func TestRuleSelectorHonorsEnabledSet(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.EnabledWorkflows = []string{"ingredients", "text_to_video"}
	selector := workflow.NewSelector(cfg, nil, logging.NewNop())

	facts := workflow.SceneFacts{SceneID: "s1", Prompt: "framed scene", DurationSeconds: 6, HasFirstFrame: true, HasLastFrame: true}
	classification, err := selector.Select(context.Background(), facts)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if classification.Workflow != workflow.TextToVideo {
		t.Fatalf("disabled interpolation must not be selected, got %s", classification.Workflow)
	}
}

func TestLLMSelectorScoresRubricTie(t *testing.T) {
	cases := []struct {
		name  string
		score int
		want  workflow.Type
	}{
		{name: "high score selects interpolation", score: 4, want: workflow.Interpolation},
		{name: "threshold score selects interpolation", score: 3, want: workflow.Interpolation},
		{name: "low score selects ingredients", score: 2, want: workflow.Ingredients},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := rubricServer(t, tc.score)
			defer server.Close()

			selector := newLLMSelector(t, server.URL)
			classification, err := selector.Select(context.Background(), tieFacts())
			if err != nil {
				t.Fatalf("Select failed: %v", err)
			}
			if classification.Workflow != tc.want {
				t.Fatalf("score %d: expected %s, got %s", tc.score, tc.want, classification.Workflow)
			}
			if !strings.Contains(classification.Reason, "rubric") {
				t.Fatalf("expected rubric reason, got %q", classification.Reason)
			}
		})
	}
}

func TestLLMSelectorSkipsRubricOutsideTie(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	selector := newLLMSelector(t, server.URL)
	facts := workflow.SceneFacts{SceneID: "s1", Prompt: "framed scene", DurationSeconds: 6, HasFirstFrame: true, HasLastFrame: true}
	classification, err := selector.Select(context.Background(), facts)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if classification.Workflow != workflow.Interpolation {
		t.Fatalf("expected rule selection, got %s", classification.Workflow)
	}
	if hits.Load() != 0 {
		t.Fatalf("rubric must not be consulted outside the tie, saw %d requests", hits.Load())
	}
}

func TestLLMSelectorFallsBackWhenModelUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	selector := newLLMSelector(t, server.URL)
	classification, err := selector.Select(context.Background(), tieFacts())
	if err != nil {
		t.Fatalf("collaborator failure must not fail selection: %v", err)
	}
	if classification.Workflow != workflow.Ingredients {
		t.Fatalf("expected configured default on fallback, got %s", classification.Workflow)
	}
	if len(classification.Warnings) == 0 {
		t.Fatal("expected a fallback warning")
	}
}

func TestNewSelectorWithoutModelUsesRules(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithSelectionMode(workflow.ModeLLMIntelligent))
	selector := workflow.NewSelector(cfg, nil, logging.NewNop())

	facts := workflow.SceneFacts{SceneID: "s1", Prompt: "framed scene", DurationSeconds: 6, HasFirstFrame: true, HasLastFrame: true}
	classification, err := selector.Select(context.Background(), facts)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if classification.Workflow != workflow.Interpolation {
		t.Fatalf("expected rule selection without a model, got %s", classification.Workflow)
	}
}

func TestFactsFromSpecReflectsExistingAssets(t *testing.T) {
	spec := &jobstore.VideoSpec{
		SceneID:         "s1",
		Prompt:          "hero walks into frame",
		DurationSeconds: 6,
		Workflow:        "Interpolation",
		FirstFrameJobID: "img-s1-first",
		LastFrameJobID:  "img-s1-last",
		ReferenceJobIDs: map[string]string{"hero": "char-hero", "villain": "char-villain"},
		Segments:        []jobstore.DialogueSegment{{StartSeconds: 0, EndSeconds: 2, Text: "hello"}},
	}
	available := map[string]bool{
		"img-s1-first": true,
		"char-hero":    true,
	}

	facts := workflow.FactsFromSpec(spec, func(jobID string) bool { return available[jobID] })
	if !facts.HasFirstFrame {
		t.Fatal("expected first frame to count")
	}
	if facts.HasLastFrame {
		t.Fatal("skipped last frame must not count")
	}
	if facts.ReferenceCount != 1 {
		t.Fatalf("expected 1 existing reference, got %d", facts.ReferenceCount)
	}
	if !facts.HasDialogue {
		t.Fatal("expected dialogue flag")
	}
	if facts.DeclaredTechnique != workflow.Interpolation {
		t.Fatalf("expected lenient technique parse, got %q", facts.DeclaredTechnique)
	}
}

// tieFacts supports both interpolation and ingredients, the ambiguity the
// rubric exists to resolve.
func tieFacts() workflow.SceneFacts {
	return workflow.SceneFacts{
		SceneID:         "s1",
		Prompt:          "hero stands at the pier while the tide rises",
		DurationSeconds: 6,
		HasFirstFrame:   true,
		HasLastFrame:    true,
		ReferenceCount:  1,
		HasDialogue:     true,
	}
}

func newLLMSelector(t *testing.T, baseURL string) workflow.Selector {
	t.Helper()
	cfg := testsupport.NewConfig(t,
		testsupport.WithSelectionMode(workflow.ModeLLMIntelligent),
		testsupport.WithLLM(baseURL, "test-key", "test-model"))
	cfg.Workflow.DefaultWorkflow = string(workflow.Ingredients)
	client := llm.NewClient(llm.Config{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
	}, llm.WithRetryMaxAttempts(1))
	return workflow.NewSelector(cfg, client, logging.NewNop())
}

// rubricServer answers every chat completion with a rubric verdict carrying
// the requested score.
func rubricServer(t *testing.T, score int) *httptest.Server {
	t.Helper()
	keys := []string{"static_subject", "gradual_framing", "spatial_continuity", "camera_movement_described", "simple_background"}
	criteria := make(map[string]bool, len(keys))
	for i, key := range keys {
		criteria[key] = i < score
	}
	content, err := json.Marshal(map[string]any{"criteria": criteria, "notes": "test verdict"})
	if err != nil {
		t.Fatalf("marshal rubric failed: %v", err)
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": string(content)}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(body); err != nil {
			t.Errorf("encode response failed: %v", err)
		}
	}))
}
