package workflow_test

import (
	"errors"
	"testing"

	"reelforge/internal/jobstore"
	"reelforge/internal/services"
	"reelforge/internal/testsupport"
	"reelforge/internal/workflow"
)

func testLimits(t *testing.T) workflow.Limits {
	t.Helper()
	return workflow.LimitsFromConfig(testsupport.NewConfig(t))
}

func TestValidateInterpolationDurations(t *testing.T) {
	limits := testLimits(t)
	cases := []struct {
		duration float64
		ok       bool
	}{
		{4, true},
		{6, true},
		{8, true},
		{5, false},
		{6.5, false},
	}

	for _, tc := range cases {
		req := &workflow.Request{
			SceneID:         "s1",
			Workflow:        workflow.Interpolation,
			Prompt:          "tide rolls in",
			DurationSeconds: tc.duration,
			FirstFrameRef:   "cache/a",
			LastFrameRef:    "cache/b",
		}
		err := workflow.Validate(req, limits)
		if tc.ok && err != nil {
			t.Fatalf("duration %.1fs should validate: %v", tc.duration, err)
		}
		if !tc.ok && !errors.Is(err, services.ErrValidation) {
			t.Fatalf("duration %.1fs should be rejected, got %v", tc.duration, err)
		}
	}
}

func TestValidateRejectsLastFrameWithReferences(t *testing.T) {
	req := &workflow.Request{
		SceneID:         "s1",
		Workflow:        workflow.Interpolation,
		Prompt:          "tide rolls in",
		DurationSeconds: 6,
		FirstFrameRef:   "cache/a",
		LastFrameRef:    "cache/b",
		ReferenceRefs:   map[string]string{"hero": "cache/h"},
	}
	if err := workflow.Validate(req, testLimits(t)); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("last frame with references must be rejected, got %v", err)
	}
}

func TestValidateIngredientsReferenceBudget(t *testing.T) {
	limits := testLimits(t)
	build := func(n int) *workflow.Request {
		refs := make(map[string]string, n)
		names := []string{"hero", "villain", "sidekick", "narrator"}
		for i := 0; i < n; i++ {
			refs[names[i]] = "cache/r"
		}
		return &workflow.Request{
			SceneID:         "s2",
			Workflow:        workflow.Ingredients,
			Prompt:          "argument at the table",
			DurationSeconds: 8,
			ReferenceRefs:   refs,
		}
	}

	if err := workflow.Validate(build(3), limits); err != nil {
		t.Fatalf("three references should validate: %v", err)
	}
	if err := workflow.Validate(build(0), limits); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("zero references must be rejected, got %v", err)
	}
	if err := workflow.Validate(build(4), limits); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("four references must be rejected, got %v", err)
	}

	framed := build(1)
	framed.FirstFrameRef = "cache/a"
	if err := workflow.Validate(framed, limits); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("ingredients with a keyframe must be rejected, got %v", err)
	}
}

func TestValidateTimestampSegmentCoverage(t *testing.T) {
	limits := testLimits(t)
	build := func(duration float64, segments ...jobstore.DialogueSegment) *workflow.Request {
		return &workflow.Request{
			SceneID:         "s3",
			Workflow:        workflow.Timestamp,
			Prompt:          "timed banter",
			DurationSeconds: duration,
			Segments:        segments,
		}
	}

	within := build(8,
		jobstore.DialogueSegment{StartSeconds: 0, EndSeconds: 4, Text: "a"},
		jobstore.DialogueSegment{StartSeconds: 4, EndSeconds: 7.9, Text: "b"},
	)
	if err := workflow.Validate(within, limits); err != nil {
		t.Fatalf("7.9s coverage of an 8.0s scene is within tolerance: %v", err)
	}

	over := build(8,
		jobstore.DialogueSegment{StartSeconds: 0, EndSeconds: 4.5, Text: "a"},
		jobstore.DialogueSegment{StartSeconds: 4.5, EndSeconds: 9, Text: "b"},
	)
	if err := workflow.Validate(over, limits); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("9.0s coverage of an 8.0s scene must be rejected, got %v", err)
	}

	tooLong := build(20, jobstore.DialogueSegment{StartSeconds: 0, EndSeconds: 20, Text: "a"})
	if err := workflow.Validate(tooLong, limits); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("scene beyond the clip limit must be rejected, got %v", err)
	}

	inverted := build(8, jobstore.DialogueSegment{StartSeconds: 5, EndSeconds: 5, Text: "a"})
	if err := workflow.Validate(inverted, limits); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("zero-length segment must be rejected, got %v", err)
	}
}

func TestValidateImageToVideoFrameRules(t *testing.T) {
	limits := testLimits(t)
	req := &workflow.Request{
		SceneID:         "s4",
		Workflow:        workflow.ImageToVideo,
		Prompt:          "camera pulls back",
		DurationSeconds: 5,
	}
	if err := workflow.Validate(req, limits); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("missing starting frame must be rejected, got %v", err)
	}

	req.FirstFrameRef = "cache/a"
	if err := workflow.Validate(req, limits); err != nil {
		t.Fatalf("single frame should validate: %v", err)
	}

	req.LastFrameRef = "cache/b"
	if err := workflow.Validate(req, limits); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("second frame must be rejected, got %v", err)
	}
}

func TestValidateTextToVideoStyleBudget(t *testing.T) {
	limits := testLimits(t)
	req := &workflow.Request{
		SceneID:         "s5",
		Workflow:        workflow.TextToVideo,
		Prompt:          "abstract shapes",
		DurationSeconds: 7,
		StyleRefs:       []string{"a", "b", "c"},
	}
	if err := workflow.Validate(req, limits); err != nil {
		t.Fatalf("three styles should validate: %v", err)
	}

	req.StyleRefs = append(req.StyleRefs, "d")
	if err := workflow.Validate(req, limits); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("four styles must be rejected, got %v", err)
	}
}

func TestValidateRejectsDegenerateRequests(t *testing.T) {
	limits := testLimits(t)
	cases := []struct {
		name string
		req  *workflow.Request
	}{
		{name: "nil request", req: nil},
		{
			name: "empty prompt",
			req:  &workflow.Request{SceneID: "s1", Workflow: workflow.TextToVideo, DurationSeconds: 5},
		},
		{
			name: "zero duration",
			req:  &workflow.Request{SceneID: "s1", Workflow: workflow.TextToVideo, Prompt: "x"},
		},
		{
			name: "unknown workflow",
			req:  &workflow.Request{SceneID: "s1", Workflow: "morph", Prompt: "x", DurationSeconds: 5},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := workflow.Validate(tc.req, limits); !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}
