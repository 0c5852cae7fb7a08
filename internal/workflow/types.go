package workflow

import (
	"fmt"
	"strings"

	"reelforge/internal/jobstore"
)

// Type identifies one of the five video generation strategies.
type Type string

const (
	Interpolation Type = "interpolation"
	Ingredients   Type = "ingredients"
	Timestamp     Type = "timestamp"
	ImageToVideo  Type = "image_to_video"
	TextToVideo   Type = "text_to_video"
)

// AllTypes lists every strategy in preference order.
var AllTypes = []Type{Interpolation, Ingredients, Timestamp, ImageToVideo, TextToVideo}

var typeSet = map[Type]struct{}{
	Interpolation: {},
	Ingredients:   {},
	Timestamp:     {},
	ImageToVideo:  {},
	TextToVideo:   {},
}

// ParseType validates a raw workflow name.
func ParseType(raw string) (Type, error) {
	workflowType := Type(strings.TrimSpace(strings.ToLower(raw)))
	if _, ok := typeSet[workflowType]; !ok {
		return "", fmt.Errorf("unknown workflow %q", raw)
	}
	return workflowType, nil
}

// Selection modes. The strings match the config file values.
const (
	ModeConfigDefault       = "config_default"
	ModeLLMIntelligent      = "llm_intelligent"
	ModeAlwaysInterpolation = "always_interpolation"
	ModeAlwaysIngredients   = "always_ingredients"
)

// Classification is a strategy choice with its justification. Warnings flag
// choices made against structural evidence, such as a forced mode without
// the assets the strategy needs.
type Classification struct {
	SceneID  string
	Workflow Type
	Reason   string
	Warnings []string
}

// SceneFacts is the structural evidence a selector works from. Asset flags
// reflect what actually exists at selection time: a keyframe whose job was
// skipped does not count.
type SceneFacts struct {
	SceneID           string
	Prompt            string
	DurationSeconds   float64
	HasFirstFrame     bool
	HasLastFrame      bool
	ReferenceCount    int
	HasDialogue       bool
	DeclaredTechnique Type
	FirstFramePrompt  string
	LastFramePrompt   string
}

// FactsFromSpec derives facts from a video spec. The exists callback reports
// whether a dependency job produced an output; keyframe prompts are filled
// in by the caller when it has the dependency payloads at hand.
func FactsFromSpec(spec *jobstore.VideoSpec, exists func(jobID string) bool) SceneFacts {
	facts := SceneFacts{
		SceneID:         spec.SceneID,
		Prompt:          spec.Prompt,
		DurationSeconds: spec.DurationSeconds,
		HasDialogue:     len(spec.Segments) > 0,
	}
	if spec.FirstFrameJobID != "" && exists(spec.FirstFrameJobID) {
		facts.HasFirstFrame = true
	}
	if spec.LastFrameJobID != "" && exists(spec.LastFrameJobID) {
		facts.HasLastFrame = true
	}
	for _, jobID := range spec.ReferenceJobIDs {
		if exists(jobID) {
			facts.ReferenceCount++
		}
	}
	if declared, err := ParseType(spec.Workflow); err == nil {
		facts.DeclaredTechnique = declared
	}
	return facts
}

// Description renders the facts as text for the interpolation rubric.
func (f SceneFacts) Description() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("Scene %s (%.1fs): %s", f.SceneID, f.DurationSeconds, strings.TrimSpace(f.Prompt)))
	if f.FirstFramePrompt != "" {
		parts = append(parts, fmt.Sprintf("First keyframe: %s", strings.TrimSpace(f.FirstFramePrompt)))
	}
	if f.LastFramePrompt != "" {
		parts = append(parts, fmt.Sprintf("Last keyframe: %s", strings.TrimSpace(f.LastFramePrompt)))
	}
	if f.DeclaredTechnique != "" {
		parts = append(parts, fmt.Sprintf("Declared transition technique: %s", f.DeclaredTechnique))
	}
	return strings.Join(parts, "\n")
}
