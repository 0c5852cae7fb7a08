package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// RubricPrompt is the system prompt sent to the reasoning model when scoring
// whether a scene can be rendered by interpolating between two keyframes.
const RubricPrompt = `You are an assistant that inspects a storyboard scene and decides whether frame interpolation between a first and last keyframe can render it faithfully.

Evaluate exactly these five criteria against the scene description:

- "static_subject": the subject holds roughly the same position in both keyframes rather than moving across the frame.

- "gradual_framing": the framing change between keyframes is gradual, not a jump such as wide shot to extreme close-up.

- "spatial_continuity": both keyframes show the same location with continuous space between them.

- "camera_movement_described": the description states the camera movement explicitly (pan, dolly, static, etc.).

- "simple_background": the background is plain enough to interpolate without visible artifacts.

You must respond ONLY with a JSON object like: {"criteria": {"static_subject": true, "gradual_framing": true, "spatial_continuity": false, "camera_movement_described": false, "simple_background": true}, "notes": "short explanation"}

Now evaluate this scene:`

// RubricCriteria is the fixed five-point interpolation checklist. Each field
// mirrors a key in the model's JSON response.
type RubricCriteria struct {
	StaticSubject           bool `json:"static_subject"`
	GradualFraming          bool `json:"gradual_framing"`
	SpatialContinuity       bool `json:"spatial_continuity"`
	CameraMovementDescribed bool `json:"camera_movement_described"`
	SimpleBackground        bool `json:"simple_background"`
}

// Score counts how many criteria hold.
func (c RubricCriteria) Score() int {
	score := 0
	for _, ok := range []bool{
		c.StaticSubject,
		c.GradualFraming,
		c.SpatialContinuity,
		c.CameraMovementDescribed,
		c.SimpleBackground,
	} {
		if ok {
			score++
		}
	}
	return score
}

// RubricTotal is the number of criteria in the checklist.
const RubricTotal = 5

// RubricResult is the parsed model verdict for one scene.
type RubricResult struct {
	Criteria RubricCriteria `json:"criteria"`
	Notes    string         `json:"notes"`
	Raw      string         `json:"-"`
}

// EvaluateRubric scores a scene description against the interpolation
// rubric. The caller decides what the score means; this method only asks and
// parses.
func (c *Client) EvaluateRubric(ctx context.Context, sceneDescription string) (RubricResult, error) {
	var empty RubricResult
	sceneDescription = strings.TrimSpace(sceneDescription)
	if sceneDescription == "" {
		return empty, errors.New("rubric: scene description required")
	}
	if c.cfg.APIKey == "" {
		return empty, errors.New("rubric: api key required")
	}

	content, err := c.CompleteJSON(ctx, RubricPrompt, sceneDescription)
	if err != nil {
		return empty, err
	}
	var parsed RubricResult
	if err := DecodeLLMJSON(content, &parsed); err != nil {
		return empty, fmt.Errorf("rubric: parse payload: %w", err)
	}
	parsed.Raw = content
	parsed.Notes = strings.TrimSpace(parsed.Notes)
	return parsed, nil
}
