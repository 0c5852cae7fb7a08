package workflow

import (
	"fmt"
	"math"

	"reelforge/internal/config"
	"reelforge/internal/services"
)

// AllowedInterpolationSeconds lists the clip lengths the interpolation
// backend accepts. Scenes with other durations must use another strategy.
var AllowedInterpolationSeconds = []float64{4, 6, 8}

// MaxReferenceImages caps subject references per ingredients request.
const MaxReferenceImages = 3

// MaxStyleImages caps style references per text-to-video request.
const MaxStyleImages = 3

// Limits carries the platform constraints the validator enforces.
type Limits struct {
	EpsilonSeconds float64
	MaxClipSeconds float64
}

// LimitsFromConfig derives validation limits from runtime configuration.
func LimitsFromConfig(cfg *config.Config) Limits {
	return Limits{
		EpsilonSeconds: cfg.Workflow.SegmentEpsilonSeconds,
		MaxClipSeconds: float64(cfg.Generation.MaxClipSeconds),
	}
}

// Validate checks a built request against per-strategy constraints before it
// is allowed near the generation backend. Violations are permanent: the
// request will not become valid by retrying, so failures here are tagged as
// validation errors.
func Validate(req *Request, limits Limits) error {
	if req == nil {
		return invalid("", "request is required")
	}
	if req.Prompt == "" {
		return invalid(req.SceneID, "prompt must not be empty")
	}
	if req.DurationSeconds <= 0 {
		return invalid(req.SceneID, fmt.Sprintf("duration %.1fs must be positive", req.DurationSeconds))
	}
	// The backend rejects requests carrying both a terminal frame and
	// subject references, so that combination never leaves this process.
	if req.LastFrameRef != "" && len(req.ReferenceRefs) > 0 {
		return invalid(req.SceneID, "last frame and subject references are mutually exclusive")
	}

	switch req.Workflow {
	case Interpolation:
		return validateInterpolation(req)
	case Ingredients:
		return validateIngredients(req)
	case Timestamp:
		return validateTimestamp(req, limits)
	case ImageToVideo:
		return validateImageToVideo(req)
	case TextToVideo:
		return validateTextToVideo(req)
	default:
		return invalid(req.SceneID, fmt.Sprintf("unknown workflow %q", req.Workflow))
	}
}

func validateInterpolation(req *Request) error {
	if req.FirstFrameRef == "" || req.LastFrameRef == "" {
		return invalid(req.SceneID, "interpolation requires both first and last frames")
	}
	if len(req.ReferenceRefs) > 0 {
		return invalid(req.SceneID, "interpolation does not accept subject references")
	}
	for _, allowed := range AllowedInterpolationSeconds {
		if req.DurationSeconds == allowed {
			return nil
		}
	}
	return invalid(req.SceneID, fmt.Sprintf("interpolation duration %.1fs not in %v", req.DurationSeconds, AllowedInterpolationSeconds))
}

func validateIngredients(req *Request) error {
	if len(req.ReferenceRefs) == 0 {
		return invalid(req.SceneID, "ingredients requires at least one subject reference")
	}
	if len(req.ReferenceRefs) > MaxReferenceImages {
		return invalid(req.SceneID, fmt.Sprintf("ingredients accepts at most %d subject references, got %d", MaxReferenceImages, len(req.ReferenceRefs)))
	}
	if req.FirstFrameRef != "" || req.LastFrameRef != "" {
		return invalid(req.SceneID, "ingredients does not accept keyframes")
	}
	return nil
}

func validateTimestamp(req *Request, limits Limits) error {
	if len(req.Segments) == 0 {
		return invalid(req.SceneID, "timestamp requires timed dialogue segments")
	}
	if req.LastFrameRef != "" || len(req.ReferenceRefs) > 0 {
		return invalid(req.SceneID, "timestamp does not accept a last frame or subject references")
	}
	if limits.MaxClipSeconds > 0 && req.DurationSeconds > limits.MaxClipSeconds {
		return invalid(req.SceneID, fmt.Sprintf("timestamp duration %.1fs exceeds clip limit %.1fs", req.DurationSeconds, limits.MaxClipSeconds))
	}
	var sum float64
	for i, segment := range req.Segments {
		if segment.EndSeconds <= segment.StartSeconds {
			return invalid(req.SceneID, fmt.Sprintf("segment %d: end %.1fs must be after start %.1fs", i, segment.EndSeconds, segment.StartSeconds))
		}
		sum += segment.EndSeconds - segment.StartSeconds
	}
	if math.Abs(sum-req.DurationSeconds) > limits.EpsilonSeconds {
		return invalid(req.SceneID, fmt.Sprintf("segments cover %.1fs but the scene runs %.1fs (tolerance %.1fs)", sum, req.DurationSeconds, limits.EpsilonSeconds))
	}
	return nil
}

func validateImageToVideo(req *Request) error {
	if req.FirstFrameRef == "" {
		return invalid(req.SceneID, "image-to-video requires a starting frame")
	}
	if req.LastFrameRef != "" {
		return invalid(req.SceneID, "image-to-video accepts exactly one frame")
	}
	if len(req.ReferenceRefs) > 0 {
		return invalid(req.SceneID, "image-to-video does not accept subject references")
	}
	return nil
}

func validateTextToVideo(req *Request) error {
	if req.FirstFrameRef != "" || req.LastFrameRef != "" {
		return invalid(req.SceneID, "text-to-video does not accept keyframes")
	}
	if len(req.ReferenceRefs) > 0 {
		return invalid(req.SceneID, "text-to-video does not accept subject references")
	}
	if len(req.StyleRefs) > MaxStyleImages {
		return invalid(req.SceneID, fmt.Sprintf("text-to-video accepts at most %d style references, got %d", MaxStyleImages, len(req.StyleRefs)))
	}
	return nil
}

func invalid(sceneID, message string) error {
	if sceneID != "" {
		message = fmt.Sprintf("scene %s: %s", sceneID, message)
	}
	return services.Wrap(services.ErrValidation, "workflow", "validate", message, nil)
}
