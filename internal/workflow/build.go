package workflow

import (
	"fmt"
	"sort"
	"strings"

	"reelforge/internal/jobstore"
	"reelforge/internal/services"
)

// Request is the strategy-specific dispatch payload handed to the generation
// collaborator. Only the fields the chosen workflow uses are populated;
// the validator enforces that the rest stay empty.
type Request struct {
	SceneID         string                     `json:"scene_id"`
	Workflow        Type                       `json:"workflow"`
	Prompt          string                     `json:"prompt"`
	DurationSeconds float64                    `json:"duration_seconds"`
	AspectRatio     string                     `json:"aspect_ratio,omitempty"`
	FirstFrameRef   string                     `json:"first_frame_ref,omitempty"`
	LastFrameRef    string                     `json:"last_frame_ref,omitempty"`
	ReferenceRefs   map[string]string          `json:"reference_refs,omitempty"`
	StyleRefs       []string                   `json:"style_refs,omitempty"`
	Segments        []jobstore.DialogueSegment `json:"segments,omitempty"`
}

// Assets resolves dependency job outputs.
type Assets interface {
	Ref(jobID string) (string, bool)
}

// AssetMap is the plain map implementation of Assets.
type AssetMap map[string]string

// Ref returns the output reference recorded for a job.
func (m AssetMap) Ref(jobID string) (string, bool) {
	ref, ok := m[jobID]
	if !ok || ref == "" {
		return "", false
	}
	return ref, true
}

// Build turns a classification and its scene spec into a dispatch request.
// Builders are total: every required asset is resolved here, and an absent
// one fails with a missing-asset error naming the job that should have
// produced it.
func Build(classification Classification, spec *jobstore.VideoSpec, assets Assets) (*Request, error) {
	if spec == nil {
		return nil, services.Wrap(services.ErrValidation, "workflow", "build", "video spec is required", nil)
	}
	req := &Request{
		SceneID:         spec.SceneID,
		Workflow:        classification.Workflow,
		Prompt:          strings.TrimSpace(spec.Prompt),
		DurationSeconds: spec.DurationSeconds,
		AspectRatio:     spec.AspectRatio,
	}

	switch classification.Workflow {
	case Interpolation:
		return buildInterpolation(req, spec, assets)
	case Ingredients:
		return buildIngredients(req, spec, assets)
	case Timestamp:
		return buildTimestamp(req, spec)
	case ImageToVideo:
		return buildImageToVideo(req, spec, assets)
	case TextToVideo:
		return buildTextToVideo(req, spec, assets)
	default:
		return nil, services.Wrap(services.ErrValidation, "workflow", "build", fmt.Sprintf("scene %s: unknown workflow %q", spec.SceneID, classification.Workflow), nil)
	}
}

func buildInterpolation(req *Request, spec *jobstore.VideoSpec, assets Assets) (*Request, error) {
	var err error
	if req.FirstFrameRef, err = requireAsset(assets, spec.FirstFrameJobID, spec.SceneID, "first frame"); err != nil {
		return nil, err
	}
	if req.LastFrameRef, err = requireAsset(assets, spec.LastFrameJobID, spec.SceneID, "last frame"); err != nil {
		return nil, err
	}
	return req, nil
}

func buildIngredients(req *Request, spec *jobstore.VideoSpec, assets Assets) (*Request, error) {
	if len(spec.ReferenceJobIDs) == 0 {
		return nil, missingAsset(spec.SceneID, "subject reference", "<none declared>")
	}
	refs := make(map[string]string, len(spec.ReferenceJobIDs))
	roles := make([]string, 0, len(spec.ReferenceJobIDs))
	for role, jobID := range spec.ReferenceJobIDs {
		ref, err := requireAsset(assets, jobID, spec.SceneID, fmt.Sprintf("reference %q", role))
		if err != nil {
			return nil, err
		}
		refs[role] = ref
		roles = append(roles, role)
	}
	req.ReferenceRefs = refs

	// Ingredients prompts must name each role so the backend binds every
	// reference image to its subject.
	sort.Strings(roles)
	lowered := strings.ToLower(req.Prompt)
	for _, role := range roles {
		if !strings.Contains(lowered, strings.ToLower(role)) {
			req.Prompt += fmt.Sprintf(", featuring %s as shown in the %s reference image", role, role)
		}
	}
	return req, nil
}

func buildTimestamp(req *Request, spec *jobstore.VideoSpec) (*Request, error) {
	if len(spec.Segments) == 0 {
		return nil, missingAsset(spec.SceneID, "timed dialogue segments", "<none declared>")
	}
	req.Segments = append([]jobstore.DialogueSegment(nil), spec.Segments...)

	var lines []string
	for _, segment := range req.Segments {
		lines = append(lines, fmt.Sprintf("[%.1fs - %.1fs] %s", segment.StartSeconds, segment.EndSeconds, strings.TrimSpace(segment.Text)))
	}
	req.Prompt = strings.TrimSpace(req.Prompt + "\n" + strings.Join(lines, "\n"))
	return req, nil
}

func buildImageToVideo(req *Request, spec *jobstore.VideoSpec, assets Assets) (*Request, error) {
	var err error
	if req.FirstFrameRef, err = requireAsset(assets, spec.FirstFrameJobID, spec.SceneID, "starting frame"); err != nil {
		return nil, err
	}
	return req, nil
}

func buildTextToVideo(req *Request, spec *jobstore.VideoSpec, assets Assets) (*Request, error) {
	// Style references only shade the look; a missing one degrades quality,
	// not correctness, so it is skipped rather than fatal.
	for _, jobID := range spec.StyleJobIDs {
		if ref, ok := assets.Ref(jobID); ok {
			req.StyleRefs = append(req.StyleRefs, ref)
		}
	}
	return req, nil
}

func requireAsset(assets Assets, jobID, sceneID, label string) (string, error) {
	if jobID == "" {
		return "", missingAsset(sceneID, label, "<no job wired>")
	}
	ref, ok := assets.Ref(jobID)
	if !ok {
		return "", missingAsset(sceneID, label, jobID)
	}
	return ref, nil
}

func missingAsset(sceneID, label, jobID string) error {
	return services.Wrap(services.ErrMissingAsset, "workflow", "build",
		fmt.Sprintf("scene %s: %s asset missing (job %s)", sceneID, label, jobID), nil)
}
