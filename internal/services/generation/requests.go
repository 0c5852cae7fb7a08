package generation

import (
	"reelforge/internal/assetcache"
	"reelforge/internal/jobstore"
	"reelforge/internal/workflow"
)

// ImageRequest asks the backend for one still image. Character paths point
// at previously generated portraits the image should stay consistent with.
type ImageRequest struct {
	Prompt         string   `json:"prompt"`
	AspectRatio    string   `json:"aspect_ratio,omitempty"`
	Kind           string   `json:"kind,omitempty"`
	CharacterPaths []string `json:"character_paths,omitempty"`
}

// VideoRequest carries a validated workflow request with every asset
// reference resolved to an absolute path the backend can read.
type VideoRequest struct {
	SceneID         string                     `json:"scene_id"`
	Workflow        string                     `json:"workflow"`
	Prompt          string                     `json:"prompt"`
	DurationSeconds float64                    `json:"duration_seconds"`
	AspectRatio     string                     `json:"aspect_ratio,omitempty"`
	FirstFramePath  string                     `json:"first_frame_path,omitempty"`
	LastFramePath   string                     `json:"last_frame_path,omitempty"`
	ReferencePaths  map[string]string          `json:"reference_paths,omitempty"`
	StylePaths      []string                   `json:"style_paths,omitempty"`
	Segments        []jobstore.DialogueSegment `json:"segments,omitempty"`
}

// NewVideoRequest resolves a built workflow request against the cache.
func NewVideoRequest(req *workflow.Request, cache *assetcache.Manager) VideoRequest {
	out := VideoRequest{
		SceneID:         req.SceneID,
		Workflow:        string(req.Workflow),
		Prompt:          req.Prompt,
		DurationSeconds: req.DurationSeconds,
		AspectRatio:     req.AspectRatio,
		Segments:        req.Segments,
	}
	if req.FirstFrameRef != "" {
		out.FirstFramePath = cache.Resolve(req.FirstFrameRef)
	}
	if req.LastFrameRef != "" {
		out.LastFramePath = cache.Resolve(req.LastFrameRef)
	}
	if len(req.ReferenceRefs) > 0 {
		out.ReferencePaths = make(map[string]string, len(req.ReferenceRefs))
		for role, ref := range req.ReferenceRefs {
			out.ReferencePaths[role] = cache.Resolve(ref)
		}
	}
	for _, ref := range req.StyleRefs {
		out.StylePaths = append(out.StylePaths, cache.Resolve(ref))
	}
	return out
}

// SpeechRequest asks the backend for narration audio.
type SpeechRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

// AssembleRequest stitches finished clips, in order, into one deliverable.
type AssembleRequest struct {
	VideoPaths []string `json:"video_paths"`
	AudioPaths []string `json:"audio_paths,omitempty"`
	Container  string   `json:"container"`
}
