package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"reelforge/internal/jobstore"
	"reelforge/internal/logging"
	"reelforge/internal/services"
	"reelforge/internal/services/generation"
	"reelforge/internal/workflow"
)

// executeJob runs one claimed job against the backend and returns the cache
// ref of its output. For video jobs the second return names the workflow the
// selector chose; other types leave it empty.
func (o *Orchestrator) executeJob(ctx context.Context, job *jobstore.Job, deps map[string]*jobstore.Job) (string, string, error) {
	logger := logging.WithContext(ctx, o.logger).With(
		logging.String(logging.FieldJobType, string(job.Type)))

	switch job.Type {
	case jobstore.TypeCharacter:
		ref, err := o.runCharacter(ctx, job)
		return ref, "", err
	case jobstore.TypeImage:
		ref, err := o.runImage(ctx, job, deps)
		return ref, "", err
	case jobstore.TypeAudio:
		ref, err := o.runAudio(ctx, job)
		return ref, "", err
	case jobstore.TypeVideo:
		return o.runVideo(ctx, logger, job, deps)
	case jobstore.TypePost:
		ref, err := o.runPost(ctx, job, deps)
		return ref, "", err
	default:
		return "", "", services.Wrap(services.ErrInvalidRequest, "orchestrator", "execute",
			fmt.Sprintf("job %s has unknown type %q", job.ID, job.Type), nil)
	}
}

func (o *Orchestrator) runCharacter(ctx context.Context, job *jobstore.Job) (string, error) {
	spec := job.Payload.Character
	if spec == nil {
		return "", missingSpec(job)
	}
	asset, err := o.backend.GenerateImage(ctx, generation.ImageRequest{
		Prompt:      spec.Prompt,
		AspectRatio: spec.AspectRatio,
		Kind:        "character",
	})
	if err != nil {
		return "", err
	}
	return asset.Ref, nil
}

func (o *Orchestrator) runImage(ctx context.Context, job *jobstore.Job, deps map[string]*jobstore.Job) (string, error) {
	spec := job.Payload.Image
	if spec == nil {
		return "", missingSpec(job)
	}
	req := generation.ImageRequest{
		Prompt:      spec.Prompt,
		AspectRatio: spec.AspectRatio,
		Kind:        spec.Kind,
	}
	// Character sheets keep subjects consistent across shots. A skipped
	// sheet degrades the frame instead of blocking it.
	for _, depID := range spec.CharacterJobIDs {
		if ref, ok := depOutput(deps, depID); ok {
			req.CharacterPaths = append(req.CharacterPaths, o.cache.Resolve(ref))
		}
	}
	asset, err := o.backend.GenerateImage(ctx, req)
	if err != nil {
		return "", err
	}
	return asset.Ref, nil
}

func (o *Orchestrator) runAudio(ctx context.Context, job *jobstore.Job) (string, error) {
	spec := job.Payload.Audio
	if spec == nil {
		return "", missingSpec(job)
	}
	asset, err := o.backend.GenerateSpeech(ctx, generation.SpeechRequest{
		Text:  spec.Text,
		Voice: spec.Voice,
	})
	if err != nil {
		return "", err
	}
	return asset.Ref, nil
}

func (o *Orchestrator) runVideo(ctx context.Context, logger *slog.Logger, job *jobstore.Job, deps map[string]*jobstore.Job) (string, string, error) {
	spec := job.Payload.Video
	if spec == nil {
		return "", "", missingSpec(job)
	}

	facts := workflow.FactsFromSpec(spec, func(jobID string) bool {
		_, ok := depOutput(deps, jobID)
		return ok
	})
	if facts.HasFirstFrame {
		facts.FirstFramePrompt = imagePrompt(deps, spec.FirstFrameJobID)
	}
	if facts.HasLastFrame {
		facts.LastFramePrompt = imagePrompt(deps, spec.LastFrameJobID)
	}

	classification, err := o.selector.Select(ctx, facts)
	if err != nil {
		return "", "", err
	}
	chosen := string(classification.Workflow)
	o.collector.RecordSelection(chosen)
	logger.Info("workflow selected",
		logging.Args(logging.DecisionAttrs("workflow_selection", chosen, classification.Reason)...)...)
	for _, warning := range classification.Warnings {
		logger.Warn("workflow selection warning",
			logging.Alert("workflow_selection"),
			logging.String("detail", warning))
	}

	assets := make(workflow.AssetMap, len(deps))
	for depID := range deps {
		if ref, ok := depOutput(deps, depID); ok {
			assets[depID] = ref
		}
	}
	req, err := workflow.Build(classification, spec, assets)
	if err != nil {
		return "", chosen, err
	}
	if err := workflow.Validate(req, o.limits); err != nil {
		return "", chosen, err
	}

	asset, err := o.backend.GenerateVideo(ctx, generation.NewVideoRequest(req, o.cache))
	if err != nil {
		return "", chosen, err
	}
	return asset.Ref, chosen, nil
}

func (o *Orchestrator) runPost(ctx context.Context, job *jobstore.Job, deps map[string]*jobstore.Job) (string, error) {
	spec := job.Payload.Post
	if spec == nil {
		return "", missingSpec(job)
	}
	req := generation.AssembleRequest{Container: spec.Container}
	if req.Container == "" {
		req.Container = "mp4"
	}
	for _, depID := range spec.VideoJobIDs {
		ref, ok := depOutput(deps, depID)
		if !ok {
			return "", services.Wrap(services.ErrMissingAsset, "orchestrator", "assemble",
				fmt.Sprintf("job %s: clip from %s is unavailable", job.ID, depID), nil)
		}
		req.VideoPaths = append(req.VideoPaths, o.cache.Resolve(ref))
	}
	// Narration tracks are optional in the deliverable. A skipped track
	// drops out of the mix.
	for _, depID := range spec.AudioJobIDs {
		if ref, ok := depOutput(deps, depID); ok {
			req.AudioPaths = append(req.AudioPaths, o.cache.Resolve(ref))
		}
	}
	asset, err := o.backend.Assemble(ctx, req)
	if err != nil {
		return "", err
	}
	return asset.Ref, nil
}

// depOutput returns the cache ref a dependency produced, if it completed.
func depOutput(deps map[string]*jobstore.Job, jobID string) (string, bool) {
	dep, ok := deps[jobID]
	if !ok || dep.Status != jobstore.StatusCompleted || dep.OutputRef == "" {
		return "", false
	}
	return dep.OutputRef, true
}

// imagePrompt pulls a keyframe dependency's prompt for the rubric.
func imagePrompt(deps map[string]*jobstore.Job, jobID string) string {
	if jobID == "" {
		return ""
	}
	dep, ok := deps[jobID]
	if !ok || dep.Payload.Image == nil {
		return ""
	}
	return dep.Payload.Image.Prompt
}

func missingSpec(job *jobstore.Job) error {
	return services.Wrap(services.ErrInvalidRequest, "orchestrator", "execute",
		fmt.Sprintf("job %s payload does not carry a %s spec", job.ID, job.Type), nil)
}
