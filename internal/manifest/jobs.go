package manifest

import (
	"fmt"
	"sort"
	"strings"

	"reelforge/internal/jobstore"
	"reelforge/internal/services"
)

// Deterministic job identifiers. Stable names keep resume and status output
// comparable across runs of the same manifest.
func CharacterJobID(characterID string) string { return "char-" + characterID }
func StyleJobID(styleID string) string         { return "style-" + styleID }
func AudioJobID(sceneID string) string         { return "aud-" + sceneID }
func VideoJobID(sceneID string) string         { return "vid-" + sceneID }

// FrameJobID names a boundary-frame job for a scene.
func FrameJobID(sceneID, kind string) string {
	if kind == jobstore.ImageKindLastFrame {
		return "img-" + sceneID + "-last"
	}
	return "img-" + sceneID + "-first"
}

// PostJobID names the single final-assembly job.
const PostJobID = "post-final"

// BuildJobs derives the project's full job DAG. The returned set is verified
// acyclic; a manifest that cannot be scheduled never produces jobs.
func BuildJobs(m *Manifest) ([]jobstore.Job, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	var jobs []jobstore.Job

	characterJobIDs := make(map[string]string, len(m.Characters))
	for _, character := range m.Characters {
		jobID := CharacterJobID(character.ID)
		characterJobIDs[character.ID] = jobID
		jobs = append(jobs, jobstore.Job{
			ID:   jobID,
			Type: jobstore.TypeCharacter,
			Payload: jobstore.Payload{
				Character: &jobstore.CharacterSpec{
					Name:        characterName(character),
					Prompt:      character.Prompt,
					AspectRatio: DefaultAspectRatio,
				},
			},
		})
	}

	styleJobIDs := make(map[string]string, len(m.Styles))
	for _, style := range m.Styles {
		jobID := StyleJobID(style.ID)
		styleJobIDs[style.ID] = jobID
		jobs = append(jobs, jobstore.Job{
			ID:   jobID,
			Type: jobstore.TypeImage,
			Payload: jobstore.Payload{
				Image: &jobstore.ImageSpec{
					Kind:   jobstore.ImageKindStyle,
					Prompt: style.Prompt,
				},
			},
		})
	}

	var (
		videoJobIDs []string
		audioJobIDs []string
	)
	for _, scene := range m.Scenes {
		aspectRatio := m.aspectRatioFor(scene)

		sceneCharacterJobs := make([]string, 0, len(scene.CharacterIDs))
		referenceJobIDs := make(map[string]string, len(scene.CharacterIDs))
		for _, characterID := range scene.CharacterIDs {
			jobID := characterJobIDs[characterID]
			sceneCharacterJobs = append(sceneCharacterJobs, jobID)
			referenceJobIDs[characterID] = jobID
		}
		sceneStyleJobs := make([]string, 0, len(scene.StyleIDs))
		for _, styleID := range scene.StyleIDs {
			sceneStyleJobs = append(sceneStyleJobs, styleJobIDs[styleID])
		}

		videoDeps := append([]string(nil), sceneCharacterJobs...)
		videoDeps = append(videoDeps, sceneStyleJobs...)

		var firstFrameJobID, lastFrameJobID string
		if scene.FirstFrame != nil {
			firstFrameJobID = FrameJobID(scene.ID, jobstore.ImageKindFirstFrame)
			jobs = append(jobs, frameJob(firstFrameJobID, scene.ID, jobstore.ImageKindFirstFrame, scene.FirstFrame.Prompt, aspectRatio, sceneCharacterJobs))
			videoDeps = append(videoDeps, firstFrameJobID)
		}
		if scene.LastFrame != nil {
			lastFrameJobID = FrameJobID(scene.ID, jobstore.ImageKindLastFrame)
			jobs = append(jobs, frameJob(lastFrameJobID, scene.ID, jobstore.ImageKindLastFrame, scene.LastFrame.Prompt, aspectRatio, sceneCharacterJobs))
			videoDeps = append(videoDeps, lastFrameJobID)
		}

		if scene.Narration != nil {
			audioJobID := AudioJobID(scene.ID)
			audioJobIDs = append(audioJobIDs, audioJobID)
			jobs = append(jobs, jobstore.Job{
				ID:   audioJobID,
				Type: jobstore.TypeAudio,
				Payload: jobstore.Payload{
					Audio: &jobstore.AudioSpec{
						SceneID: scene.ID,
						Text:    scene.Narration.Text,
						Voice:   scene.Narration.Voice,
					},
				},
			})
		}

		for _, depSceneID := range scene.DependsOn {
			videoDeps = append(videoDeps, VideoJobID(depSceneID))
		}

		videoJobID := VideoJobID(scene.ID)
		videoJobIDs = append(videoJobIDs, videoJobID)
		jobs = append(jobs, jobstore.Job{
			ID:        videoJobID,
			Type:      jobstore.TypeVideo,
			DependsOn: videoDeps,
			Payload: jobstore.Payload{
				Video: &jobstore.VideoSpec{
					SceneID:         scene.ID,
					Prompt:          scene.Prompt,
					DurationSeconds: scene.DurationSeconds,
					AspectRatio:     aspectRatio,
					Workflow:        strings.TrimSpace(strings.ToLower(scene.Transition)),
					FirstFrameJobID: firstFrameJobID,
					LastFrameJobID:  lastFrameJobID,
					ReferenceJobIDs: nilIfEmptyMap(referenceJobIDs),
					StyleJobIDs:     nilIfEmpty(sceneStyleJobs),
					Segments:        dialogueSegments(scene.Dialogue),
				},
			},
		})
	}

	if m.Post != nil {
		postDeps := append(append([]string(nil), videoJobIDs...), audioJobIDs...)
		jobs = append(jobs, jobstore.Job{
			ID:        PostJobID,
			Type:      jobstore.TypePost,
			DependsOn: postDeps,
			Payload: jobstore.Payload{
				Post: &jobstore.PostSpec{
					VideoJobIDs: videoJobIDs,
					AudioJobIDs: nilIfEmpty(audioJobIDs),
					Container:   m.Post.Container,
				},
			},
		})
	}

	if err := VerifyAcyclic(jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// VerifyAcyclic runs Kahn's algorithm over the job set. Unknown dependency
// references are validation errors; a cycle names its members so the operator
// can fix the manifest instead of guessing.
func VerifyAcyclic(jobs []jobstore.Job) error {
	ids := make(map[string]struct{}, len(jobs))
	for _, job := range jobs {
		ids[job.ID] = struct{}{}
	}

	indegree := make(map[string]int, len(jobs))
	dependents := make(map[string][]string, len(jobs))
	for _, job := range jobs {
		if _, ok := indegree[job.ID]; !ok {
			indegree[job.ID] = 0
		}
		for _, depID := range job.DependsOn {
			if _, ok := ids[depID]; !ok {
				return services.Wrap(services.ErrValidation, "manifest", "verify dag", fmt.Sprintf("job %q depends on unknown job %q", job.ID, depID), nil)
			}
			indegree[job.ID]++
			dependents[depID] = append(dependents[depID], job.ID)
		}
	}

	ready := make([]string, 0, len(jobs))
	for _, job := range jobs {
		if indegree[job.ID] == 0 {
			ready = append(ready, job.ID)
		}
	}

	processed := 0
	for len(ready) > 0 {
		jobID := ready[len(ready)-1]
		ready = ready[:len(ready)-1]
		processed++
		for _, dependent := range dependents[jobID] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	if processed != len(jobs) {
		var cycle []string
		for jobID, degree := range indegree {
			if degree > 0 {
				cycle = append(cycle, jobID)
			}
		}
		sort.Strings(cycle)
		return services.Wrap(services.ErrCycleDetected, "manifest", "verify dag", fmt.Sprintf("cycle among jobs: %s", strings.Join(cycle, ", ")), nil)
	}
	return nil
}

func frameJob(jobID, sceneID, kind, prompt, aspectRatio string, characterJobIDs []string) jobstore.Job {
	return jobstore.Job{
		ID:        jobID,
		Type:      jobstore.TypeImage,
		DependsOn: append([]string(nil), characterJobIDs...),
		Payload: jobstore.Payload{
			Image: &jobstore.ImageSpec{
				SceneID:         sceneID,
				Kind:            kind,
				Prompt:          prompt,
				AspectRatio:     aspectRatio,
				CharacterJobIDs: nilIfEmpty(characterJobIDs),
			},
		},
	}
}

func dialogueSegments(lines []DialogueLine) []jobstore.DialogueSegment {
	if len(lines) == 0 {
		return nil
	}
	segments := make([]jobstore.DialogueSegment, 0, len(lines))
	for _, line := range lines {
		segments = append(segments, jobstore.DialogueSegment{
			StartSeconds: line.StartSeconds,
			EndSeconds:   line.EndSeconds,
			Text:         line.Text,
			Speaker:      line.Speaker,
		})
	}
	return segments
}

func characterName(character Character) string {
	if character.Name != "" {
		return character.Name
	}
	return character.ID
}

func nilIfEmpty(list []string) []string {
	if len(list) == 0 {
		return nil
	}
	return list
}

func nilIfEmptyMap(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	return m
}
