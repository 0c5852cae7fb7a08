package jobstore

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
)

var statusSet = map[Status]struct{}{
	StatusPending:    {},
	StatusInProgress: {},
	StatusCompleted:  {},
	StatusFailed:     {},
	StatusSkipped:    {},
}

// ParseStatus validates a raw status string.
func ParseStatus(raw string) (Status, error) {
	status := Status(raw)
	if _, ok := statusSet[status]; !ok {
		return "", fmt.Errorf("unknown job status %q", raw)
	}
	return status, nil
}

// Terminal reports whether the status can never change again, except for
// failed jobs re-entering pending through an explicit retry.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusSkipped
}

// Type identifies which asset a job produces.
type Type string

const (
	TypeCharacter Type = "character"
	TypeImage     Type = "image"
	TypeVideo     Type = "video"
	TypeAudio     Type = "audio"
	TypePost      Type = "post_production"
)

var typeSet = map[Type]struct{}{
	TypeCharacter: {},
	TypeImage:     {},
	TypeVideo:     {},
	TypeAudio:     {},
	TypePost:      {},
}

// ParseType validates a raw job type string.
func ParseType(raw string) (Type, error) {
	jobType := Type(raw)
	if _, ok := typeSet[jobType]; !ok {
		return "", fmt.Errorf("unknown job type %q", raw)
	}
	return jobType, nil
}

// CharacterSpec asks for a character reference sheet used to keep a subject
// consistent across downstream shots.
type CharacterSpec struct {
	Name        string `json:"name"`
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
}

// ImageSpec asks for a still frame. Kind distinguishes boundary frames fed
// into interpolation from style references.
type ImageSpec struct {
	SceneID         string   `json:"scene_id"`
	Kind            string   `json:"kind"`
	Prompt          string   `json:"prompt"`
	AspectRatio     string   `json:"aspect_ratio,omitempty"`
	CharacterJobIDs []string `json:"character_job_ids,omitempty"`
}

// Image kinds.
const (
	ImageKindFirstFrame = "first_frame"
	ImageKindLastFrame  = "last_frame"
	ImageKindStyle      = "style"
)

// DialogueSegment is one timed line inside a scene. Boundaries are seconds
// from scene start.
type DialogueSegment struct {
	StartSeconds float64 `json:"start_seconds"`
	EndSeconds   float64 `json:"end_seconds"`
	Text         string  `json:"text"`
	Speaker      string  `json:"speaker,omitempty"`
}

// VideoSpec asks for a generated clip. Which reference fields must be set
// depends on the workflow chosen for the scene; the workflow package owns
// those rules.
type VideoSpec struct {
	SceneID         string            `json:"scene_id"`
	Prompt          string            `json:"prompt"`
	DurationSeconds float64           `json:"duration_seconds"`
	AspectRatio     string            `json:"aspect_ratio,omitempty"`
	Workflow        string            `json:"workflow,omitempty"`
	FirstFrameJobID string            `json:"first_frame_job_id,omitempty"`
	LastFrameJobID  string            `json:"last_frame_job_id,omitempty"`
	ReferenceJobIDs map[string]string `json:"reference_job_ids,omitempty"`
	StyleJobIDs     []string          `json:"style_job_ids,omitempty"`
	Segments        []DialogueSegment `json:"segments,omitempty"`
}

// AudioSpec asks for synthesized speech for a scene.
type AudioSpec struct {
	SceneID string `json:"scene_id"`
	Text    string `json:"text"`
	Voice   string `json:"voice,omitempty"`
}

// PostSpec asks for final assembly of rendered clips and audio tracks.
type PostSpec struct {
	VideoJobIDs []string `json:"video_job_ids"`
	AudioJobIDs []string `json:"audio_job_ids,omitempty"`
	Container   string   `json:"container,omitempty"`
}

// Payload is a closed union: exactly one field is set and it must agree with
// the job type. The populated key doubles as the persisted tag, so decoding a
// row written by a different schema generation fails loudly instead of
// producing a half-filled spec.
type Payload struct {
	Character *CharacterSpec `json:"character,omitempty"`
	Image     *ImageSpec     `json:"image,omitempty"`
	Video     *VideoSpec     `json:"video,omitempty"`
	Audio     *AudioSpec     `json:"audio,omitempty"`
	Post      *PostSpec      `json:"post_production,omitempty"`
}

// Validate checks that the payload carries exactly the spec its job type
// requires.
func (p Payload) Validate(jobType Type) error {
	set := 0
	if p.Character != nil {
		set++
	}
	if p.Image != nil {
		set++
	}
	if p.Video != nil {
		set++
	}
	if p.Audio != nil {
		set++
	}
	if p.Post != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("payload must carry exactly one spec, found %d", set)
	}
	var match bool
	switch jobType {
	case TypeCharacter:
		match = p.Character != nil
	case TypeImage:
		match = p.Image != nil
	case TypeVideo:
		match = p.Video != nil
	case TypeAudio:
		match = p.Audio != nil
	case TypePost:
		match = p.Post != nil
	default:
		return fmt.Errorf("unknown job type %q", jobType)
	}
	if !match {
		return fmt.Errorf("payload spec does not match job type %q", jobType)
	}
	return nil
}

// Job is one node of a project's generation DAG.
type Job struct {
	ProjectID    string    `json:"project_id"`
	ID           string    `json:"id"`
	Type         Type      `json:"type"`
	Status       Status    `json:"status"`
	DependsOn    []string  `json:"depends_on,omitempty"`
	Attempts     int       `json:"attempts"`
	Payload      Payload   `json:"payload"`
	ErrorMessage string    `json:"error_message,omitempty"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	OutputRef    string    `json:"output_ref,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PipelineState is one resume snapshot. Snapshots are append-only; loading
// returns the newest one and earlier rows stay untouched as history.
type PipelineState struct {
	ProjectID  string          `json:"project_id"`
	JobIDs     []string        `json:"job_ids"`
	StagesDone []string        `json:"stages_done,omitempty"`
	Plan       json.RawMessage `json:"plan,omitempty"`

	// Seq and CreatedAt are assigned by the store on save.
	Seq       int64     `json:"-"`
	CreatedAt time.Time `json:"-"`
}

// StageDone reports whether the named stage was recorded as finished.
func (s PipelineState) StageDone(name string) bool {
	for _, done := range s.StagesDone {
		if done == name {
			return true
		}
	}
	return false
}

// WithStageDone returns a copy with the stage appended. The receiver is not
// modified; snapshots already persisted must never change.
func (s PipelineState) WithStageDone(name string) PipelineState {
	if s.StageDone(name) {
		return s
	}
	next := s
	next.StagesDone = append(append([]string(nil), s.StagesDone...), name)
	return next
}
