package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"reelforge/internal/services"
)

// DefaultAspectRatio applies when neither the manifest nor a scene declares
// one.
const DefaultAspectRatio = "16:9"

// Manifest is the upstream-produced description of everything a project
// needs generated.
type Manifest struct {
	ProjectID   string          `json:"project_id"`
	Title       string          `json:"title,omitempty"`
	AspectRatio string          `json:"aspect_ratio,omitempty"`
	Characters  []Character     `json:"characters,omitempty"`
	Styles      []Style         `json:"styles,omitempty"`
	Scenes      []Scene         `json:"scenes"`
	Post        *PostProduction `json:"post_production,omitempty"`
}

// Character describes a subject that must stay visually consistent across
// scenes. Its reference sheet is generated once and reused.
type Character struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Prompt string `json:"prompt"`
}

// Style describes a reference image that influences look, not motion.
type Style struct {
	ID     string `json:"id"`
	Prompt string `json:"prompt"`
}

// Keyframe requests a boundary frame for a scene.
type Keyframe struct {
	Prompt string `json:"prompt"`
}

// DialogueLine is one timed utterance. Boundaries are seconds from scene
// start.
type DialogueLine struct {
	StartSeconds float64 `json:"start_seconds"`
	EndSeconds   float64 `json:"end_seconds"`
	Text         string  `json:"text"`
	Speaker      string  `json:"speaker,omitempty"`
}

// Narration requests a synthesized voice track for a scene.
type Narration struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

// Scene is one clip to generate. DependsOn names scenes whose clips must
// exist first, for continuity shots that feed later prompts.
type Scene struct {
	ID              string         `json:"id"`
	Prompt          string         `json:"prompt"`
	DurationSeconds float64        `json:"duration_seconds"`
	AspectRatio     string         `json:"aspect_ratio,omitempty"`
	Transition      string         `json:"transition,omitempty"`
	FirstFrame      *Keyframe      `json:"first_frame,omitempty"`
	LastFrame       *Keyframe      `json:"last_frame,omitempty"`
	CharacterIDs    []string       `json:"character_ids,omitempty"`
	StyleIDs        []string       `json:"style_ids,omitempty"`
	Dialogue        []DialogueLine `json:"dialogue,omitempty"`
	Narration       *Narration     `json:"narration,omitempty"`
	DependsOn       []string       `json:"depends_on,omitempty"`
}

// HasDialogue reports whether the scene carries any timed lines.
func (s Scene) HasDialogue() bool {
	return len(s.Dialogue) > 0
}

// PostProduction requests final assembly of the rendered clips.
type PostProduction struct {
	Container string `json:"container,omitempty"`
}

// Load reads and validates a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates raw manifest JSON.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, services.Wrap(services.ErrValidation, "manifest", "parse", "decode manifest JSON", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks structural integrity: required fields, unique identifiers,
// and that every cross-reference names something that exists.
func (m *Manifest) Validate() error {
	fail := func(msg string) error {
		return services.Wrap(services.ErrValidation, "manifest", "validate", msg, nil)
	}

	if strings.TrimSpace(m.ProjectID) == "" {
		return fail("project_id is required")
	}
	if len(m.Scenes) == 0 {
		return fail("at least one scene is required")
	}

	characters := make(map[string]struct{}, len(m.Characters))
	for _, character := range m.Characters {
		if strings.TrimSpace(character.ID) == "" {
			return fail("character id is required")
		}
		if _, dup := characters[character.ID]; dup {
			return fail(fmt.Sprintf("duplicate character id %q", character.ID))
		}
		if strings.TrimSpace(character.Prompt) == "" {
			return fail(fmt.Sprintf("character %q needs a prompt", character.ID))
		}
		characters[character.ID] = struct{}{}
	}

	styles := make(map[string]struct{}, len(m.Styles))
	for _, style := range m.Styles {
		if strings.TrimSpace(style.ID) == "" {
			return fail("style id is required")
		}
		if _, dup := styles[style.ID]; dup {
			return fail(fmt.Sprintf("duplicate style id %q", style.ID))
		}
		if strings.TrimSpace(style.Prompt) == "" {
			return fail(fmt.Sprintf("style %q needs a prompt", style.ID))
		}
		styles[style.ID] = struct{}{}
	}

	scenes := make(map[string]struct{}, len(m.Scenes))
	for _, scene := range m.Scenes {
		if strings.TrimSpace(scene.ID) == "" {
			return fail("scene id is required")
		}
		if _, dup := scenes[scene.ID]; dup {
			return fail(fmt.Sprintf("duplicate scene id %q", scene.ID))
		}
		scenes[scene.ID] = struct{}{}
	}

	for _, scene := range m.Scenes {
		if strings.TrimSpace(scene.Prompt) == "" {
			return fail(fmt.Sprintf("scene %q needs a prompt", scene.ID))
		}
		if scene.DurationSeconds <= 0 {
			return fail(fmt.Sprintf("scene %q duration must be positive", scene.ID))
		}
		if scene.FirstFrame != nil && strings.TrimSpace(scene.FirstFrame.Prompt) == "" {
			return fail(fmt.Sprintf("scene %q first_frame needs a prompt", scene.ID))
		}
		if scene.LastFrame != nil && strings.TrimSpace(scene.LastFrame.Prompt) == "" {
			return fail(fmt.Sprintf("scene %q last_frame needs a prompt", scene.ID))
		}
		for _, characterID := range scene.CharacterIDs {
			if _, ok := characters[characterID]; !ok {
				return fail(fmt.Sprintf("scene %q references unknown character %q", scene.ID, characterID))
			}
		}
		for _, styleID := range scene.StyleIDs {
			if _, ok := styles[styleID]; !ok {
				return fail(fmt.Sprintf("scene %q references unknown style %q", scene.ID, styleID))
			}
		}
		for _, depID := range scene.DependsOn {
			if depID == scene.ID {
				return fail(fmt.Sprintf("scene %q depends on itself", scene.ID))
			}
			if _, ok := scenes[depID]; !ok {
				return fail(fmt.Sprintf("scene %q depends on unknown scene %q", scene.ID, depID))
			}
		}
		for i, line := range scene.Dialogue {
			if strings.TrimSpace(line.Text) == "" {
				return fail(fmt.Sprintf("scene %q dialogue line %d needs text", scene.ID, i))
			}
			if line.StartSeconds < 0 || line.EndSeconds <= line.StartSeconds {
				return fail(fmt.Sprintf("scene %q dialogue line %d has invalid bounds", scene.ID, i))
			}
		}
		if scene.Narration != nil && strings.TrimSpace(scene.Narration.Text) == "" {
			return fail(fmt.Sprintf("scene %q narration needs text", scene.ID))
		}
	}

	return nil
}

// aspectRatioFor resolves the effective aspect ratio for a scene.
func (m *Manifest) aspectRatioFor(scene Scene) string {
	if scene.AspectRatio != "" {
		return scene.AspectRatio
	}
	if m.AspectRatio != "" {
		return m.AspectRatio
	}
	return DefaultAspectRatio
}
