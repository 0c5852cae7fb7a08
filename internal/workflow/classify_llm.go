package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"reelforge/internal/logging"
	"reelforge/internal/services/llm"
)

// interpolationRubricThreshold is the minimum rubric score that selects
// interpolation over ingredients.
const interpolationRubricThreshold = 3

// LLMSelector resolves the interpolation-versus-ingredients ambiguity with a
// reasoning model. Every other case defers to the rule selector: the rubric
// only exists to break that one tie, because those two strategies are
// mutually exclusive and structurally indistinguishable when a scene has
// both keyframes and voiced subject references.
type LLMSelector struct {
	rule   *RuleSelector
	client *llm.Client
	logger *slog.Logger
}

// Select scores the scene against the interpolation rubric when both
// candidates are supported. Collaborator failures degrade to rule selection
// with a warning; a scene is never failed because the model was unreachable.
func (s *LLMSelector) Select(ctx context.Context, facts SceneFacts) (Classification, error) {
	eligible := s.rule.eligible(facts)
	if !containsType(eligible, Interpolation) || !containsType(eligible, Ingredients) {
		return s.rule.configDefault(facts), nil
	}

	result, err := s.client.EvaluateRubric(ctx, facts.Description())
	if err != nil {
		s.logger.Warn("interpolation rubric evaluation failed; using rule selection",
			logging.String(logging.FieldDecisionType, "workflow_selection"),
			logging.String("scene_id", facts.SceneID),
			logging.Error(err))
		classification := s.rule.configDefault(facts)
		classification.Warnings = append(classification.Warnings,
			"reasoning collaborator unavailable; used rule-based selection")
		return classification, nil
	}

	score := result.Criteria.Score()
	classification := Classification{SceneID: facts.SceneID}
	if score >= interpolationRubricThreshold {
		classification.Workflow = Interpolation
	} else {
		classification.Workflow = Ingredients
	}
	classification.Reason = fmt.Sprintf("interpolation rubric %d/%d", score, llm.RubricTotal)
	if result.Notes != "" {
		classification.Reason += ": " + result.Notes
	}

	s.logger.Debug("workflow rubric evaluated",
		logging.String(logging.FieldDecisionType, "workflow_selection"),
		logging.String("scene_id", facts.SceneID),
		logging.Int("rubric_score", score),
		logging.String("chosen", string(classification.Workflow)))
	return classification, nil
}
