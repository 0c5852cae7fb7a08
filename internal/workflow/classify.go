package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"reelforge/internal/config"
	"reelforge/internal/logging"
	"reelforge/internal/services/llm"
)

// Selector chooses a generation strategy for a scene.
type Selector interface {
	Select(ctx context.Context, facts SceneFacts) (Classification, error)
}

// NewSelector builds the selector the config asks for. The reasoning-backed
// selector needs a usable client; without one, selection degrades to the
// rule selector with a warning so runs proceed instead of stalling.
func NewSelector(cfg *config.Config, client *llm.Client, logger *slog.Logger) Selector {
	if logger == nil {
		logger = logging.NewNop()
	}
	rule := &RuleSelector{
		mode:            cfg.Workflow.SelectionMode,
		defaultWorkflow: Type(cfg.Workflow.DefaultWorkflow),
		enabled:         enabledSet(cfg.Workflow.EnabledWorkflows),
	}
	if cfg.Workflow.SelectionMode != ModeLLMIntelligent {
		return rule
	}
	if client == nil || !client.Configured() {
		logger.Warn("reasoning selector unconfigured; using rule selection",
			logging.String(logging.FieldDecisionType, "workflow_selection"))
		return rule
	}
	return &LLMSelector{rule: rule, client: client, logger: logger}
}

// RuleSelector implements the deterministic selection modes.
type RuleSelector struct {
	mode            string
	defaultWorkflow Type
	enabled         map[Type]struct{}
}

// Select applies the configured mode to the scene's structural evidence.
func (s *RuleSelector) Select(_ context.Context, facts SceneFacts) (Classification, error) {
	switch s.mode {
	case ModeAlwaysInterpolation:
		return s.forced(Interpolation, facts), nil
	case ModeAlwaysIngredients:
		return s.forced(Ingredients, facts), nil
	default:
		return s.configDefault(facts), nil
	}
}

func (s *RuleSelector) forced(forcedType Type, facts SceneFacts) Classification {
	classification := Classification{
		SceneID:  facts.SceneID,
		Workflow: forcedType,
		Reason:   fmt.Sprintf("selection mode forces %s", forcedType),
	}
	if _, ok := s.enabled[forcedType]; !ok {
		classification.Warnings = append(classification.Warnings,
			fmt.Sprintf("forced workflow %s is disabled by configuration", forcedType))
	}
	if !structurallySupported(forcedType, facts) {
		classification.Warnings = append(classification.Warnings,
			fmt.Sprintf("forced against structural support: scene lacks the assets %s requires", forcedType))
	}
	return classification
}

func (s *RuleSelector) configDefault(facts SceneFacts) Classification {
	eligible := s.eligible(facts)
	classification := Classification{SceneID: facts.SceneID}

	switch len(eligible) {
	case 0:
		classification.Workflow = TextToVideo
		classification.Reason = "no workflow structurally supported; using text-to-video"
	case 1:
		classification.Workflow = eligible[0]
		classification.Reason = fmt.Sprintf("only %s is structurally supported", eligible[0])
	default:
		classification.Workflow = s.defaultWorkflow
		classification.Reason = fmt.Sprintf("multiple workflows eligible (%s); using configured default %s",
			joinTypes(eligible), s.defaultWorkflow)
	}
	return classification
}

// eligible intersects structural support with the enabled set, in preference
// order.
func (s *RuleSelector) eligible(facts SceneFacts) []Type {
	var eligible []Type
	for _, workflowType := range AllTypes {
		if workflowType == TextToVideo {
			// text_to_video is the fallback, never a structural match.
			continue
		}
		if _, ok := s.enabled[workflowType]; !ok {
			continue
		}
		if structurallySupported(workflowType, facts) {
			eligible = append(eligible, workflowType)
		}
	}
	return eligible
}

// structurallySupported reports whether the scene's available assets can
// feed the strategy.
func structurallySupported(workflowType Type, facts SceneFacts) bool {
	switch workflowType {
	case Interpolation:
		return facts.HasFirstFrame && facts.HasLastFrame
	case Ingredients:
		return facts.ReferenceCount >= 1 && facts.HasDialogue
	case Timestamp:
		return facts.HasDialogue && facts.DeclaredTechnique == Timestamp
	case ImageToVideo:
		return facts.HasFirstFrame && !facts.HasLastFrame
	case TextToVideo:
		return true
	default:
		return false
	}
}

func enabledSet(names []string) map[Type]struct{} {
	set := make(map[Type]struct{}, len(names))
	for _, name := range names {
		if workflowType, err := ParseType(name); err == nil {
			set[workflowType] = struct{}{}
		}
	}
	return set
}

func containsType(list []Type, target Type) bool {
	for _, item := range list {
		if item == target {
			return true
		}
	}
	return false
}

func joinTypes(list []Type) string {
	names := make([]string, len(list))
	for i, item := range list {
		names[i] = string(item)
	}
	return strings.Join(names, ", ")
}
