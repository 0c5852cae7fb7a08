package preflight

import (
	"context"
	"strings"

	"reelforge/internal/config"
	"reelforge/internal/workflow"
)

// CheckGenerationFromConfig evaluates generation backend status from config
// and connectivity.
func CheckGenerationFromConfig(cfg *config.Config) Result {
	const name = "Generation backend"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	if strings.TrimSpace(cfg.Generation.BaseURL) == "" {
		return Result{Name: name, Detail: "Missing base URL"}
	}
	return CheckGeneration(context.Background(), cfg)
}

// CheckLLMFromConfig evaluates selector LLM status from config and
// connectivity. Selection modes that never call the model report as passed.
func CheckLLMFromConfig(cfg *config.Config) Result {
	const name = "Workflow selector LLM"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	if cfg.Workflow.SelectionMode != workflow.ModeLLMIntelligent {
		return Result{Name: name, Passed: true, Detail: "Not used by selection mode " + cfg.Workflow.SelectionMode}
	}
	if strings.TrimSpace(cfg.LLM.APIKey) == "" {
		return Result{Name: name, Detail: "Missing API key"}
	}
	return CheckLLM(context.Background(), name, cfg.GetLLM())
}
