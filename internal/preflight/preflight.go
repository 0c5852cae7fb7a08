package preflight

import (
	"context"

	"reelforge/internal/config"
	"reelforge/internal/workflow"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// Checks are only run when the corresponding feature is enabled.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	// Directories the run writes into (always checked)
	results = append(results, CheckDirectoryAccess("Data directory", cfg.Paths.DataDir))
	results = append(results, CheckDirectoryAccess("Cache directory", cfg.Paths.CacheDir))

	// Generation backend (always checked; every job type calls it)
	results = append(results, CheckGeneration(ctx, cfg))

	// Selector LLM (only the intelligent mode calls the reasoning model)
	if cfg.Workflow.SelectionMode == workflow.ModeLLMIntelligent {
		results = append(results, CheckLLM(ctx, "Workflow selector LLM", cfg.GetLLM()))
	}

	return results
}
