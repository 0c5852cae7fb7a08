// Package preflight provides readiness checks for the generation backend,
// the reasoning model, and the directories a run writes into.
//
// These checks run in two contexts:
//   - The pipeline driver calls RunAll before starting or resuming a run.
//     If any check fails, the run aborts before a single job is claimed.
//   - The CLI "reelforge status" command uses the FromConfig variants
//     (CheckGenerationFromConfig, CheckLLMFromConfig) to display service
//     health without starting a run.
//
// Each check is gated by its config toggle -- the reasoning model is only
// probed when the selection mode can actually call it.
package preflight
