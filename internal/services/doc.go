// Package services defines shared utilities consumed by the orchestrator and
// external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp project IDs, job IDs, stage names, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that classify failures
//     into the retry taxonomy the orchestrator enforces (permanent vs
//     retryable vs fatal).
//
// Use these helpers when wiring new components so operational behaviour
// (error handling, observability, retries) stays uniform across the pipeline.
package services
