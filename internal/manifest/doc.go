// Package manifest defines the upstream-produced project description and
// turns it into the job DAG the orchestrator executes.
//
// A manifest lists characters, optional style references, and scenes with
// their keyframes, dialogue, narration, and explicit ordering constraints.
// Parsing validates every cross-reference up front; building derives one job
// per requested asset with dependencies wired so nothing dispatches before
// the assets it consumes exist.
//
// # Key Types
//
// Manifest: root container with ProjectID, Characters, Styles, Scenes, and
// optional PostProduction.
//
// Scene: one clip to generate, with duration, optional first/last keyframes,
// character and style references, timed dialogue, and depends_on scene ids.
//
// # Entry Points
//
// Load/Parse: read and validate a manifest from disk or raw JSON.
// BuildJobs: derive the full job set, acyclicity checked before return.
// VerifyAcyclic: standalone DAG check used again on resume as a safety net
// against hand-edited ledgers.
//
// Job identifiers are deterministic (char-<id>, img-<scene>-first, vid-<scene>,
// aud-<scene>, style-<id>, post-final) so resume and status output are stable
// across runs of the same manifest.
package manifest
