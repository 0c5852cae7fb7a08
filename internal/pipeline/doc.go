// Package pipeline drives a project through its generation stages: plan,
// characters, images, video, and post. The driver owns the run-scoped
// concerns the per-stage scheduler does not: the single-writer lock,
// preflight checks, resume snapshots, the success-rate gate, metrics
// export, and cache pruning.
//
// Runs are resumable by construction. Every job transition is persisted
// before the driver advances, so Resume replays all stages against the
// ledger and only unfinished work executes again.
package pipeline
