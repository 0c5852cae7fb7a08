// Package jobstore persists generation jobs and pipeline state snapshots in
// SQLite.
//
// The Store owns durable primitives: schema management, job rows keyed by
// (project, id), and an append-only pipeline_states table whose latest row is
// the resume point. The Tracker layers the legal lifecycle transitions on
// top: claim is an atomic pending->in_progress compare-and-set, completed
// rows are immutable, and failed jobs re-enter pending only through an
// explicit retry that increments the attempt counter.
//
// Payloads are a closed tagged union serialized as JSON. A row whose payload
// cannot be decoded, or whose tag disagrees with the job type, surfaces
// services.ErrStoreCorruption so runs abort instead of guessing.
package jobstore
