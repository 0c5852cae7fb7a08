// Package orchestrator dispatches a project's generation DAG.
//
// RunStage drains one pipeline stage at a time: jobs whose dependencies have
// settled run concurrently on a bounded pool, retryable failures re-enter the
// queue with exponential backoff, and permanent failures skip their pending
// dependents so one bad scene cannot wedge the whole project.
//
// The event loop owns all scheduling state. Workers only execute requests and
// report back over a channel, which keeps the job store single-writer and the
// bookkeeping free of locks.
//
// Cancellation is cooperative. Stopping the run context halts new dispatches
// while in-flight jobs finish against their own per-job deadline, and every
// outcome is persisted before RunStage returns.
package orchestrator
