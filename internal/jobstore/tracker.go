package jobstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotClaimable signals a claim race: the job exists but is no longer
// pending. Workers treat it as "someone else got there first", not a failure.
var ErrNotClaimable = errors.New("job not claimable")

// ErrInvalidTransition signals a lifecycle update from the wrong state, such
// as completing a job that was never claimed. Completed rows are immutable,
// so these are bugs in the caller rather than recoverable conditions.
var ErrInvalidTransition = errors.New("invalid job transition")

// SkippedDependencyKind is the error kind recorded when a job is skipped
// because an ancestor failed permanently.
const SkippedDependencyKind = "skipped_dependency"

// Tracker applies lifecycle transitions on top of a Store. Every method
// guards the expected source status in its WHERE clause, so concurrent
// workers racing on the same job cannot double-apply a transition.
type Tracker struct {
	store *Store
}

// NewTracker wraps a store with the transition API.
func NewTracker(store *Store) *Tracker {
	return &Tracker{store: store}
}

// Claim atomically moves a pending job to in_progress and returns the fresh
// row. Exactly one concurrent claimer wins; the rest get ErrNotClaimable.
func (t *Tracker) Claim(ctx context.Context, projectID, jobID string) (*Job, error) {
	res, err := t.store.execWithRetry(
		ctx,
		`UPDATE jobs SET status = ?, updated_at = ? WHERE project_id = ? AND id = ? AND status = ?`,
		StatusInProgress,
		nowTimestamp(),
		projectID,
		jobID,
		StatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("claim rows affected: %w", err)
	}
	if affected == 0 {
		job, getErr := t.store.GetJob(ctx, projectID, jobID)
		if getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("%w: job %s/%s is %s", ErrNotClaimable, projectID, jobID, job.Status)
	}
	return t.store.GetJob(ctx, projectID, jobID)
}

// Complete moves an in_progress job to completed and records where its
// output landed.
func (t *Tracker) Complete(ctx context.Context, projectID, jobID, outputRef string) error {
	return t.transition(
		ctx,
		"complete job",
		projectID,
		jobID,
		StatusInProgress,
		`UPDATE jobs SET status = ?, output_ref = ?, error_message = NULL, error_kind = NULL, updated_at = ?
         WHERE project_id = ? AND id = ? AND status = ?`,
		StatusCompleted,
		nullableString(outputRef),
		nowTimestamp(),
		projectID,
		jobID,
		StatusInProgress,
	)
}

// Fail moves an in_progress job to failed, recording the message and the
// classified kind so resume can tell retryable failures from permanent ones.
func (t *Tracker) Fail(ctx context.Context, projectID, jobID, message, kind string) error {
	return t.transition(
		ctx,
		"fail job",
		projectID,
		jobID,
		StatusInProgress,
		`UPDATE jobs SET status = ?, error_message = ?, error_kind = ?, updated_at = ?
         WHERE project_id = ? AND id = ? AND status = ?`,
		StatusFailed,
		nullableString(message),
		nullableString(kind),
		nowTimestamp(),
		projectID,
		jobID,
		StatusInProgress,
	)
}

// Retry moves a failed job back to pending and consumes one attempt. The
// caller owns the retry budget; the tracker only counts.
func (t *Tracker) Retry(ctx context.Context, projectID, jobID string) (*Job, error) {
	if err := t.transition(
		ctx,
		"retry job",
		projectID,
		jobID,
		StatusFailed,
		`UPDATE jobs SET status = ?, attempts = attempts + 1, error_message = NULL, error_kind = NULL, updated_at = ?
         WHERE project_id = ? AND id = ? AND status = ?`,
		StatusPending,
		nowTimestamp(),
		projectID,
		jobID,
		StatusFailed,
	); err != nil {
		return nil, err
	}
	return t.store.GetJob(ctx, projectID, jobID)
}

// Skip moves a pending job to skipped with the reason naming the failed
// ancestor. Skipped jobs never run and never retry.
func (t *Tracker) Skip(ctx context.Context, projectID, jobID, reason string) error {
	return t.transition(
		ctx,
		"skip job",
		projectID,
		jobID,
		StatusPending,
		`UPDATE jobs SET status = ?, error_message = ?, error_kind = ?, updated_at = ?
         WHERE project_id = ? AND id = ? AND status = ?`,
		StatusSkipped,
		nullableString(reason),
		SkippedDependencyKind,
		nowTimestamp(),
		projectID,
		jobID,
		StatusPending,
	)
}

// ResetStuck returns a project's in_progress jobs to pending. A crash can
// leave claims behind; resume calls this before dispatching anything.
func (t *Tracker) ResetStuck(ctx context.Context, projectID string) (int64, error) {
	res, err := t.store.execWithRetry(
		ctx,
		`UPDATE jobs SET status = ?, updated_at = ? WHERE project_id = ? AND status = ?`,
		StatusPending,
		nowTimestamp(),
		projectID,
		StatusInProgress,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck jobs: %w", err)
	}
	return res.RowsAffected()
}

// RetryFailed is the operator escape hatch: failed jobs return to pending
// with a zeroed attempt counter, regardless of how they failed. With no ids
// it sweeps every failed job in the project.
func (t *Tracker) RetryFailed(ctx context.Context, projectID string, jobIDs ...string) (int64, error) {
	if len(jobIDs) == 0 {
		res, err := t.store.execWithRetry(
			ctx,
			`UPDATE jobs SET status = ?, attempts = 0, error_message = NULL, error_kind = NULL, updated_at = ?
             WHERE project_id = ? AND status = ?`,
			StatusPending,
			nowTimestamp(),
			projectID,
			StatusFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed jobs: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(jobIDs))
	args := make([]any, 0, len(jobIDs)+4)
	args = append(args, StatusPending, nowTimestamp(), projectID)
	for _, jobID := range jobIDs {
		args = append(args, jobID)
	}
	args = append(args, StatusFailed)
	query := `UPDATE jobs SET status = ?, attempts = 0, error_message = NULL, error_kind = NULL, updated_at = ?
        WHERE project_id = ? AND id IN (` + placeholders + `) AND status = ?`
	res, err := t.store.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry selected jobs: %w", err)
	}
	return res.RowsAffected()
}

func (t *Tracker) transition(ctx context.Context, op, projectID, jobID string, from Status, query string, args ...any) error {
	res, err := t.store.execWithRetry(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		job, getErr := t.store.GetJob(ctx, projectID, jobID)
		if getErr != nil {
			return getErr
		}
		return fmt.Errorf("%w: %s %s/%s expected %s, found %s", ErrInvalidTransition, op, projectID, jobID, from, job.Status)
	}
	return nil
}

func nowTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
