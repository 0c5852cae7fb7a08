package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"reelforge/internal/services"
)

const jobColumns = "project_id, id, type, status, depends_on, attempts, payload_json, error_message, error_kind, output_ref, created_at, updated_at"

// ErrProjectExists indicates CreateJobs was called for a project that already
// has jobs on disk. Existing projects resume; they are never re-planned.
var ErrProjectExists = errors.New("project already initialized")

// CreateJobs inserts a project's full job set in one transaction. Every job
// starts pending with zero attempts regardless of the fields callers set.
func (s *Store) CreateJobs(ctx context.Context, projectID string, jobs []Job) error {
	ctx = ensureContext(ctx)
	if projectID == "" {
		return services.Wrap(services.ErrValidation, "jobstore", "create jobs", "project id is required", nil)
	}
	if len(jobs) == 0 {
		return services.Wrap(services.ErrValidation, "jobstore", "create jobs", "job set is empty", nil)
	}
	seen := make(map[string]struct{}, len(jobs))
	for i := range jobs {
		job := &jobs[i]
		if job.ID == "" {
			return services.Wrap(services.ErrValidation, "jobstore", "create jobs", "job id is required", nil)
		}
		if _, dup := seen[job.ID]; dup {
			return services.Wrap(services.ErrValidation, "jobstore", "create jobs", fmt.Sprintf("duplicate job id %q", job.ID), nil)
		}
		seen[job.ID] = struct{}{}
		if _, err := ParseType(string(job.Type)); err != nil {
			return services.Wrap(services.ErrValidation, "jobstore", "create jobs", err.Error(), nil)
		}
		if err := job.Payload.Validate(job.Type); err != nil {
			return services.Wrap(services.ErrValidation, "jobstore", "create jobs", fmt.Sprintf("job %q: %s", job.ID, err), nil)
		}
	}

	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin create transaction: %w", err)
		}
		defer func() {
			_ = tx.Rollback()
		}()

		var existing int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM jobs WHERE project_id = ?", projectID).Scan(&existing); err != nil {
			return fmt.Errorf("count existing jobs: %w", err)
		}
		if existing > 0 {
			return fmt.Errorf("%w: project %q has %d jobs", ErrProjectExists, projectID, existing)
		}

		for i := range jobs {
			job := &jobs[i]
			dependsJSON, err := marshalDependsOn(job.DependsOn)
			if err != nil {
				return fmt.Errorf("marshal depends_on for %q: %w", job.ID, err)
			}
			payloadJSON, err := json.Marshal(job.Payload)
			if err != nil {
				return fmt.Errorf("marshal payload for %q: %w", job.ID, err)
			}
			if _, err := tx.ExecContext(
				ctx,
				`INSERT INTO jobs (
                    project_id, id, type, status, depends_on, attempts, payload_json,
                    error_message, error_kind, output_ref, created_at, updated_at
                ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				projectID,
				job.ID,
				string(job.Type),
				StatusPending,
				dependsJSON,
				0,
				string(payloadJSON),
				nil,
				nil,
				nil,
				timestamp,
				timestamp,
			); err != nil {
				return fmt.Errorf("insert job %q: %w", job.ID, err)
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit create transaction: %w", err)
		}
		return nil
	})
}

// GetJob fetches one job. Missing rows surface services.ErrNotFound so
// callers can distinguish absence from storage failure.
func (s *Store) GetJob(ctx context.Context, projectID, jobID string) (*Job, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE project_id = ? AND id = ?`, projectID, jobID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "jobstore", "get job", fmt.Sprintf("job %s/%s", projectID, jobID), nil)
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// ListJobs returns a project's jobs ordered by insertion. With statuses given
// it filters to those states.
func (s *Store) ListJobs(ctx context.Context, projectID string, statuses ...Status) ([]*Job, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE project_id = ?`
	args := []any{projectID}
	if len(statuses) > 0 {
		query += ` AND status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, string(status))
		}
	}
	query += ` ORDER BY rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

// HasJobs reports whether any jobs exist for the project.
func (s *Store) HasJobs(ctx context.Context, projectID string) (bool, error) {
	ctx = ensureContext(ctx)
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM jobs WHERE project_id = ?", projectID).Scan(&count); err != nil {
		return false, fmt.Errorf("count jobs: %w", err)
	}
	return count > 0, nil
}

// Projects lists every project with jobs on disk.
func (s *Store) Projects(ctx context.Context) ([]string, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT project_id FROM jobs ORDER BY project_id")
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []string
	for rows.Next() {
		var projectID string
		if err := rows.Scan(&projectID); err != nil {
			return nil, fmt.Errorf("scan project id: %w", err)
		}
		projects = append(projects, projectID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return projects, nil
}

// Stats returns per-status job counts for a project.
func (s *Store) Stats(ctx context.Context, projectID string) (map[Status]int, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM jobs WHERE project_id = ? GROUP BY status", projectID)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var (
			statusStr string
			count     int
		)
		if err := rows.Scan(&statusStr, &count); err != nil {
			return nil, fmt.Errorf("scan stats row: %w", err)
		}
		status, err := ParseStatus(statusStr)
		if err != nil {
			return nil, services.Wrap(services.ErrStoreCorruption, "jobstore", "job stats", err.Error(), nil)
		}
		stats[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stats: %w", err)
	}
	return stats, nil
}

// ClearProject removes a project's jobs and snapshots.
func (s *Store) ClearProject(ctx context.Context, projectID string) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin clear transaction: %w", err)
		}
		defer func() {
			_ = tx.Rollback()
		}()
		if _, err := tx.ExecContext(ctx, "DELETE FROM jobs WHERE project_id = ?", projectID); err != nil {
			return fmt.Errorf("delete jobs: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM pipeline_states WHERE project_id = ?", projectID); err != nil {
			return fmt.Errorf("delete pipeline states: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit clear transaction: %w", err)
		}
		return nil
	})
}

func marshalDependsOn(deps []string) (any, error) {
	if len(deps) == 0 {
		return nil, nil
	}
	encoded, err := json.Marshal(deps)
	if err != nil {
		return nil, err
	}
	return string(encoded), nil
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		projectID    string
		id           string
		typeStr      string
		statusStr    string
		dependsRaw   sql.NullString
		attempts     int
		payloadRaw   string
		errorMessage sql.NullString
		errorKind    sql.NullString
		outputRef    sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
	)

	if err := scanner.Scan(
		&projectID,
		&id,
		&typeStr,
		&statusStr,
		&dependsRaw,
		&attempts,
		&payloadRaw,
		&errorMessage,
		&errorKind,
		&outputRef,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	jobType, err := ParseType(typeStr)
	if err != nil {
		return nil, services.Wrap(services.ErrStoreCorruption, "jobstore", "scan job", fmt.Sprintf("job %s/%s: %s", projectID, id, err), nil)
	}
	status, err := ParseStatus(statusStr)
	if err != nil {
		return nil, services.Wrap(services.ErrStoreCorruption, "jobstore", "scan job", fmt.Sprintf("job %s/%s: %s", projectID, id, err), nil)
	}

	job := &Job{
		ProjectID:    projectID,
		ID:           id,
		Type:         jobType,
		Status:       status,
		Attempts:     attempts,
		ErrorMessage: errorMessage.String,
		ErrorKind:    errorKind.String,
		OutputRef:    outputRef.String,
	}

	if dependsRaw.Valid && dependsRaw.String != "" {
		if err := json.Unmarshal([]byte(dependsRaw.String), &job.DependsOn); err != nil {
			return nil, services.Wrap(services.ErrStoreCorruption, "jobstore", "scan job", fmt.Sprintf("job %s/%s: decode depends_on", projectID, id), err)
		}
	}
	if err := json.Unmarshal([]byte(payloadRaw), &job.Payload); err != nil {
		return nil, services.Wrap(services.ErrStoreCorruption, "jobstore", "scan job", fmt.Sprintf("job %s/%s: decode payload", projectID, id), err)
	}
	if err := job.Payload.Validate(job.Type); err != nil {
		return nil, services.Wrap(services.ErrStoreCorruption, "jobstore", "scan job", fmt.Sprintf("job %s/%s: %s", projectID, id, err), nil)
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
