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

// SaveState appends a pipeline snapshot and returns it with the assigned
// sequence number. Earlier snapshots are never updated or deleted.
func (s *Store) SaveState(ctx context.Context, state PipelineState) (*PipelineState, error) {
	ctx = ensureContext(ctx)
	if state.ProjectID == "" {
		return nil, services.Wrap(services.ErrValidation, "jobstore", "save state", "project id is required", nil)
	}

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("marshal pipeline state: %w", err)
	}
	now := time.Now().UTC()

	res, err := s.execWithRetry(
		ctx,
		"INSERT INTO pipeline_states (project_id, state_json, created_at) VALUES (?, ?, ?)",
		state.ProjectID,
		string(stateJSON),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert pipeline state: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	saved := state
	saved.Seq = seq
	saved.CreatedAt = now
	return &saved, nil
}

// LoadState returns the newest snapshot for a project, or nil when the
// project has never been snapshotted. A fresh project is not an error.
func (s *Store) LoadState(ctx context.Context, projectID string) (*PipelineState, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(
		ctx,
		"SELECT seq, state_json, created_at FROM pipeline_states WHERE project_id = ? ORDER BY seq DESC LIMIT 1",
		projectID,
	)
	state, err := scanState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return state, nil
}

// StateHistory returns every snapshot for a project, oldest first.
func (s *Store) StateHistory(ctx context.Context, projectID string) ([]*PipelineState, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(
		ctx,
		"SELECT seq, state_json, created_at FROM pipeline_states WHERE project_id = ? ORDER BY seq",
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list pipeline states: %w", err)
	}
	defer rows.Close()

	var states []*PipelineState
	for rows.Next() {
		state, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pipeline states: %w", err)
	}
	return states, nil
}

func scanState(scanner interface{ Scan(dest ...any) error }) (*PipelineState, error) {
	var (
		seq        int64
		stateRaw   string
		createdRaw sql.NullString
	)
	if err := scanner.Scan(&seq, &stateRaw, &createdRaw); err != nil {
		return nil, err
	}

	var state PipelineState
	if err := json.Unmarshal([]byte(stateRaw), &state); err != nil {
		return nil, services.Wrap(services.ErrStoreCorruption, "jobstore", "scan state", fmt.Sprintf("snapshot %d: decode state", seq), err)
	}
	state.Seq = seq
	if created, err := parseTimeString(createdRaw.String); err == nil {
		state.CreatedAt = created
	}
	return &state, nil
}
