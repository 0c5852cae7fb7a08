package jobstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped on any incompatible change to schema.sql. Opening
// a database written by a different version fails with ErrSchemaMismatch;
// there is no in-place migration path yet.
const schemaVersion = 1

// ErrSchemaMismatch indicates the on-disk schema version differs from what
// this build expects.
var ErrSchemaMismatch = errors.New("jobstore schema version mismatch")

func (s *Store) initSchema(ctx context.Context) error {
	var current int
	err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&current)
	switch {
	case err == nil:
		if current != schemaVersion {
			return fmt.Errorf("%w: database has version %d, expected %d", ErrSchemaMismatch, current, schemaVersion)
		}
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return s.createSchema(ctx)
	default:
		// Table missing means a fresh database.
		return s.createSchema(ctx)
	}
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM schema_version"); err != nil {
		return fmt.Errorf("reset schema version: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}
