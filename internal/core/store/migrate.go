package store

import (
	"context"
	"fmt"
)

// migrations are applied in order; a database records how many it has seen
// in PRAGMA user_version. Append new steps, never edit old ones.
var migrations = [][]string{
	{
		`CREATE TABLE IF NOT EXISTS rate_ledger (
			identity TEXT PRIMARY KEY,
			last_attempt INTEGER NOT NULL
		)`,
	},
	{
		`CREATE TABLE IF NOT EXISTS write_journal (
			id TEXT PRIMARY KEY,
			identity TEXT NOT NULL,
			is_active INTEGER NOT NULL,
			link TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			via TEXT NOT NULL DEFAULT '',
			status_code INTEGER NOT NULL DEFAULT 0,
			detail TEXT NOT NULL DEFAULT '',
			attempts INTEGER NOT NULL DEFAULT 0,
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_write_journal_identity ON write_journal(identity, finished_at)`,
		`CREATE INDEX IF NOT EXISTS idx_write_journal_finished ON write_journal(finished_at)`,
	},
}

// SchemaVersion is the user_version a fully migrated database reports.
var SchemaVersion = len(migrations)

// Migrate brings the schema up to SchemaVersion. It is safe to call on every start.
func (s *Store) Migrate(ctx context.Context) error {
	ctx, err := s.use(ctx)
	if err != nil {
		return err
	}

	current, err := s.Version(ctx)
	if err != nil {
		return err
	}
	if current > SchemaVersion {
		return fmt.Errorf("store schema version %d is newer than this binary (%d)", current, SchemaVersion)
	}

	for step := current; step < SchemaVersion; step++ {
		for _, stmt := range migrations[step] {
			if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("store migration %d failed: %w", step+1, err)
			}
		}
		// PRAGMA does not accept bound parameters.
		if _, err := s.DB.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", step+1)); err != nil {
			return fmt.Errorf("record schema version %d: %w", step+1, err)
		}
	}
	return nil
}

// Version reports the schema version recorded in the database.
func (s *Store) Version(ctx context.Context) (int, error) {
	ctx, err := s.use(ctx)
	if err != nil {
		return 0, err
	}
	var version int
	if err := s.DB.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}
