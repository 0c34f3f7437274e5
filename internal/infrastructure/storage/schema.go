// Package storage keeps enrichment documents and checkpoints in Postgres.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
)

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func checkIdent(name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("invalid table name %q", name)
	}
	return nil
}

// EnsureSchema creates the documents and checkpoints tables when they are missing.
func EnsureSchema(ctx context.Context, db *sql.DB, documentsTable, checkpointsTable string) error {
	if err := checkIdent(documentsTable); err != nil {
		return err
	}
	if err := checkIdent(checkpointsTable); err != nil {
		return err
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS ` + documentsTable + ` (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			data JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (collection, id)
		)`,
		`CREATE TABLE IF NOT EXISTS ` + checkpointsTable + ` (
			name TEXT PRIMARY KEY,
			last_key TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", classify(err))
		}
	}
	return nil
}
