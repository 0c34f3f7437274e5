package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"BillsScanner/internal/ports"
)

// Checkpoint stores a named resume key as a single row.
type Checkpoint struct {
	db    *sql.DB
	table string
	name  string
	sql   sq.StatementBuilderType
}

var _ ports.Checkpoint = (*Checkpoint)(nil)

// NewCheckpoint returns the checkpoint row called name in table.
func NewCheckpoint(db *sql.DB, table, name string) (*Checkpoint, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, errors.New("checkpoint name is required")
	}
	return &Checkpoint{db: db, table: table, name: name, sql: sq.StatementBuilder.PlaceholderFormat(sq.Dollar)}, nil
}

// Load returns the stored key, or ok=false when the row does not exist.
func (c *Checkpoint) Load(ctx context.Context) (string, bool, error) {
	query, args, err := c.sql.Select("last_key").From(c.table).Where(sq.Eq{"name": c.name}).ToSql()
	if err != nil {
		return "", false, fmt.Errorf("build checkpoint query: %w", err)
	}

	var key string
	err = c.db.QueryRowContext(ctx, query, args...).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load checkpoint %s: %w", c.name, classify(err))
	}
	return key, key != "", nil
}

// Save upserts the key.
func (c *Checkpoint) Save(ctx context.Context, key string) error {
	if key == "" {
		return errors.New("checkpoint key is empty")
	}
	query, args, err := c.sql.Insert(c.table).
		Columns("name", "last_key").
		Values(c.name, key).
		Suffix("ON CONFLICT (name) DO UPDATE SET last_key = EXCLUDED.last_key, updated_at = NOW()").
		ToSql()
	if err != nil {
		return fmt.Errorf("build checkpoint upsert: %w", err)
	}
	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save checkpoint %s: %w", c.name, classify(err))
	}
	return nil
}
