package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"

	sq "github.com/Masterminds/squirrel"

	"BillsScanner/internal/domain"
	"BillsScanner/internal/ports"
)

// DocumentStore keeps one collection of JSON documents in a Postgres table keyed by
// (collection, id). Streams come back in id order so checkpoints are meaningful.
type DocumentStore struct {
	db         *sql.DB
	table      string
	collection string
	sql        sq.StatementBuilderType
}

var _ ports.DocumentStore = (*DocumentStore)(nil)

// NewDocumentStore wires a sql.DB implementation.
func NewDocumentStore(db *sql.DB, table, collection string) (*DocumentStore, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	if collection == "" {
		return nil, errors.New("collection is required")
	}
	return &DocumentStore{
		db:         db,
		table:      table,
		collection: collection,
		sql:        sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}, nil
}

// Stream yields the collection in insertion order (created_at, then id), so documents published
// after a checkpoint always come after it. The first error ends the sequence.
func (s *DocumentStore) Stream(ctx context.Context) iter.Seq2[domain.Document, error] {
	return func(yield func(domain.Document, error) bool) {
		query, args, err := s.sql.Select("id", "data").
			From(s.table).
			Where(sq.Eq{"collection": s.collection}).
			OrderBy("created_at", "id").
			ToSql()
		if err != nil {
			yield(domain.Document{}, fmt.Errorf("build stream query: %w", err))
			return
		}

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			yield(domain.Document{}, fmt.Errorf("query documents: %w", classify(err)))
			return
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var (
				id  string
				raw []byte
			)
			if err := rows.Scan(&id, &raw); err != nil {
				yield(domain.Document{}, fmt.Errorf("scan document: %w", classify(err)))
				return
			}

			fields := map[string]any{}
			if len(raw) > 0 {
				if err := json.Unmarshal(raw, &fields); err != nil {
					yield(domain.Document{}, fmt.Errorf("decode document %s: %w", id, err))
					return
				}
			}
			if !yield(domain.Document{ID: id, Fields: fields}, nil) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			yield(domain.Document{}, fmt.Errorf("rows iteration: %w", classify(err)))
		}
	}
}

// Upsert merges fields into an existing document. Fields not named are left untouched.
func (s *DocumentStore) Upsert(ctx context.Context, id string, fields map[string]any) error {
	payload, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode fields for %s: %w", id, err)
	}

	query, args, err := s.sql.Update(s.table).
		Set("data", sq.Expr("data || ?::jsonb", string(payload))).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"collection": s.collection, "id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update document %s: %w", id, classify(err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("update document %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Insert stores a new document, merging into an existing one with the same id.
func (s *DocumentStore) Insert(ctx context.Context, doc domain.Document) error {
	if doc.ID == "" {
		return errors.New("document id is empty")
	}
	payload, err := json.Marshal(doc.Fields)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", doc.ID, err)
	}

	query, args, err := s.sql.Insert(s.table).
		Columns("collection", "id", "data").
		Values(s.collection, doc.ID, sq.Expr("?::jsonb", string(payload))).
		Suffix("ON CONFLICT (collection, id) DO UPDATE SET data = " + s.table + ".data || EXCLUDED.data, updated_at = NOW()").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert document %s: %w", doc.ID, classify(err))
	}
	return nil
}
