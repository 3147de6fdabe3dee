// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package carestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore stores documents in Postgres as JSONB rows of care.documents.
type PGStore struct {
	pool       *pgxpool.Pool
	logger     *slog.Logger
	maxRetries int
}

// NewPGStore creates the schema if needed and returns a store over pool.
func NewPGStore(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) (*PGStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &PGStore{pool: pool, logger: logger, maxRetries: 3}
	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		return s.initializeSchemaInTx(ctx, tx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize document schema: %w", err)
	}
	logger.Debug("Document schema initialized successfully")
	return s, nil
}

func (s *PGStore) initializeSchemaInTx(ctx context.Context, tx pgx.Tx) error {
	stmts := []string{
		`CREATE SCHEMA IF NOT EXISTS care`,
		`CREATE TABLE IF NOT EXISTS care.documents (
			path        TEXT PRIMARY KEY,
			collection  TEXT NOT NULL,
			owner_id    TEXT NOT NULL,
			body        JSONB NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS documents_collection_path_idx ON care.documents (collection, path)`,
		`CREATE INDEX IF NOT EXISTS documents_owner_idx ON care.documents (owner_id)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// Put upserts doc, retrying transient serialization and lock failures.
func (s *PGStore) Put(ctx context.Context, doc Document) (Document, error) {
	if err := ValidateDocumentPath(doc.Path); err != nil {
		return Document{}, err
	}
	var updatedAt time.Time
	err := withTxRetry(ctx, s.maxRetries, func(attempt int) error {
		if attempt > 1 {
			s.logger.Debug("Retrying document upsert", "path", doc.Path, "attempt", attempt)
		}
		return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			return tx.QueryRow(ctx, `
				INSERT INTO care.documents (path, collection, owner_id, body)
				VALUES ($1, $2, $3, $4::jsonb)
				ON CONFLICT (path) DO UPDATE
				SET body = EXCLUDED.body, owner_id = EXCLUDED.owner_id, updated_at = now()
				RETURNING updated_at`,
				doc.Path, CollectionOf(doc.Path), doc.OwnerID, string(doc.Data)).Scan(&updatedAt)
		})
	})
	if err != nil {
		return Document{}, fmt.Errorf("failed to upsert %s: %w", doc.Path, err)
	}
	doc.UpdatedAt = updatedAt.UTC()
	return doc, nil
}

func (s *PGStore) Get(ctx context.Context, path string) (Document, error) {
	doc := Document{Path: path}
	var body []byte
	err := s.pool.QueryRow(ctx,
		`SELECT owner_id, body, updated_at FROM care.documents WHERE path = $1`, path).
		Scan(&doc.OwnerID, &body, &doc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	doc.Data = json.RawMessage(body)
	doc.UpdatedAt = doc.UpdatedAt.UTC()
	return doc, nil
}

// List uses keyset pagination on (order field, path).
func (s *PGStore) List(ctx context.Context, q ListQuery) ([]Document, error) {
	if err := validateListQuery(q); err != nil {
		return nil, err
	}
	query, args := buildListSQL(q)

	if q.After != "" {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM care.documents WHERE path = $1)`, q.After).Scan(&exists); err != nil {
			return nil, fmt.Errorf("failed to check cursor: %w", err)
		}
		if !exists {
			return nil, fmt.Errorf("%w: %q", ErrInvalidCursor, q.After)
		}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", q.Collection, err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var d Document
		var body []byte
		if err := rows.Scan(&d.Path, &d.OwnerID, &body, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		d.Data = json.RawMessage(body)
		d.UpdatedAt = d.UpdatedAt.UTC()
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}
	return out, nil
}

// buildListSQL renders the page query. Field names only travel as bind
// parameters; validateListQuery has already checked them.
func buildListSQL(q ListQuery) (string, []any) {
	args := []any{q.Collection}
	param := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	var sb strings.Builder
	sb.WriteString(`SELECT path, owner_id, body, updated_at FROM care.documents WHERE collection = $1`)

	for _, k := range sortedFilterKeys(q.Filters) {
		fmt.Fprintf(&sb, ` AND body ->> %s::text = %s`, param(k), param(q.Filters[k]))
	}

	sortExpr := ""
	if q.OrderBy != "" {
		sortExpr = fmt.Sprintf(`COALESCE(body -> %s::text, 'null'::jsonb)`, param(q.OrderBy))
	}

	dir, cmp := "ASC", ">"
	if q.Desc {
		dir, cmp = "DESC", "<"
	}

	if q.After != "" {
		p := param(q.After)
		if sortExpr != "" {
			fmt.Fprintf(&sb, ` AND (%s, path) %s (SELECT %s, path FROM care.documents WHERE path = %s)`,
				sortExpr, cmp, sortExpr, p)
		} else {
			fmt.Fprintf(&sb, ` AND path %s %s`, cmp, p)
		}
	}

	if sortExpr != "" {
		fmt.Fprintf(&sb, ` ORDER BY %s %s, path %s`, sortExpr, dir, dir)
	} else {
		fmt.Fprintf(&sb, ` ORDER BY path %s`, dir)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	fmt.Fprintf(&sb, ` LIMIT %s`, param(limit))
	return sb.String(), args
}
