// Package sqldriver implements storage.Driver on top of database/sql. The
// sqlite and postgres packages open the connection and embed a Driver.
package sqldriver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/papercomputeco/lmgate/pkg/storage"
)

// Placeholder renders the n-th (1-based) bind parameter for a SQL dialect.
type Placeholder func(n int) string

// QuestionMark renders "?" placeholders (SQLite).
func QuestionMark(int) string { return "?" }

// Dollar renders "$n" placeholders (PostgreSQL).
func Dollar(n int) string { return fmt.Sprintf("$%d", n) }

const schema = `
CREATE TABLE IF NOT EXISTS generations (
	id              TEXT PRIMARY KEY,
	model           TEXT NOT NULL,
	prompt          TEXT NOT NULL,
	response        TEXT NOT NULL,
	streaming       BOOLEAN NOT NULL,
	status          TEXT NOT NULL,
	upstream_status INTEGER NOT NULL,
	fragments       INTEGER NOT NULL,
	bytes           INTEGER NOT NULL,
	error           TEXT NOT NULL,
	started_at      BIGINT NOT NULL,
	completed_at    BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS generations_started_at ON generations (started_at);
`

const columns = "id, model, prompt, response, streaming, status, upstream_status, fragments, bytes, error, started_at, completed_at"

// Driver implements storage.Driver for any database/sql backend.
type Driver struct {
	DB          *sql.DB
	Placeholder Placeholder
}

// New wraps db and creates the generations table if it does not exist.
func New(ctx context.Context, db *sql.DB, placeholder Placeholder) (*Driver, error) {
	for stmt := range strings.SplitSeq(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &Driver{DB: db, Placeholder: placeholder}, nil
}

func (d *Driver) binds(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = d.Placeholder(i + 1)
	}
	return strings.Join(parts, ", ")
}

// Put stores a record. Returns false if the ID already exists.
func (d *Driver) Put(ctx context.Context, r *storage.Record) (bool, error) {
	if r == nil {
		return false, errors.New("cannot store nil record")
	}
	if r.ID == "" {
		return false, errors.New("cannot store record without id")
	}

	query := "INSERT INTO generations (" + columns + ") VALUES (" + d.binds(12) + ") ON CONFLICT (id) DO NOTHING"
	res, err := d.DB.ExecContext(ctx, query,
		r.ID, r.Model, r.Prompt, r.Response, r.Streaming, r.Status, r.UpstreamStatus,
		r.Fragments, r.Bytes, r.Error, r.StartedAt.UnixNano(), r.CompletedAt.UnixNano(),
	)
	if err != nil {
		return false, fmt.Errorf("inserting record %s: %w", r.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("inserting record %s: %w", r.ID, err)
	}
	return n > 0, nil
}

// Get retrieves a record by ID.
func (d *Driver) Get(ctx context.Context, id string) (*storage.Record, error) {
	row := d.DB.QueryRowContext(ctx,
		"SELECT "+columns+" FROM generations WHERE id = "+d.Placeholder(1), id)

	r, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("getting record %s: %w", id, err)
	}
	return r, nil
}

// List returns up to limit records, newest first.
func (d *Driver) List(ctx context.Context, limit int) ([]*storage.Record, error) {
	if limit <= 0 {
		limit = storage.DefaultListLimit
	}

	rows, err := d.DB.QueryContext(ctx,
		"SELECT "+columns+" FROM generations ORDER BY started_at DESC LIMIT "+d.Placeholder(1), limit)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	defer rows.Close()

	var records []*storage.Record
	for rows.Next() {
		r, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("listing records: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	return records, nil
}

// Close closes the underlying database.
func (d *Driver) Close() error {
	return d.DB.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (*storage.Record, error) {
	var (
		r                  storage.Record
		started, completed int64
	)
	err := s.Scan(
		&r.ID, &r.Model, &r.Prompt, &r.Response, &r.Streaming, &r.Status, &r.UpstreamStatus,
		&r.Fragments, &r.Bytes, &r.Error, &started, &completed,
	)
	if err != nil {
		return nil, err
	}
	r.StartedAt = time.Unix(0, started).UTC()
	r.CompletedAt = time.Unix(0, completed).UTC()
	return &r, nil
}
