package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/workbench/internal/apperror"
	"github.com/sakif/workbench/internal/model"
	"github.com/sakif/workbench/internal/repository"
)

// compile-time check that *DB implements repository.ActionRepository
var _ repository.ActionRepository = (*DB)(nil)

// Create inserts a new action record, filling in ID and CreatedAt.
//
// xid IDs start with a timestamp, so they sort in creation order. List uses
// that to break ties between records created in the same instant.
func (db *DB) Create(ctx context.Context, record *model.ActionRecord) error {
	record.ID = xid.New().String()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO actions (id, action, filename, output, outcome, code, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		string(record.Action),
		record.Filename,
		record.Output,
		record.Outcome,
		record.Code,
		record.DurationMs,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating action record: %w", err)
	}

	return nil
}

// GetByID retrieves a single action record.
// Returns apperror.ErrNotFound if no record has that ID.
func (db *DB) GetByID(ctx context.Context, id string) (*model.ActionRecord, error) {
	var r model.ActionRecord
	var action string

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, action, filename, output, outcome, code, duration_ms, created_at
		 FROM actions
		 WHERE id = ?`,
		id,
	).Scan(
		&r.ID,
		&action,
		&r.Filename,
		&r.Output,
		&r.Outcome,
		&r.Code,
		&r.DurationMs,
		&r.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("action", id)
		}
		return nil, fmt.Errorf("sqlite: getting action %s: %w", id, err)
	}
	r.Action = model.Action(action)

	return &r, nil
}

// List retrieves action records newest first with LIMIT/OFFSET pagination.
func (db *DB) List(ctx context.Context, opts repository.ListOptions) ([]model.ActionRecord, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, action, filename, output, outcome, code, duration_ms, created_at
		 FROM actions
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?`,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing actions: %w", err)
	}
	defer rows.Close()

	records := make([]model.ActionRecord, 0, limit)

	for rows.Next() {
		var r model.ActionRecord
		var action string
		if err := rows.Scan(
			&r.ID, &action, &r.Filename, &r.Output,
			&r.Outcome, &r.Code, &r.DurationMs, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning action row: %w", err)
		}
		r.Action = model.Action(action)
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating actions: %w", err)
	}

	return records, nil
}
