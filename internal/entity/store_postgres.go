package entity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ledger-config/internal/audit"
	"ledger-config/pkg/utils"

	"github.com/google/uuid"
)

// PostgresStore keeps every kind in config_entities (domain fields as JSONB). Live uniqueness is
// enforced by the partial unique index config_entities_live_key.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const liveKeyConstraint = "config_entities_live_key"

const selectRowColumns = `
SELECT id, kind, data, COALESCE(unique_key, ''), is_deleted, delete_reason, deleted_by,
       created_by, created_at, updated_by, updated_at
FROM config_entities
`

const getRowSQL = selectRowColumns + `WHERE kind = $1 AND id = $2`

const listRowsSQL = selectRowColumns + `
WHERE kind = $1 AND NOT is_deleted
ORDER BY created_at ASC, id ASC
LIMIT $2 OFFSET $3`

const findLiveSQL = selectRowColumns + `
WHERE kind = $1 AND unique_key = $2 AND NOT is_deleted AND id::text <> $3
LIMIT 1`

const insertRowSQL = `
INSERT INTO config_entities (id, kind, data, unique_key, is_deleted, delete_reason, deleted_by,
                             created_by, created_at, updated_by, updated_at)
VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11)
`

const updateRowSQL = `
UPDATE config_entities
SET data = $3, unique_key = NULLIF($4, ''), is_deleted = $5, delete_reason = $6, deleted_by = $7,
    updated_by = $8, updated_at = $9
WHERE kind = $1 AND id = $2 AND NOT is_deleted
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(sc rowScanner) (Row, error) {
	var (
		r    Row
		data []byte
	)
	err := sc.Scan(&r.ID, &r.Kind, &data, &r.UniqueKey, &r.IsDeleted, &r.DeleteReason, &r.DeletedBy,
		&r.CreatedBy, &r.CreatedAt, &r.UpdatedBy, &r.UpdatedAt)
	if err != nil {
		return Row{}, err
	}
	r.Data = data
	return r, nil
}

func (s *PostgresStore) Get(ctx context.Context, kind, id string) (Row, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Row{}, ErrNotFound
	}
	r, err := scanRow(s.db.QueryRowContext(ctx, getRowSQL, kind, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Row{}, ErrNotFound
		}
		return Row{}, fmt.Errorf("get %s %s: %w", kind, id, err)
	}
	return r, nil
}

func (s *PostgresStore) List(ctx context.Context, kind string, page Page) ([]Row, error) {
	page = page.Normalize()
	rows, err := s.db.QueryContext(ctx, listRowsSQL, kind, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", kind, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) FindLive(ctx context.Context, kind, uniqueKey, excludeID string) (Row, error) {
	if uniqueKey == "" {
		return Row{}, ErrNotFound
	}
	r, err := scanRow(s.db.QueryRowContext(ctx, findLiveSQL, kind, uniqueKey, excludeID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Row{}, ErrNotFound
		}
		return Row{}, fmt.Errorf("find %s by key: %w", kind, err)
	}
	return r, nil
}

func (s *PostgresStore) History(ctx context.Context, kind, id string) ([]audit.Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	return audit.ListByItem(ctx, s.db, kind, id)
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return utils.WithTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, pgTx{tx: tx})
	})
}

type pgTx struct {
	tx *sql.Tx
}

func (t pgTx) Insert(ctx context.Context, r Row) error {
	_, err := t.tx.ExecContext(ctx, insertRowSQL,
		r.ID, r.Kind, []byte(r.Data), r.UniqueKey, r.IsDeleted, r.DeleteReason, r.DeletedBy,
		r.CreatedBy, r.CreatedAt, r.UpdatedBy, r.UpdatedAt)
	if err != nil {
		if utils.IsUniqueViolation(err, liveKeyConstraint) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("insert %s: %w", r.Kind, err)
	}
	return nil
}

func (t pgTx) Update(ctx context.Context, r Row) error {
	res, err := t.tx.ExecContext(ctx, updateRowSQL,
		r.Kind, r.ID, []byte(r.Data), r.UniqueKey, r.IsDeleted, r.DeleteReason, r.DeletedBy,
		r.UpdatedBy, r.UpdatedAt)
	if err != nil {
		if utils.IsUniqueViolation(err, liveKeyConstraint) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("update %s %s: %w", r.Kind, r.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s %s: %w", r.Kind, r.ID, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (t pgTx) AppendAudit(ctx context.Context, rec audit.Record) error {
	return audit.Append(ctx, t.tx, rec)
}
