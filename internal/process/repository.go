package process

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const insertRequestSQL = `
INSERT INTO process_requests (id, kind, file_name, status, total_rows, success_count, error_count,
                              log_file, error_message, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
`

const updateRequestSQL = `
UPDATE process_requests
SET status = $2, total_rows = $3, success_count = $4, error_count = $5, log_file = $6,
    error_message = $7, updated_at = $8
WHERE id = $1
`

const getRequestSQL = `
SELECT id, kind, file_name, status, total_rows, success_count, error_count, log_file, error_message,
       created_by, created_at, updated_at
FROM process_requests
WHERE id = $1
`

func (p *PostgresRepo) Create(ctx context.Context, r Request) error {
	_, err := p.db.ExecContext(ctx, insertRequestSQL,
		r.ID, r.Kind, r.FileName, string(r.Status), r.TotalRows, r.SuccessCount, r.ErrorCount,
		r.LogFile, r.ErrorMessage, r.CreatedBy, r.CreatedAt, r.UpdatedAt)
	return err
}

func (p *PostgresRepo) Update(ctx context.Context, r Request) error {
	res, err := p.db.ExecContext(ctx, updateRequestSQL,
		r.ID, string(r.Status), r.TotalRows, r.SuccessCount, r.ErrorCount, r.LogFile, r.ErrorMessage, r.UpdatedAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresRepo) Get(ctx context.Context, id string) (Request, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Request{}, ErrNotFound
	}
	var (
		r      Request
		status string
	)
	err := p.db.QueryRowContext(ctx, getRequestSQL, id).Scan(
		&r.ID, &r.Kind, &r.FileName, &status, &r.TotalRows, &r.SuccessCount, &r.ErrorCount,
		&r.LogFile, &r.ErrorMessage, &r.CreatedBy, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Request{}, ErrNotFound
		}
		return Request{}, fmt.Errorf("get process request %s: %w", id, err)
	}
	r.Status = Status(status)
	return r, nil
}
