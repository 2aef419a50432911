package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// Postgres persistence. Append runs on the caller's transaction; there is no update or delete.

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

const insertRecordSQL = `
INSERT INTO audit_records (id, kind, action_item_id, action, action_by, action_date, snapshot, changes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`

const listByItemSQL = `
SELECT id, kind, action_item_id, action, action_by, action_date, snapshot, changes
FROM audit_records
WHERE kind = $1 AND action_item_id = $2
ORDER BY action_date ASC, id ASC
`

func Append(ctx context.Context, tx *sql.Tx, r Record) error {
	var changes any
	if len(r.Changes) > 0 {
		changes = []byte(r.Changes)
	}
	_, err := tx.ExecContext(ctx, insertRecordSQL,
		r.ID, r.Kind, r.ActionItemID, string(r.Action), r.ActionBy, r.ActionDate, []byte(r.Snapshot), changes)
	if err != nil {
		return fmt.Errorf("audit: append %s %s: %w", r.Action, r.ActionItemID, err)
	}
	return nil
}

func ListByItem(ctx context.Context, q querier, kind, itemID string) ([]Record, error) {
	rows, err := q.QueryContext(ctx, listByItemSQL, kind, itemID)
	if err != nil {
		return nil, fmt.Errorf("audit: list %s: %w", itemID, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r        Record
			action   string
			snapshot []byte
			changes  []byte
		)
		if err := rows.Scan(&r.ID, &r.Kind, &r.ActionItemID, &action, &r.ActionBy, &r.ActionDate, &snapshot, &changes); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		r.Action = Action(action)
		r.Snapshot = snapshot
		if len(changes) > 0 {
			r.Changes = changes
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
