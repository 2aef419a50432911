package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"ledger-config/pkg/utils"
)

// Migration is one forward-only schema step. Names are recorded in schema_migrations and never re-run.
type Migration struct {
	Name string
	SQL  string
}

const createMigrationsTableSQL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    name       TEXT PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL
)`

type Migrator struct {
	db  *sql.DB
	log *slog.Logger
}

func NewMigrator(db *sql.DB, log *slog.Logger) *Migrator {
	return &Migrator{db: db, log: log}
}

// Apply runs every pending migration in order, each in its own transaction together with its
// bookkeeping row.
func (m *Migrator) Apply(ctx context.Context, migrations []Migration) error {
	if _, err := m.db.ExecContext(ctx, createMigrationsTableSQL); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	for _, mig := range migrations {
		applied, err := m.applied(ctx, mig.Name)
		if err != nil {
			return err
		}
		if applied {
			m.log.Debug("migration already applied", "name", mig.Name)
			continue
		}
		err = utils.WithTx(ctx, m.db, nil, func(ctx context.Context, tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, mig.SQL); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name, applied_at) VALUES ($1, $2)`, mig.Name, time.Now().UTC())
			return err
		})
		if err != nil {
			return fmt.Errorf("apply migration %s: %w", mig.Name, err)
		}
		m.log.Info("migration applied", "name", mig.Name)
	}
	return nil
}

func (m *Migrator) applied(ctx context.Context, name string) (bool, error) {
	var n int
	if err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE name = $1`, name).Scan(&n); err != nil {
		return false, fmt.Errorf("check migration %s: %w", name, err)
	}
	return n > 0, nil
}
