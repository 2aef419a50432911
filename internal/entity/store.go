package entity

import (
	"context"
	"encoding/json"
	"time"

	"ledger-config/internal/audit"
)

// Store persists rows of every kind. Implementations must reject a live row whose UniqueKey
// collides with another live row of the same kind with ErrDuplicateKey, even under concurrent writers.
type Store interface {
	// Get returns the row regardless of its deleted flag, or ErrNotFound.
	Get(ctx context.Context, kind, id string) (Row, error)
	// List returns live rows in creation order.
	List(ctx context.Context, kind string, page Page) ([]Row, error)
	// FindLive returns a live row holding uniqueKey other than excludeID, or ErrNotFound.
	FindLive(ctx context.Context, kind, uniqueKey, excludeID string) (Row, error)
	// History returns the audit records of one row in action order.
	History(ctx context.Context, kind, id string) ([]audit.Record, error)
	// InTx runs fn atomically: every write and audit append in fn commits together or not at all.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the write side of a transaction.
type Tx interface {
	Insert(ctx context.Context, r Row) error
	// Update overwrites a live row. A row already soft-deleted is never written again: ErrNotFound.
	Update(ctx context.Context, r Row) error
	AppendAudit(ctx context.Context, rec audit.Record) error
}

// Cache holds rows by kind and id. Misses and failures are silent; the store is the source of truth.
type Cache interface {
	Get(ctx context.Context, kind, id string) (Row, bool)
	Set(ctx context.Context, r Row)
	// Invalidate drops the entry and refuses later fills older than version (the committed updatedAt).
	Invalidate(ctx context.Context, kind, id string, version time.Time)
}

// Change describes a committed mutation.
type Change struct {
	Kind     string          `json:"kind"`
	ID       string          `json:"id"`
	Action   audit.Action    `json:"action"`
	Actor    string          `json:"actor"`
	At       time.Time       `json:"at"`
	Snapshot json.RawMessage `json:"snapshot"`
}

// Observer is told about committed changes. It must not fail the write.
type Observer interface {
	Observe(ctx context.Context, c Change)
}
