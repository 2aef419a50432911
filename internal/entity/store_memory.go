package entity

import (
	"context"
	"fmt"
	"sync"

	"ledger-config/internal/audit"
)

// MemoryStore is an in-memory Store for tests and local tooling. Transactions are serialised.
type MemoryStore struct {
	mu    sync.Mutex
	rows  map[string]Row
	order []string
	log   *audit.MemoryLog

	// AuditHook, when set, runs before each audit append inside a transaction. An error aborts it.
	AuditHook func(audit.Record) error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: map[string]Row{}, log: audit.NewMemoryLog()}
}

func (s *MemoryStore) Get(ctx context.Context, kind, id string) (Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok || r.Kind != kind {
		return Row{}, ErrNotFound
	}
	return r, nil
}

func (s *MemoryStore) List(ctx context.Context, kind string, page Page) ([]Row, error) {
	page = page.Normalize()
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Row
	skipped := 0
	for _, id := range s.order {
		r := s.rows[id]
		if r.Kind != kind || r.IsDeleted {
			continue
		}
		if skipped < page.Offset {
			skipped++
			continue
		}
		out = append(out, r)
		if len(out) == page.Limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) FindLive(ctx context.Context, kind, uniqueKey, excludeID string) (Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := findLive(s.rows, kind, uniqueKey, excludeID); ok {
		return r, nil
	}
	return Row{}, ErrNotFound
}

func (s *MemoryStore) History(ctx context.Context, kind, id string) ([]audit.Record, error) {
	return s.log.ListByItem(kind, id), nil
}

// Audit exposes every appended record.
func (s *MemoryStore) Audit() []audit.Record { return s.log.Records() }

// Count returns the number of rows of kind, deleted ones included.
func (s *MemoryStore) Count(kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.rows {
		if r.Kind == kind {
			n++
		}
	}
	return n
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{store: s, staged: map[string]Row{}}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for _, id := range tx.order {
		if _, exists := s.rows[id]; !exists {
			s.order = append(s.order, id)
		}
	}
	for id, r := range tx.staged {
		s.rows[id] = r
	}
	s.log.Append(tx.audit...)
	return nil
}

type memTx struct {
	store  *MemoryStore
	staged map[string]Row
	order  []string
	audit  []audit.Record
}

func (t *memTx) view() map[string]Row {
	out := make(map[string]Row, len(t.store.rows)+len(t.staged))
	for id, r := range t.store.rows {
		out[id] = r
	}
	for id, r := range t.staged {
		out[id] = r
	}
	return out
}

func (t *memTx) Insert(ctx context.Context, r Row) error {
	rows := t.view()
	if _, exists := rows[r.ID]; exists {
		return fmt.Errorf("insert %s: id exists", r.ID)
	}
	if _, dup := findLive(rows, r.Kind, r.UniqueKey, r.ID); dup && !r.IsDeleted {
		return ErrDuplicateKey
	}
	t.staged[r.ID] = r
	t.order = append(t.order, r.ID)
	return nil
}

func (t *memTx) Update(ctx context.Context, r Row) error {
	rows := t.view()
	cur, ok := rows[r.ID]
	if !ok || cur.Kind != r.Kind || cur.IsDeleted {
		return ErrNotFound
	}
	if _, dup := findLive(rows, r.Kind, r.UniqueKey, r.ID); dup && !r.IsDeleted {
		return ErrDuplicateKey
	}
	t.staged[r.ID] = r
	return nil
}

func (t *memTx) AppendAudit(ctx context.Context, rec audit.Record) error {
	if t.store.AuditHook != nil {
		if err := t.store.AuditHook(rec); err != nil {
			return err
		}
	}
	t.audit = append(t.audit, rec)
	return nil
}

func findLive(rows map[string]Row, kind, uniqueKey, excludeID string) (Row, bool) {
	if uniqueKey == "" {
		return Row{}, false
	}
	for id, r := range rows {
		if id != excludeID && r.Kind == kind && !r.IsDeleted && r.UniqueKey == uniqueKey {
			return r, true
		}
	}
	return Row{}, false
}
