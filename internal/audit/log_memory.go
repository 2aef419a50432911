package audit

import (
	"sync"
)

// MemoryLog is an in-memory append-only record log for tests and the in-memory entity store.
type MemoryLog struct {
	mu      sync.Mutex
	records []Record
}

func NewMemoryLog() *MemoryLog { return &MemoryLog{} }

func (l *MemoryLog) Append(recs ...Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, recs...)
}

func (l *MemoryLog) ListByItem(kind, itemID string) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Record
	for _, r := range l.records {
		if r.Kind == kind && r.ActionItemID == itemID {
			out = append(out, r)
		}
	}
	return out
}

func (l *MemoryLog) Records() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}
