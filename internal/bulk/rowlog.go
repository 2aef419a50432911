package bulk

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"ledger-config/internal/entity"
	"ledger-config/internal/metrics"
)

type outcome struct {
	row int
	id  string
	err error
}

// rowLog writes row outcomes in original row order no matter which worker finishes first.
// It is owned by a single goroutine, so its counters need no locking. release is called once per
// written row; the dispatcher uses it to cap how far ahead of the log it may run.
type rowLog struct {
	w       *bufio.Writer
	kind    string
	next    int
	pending map[int]outcome
	release func()

	success int
	failed  int
}

func newRowLog(w io.Writer, kind string, release func()) *rowLog {
	return &rowLog{w: bufio.NewWriter(w), kind: kind, next: 1, pending: map[int]outcome{}, release: release}
}

func (l *rowLog) consume(in <-chan outcome) error {
	var werr error
	for o := range in {
		l.pending[o.row] = o
		for {
			p, ok := l.pending[l.next]
			if !ok {
				break
			}
			delete(l.pending, l.next)
			if err := l.write(p); err != nil && werr == nil {
				werr = err
			}
			l.release()
			l.next++
		}
	}

	rest := make([]int, 0, len(l.pending))
	for n := range l.pending {
		rest = append(rest, n)
	}
	sort.Ints(rest)
	for _, n := range rest {
		if err := l.write(l.pending[n]); err != nil && werr == nil {
			werr = err
		}
		l.release()
	}

	if err := l.w.Flush(); err != nil && werr == nil {
		werr = err
	}
	return werr
}

func (l *rowLog) write(o outcome) error {
	if o.err == nil {
		l.success++
		metrics.BulkRows.WithLabelValues(l.kind, "success").Inc()
		_, err := fmt.Fprintf(l.w, "#%d=> Success => id => %s\n", o.row, o.id)
		return err
	}

	l.failed++
	category, msg, details := entity.Describe(o.err)
	metrics.BulkRows.WithLabelValues(l.kind, category).Inc()
	// Every failed row carries the InvalidData label; server faults are told apart in the details.
	if category != entity.CategoryInvalidData {
		details["category"] = category
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		detailsJSON = []byte("{}")
	}
	_, err = fmt.Fprintf(l.w, "#%d=> Error => %s => %s\n%s\n", o.row, entity.CategoryInvalidData, msg, detailsJSON)
	return err
}
