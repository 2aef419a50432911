package bulk

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ledger-config/internal/entity"
	"ledger-config/internal/metrics"
	"ledger-config/internal/process"
	"ledger-config/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// reorderWindow is how many rows per worker may finish ahead of the oldest unlogged row.
const reorderWindow = 4

var (
	ErrEmptyFile     = errors.New("bulk: file has no header row")
	ErrInvalidHeader = errors.New("bulk: invalid header")
)

// RowFunc runs the write pipeline for one data row (1-based rowNumber) and returns the new id.
type RowFunc func(ctx context.Context, rowNumber int, row map[string]string) (string, error)

// Job describes one upload.
type Job struct {
	Kind     string
	Actor    string
	FileName string
	// Columns are the accepted header names.
	Columns []string
}

type Summary struct {
	ProcessID    string         `json:"processId"`
	Status       process.Status `json:"status"`
	TotalRows    int            `json:"totalRows"`
	SuccessCount int            `json:"successCount"`
	ErrorCount   int            `json:"errorCount"`
	LogFile      string         `json:"logFile"`
}

// Engine streams a CSV upload through a RowFunc with a bounded number of concurrent rows.
// Row failures are logged and counted; only failures of the stream itself fail the run.
type Engine struct {
	processes *process.Service
	logDir    string
	workers   int
}

func NewEngine(processes *process.Service, logDir string, workers int) *Engine {
	if workers <= 0 {
		workers = 1
	}
	return &Engine{processes: processes, logDir: logDir, workers: workers}
}

// Run processes src to the end. The run is detached from ctx cancellation once started so a client
// disconnect cannot leave the ProcessRequest half written.
func (e *Engine) Run(ctx context.Context, job Job, src io.Reader, fn RowFunc) (Summary, error) {
	ctx = context.WithoutCancel(ctx)
	log := logger.From(ctx).With("kind", job.Kind, "file", job.FileName)
	start := time.Now()

	req, err := e.processes.Open(ctx, job.Kind, job.FileName, job.Actor)
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{ProcessID: req.ID, Status: req.Status}
	log = log.With("process_id", req.ID)

	logPath := filepath.Join(e.logDir, fmt.Sprintf("%s-%s.log", job.Kind, req.ID))
	f, err := openLog(e.logDir, logPath)
	if err != nil {
		return e.fail(ctx, sum, job.Kind, start, err, 0, 0)
	}
	defer f.Close()

	if req, err = e.processes.Begin(ctx, req.ID, logPath); err != nil {
		log.Error("bulk run could not start", "err", err)
		return e.fail(ctx, sum, job.Kind, start, err, 0, 0)
	}
	sum.Status, sum.LogFile = req.Status, logPath
	log.Info("bulk run started", "workers", e.workers)

	success, failed, streamErr := e.consume(ctx, job, src, fn, f)
	if streamErr != nil {
		log.Error("bulk run failed", "err", streamErr, "success", success, "errors", failed)
		return e.fail(ctx, sum, job.Kind, start, streamErr, success, failed)
	}

	req, err = e.processes.Complete(ctx, req.ID, success, failed)
	if err != nil {
		log.Error("bulk run could not complete", "err", err, "success", success, "errors", failed)
		return e.fail(ctx, sum, job.Kind, start, err, success, failed)
	}
	e.finish(&sum, req, job.Kind, start)
	log.Info("bulk run finished", "status", sum.Status, "success", success, "errors", failed)
	return sum, nil
}

func (e *Engine) consume(ctx context.Context, job Job, src io.Reader, fn RowFunc, out io.Writer) (success, failed int, err error) {
	reader := csv.NewReader(src)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, 0, ErrEmptyFile
		}
		return 0, 0, fmt.Errorf("read header: %w", err)
	}
	header = cleanHeader(header)
	if err := checkHeader(header, job.Columns); err != nil {
		return 0, 0, err
	}

	// Rows are dispatched at most window ahead of the log, so a stalled row bounds the reorder buffer.
	window := make(chan struct{}, e.workers*reorderWindow)
	rl := newRowLog(out, job.Kind, func() { <-window })
	results := make(chan outcome, e.workers)
	written := make(chan error, 1)
	go func() { written <- rl.consume(results) }()

	var g errgroup.Group
	g.SetLimit(e.workers)

	var streamErr error
	rowNumber := 0
	for {
		rec, rerr := reader.Read()
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil && !errors.Is(rerr, csv.ErrFieldCount) {
			streamErr = fmt.Errorf("read row %d: %w", rowNumber+1, rerr)
			break
		}
		rowNumber++
		n := rowNumber
		window <- struct{}{}
		if rerr != nil {
			results <- outcome{row: n, err: &entity.ValidationError{Fields: map[string]string{
				"row": fmt.Sprintf("has %d fields, header has %d", len(rec), len(header)),
			}}}
			continue
		}

		row := make(map[string]string, len(header))
		for i, h := range header {
			row[h] = rec[i]
		}
		g.Go(func() error {
			results <- runRow(ctx, n, row, fn)
			return nil
		})
	}

	_ = g.Wait()
	close(results)
	if werr := <-written; werr != nil && streamErr == nil {
		streamErr = fmt.Errorf("write row log: %w", werr)
	}
	return rl.success, rl.failed, streamErr
}

func runRow(ctx context.Context, n int, row map[string]string, fn RowFunc) (o outcome) {
	metrics.BulkInFlightRows.Inc()
	defer metrics.BulkInFlightRows.Dec()
	defer func() {
		if p := recover(); p != nil {
			o = outcome{row: n, err: fmt.Errorf("row %d panicked: %v", n, p)}
		}
	}()
	id, err := fn(ctx, n, row)
	return outcome{row: n, id: id, err: err}
}

func (e *Engine) fail(ctx context.Context, sum Summary, kind string, start time.Time, cause error, success, failed int) (Summary, error) {
	req, err := e.processes.Fail(ctx, sum.ProcessID, cause.Error(), success, failed)
	if err != nil {
		logger.From(ctx).Error("bulk run left unfinished", "process_id", sum.ProcessID, "err", err)
		return sum, errors.Join(cause, err)
	}
	e.finish(&sum, req, kind, start)
	return sum, cause
}

func (e *Engine) finish(sum *Summary, req process.Request, kind string, start time.Time) {
	sum.Status = req.Status
	sum.TotalRows = req.TotalRows
	sum.SuccessCount = req.SuccessCount
	sum.ErrorCount = req.ErrorCount
	metrics.BulkRuns.WithLabelValues(kind, string(req.Status)).Inc()
	metrics.BulkRunDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

func openLog(dir, path string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create log file: %w", err)
	}
	return f, nil
}

func cleanHeader(h []string) []string {
	out := make([]string, len(h))
	for i, c := range h {
		if i == 0 {
			c = strings.TrimPrefix(c, "\ufeff")
		}
		out[i] = strings.TrimSpace(c)
	}
	return out
}

func checkHeader(header, columns []string) error {
	known := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		known[c] = struct{}{}
	}
	seen := make(map[string]struct{}, len(header))
	for _, h := range header {
		if h == "" {
			return fmt.Errorf("%w: empty column name", ErrInvalidHeader)
		}
		if _, ok := known[h]; !ok {
			return fmt.Errorf("%w: unknown column %q", ErrInvalidHeader, h)
		}
		if _, dup := seen[h]; dup {
			return fmt.Errorf("%w: duplicate column %q", ErrInvalidHeader, h)
		}
		seen[h] = struct{}{}
	}
	return nil
}
