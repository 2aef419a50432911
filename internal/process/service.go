package process

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("process: request not found")
	ErrInvalidTransition = errors.New("process: invalid status transition")
	ErrInvalidRequest    = errors.New("process: invalid request")
)

type Repository interface {
	Create(ctx context.Context, r Request) error
	Update(ctx context.Context, r Request) error
	Get(ctx context.Context, id string) (Request, error)
}

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

// Open records a new run in Initialised state.
func (s *Service) Open(ctx context.Context, kind, fileName, actor string) (Request, error) {
	if strings.TrimSpace(kind) == "" || actor == "" {
		return Request{}, ErrInvalidRequest
	}
	now := s.clock().UTC()
	r := Request{
		ID:        uuid.NewString(),
		Kind:      kind,
		FileName:  fileName,
		Status:    StatusInitialised,
		CreatedBy: actor,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, r); err != nil {
		return Request{}, fmt.Errorf("open process request: %w", err)
	}
	return r, nil
}

// Begin moves the run to Processing and records where its row log is written.
func (s *Service) Begin(ctx context.Context, id, logFile string) (Request, error) {
	return s.transition(ctx, id, StatusProcessing, func(r *Request) {
		r.LogFile = logFile
	})
}

// Complete closes a run whose rows were all processed: Done with no errors, PartiallyDone otherwise.
func (s *Service) Complete(ctx context.Context, id string, success, failed int) (Request, error) {
	status := StatusDone
	if failed > 0 {
		status = StatusPartiallyDone
	}
	return s.transition(ctx, id, status, func(r *Request) {
		r.TotalRows = success + failed
		r.SuccessCount = success
		r.ErrorCount = failed
	})
}

// Fail closes a run that could not be read to the end. Counts reflect rows processed before the failure.
func (s *Service) Fail(ctx context.Context, id, reason string, success, failed int) (Request, error) {
	return s.transition(ctx, id, StatusError, func(r *Request) {
		r.TotalRows = success + failed
		r.SuccessCount = success
		r.ErrorCount = failed
		r.ErrorMessage = reason
	})
}

func (s *Service) Get(ctx context.Context, id string) (Request, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) transition(ctx context.Context, id string, to Status, apply func(*Request)) (Request, error) {
	r, err := s.repo.Get(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if !CanTransition(r.Status, to) {
		return Request{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, to)
	}
	r.Status = to
	apply(&r)
	r.UpdatedAt = s.clock().UTC()
	if err := s.repo.Update(ctx, r); err != nil {
		return Request{}, fmt.Errorf("update process request %s: %w", id, err)
	}
	return r, nil
}
