package entity

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound      = errors.New("entity: not found")
	ErrDuplicateKey  = errors.New("entity: duplicate key")
	ErrActorRequired = errors.New("entity: actor is required")
)

// ValidationError carries one message per offending field, keyed by JSON field name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func invalid(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// ReferenceError reports a foreign id that does not resolve to a live record.
type ReferenceError struct {
	Field string
	Kind  string
	ID    string
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("invalid %s: %s %q does not exist or is deleted", e.Field, e.Kind, e.ID)
}

// ConflictError reports a live record already holding the same uniqueness key.
type ConflictError struct {
	Label      string
	Key        Key
	ExistingID string
	Existing   map[string]any
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s with %s already present", e.Label, e.Key.Describe())
}

// ServerError wraps a failure of the store or the transactional write. Any transaction has
// already been rolled back when it is returned.
type ServerError struct {
	Op  string
	Err error
}

func (e *ServerError) Error() string { return "entity: " + e.Op + ": " + e.Err.Error() }

func (e *ServerError) Unwrap() error { return e.Err }

// Category labels used in bulk logs and metrics.
const (
	CategoryInvalidData = "InvalidData"
	CategoryServerError = "ServerError"
)

// Describe turns a pipeline failure into a category, a human message and machine-readable details.
func Describe(err error) (category, message string, details map[string]any) {
	var (
		verr *ValidationError
		rerr *ReferenceError
		cerr *ConflictError
	)
	switch {
	case errors.As(err, &verr):
		return CategoryInvalidData, verr.Error(), map[string]any{"errors": verr.Fields}
	case errors.As(err, &rerr):
		return CategoryInvalidData, rerr.Error(), map[string]any{"field": rerr.Field, "kind": rerr.Kind, "id": rerr.ID}
	case errors.As(err, &cerr):
		d := map[string]any{"key": cerr.Key.Map()}
		if cerr.ExistingID != "" {
			d["existingId"] = cerr.ExistingID
			d["existing"] = cerr.Existing
		}
		return CategoryInvalidData, cerr.Error(), d
	case errors.Is(err, ErrNotFound):
		return CategoryInvalidData, "record not found", map[string]any{}
	default:
		return CategoryServerError, "internal server error", map[string]any{}
	}
}

func outcomeOf(err error) string {
	if err == nil {
		return "success"
	}
	var (
		verr *ValidationError
		rerr *ReferenceError
		cerr *ConflictError
	)
	switch {
	case errors.As(err, &verr):
		return "validation"
	case errors.As(err, &rerr):
		return "reference"
	case errors.As(err, &cerr):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "server"
	}
}
