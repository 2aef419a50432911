package entity

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"ledger-config/internal/audit"
	"ledger-config/internal/metrics"
	"ledger-config/pkg/logger"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/google/uuid"
)

// Service is the write pipeline and read side for one kind of config entity.
//
// Every mutation goes validate -> references -> uniqueness -> one transaction holding the row write
// and exactly one audit record. Nothing is physically deleted.
type Service[T any] struct {
	schema    Schema[T]
	columns   []column
	store     Store
	recorder  *audit.Recorder
	validate  *Validator
	cache     Cache
	observers []Observer
	clock     func() time.Time
}

type Options struct {
	Recorder  *audit.Recorder
	Validator *Validator
	Cache     Cache
	Observers []Observer
	Clock     func() time.Time
}

func NewService[T any](schema Schema[T], store Store, opts Options) (*Service[T], error) {
	if store == nil {
		return nil, errors.New("entity: store is required")
	}
	cols, err := columnsOf[T]()
	if err != nil {
		return nil, err
	}
	if err := schema.check(cols); err != nil {
		return nil, err
	}

	s := &Service[T]{
		schema:    schema,
		columns:   cols,
		store:     store,
		recorder:  opts.Recorder,
		validate:  opts.Validator,
		cache:     opts.Cache,
		observers: opts.Observers,
		clock:     opts.Clock,
	}
	if s.recorder == nil {
		s.recorder = audit.NewRecorder()
	}
	if s.validate == nil {
		s.validate = NewValidator()
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	return s, nil
}

func (s *Service[T]) Kind() string  { return s.schema.Kind }
func (s *Service[T]) Label() string { return s.schema.Label }

// Columns returns the field names accepted in bulk CSV headers, in declaration order.
func (s *Service[T]) Columns() []string {
	out := make([]string, len(s.columns))
	for i, c := range s.columns {
		out[i] = c.name
	}
	return out
}

// TemplateCSV returns the CSV header row for bulk inserts.
func (s *Service[T]) TemplateCSV() ([]byte, error) { return templateCSV(s.columns) }

func (s *Service[T]) Create(ctx context.Context, actor string, payload []byte) (Record[T], error) {
	rec, err := s.create(ctx, actor, payload)
	s.observe(ctx, audit.ActionCreate, err)
	return rec, err
}

// CreateFromRow runs Create for one CSV row keyed by header.
func (s *Service[T]) CreateFromRow(ctx context.Context, actor string, row map[string]string) (Record[T], error) {
	payload, err := rowPayload(s.columns, row)
	if err != nil {
		s.observe(ctx, audit.ActionCreate, err)
		return Record[T]{}, err
	}
	return s.Create(ctx, actor, payload)
}

func (s *Service[T]) Update(ctx context.Context, actor, id string, patch []byte) (Record[T], error) {
	rec, err := s.update(ctx, actor, id, patch)
	s.observe(ctx, audit.ActionEdit, err)
	return rec, err
}

func (s *Service[T]) Delete(ctx context.Context, actor, id, reason string) (Record[T], error) {
	rec, err := s.delete(ctx, actor, id, reason)
	s.observe(ctx, audit.ActionDelete, err)
	return rec, err
}

func (s *Service[T]) create(ctx context.Context, actor string, payload []byte) (Record[T], error) {
	if actor == "" {
		return Record[T]{}, ErrActorRequired
	}
	var v T
	if err := decodePayload(payload, &v); err != nil {
		return Record[T]{}, err
	}
	data, key, err := s.prepare(ctx, &v, "")
	if err != nil {
		return Record[T]{}, err
	}

	now := s.clock().UTC()
	row := Row{
		ID:        uuid.NewString(),
		Kind:      s.schema.Kind,
		Data:      data,
		UniqueKey: key.String(),
		Meta:      Meta{CreatedBy: actor, CreatedAt: now, UpdatedBy: actor, UpdatedAt: now},
	}
	err = s.commit(ctx, audit.ActionCreate, actor, nil, row, func(ctx context.Context, tx Tx) error {
		return tx.Insert(ctx, row)
	})
	if err != nil {
		return Record[T]{}, s.classify(ctx, "create", key, row.ID, err)
	}
	return s.toRecord(ctx, row, nil)
}

func (s *Service[T]) update(ctx context.Context, actor, id string, patch []byte) (Record[T], error) {
	if actor == "" {
		return Record[T]{}, ErrActorRequired
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(patch, &fields); err != nil {
		return Record[T]{}, invalid("body", "request body must be a JSON object")
	}
	current, err := s.loadLive(ctx, id)
	if err != nil {
		return Record[T]{}, err
	}

	merged, err := jsonpatch.MergePatch(current.Data, patch)
	if err != nil {
		return Record[T]{}, invalid("body", "cannot apply update: "+err.Error())
	}
	var v T
	if err := decodePayload(merged, &v); err != nil {
		return Record[T]{}, err
	}
	data, key, err := s.prepare(ctx, &v, id)
	if err != nil {
		return Record[T]{}, err
	}

	next := current
	next.Data = data
	next.UniqueKey = key.String()
	next.UpdatedBy = actor
	next.UpdatedAt = s.clock().UTC()
	err = s.commit(ctx, audit.ActionEdit, actor, &current, next, func(ctx context.Context, tx Tx) error {
		return tx.Update(ctx, next)
	})
	if err != nil {
		return Record[T]{}, s.classify(ctx, "update", key, id, err)
	}
	return s.toRecord(ctx, next, nil)
}

func (s *Service[T]) delete(ctx context.Context, actor, id, reason string) (Record[T], error) {
	if actor == "" {
		return Record[T]{}, ErrActorRequired
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Record[T]{}, invalid("deleteReason", "is required")
	}
	current, err := s.loadLive(ctx, id)
	if err != nil {
		return Record[T]{}, err
	}

	next := current
	next.IsDeleted = true
	next.DeletedBy = actor
	next.DeleteReason = reason
	next.UpdatedBy = actor
	next.UpdatedAt = s.clock().UTC()
	err = s.commit(ctx, audit.ActionDelete, actor, &current, next, func(ctx context.Context, tx Tx) error {
		return tx.Update(ctx, next)
	})
	if err != nil {
		return Record[T]{}, s.classify(ctx, "delete", nil, id, err)
	}
	return s.toRecord(ctx, next, nil)
}

// prepare normalises and validates v, verifies references and the uniqueness key, and returns the
// canonical stored document. selfID is excluded from the uniqueness check (updates).
func (s *Service[T]) prepare(ctx context.Context, v *T, selfID string) (json.RawMessage, Key, error) {
	if s.schema.Normalize != nil {
		s.schema.Normalize(v)
	}
	fields := s.validate.Struct(v)
	if s.schema.Check != nil {
		for f, msg := range s.schema.Check(v) {
			if _, ok := fields[f]; !ok {
				fields[f] = msg
			}
		}
	}
	if len(fields) > 0 {
		return nil, nil, &ValidationError{Fields: fields}
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, nil, &ServerError{Op: "encode", Err: err}
	}
	doc, err := decodeDoc(data)
	if err != nil {
		return nil, nil, &ServerError{Op: "encode", Err: err}
	}

	if err := s.checkRefs(ctx, doc); err != nil {
		return nil, nil, err
	}

	key := s.schema.keyOf(doc)
	if len(key) > 0 {
		existing, err := s.store.FindLive(ctx, s.schema.Kind, key.String(), selfID)
		switch {
		case err == nil:
			return nil, nil, s.conflict(key, existing)
		case !errors.Is(err, ErrNotFound):
			return nil, nil, &ServerError{Op: "check uniqueness", Err: err}
		}
	}
	return data, key, nil
}

func (s *Service[T]) checkRefs(ctx context.Context, doc map[string]any) error {
	for _, ref := range s.schema.Refs {
		id := scalarString(doc[ref.Field])
		if id == "" {
			continue
		}
		target, err := s.store.Get(ctx, ref.Kind, id)
		switch {
		case errors.Is(err, ErrNotFound):
			return &ReferenceError{Field: ref.Field, Kind: ref.Kind, ID: id}
		case err != nil:
			return &ServerError{Op: "check reference " + ref.Field, Err: err}
		case target.IsDeleted:
			return &ReferenceError{Field: ref.Field, Kind: ref.Kind, ID: id}
		}
	}
	return nil
}

func (s *Service[T]) conflict(key Key, existing Row) *ConflictError {
	cerr := &ConflictError{Label: s.schema.Label, Key: key, ExistingID: existing.ID}
	if doc, err := decodeDoc(existing.Data); err == nil {
		cerr.Existing = pick(doc, s.schema.Display)
	}
	return cerr
}

func (s *Service[T]) commit(ctx context.Context, action audit.Action, actor string, prev *Row, next Row, write func(ctx context.Context, tx Tx) error) error {
	var prevSnap json.RawMessage
	if prev != nil {
		snap, err := prev.Snapshot()
		if err != nil {
			return err
		}
		prevSnap = snap
	}
	snap, err := next.Snapshot()
	if err != nil {
		return err
	}
	rec, err := s.recorder.Build(s.schema.Kind, next.ID, action, actor, prevSnap, snap)
	if err != nil {
		return err
	}

	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := write(ctx, tx); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, rec)
	})
	if err != nil {
		return err
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, s.schema.Kind, next.ID, next.UpdatedAt)
	}
	change := Change{Kind: s.schema.Kind, ID: next.ID, Action: action, Actor: actor, At: rec.ActionDate, Snapshot: snap}
	for _, o := range s.observers {
		o.Observe(ctx, change)
	}
	return nil
}

// classify maps a failed commit onto the error taxonomy. A duplicate key from the store means a
// concurrent writer won the race after our pre-check.
func (s *Service[T]) classify(ctx context.Context, op string, key Key, selfID string, err error) error {
	if errors.Is(err, ErrDuplicateKey) && len(key) > 0 {
		if existing, ferr := s.store.FindLive(ctx, s.schema.Kind, key.String(), selfID); ferr == nil {
			return s.conflict(key, existing)
		}
		return &ConflictError{Label: s.schema.Label, Key: key}
	}
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	logger.From(ctx).Error("entity write failed", "kind", s.schema.Kind, "op", op, "id", selfID, "err", err)
	return &ServerError{Op: op, Err: err}
}

func (s *Service[T]) loadLive(ctx context.Context, id string) (Row, error) {
	r, err := s.store.Get(ctx, s.schema.Kind, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Row{}, ErrNotFound
		}
		return Row{}, &ServerError{Op: "load", Err: err}
	}
	if r.IsDeleted {
		return Row{}, ErrNotFound
	}
	return r, nil
}

// Get returns one live record with references hydrated.
func (s *Service[T]) Get(ctx context.Context, id string) (Record[T], error) {
	r, err := s.lookup(ctx, s.schema.Kind, id)
	if err != nil {
		return Record[T]{}, err
	}
	if r.IsDeleted {
		return Record[T]{}, ErrNotFound
	}
	return s.toRecord(ctx, r, nil)
}

// List returns live records in creation order with references hydrated.
func (s *Service[T]) List(ctx context.Context, page Page) ([]Record[T], error) {
	rows, err := s.store.List(ctx, s.schema.Kind, page)
	if err != nil {
		return nil, &ServerError{Op: "list", Err: err}
	}
	memo := map[string]RefView{}
	out := make([]Record[T], 0, len(rows))
	for _, r := range rows {
		rec, err := s.toRecord(ctx, r, memo)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// History returns the audit trail of a record, deleted records included.
func (s *Service[T]) History(ctx context.Context, id string) ([]audit.Record, error) {
	if _, err := s.lookup(ctx, s.schema.Kind, id); err != nil {
		return nil, err
	}
	recs, err := s.store.History(ctx, s.schema.Kind, id)
	if err != nil {
		return nil, &ServerError{Op: "history", Err: err}
	}
	return recs, nil
}

func (s *Service[T]) lookup(ctx context.Context, kind, id string) (Row, error) {
	if s.cache != nil {
		if r, ok := s.cache.Get(ctx, kind, id); ok {
			return r, nil
		}
	}
	r, err := s.store.Get(ctx, kind, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Row{}, ErrNotFound
		}
		return Row{}, &ServerError{Op: "lookup " + kind, Err: err}
	}
	if s.cache != nil {
		s.cache.Set(ctx, r)
	}
	return r, nil
}

func (s *Service[T]) toRecord(ctx context.Context, r Row, memo map[string]RefView) (Record[T], error) {
	rec := Record[T]{ID: r.ID, Meta: r.Meta}
	if err := json.Unmarshal(r.Data, &rec.Data); err != nil {
		return Record[T]{}, &ServerError{Op: "decode " + r.ID, Err: err}
	}
	if len(s.schema.Refs) == 0 {
		return rec, nil
	}

	doc, err := decodeDoc(r.Data)
	if err != nil {
		return Record[T]{}, &ServerError{Op: "decode " + r.ID, Err: err}
	}
	for _, ref := range s.schema.Refs {
		id := scalarString(doc[ref.Field])
		if id == "" {
			continue
		}
		view, err := s.hydrate(ctx, ref, id, memo)
		if err != nil {
			return Record[T]{}, err
		}
		if rec.Refs == nil {
			rec.Refs = map[string]RefView{}
		}
		rec.Refs[ref.Field] = view
	}
	return rec, nil
}

func (s *Service[T]) hydrate(ctx context.Context, ref Ref, id string, memo map[string]RefView) (RefView, error) {
	memoKey := ref.Kind + "/" + id
	if v, ok := memo[memoKey]; ok {
		return v, nil
	}
	view := RefView{ID: id, Kind: ref.Kind}
	target, err := s.lookup(ctx, ref.Kind, id)
	switch {
	case errors.Is(err, ErrNotFound):
		view.Missing = true
	case err != nil:
		return RefView{}, err
	default:
		view.Deleted = target.IsDeleted
		if doc, derr := decodeDoc(target.Data); derr == nil {
			view.Display = pick(doc, ref.Display)
		}
	}
	if memo != nil {
		memo[memoKey] = view
	}
	return view, nil
}

func (s *Service[T]) observe(ctx context.Context, action audit.Action, err error) {
	metrics.EntityWrites.WithLabelValues(s.schema.Kind, string(action), outcomeOf(err)).Inc()
	if err != nil {
		logger.From(ctx).Debug("entity write rejected", "kind", s.schema.Kind, "action", action, "err", err)
	}
}
