package entity

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ledger-config/internal/audit"

	"github.com/stretchr/testify/require"
)

type testParent struct {
	Code string `json:"code" validate:"required"`
	Name string `json:"name"`
}

type testItem struct {
	Code     string `json:"code" validate:"required,max=8"`
	Region   string `json:"region" validate:"required"`
	ParentID string `json:"parentId"`
	Weight   int    `json:"weight" validate:"gte=0,lte=100"`
	Active   bool   `json:"active"`
}

var testParentSchema = Schema[testParent]{
	Kind:      "parent",
	Label:     "Parent",
	UniqueKey: []string{"code"},
	Display:   []string{"code", "name"},
}

var testItemSchema = Schema[testItem]{
	Kind:      "item",
	Label:     "Item",
	UniqueKey: []string{"code", "region"},
	Display:   []string{"code", "region"},
	Refs:      []Ref{{Field: "parentId", Kind: "parent", Display: []string{"code"}}},
	Normalize: func(v *testItem) { v.Code = strings.ToUpper(strings.TrimSpace(v.Code)) },
	Check: func(v *testItem) map[string]string {
		if v.Active && v.ParentID == "" {
			return map[string]string{"parentId": "is required when active"}
		}
		return nil
	},
}

type recordingObserver struct {
	mu      sync.Mutex
	changes []Change
}

func (o *recordingObserver) Observe(_ context.Context, c Change) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.changes = append(o.changes, c)
}

type fixture struct {
	store   *MemoryStore
	parents *Service[testParent]
	items   *Service[testItem]
	obs     *recordingObserver
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := NewMemoryStore()
	obs := &recordingObserver{}
	clock := func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	opts := Options{Observers: []Observer{obs}, Clock: clock, Recorder: audit.NewRecorder().WithClock(clock)}

	parents, err := NewService(testParentSchema, store, opts)
	require.NoError(t, err)
	items, err := NewService(testItemSchema, store, opts)
	require.NoError(t, err)
	return fixture{store: store, parents: parents, items: items, obs: obs}
}

func TestCreate_StoresRecordAndOneAudit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.items.Create(ctx, "u1", []byte(`{"code":" ab1 ","region":"EU","weight":5}`))
	require.NoError(t, err)
	require.NotEmpty(t, rec.ID)
	require.Equal(t, "AB1", rec.Data.Code)
	require.Equal(t, "u1", rec.CreatedBy)
	require.False(t, rec.IsDeleted)

	audits := f.store.Audit()
	require.Len(t, audits, 1)
	require.Equal(t, audit.ActionCreate, audits[0].Action)
	require.Equal(t, rec.ID, audits[0].ActionItemID)
	require.Equal(t, "u1", audits[0].ActionBy)
	require.Empty(t, audits[0].Changes)

	var snap map[string]any
	require.NoError(t, json.Unmarshal(audits[0].Snapshot, &snap))
	require.Equal(t, "AB1", snap["code"])
	require.Equal(t, rec.ID, snap["id"])
	require.Equal(t, false, snap["isDeleted"])

	require.Len(t, f.obs.changes, 1)
	require.Equal(t, audit.ActionCreate, f.obs.changes[0].Action)
}

func TestCreate_DuplicateKeyIsConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.items.Create(ctx, "u1", []byte(`{"code":"AB1","region":"EU"}`))
	require.NoError(t, err)

	_, err = f.items.Create(ctx, "u2", []byte(`{"code":"ab1","region":"EU"}`))
	var cerr *ConflictError
	require.ErrorAs(t, err, &cerr)
	require.Contains(t, err.Error(), "already present")
	require.Equal(t, first.ID, cerr.ExistingID)
	require.Equal(t, "AB1", cerr.Existing["code"])

	// Same code in another region is a different key.
	_, err = f.items.Create(ctx, "u2", []byte(`{"code":"AB1","region":"US"}`))
	require.NoError(t, err)

	require.Len(t, f.store.Audit(), 2)
	require.Equal(t, 2, f.store.Count("item"))
}

func TestCreate_ValidationFailuresWriteNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.items.Create(ctx, "u1", []byte(`{"code":"TOOLONGCODE","weight":500,"active":true}`))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "is required", verr.Fields["region"])
	require.Contains(t, verr.Fields["code"], "at most 8")
	require.Contains(t, verr.Fields["weight"], "at most 100")
	require.Equal(t, "is required when active", verr.Fields["parentId"])

	_, err = f.items.Create(ctx, "u1", []byte(`{"code":"A","region":"EU","weight":"heavy"}`))
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "must be an integer", verr.Fields["weight"])

	_, err = f.items.Create(ctx, "u1", []byte(`[1,2]`))
	require.ErrorAs(t, err, &verr)

	require.Empty(t, f.store.Audit())
	require.Zero(t, f.store.Count("item"))
}

func TestCreate_RequiresActor(t *testing.T) {
	f := newFixture(t)
	_, err := f.items.Create(context.Background(), "", []byte(`{"code":"A","region":"EU"}`))
	require.ErrorIs(t, err, ErrActorRequired)
}

func TestCreate_ReferenceMustBeLive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.items.Create(ctx, "u1", []byte(`{"code":"A","region":"EU","parentId":"nope"}`))
	var rerr *ReferenceError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, "parentId", rerr.Field)

	p, err := f.parents.Create(ctx, "u1", []byte(`{"code":"P1","name":"First"}`))
	require.NoError(t, err)

	item, err := f.items.Create(ctx, "u1", []byte(`{"code":"A","region":"EU","parentId":"`+p.ID+`","active":true}`))
	require.NoError(t, err)
	require.Equal(t, "P1", item.Refs["parentId"].Display["code"])

	_, err = f.parents.Delete(ctx, "u1", p.ID, "retired")
	require.NoError(t, err)

	_, err = f.items.Create(ctx, "u1", []byte(`{"code":"B","region":"EU","parentId":"`+p.ID+`"}`))
	require.ErrorAs(t, err, &rerr)

	got, err := f.items.Get(ctx, item.ID)
	require.NoError(t, err)
	require.True(t, got.Refs["parentId"].Deleted)
}

func TestUpdate_PartialMergeExcludesSelf(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.items.Create(ctx, "u1", []byte(`{"code":"AB1","region":"EU","weight":5}`))
	require.NoError(t, err)

	// Re-sending its own key must not conflict with itself.
	upd, err := f.items.Update(ctx, "u2", rec.ID, []byte(`{"code":"ab1","weight":9}`))
	require.NoError(t, err)
	require.Equal(t, 9, upd.Data.Weight)
	require.Equal(t, "EU", upd.Data.Region)
	require.Equal(t, "u1", upd.CreatedBy)
	require.Equal(t, "u2", upd.UpdatedBy)

	audits := f.store.Audit()
	require.Len(t, audits, 2)
	require.Equal(t, audit.ActionEdit, audits[1].Action)
	require.Contains(t, string(audits[1].Changes), "/weight")

	other, err := f.items.Create(ctx, "u1", []byte(`{"code":"CD2","region":"EU"}`))
	require.NoError(t, err)
	_, err = f.items.Update(ctx, "u1", other.ID, []byte(`{"code":"AB1"}`))
	require.ErrorContains(t, err, "already present")
}

func TestUpdate_UnknownOrDeletedIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.items.Update(ctx, "u1", "missing", []byte(`{"weight":1}`))
	require.ErrorIs(t, err, ErrNotFound)

	rec, err := f.items.Create(ctx, "u1", []byte(`{"code":"A","region":"EU"}`))
	require.NoError(t, err)
	_, err = f.items.Delete(ctx, "u1", rec.ID, "gone")
	require.NoError(t, err)

	_, err = f.items.Update(ctx, "u1", rec.ID, []byte(`{"weight":1}`))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDelete_SoftDeletesAndFreesKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.items.Create(ctx, "u1", []byte(`{"code":"A","region":"EU"}`))
	require.NoError(t, err)

	_, err = f.items.Delete(ctx, "u2", rec.ID, "  ")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "deleteReason")

	del, err := f.items.Delete(ctx, "u2", rec.ID, "duplicate entry")
	require.NoError(t, err)
	require.True(t, del.IsDeleted)
	require.Equal(t, "u2", del.DeletedBy)
	require.Equal(t, "duplicate entry", del.DeleteReason)

	_, err = f.items.Get(ctx, rec.ID)
	require.ErrorIs(t, err, ErrNotFound)
	list, err := f.items.List(ctx, Page{})
	require.NoError(t, err)
	require.Empty(t, list)

	_, err = f.items.Delete(ctx, "u2", rec.ID, "again")
	require.ErrorIs(t, err, ErrNotFound)

	// The row is still there, and its key is free again.
	require.Equal(t, 1, f.store.Count("item"))
	_, err = f.items.Create(ctx, "u1", []byte(`{"code":"A","region":"EU"}`))
	require.NoError(t, err)

	hist, err := f.items.History(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	require.Equal(t, audit.ActionDelete, hist[1].Action)
}

func TestCommit_AuditFailureRollsBackWrite(t *testing.T) {
	f := newFixture(t)
	f.store.AuditHook = func(audit.Record) error { return errors.New("audit table unavailable") }

	_, err := f.items.Create(context.Background(), "u1", []byte(`{"code":"A","region":"EU"}`))
	var serr *ServerError
	require.ErrorAs(t, err, &serr)
	require.Zero(t, f.store.Count("item"))
	require.Empty(t, f.store.Audit())
	require.Empty(t, f.obs.changes)
}

func TestCreate_ConcurrentDuplicatesOnlyOneWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok, clash int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.items.Create(ctx, "u1", []byte(`{"code":"RACE","region":"EU"}`))
			mu.Lock()
			defer mu.Unlock()
			var cerr *ConflictError
			switch {
			case err == nil:
				ok++
			case errors.As(err, &cerr):
				clash++
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, ok)
	require.Equal(t, n-1, clash)
	require.Equal(t, 1, f.store.Count("item"))
	require.Len(t, f.store.Audit(), 1)
}

func TestList_PagesInCreationOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, code := range []string{"A", "B", "C"} {
		_, err := f.items.Create(ctx, "u1", []byte(`{"code":"`+code+`","region":"EU"}`))
		require.NoError(t, err)
	}

	page, err := f.items.List(ctx, Page{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, "B", page[0].Data.Code)
	require.Equal(t, "C", page[1].Data.Code)
}

func TestCreateFromRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.items.CreateFromRow(ctx, "u1", map[string]string{"code": "x1", "region": "EU", "weight": "7", "active": "", "parentId": ""})
	require.NoError(t, err)
	require.Equal(t, "X1", rec.Data.Code)
	require.Equal(t, 7, rec.Data.Weight)

	_, err = f.items.CreateFromRow(ctx, "u1", map[string]string{"code": "x2", "region": "EU", "weight": "lots", "active": "maybe"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "must be an integer", verr.Fields["weight"])
	require.Equal(t, "must be true or false", verr.Fields["active"])
}

func TestRecord_MarshalsFlat(t *testing.T) {
	f := newFixture(t)
	rec, err := f.items.Create(context.Background(), "u1", []byte(`{"code":"A","region":"EU"}`))
	require.NoError(t, err)

	out, err := json.Marshal(rec)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(out, &doc))
	require.Equal(t, rec.ID, doc["id"])
	require.Equal(t, "A", doc["code"])
	require.Equal(t, "u1", doc["createdBy"])
	require.Equal(t, false, doc["isDeleted"])
	require.NotContains(t, doc, "refs")
}

func TestServiceColumnsAndTemplate(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, []string{"code", "region", "parentId", "weight", "active"}, f.items.Columns())

	body, err := f.items.TemplateCSV()
	require.NoError(t, err)
	require.Equal(t, "code,region,parentId,weight,active\n", string(body))
}

func TestNewService_RejectsBadSchema(t *testing.T) {
	store := NewMemoryStore()

	_, err := NewService(Schema[testItem]{Kind: "item", Label: "Item", UniqueKey: []string{"nope"}}, store, Options{})
	require.ErrorContains(t, err, "unknown field")

	_, err = NewService(Schema[testItem]{Kind: "item", Label: "Item", Refs: []Ref{{Field: "weight", Kind: "parent"}}}, store, Options{})
	require.ErrorContains(t, err, "must be a string field")

	_, err = NewService(testItemSchema, nil, Options{})
	require.Error(t, err)
}

// racingStore runs onGet once, right after the first Get while armed, to interleave a competing write
// between a read and the transaction that follows it.
type racingStore struct {
	*MemoryStore
	armed atomic.Bool
	onGet func()
}

func (s *racingStore) Get(ctx context.Context, kind, id string) (Row, error) {
	r, err := s.MemoryStore.Get(ctx, kind, id)
	if s.armed.CompareAndSwap(true, false) {
		s.onGet()
	}
	return r, err
}

func TestUpdate_LosesToConcurrentDelete(t *testing.T) {
	store := &racingStore{MemoryStore: NewMemoryStore()}
	items, err := NewService(testItemSchema, store, Options{})
	require.NoError(t, err)
	ctx := context.Background()

	rec, err := items.Create(ctx, "u1", []byte(`{"code":"A","region":"EU","weight":1}`))
	require.NoError(t, err)

	store.onGet = func() {
		_, derr := items.Delete(ctx, "u2", rec.ID, "retired")
		require.NoError(t, derr)
	}
	store.armed.Store(true)

	_, err = items.Update(ctx, "u3", rec.ID, []byte(`{"weight":7}`))
	require.ErrorIs(t, err, ErrNotFound)

	row, err := store.MemoryStore.Get(ctx, "item", rec.ID)
	require.NoError(t, err)
	require.True(t, row.IsDeleted)
	require.Equal(t, "retired", row.DeleteReason)
	require.JSONEq(t, `{"code":"A","region":"EU","parentId":"","weight":1,"active":false}`, string(row.Data))

	audits := store.Audit()
	require.Len(t, audits, 2)
	require.Equal(t, audit.ActionCreate, audits[0].Action)
	require.Equal(t, audit.ActionDelete, audits[1].Action)
}

func TestKeyString_SeparatorsInValuesDoNotCollide(t *testing.T) {
	a := Key{{Field: "lookupType", Value: "a|lookupCode=b"}, {Field: "lookupCode", Value: "c"}}
	b := Key{{Field: "lookupType", Value: "a"}, {Field: "lookupCode", Value: "b|lookupCode=c"}}
	require.NotEqual(t, a.String(), b.String())
	require.Equal(t, `["a|lookupCode=b","c"]`, a.String())
	require.Empty(t, Key(nil).String())
}
