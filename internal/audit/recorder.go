package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wI2L/jsondiff"
)

var ErrInvalidRecord = errors.New("audit: invalid record")

// Recorder builds audit records. It does not persist them; the caller appends the record
// inside the same transaction as the entity write.
type Recorder struct {
	clock func() time.Time
}

func NewRecorder() *Recorder {
	return &Recorder{clock: time.Now}
}

// WithClock returns a copy using clock for ActionDate.
func (r *Recorder) WithClock(clock func() time.Time) *Recorder {
	return &Recorder{clock: clock}
}

// Build validates the inputs and returns a Record for next. prev is the snapshot before the action
// and is nil for Create.
func (r *Recorder) Build(kind, itemID string, action Action, actor string, prev, next json.RawMessage) (Record, error) {
	if kind == "" || itemID == "" || actor == "" || !action.Valid() {
		return Record{}, ErrInvalidRecord
	}
	if len(next) == 0 || !json.Valid(next) {
		return Record{}, fmt.Errorf("%w: snapshot must be a JSON document", ErrInvalidRecord)
	}

	rec := Record{
		ID:           uuid.NewString(),
		Kind:         kind,
		ActionItemID: itemID,
		Action:       action,
		ActionBy:     actor,
		ActionDate:   r.clock().UTC(),
		Snapshot:     next,
	}
	if len(prev) > 0 {
		changes, err := Diff(prev, next)
		if err != nil {
			return Record{}, err
		}
		rec.Changes = changes
	}
	return rec, nil
}

// Diff returns the RFC 6902 operations turning prev into next, or nil when they are equal.
func Diff(prev, next json.RawMessage) (json.RawMessage, error) {
	patch, err := jsondiff.CompareJSON(prev, next)
	if err != nil {
		return nil, fmt.Errorf("audit: diff snapshots: %w", err)
	}
	if len(patch) == 0 {
		return nil, nil
	}
	out, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("audit: encode diff: %w", err)
	}
	return out, nil
}
