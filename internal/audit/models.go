package audit

import (
	"encoding/json"
	"time"
)

// Record is an immutable snapshot of a config entity taken at the moment it was created, edited or deleted.
//
// Invariants:
// - Exactly one Record is appended per entity mutation, in the same transaction as the mutation.
// - Records are never updated or deleted (audit_records carries a trigger rejecting both).
type Record struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	ActionItemID string    `json:"actionItemId"`
	Action       Action    `json:"action"`
	ActionBy     string    `json:"actionBy"`
	ActionDate   time.Time `json:"actionDate"`

	// Snapshot is the entity state after the action: domain fields plus soft-delete and ownership metadata.
	Snapshot json.RawMessage `json:"snapshot"`

	// Changes is an RFC 6902 patch from the previous snapshot. Empty for Create.
	Changes json.RawMessage `json:"changes,omitempty"`
}

type Action string

const (
	ActionCreate Action = "Create"
	ActionEdit   Action = "Edit"
	ActionDelete Action = "Delete"
)

func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionEdit, ActionDelete:
		return true
	default:
		return false
	}
}
