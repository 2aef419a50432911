package entity

import (
	"encoding/json"
	"time"
)

// Meta is the lifecycle metadata every config entity carries.
type Meta struct {
	IsDeleted    bool      `json:"isDeleted"`
	DeleteReason string    `json:"deleteReason"`
	DeletedBy    string    `json:"deletedBy"`
	CreatedBy    string    `json:"createdBy"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedBy    string    `json:"updatedBy"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Row is the stored shape of any entity: its domain fields as a JSON document plus metadata.
type Row struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Data      json.RawMessage `json:"data"`
	UniqueKey string          `json:"uniqueKey,omitempty"`
	Meta
}

// Snapshot is the flat document recorded in audit records: domain fields, id and metadata.
func (r Row) Snapshot() (json.RawMessage, error) {
	return flatten(r.ID, r.Data, r.Meta, nil)
}

// RefView is a hydrated foreign key.
type RefView struct {
	ID      string         `json:"id"`
	Kind    string         `json:"kind"`
	Display map[string]any `json:"display,omitempty"`
	Deleted bool           `json:"deleted,omitempty"`
	Missing bool           `json:"missing,omitempty"`
}

// Record is the API view of an entity. It marshals flat: domain fields and metadata share one
// object, hydrated references sit under "refs".
type Record[T any] struct {
	ID   string
	Data T
	Meta
	Refs map[string]RefView
}

func (r Record[T]) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(r.Data)
	if err != nil {
		return nil, err
	}
	return flatten(r.ID, data, r.Meta, r.Refs)
}

func flatten(id string, data json.RawMessage, meta Meta, refs map[string]RefView) (json.RawMessage, error) {
	doc := map[string]json.RawMessage{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	}

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	var metaDoc map[string]json.RawMessage
	if err := json.Unmarshal(metaJSON, &metaDoc); err != nil {
		return nil, err
	}
	for k, v := range metaDoc {
		doc[k] = v
	}

	if doc["id"], err = json.Marshal(id); err != nil {
		return nil, err
	}
	if len(refs) > 0 {
		if doc["refs"], err = json.Marshal(refs); err != nil {
			return nil, err
		}
	}
	return json.Marshal(doc)
}

// Page bounds a list query.
type Page struct {
	Limit  int
	Offset int
}

const (
	DefaultPageSize = 100
	MaxPageSize     = 1000
)

func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageSize
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
