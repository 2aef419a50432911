package entity

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Schema describes one kind of config entity: its uniqueness key, display fields and foreign keys.
// T is a flat struct whose json tags name the fields and whose validate tags hold field rules.
type Schema[T any] struct {
	// Kind is the stable identifier, also used as the URL segment (e.g. "currency").
	Kind string
	// Label is the human name used in messages (e.g. "Currency").
	Label string
	// UniqueKey lists the fields that must be unique among live records. Empty means no constraint.
	UniqueKey []string
	// Display lists the fields that identify a record to a human.
	Display []string
	Refs    []Ref

	// Normalize runs before validation (e.g. upper-casing codes).
	Normalize func(*T)
	// Check adds cross-field rules validator tags cannot express. It returns field -> message.
	Check func(*T) map[string]string
}

// Ref declares that Field holds the id of a record of Kind. Display names the target's fields
// copied into hydrated views.
type Ref struct {
	Field   string
	Kind    string
	Display []string
}

var reservedFields = map[string]struct{}{
	"id": {}, "refs": {}, "isDeleted": {}, "deleteReason": {}, "deletedBy": {},
	"createdBy": {}, "createdAt": {}, "updatedBy": {}, "updatedAt": {},
}

func (s Schema[T]) check(cols []column) error {
	if s.Kind == "" || s.Label == "" {
		return errors.New("entity: schema kind and label are required")
	}
	byName := make(map[string]column, len(cols))
	for _, c := range cols {
		if _, ok := reservedFields[c.name]; ok {
			return fmt.Errorf("entity: %s: field %q is reserved", s.Kind, c.name)
		}
		byName[c.name] = c
	}
	for _, f := range append(append([]string{}, s.UniqueKey...), s.Display...) {
		if _, ok := byName[f]; !ok {
			return fmt.Errorf("entity: %s: unknown field %q", s.Kind, f)
		}
	}
	for _, r := range s.Refs {
		c, ok := byName[r.Field]
		if !ok || c.kind != colString {
			return fmt.Errorf("entity: %s: reference field %q must be a string field", s.Kind, r.Field)
		}
		if r.Kind == "" {
			return fmt.Errorf("entity: %s: reference %q has no kind", s.Kind, r.Field)
		}
	}
	return nil
}

// Key is an ordered uniqueness tuple.
type Key []KeyPart

type KeyPart struct {
	Field string
	Value string
}

func (s Schema[T]) keyOf(doc map[string]any) Key {
	if len(s.UniqueKey) == 0 {
		return nil
	}
	k := make(Key, 0, len(s.UniqueKey))
	for _, f := range s.UniqueKey {
		k = append(k, KeyPart{Field: f, Value: scalarString(doc[f])})
	}
	return k
}

// String is the canonical stored form; it is what the store indexes for uniqueness. The values are
// encoded as a JSON array in key order, so no value can spill into a neighbouring field.
func (k Key) String() string {
	if len(k) == 0 {
		return ""
	}
	vals := make([]string, len(k))
	for i, p := range k {
		vals[i] = p.Value
	}
	b, _ := json.Marshal(vals)
	return string(b)
}

func (k Key) Describe() string {
	parts := make([]string, len(k))
	for i, p := range k {
		parts[i] = fmt.Sprintf("%s %q", p.Field, p.Value)
	}
	return strings.Join(parts, ", ")
}

func (k Key) Map() map[string]string {
	out := make(map[string]string, len(k))
	for _, p := range k {
		out[p.Field] = p.Value
	}
	return out
}

func pick(doc map[string]any, fields []string) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := doc[f]; ok {
			out[f] = v
		}
	}
	return out
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprint(t)
	}
}

func decodeDoc(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}
