package entity

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

type colKind int

const (
	colString colKind = iota
	colBool
	colInt
	colFloat
	colDecimal
)

func (k colKind) String() string {
	switch k {
	case colBool:
		return "boolean"
	case colInt:
		return "integer"
	case colFloat, colDecimal:
		return "number"
	default:
		return "string"
	}
}

type column struct {
	name string
	kind colKind
}

var decimalType = reflect.TypeOf(decimal.Decimal{})

// columnsOf lists the JSON fields of T in declaration order.
func columnsOf[T any]() ([]column, error) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("entity: %s is not a struct", t)
	}
	var cols []column
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			continue
		}
		if name == "" {
			name = f.Name
		}

		var kind colKind
		switch {
		case f.Type == decimalType:
			kind = colDecimal
		case f.Type.Kind() == reflect.String:
			kind = colString
		case f.Type.Kind() == reflect.Bool:
			kind = colBool
		case f.Type.Kind() >= reflect.Int && f.Type.Kind() <= reflect.Uint64:
			kind = colInt
		case f.Type.Kind() == reflect.Float32 || f.Type.Kind() == reflect.Float64:
			kind = colFloat
		default:
			return nil, fmt.Errorf("entity: %s.%s has unsupported type %s", t.Name(), f.Name, f.Type)
		}
		cols = append(cols, column{name: name, kind: kind})
	}
	return cols, nil
}

// rowPayload converts one CSV row (header -> cell) into a JSON payload. Blank cells are omitted so
// required-field rules report them.
func rowPayload(cols []column, row map[string]string) ([]byte, error) {
	doc := make(map[string]any, len(row))
	bad := map[string]string{}
	for _, c := range cols {
		raw, ok := row[c.name]
		if !ok {
			continue
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		switch c.kind {
		case colString:
			doc[c.name] = raw
		case colBool:
			b, err := strconv.ParseBool(raw)
			if err != nil {
				bad[c.name] = "must be true or false"
				continue
			}
			doc[c.name] = b
		case colInt:
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				bad[c.name] = "must be an integer"
				continue
			}
			doc[c.name] = n
		case colFloat:
			f, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				bad[c.name] = "must be a number"
				continue
			}
			doc[c.name] = f
		case colDecimal:
			d, err := decimal.NewFromString(raw)
			if err != nil {
				bad[c.name] = "must be a decimal number"
				continue
			}
			doc[c.name] = d
		}
	}
	if len(bad) > 0 {
		return nil, &ValidationError{Fields: bad}
	}
	return json.Marshal(doc)
}

func templateCSV(cols []column) ([]byte, error) {
	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = c.name
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// decodePayload decodes a JSON object into v, turning decode failures into field errors.
func decodePayload(payload []byte, v any) error {
	if len(bytes.TrimSpace(payload)) == 0 {
		return invalid("body", "request body is required")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return invalid("body", "request body must be a JSON object")
	}
	if err := json.Unmarshal(payload, v); err != nil {
		var te *json.UnmarshalTypeError
		if errors.As(err, &te) && te.Field != "" {
			return invalid(te.Field, "must be "+jsonKindName(te.Type))
		}
		return invalid("body", err.Error())
	}
	return nil
}

func jsonKindName(t reflect.Type) string {
	switch {
	case t == nil:
		return "a valid value"
	case t == decimalType:
		return "a decimal number"
	case t.Kind() == reflect.Bool:
		return "a boolean"
	case t.Kind() == reflect.String:
		return "a string"
	case t.Kind() >= reflect.Int && t.Kind() <= reflect.Uint64:
		return "an integer"
	case t.Kind() == reflect.Float32 || t.Kind() == reflect.Float64:
		return "a number"
	default:
		return "a " + t.String()
	}
}
