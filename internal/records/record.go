// Package records holds the tabular rows shown by the dashboard and the
// in-memory state that mirrors the backend.
package records

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// IDKey is the reserved field carrying the record identifier. It is never a
// data column.
const IDKey = "id"

// Record is one row: an identifier plus scalar fields kept in the order the
// backend sent them.
type Record struct {
	ID string

	// numericID is set when the identifier is written back as a JSON number.
	numericID bool
	keys      []string
	values    map[string]any
}

// New returns an empty record with the given identifier. A canonical decimal
// integer id is encoded as a number.
func New(id string) Record {
	return Record{ID: id, numericID: isCanonicalInt(id), values: make(map[string]any)}
}

func isCanonicalInt(s string) bool {
	n, err := strconv.ParseInt(s, 10, 64)
	return err == nil && strconv.FormatInt(n, 10) == s
}

// Keys returns the field names in order, excluding the identifier.
func (r Record) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

func (r Record) Len() int { return len(r.keys) }

func (r Record) Has(key string) bool {
	_, ok := r.values[key]
	return ok
}

func (r Record) Get(key string) (any, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Set assigns a field, appending the key when it is new. Setting IDKey
// replaces the identifier.
func (r *Record) Set(key string, value any) {
	if key == IDKey {
		r.ID = idString(value)
		r.numericID = isNumber(value) && isJSONNumber(r.ID)
		return
	}
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Clone returns a deep copy of the key order and a shallow copy of the values.
func (r Record) Clone() Record {
	c := Record{ID: r.ID, numericID: r.numericID, keys: r.Keys(), values: make(map[string]any, len(r.values))}
	for k, v := range r.values {
		c.values[k] = v
	}
	return c
}

// Fields returns the non-identifier fields as a plain map.
func (r Record) Fields() map[string]any {
	out := make(map[string]any, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// String renders the value of key for display. Missing keys render empty.
func (r Record) String(key string) string {
	v, ok := r.values[key]
	if !ok {
		return ""
	}
	return FormatValue(v)
}

// FormatValue renders a decoded JSON scalar the way the table shows it.
func FormatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
}

// MarshalJSON writes the identifier first (as a number when it arrived as
// one) followed by the fields in order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	if r.ID != "" {
		buf.WriteString(`"id":`)
		if r.numericID && isJSONNumber(r.ID) {
			buf.WriteString(r.ID)
		} else {
			b, _ := json.Marshal(r.ID)
			buf.Write(b)
		}
		first = false
	}
	for _, k := range r.keys {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a flat JSON object, keeping key order. Numbers stay
// json.Number so integers round-trip unchanged.
func (r *Record) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("record: expected object, got %v", tok)
	}
	rec := New("")
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("record: unexpected key token %v", tok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("record: field %q: %w", key, err)
		}
		rec.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*r = rec
	return nil
}

func isJSONNumber(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil && json.Valid([]byte(s))
}

func isNumber(v any) bool {
	switch v.(type) {
	case json.Number, int, int32, int64, uint, uint32, uint64, float32, float64:
		return true
	}
	return false
}

func idString(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return FormatValue(v)
	}
}
