// Package model defines the shared domain types for the data enhancement
// engine: batch records, field configuration, calculation rules, and the
// result artifacts produced by the resolver, detector, assessor, and imputer.
package model

import (
	"sort"
	"strconv"
	"strings"
)

// Record is one row of an incoming batch: a field-name to value mapping plus
// a stable index within the batch. Values are scalars (string, float64, int,
// bool) or nil. Components read records and, for imputation, produce new
// records; they never mutate a record in place.
type Record struct {
	RowIndex int            `json:"row_index"`
	Fields   map[string]any `json:"fields"`
}

// Get returns the value for a field and whether the field is present.
func (r Record) Get(field string) (any, bool) {
	v, ok := r.Fields[field]
	return v, ok
}

// IsMissing reports whether the field is absent, nil, or an empty/whitespace
// string.
func (r Record) IsMissing(field string) bool {
	v, ok := r.Fields[field]
	if !ok || v == nil {
		return true
	}
	if s, isStr := v.(string); isStr {
		return strings.TrimSpace(s) == ""
	}
	return false
}

// FieldNames returns the record's field names in sorted order so that
// iteration over a record is deterministic.
func (r Record) FieldNames() []string {
	names := make([]string, 0, len(r.Fields))
	for name := range r.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a copy of the record with an independent field map.
func (r Record) Clone() Record {
	fields := make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = v
	}
	return Record{RowIndex: r.RowIndex, Fields: fields}
}

// Numeric converts a field value to float64. Strings are parsed; booleans
// and non-numeric values report ok=false.
func (r Record) Numeric(field string) (float64, bool) {
	return ToNumber(r.Fields[field])
}

// ToNumber converts a scalar batch value to float64 where possible.
func ToNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
