// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind identifies the type of an applicant field value.
type Kind int

const (
	KindNumber Kind = iota
	KindText
	KindBool
	KindDate
)

// Value is a tagged applicant field value. Records carry an open set of
// fields with no fixed schema, so every value keeps its own type tag.
type Value struct {
	kind Kind
	num  float64
	text string
	b    bool
	date time.Time
}

// Number creates a numeric value.
func Number(v float64) Value { return Value{kind: KindNumber, num: v} }

// Text creates a string value.
func Text(v string) Value { return Value{kind: KindText, text: v} }

// Bool creates a boolean value.
func Bool(v bool) Value { return Value{kind: KindBool, b: v} }

// Date creates a timestamp value.
func Date(v time.Time) Value { return Value{kind: KindDate, date: v} }

// Kind returns the value's type tag.
func (v Value) Kind() Kind { return v.kind }

// Num returns the numeric value and whether the value is numeric.
func (v Value) Num() (float64, bool) { return v.num, v.kind == KindNumber }

// Str returns the string value and whether the value is a string.
func (v Value) Str() (string, bool) { return v.text, v.kind == KindText }

// IsTrue returns the boolean value and whether the value is a boolean.
func (v Value) IsTrue() (bool, bool) { return v.b, v.kind == KindBool }

// Time returns the timestamp value and whether the value is a date.
func (v Value) Time() (time.Time, bool) { return v.date, v.kind == KindDate }

// Native returns the value as the Go type the rule engine evaluates against.
func (v Value) Native() any {
	switch v.kind {
	case KindNumber:
		return v.num
	case KindText:
		return v.text
	case KindBool:
		return v.b
	case KindDate:
		return v.date
	default:
		return nil
	}
}

// MarshalJSON renders the value as its plain JSON type. Dates use RFC 3339.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Native())
}

// UnmarshalJSON parses a JSON scalar into a tagged value. Strings in
// RFC 3339 form become dates.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := valueFromJSON(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func valueFromJSON(raw any) (Value, error) {
	switch t := raw.(type) {
	case float64:
		return Number(t), nil
	case bool:
		return Bool(t), nil
	case string:
		if ts, err := time.Parse(time.RFC3339, t); err == nil {
			return Date(ts), nil
		}
		return Text(t), nil
	default:
		return Value{}, fmt.Errorf("unsupported field type %T", raw)
	}
}

// ApplicantRecord is an open mapping from field name to a typed value.
// Unknown fields are preserved and may be referenced by rules and factors.
type ApplicantRecord map[string]Value

// ParseApplicantRecord converts a decoded JSON object into a record,
// rejecting nested objects, arrays, and nulls.
func ParseApplicantRecord(fields map[string]any) (ApplicantRecord, error) {
	record := make(ApplicantRecord, len(fields))
	for name, raw := range fields {
		v, err := valueFromJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		record[name] = v
	}
	return record, nil
}

// Activation returns the record as native Go values, keyed by field name.
// Used as the CEL activation map for rule conditions.
func (r ApplicantRecord) Activation() map[string]any {
	out := make(map[string]any, len(r))
	for name, v := range r {
		out[name] = v.Native()
	}
	return out
}
