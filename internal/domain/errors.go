package domain

import (
	"fmt"
	"strings"
)

// Score scale bounds for final decisions.
const (
	ScoreFloor   = 300.0
	ScoreCeiling = 850.0
)

// Configuration bounds enforced by every mutating endpoint.
const (
	MinPriority = 1
	MaxPriority = 10

	MinWeight = 0.1
	MaxWeight = 3.0

	MinRateAdjustment = -10.0
	MaxRateAdjustment = 10.0

	MinLimitMultiplier = 0.0
	MaxLimitMultiplier = 5.0
)

// FieldError describes one invalid field in a request.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError aggregates field-level validation failures. It renders as
// an HTTP 400 with the full list so callers can fix everything at once.
type ValidationError struct {
	Fields []FieldError `json:"errors"`
}

// Add appends a field error.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// Addf appends a formatted field error.
func (e *ValidationError) Addf(field, format string, args ...any) {
	e.Add(field, fmt.Sprintf(format, args...))
}

// Empty reports whether any field errors were recorded.
func (e *ValidationError) Empty() bool { return len(e.Fields) == 0 }

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Field + ": " + f.Message
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}
