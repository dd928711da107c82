package models

import (
	"fmt"
	"strings"
)

// ClientError is a deterministic rejection caused by the caller's data.
// Its message and details are safe to return verbatim.
type ClientError interface {
	error
	Code() string
	Details() any
}

// FieldKind names a field whose value has the wrong kind.
type FieldKind struct {
	Field    string `json:"field"`
	Expected string `json:"expected"`
}

// SchemaError reports every present field with an unexpected kind.
type SchemaError struct {
	Fields []FieldKind
}

func (e *SchemaError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = fmt.Sprintf("field '%s' must be %s", f.Field, f.Expected)
	}
	return "Invalid structure: " + strings.Join(parts, ", ")
}

func (e *SchemaError) Code() string { return "schema_error" }
func (e *SchemaError) Details() any  { return e.Fields }

// MissingFieldError lists every absent required field.
type MissingFieldError struct {
	Fields []string
}

func (e *MissingFieldError) Error() string {
	return "Missing required fields: " + strings.Join(e.Fields, ", ")
}

func (e *MissingFieldError) Code() string { return "missing_fields" }
func (e *MissingFieldError) Details() any  { return e.Fields }

// RangeViolation is one channel value outside its declared bounds.
type RangeViolation struct {
	Field string  `json:"field"`
	Value float64 `json:"value"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// RangeError lists every out-of-range channel.
type RangeError struct {
	Violations []RangeViolation
}

func (e *RangeError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = fmt.Sprintf("%s=%g (valid: %g-%g)", v.Field, v.Value, v.Min, v.Max)
	}
	return "Values out of range: " + strings.Join(parts, ", ")
}

func (e *RangeError) Code() string { return "out_of_range" }
func (e *RangeError) Details() any  { return e.Violations }

// TimestampFormatError rejects a timestamp that is not exactly TimestampLayout.
type TimestampFormatError struct {
	Value string
}

func (e *TimestampFormatError) Error() string {
	return fmt.Sprintf("timestamp %q must be in format: YYYY-MM-DD HH:MM:SS", e.Value)
}

func (e *TimestampFormatError) Code() string { return "invalid_timestamp" }
func (e *TimestampFormatError) Details() any {
	return map[string]string{"value": e.Value, "format": "YYYY-MM-DD HH:MM:SS"}
}

// InconsistentReadingError is returned only under the blocking consistency policy.
type InconsistentReadingError struct {
	Spread    float64
	Threshold float64
}

func (e *InconsistentReadingError) Error() string {
	return fmt.Sprintf("Inconsistent values detected in reading: temperature spread %g°C exceeds %g°C", e.Spread, e.Threshold)
}

func (e *InconsistentReadingError) Code() string { return "inconsistent_reading" }
func (e *InconsistentReadingError) Details() any {
	return map[string]float64{"spread": e.Spread, "threshold": e.Threshold}
}

// DuplicateError rejects a second reading for the same (equipo, timestamp).
type DuplicateError struct {
	EquipmentID string
	Timestamp   string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("Duplicate reading detected: %s - %s", e.EquipmentID, e.Timestamp)
}

func (e *DuplicateError) Code() string { return "duplicate_reading" }
func (e *DuplicateError) Details() any {
	return map[string]string{FieldEquipmentID: e.EquipmentID, FieldTimestamp: e.Timestamp}
}

// InvalidFilterError lists every problem found in read parameters.
type InvalidFilterError struct {
	Problems []string
}

func (e *InvalidFilterError) Error() string {
	return "Invalid query parameters: " + strings.Join(e.Problems, "; ")
}

func (e *InvalidFilterError) Code() string { return "invalid_filter" }
func (e *InvalidFilterError) Details() any  { return e.Problems }

// UnavailableError signals that the persistence medium could not serve the
// request. The wrapped cause is for logs only.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("store unavailable during %s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

var (
	_ ClientError = (*SchemaError)(nil)
	_ ClientError = (*MissingFieldError)(nil)
	_ ClientError = (*RangeError)(nil)
	_ ClientError = (*TimestampFormatError)(nil)
	_ ClientError = (*InconsistentReadingError)(nil)
	_ ClientError = (*DuplicateError)(nil)
	_ ClientError = (*InvalidFilterError)(nil)
)
