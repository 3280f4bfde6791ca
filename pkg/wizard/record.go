package wizard

import (
	"time"

	"github.com/gabrielmiguelok/tropa/pkg/forms"
)

// Record maps field names to their current values across all steps.
type Record map[string]any

// Clone returns a shallow copy.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Merge returns a copy of r overlaid with other.
func (r Record) Merge(other Record) Record {
	out := r.Clone()
	if out == nil {
		out = make(Record, len(other))
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// String returns a string value or "".
func (r Record) String(name string) string {
	if v, ok := r[name].(string); ok {
		return v
	}
	return ""
}

// Bool returns a bool value or false.
func (r Record) Bool(name string) bool {
	if v, ok := r[name].(bool); ok {
		return v
	}
	return false
}

// Int returns a numeric value truncated to an int.
func (r Record) Int(name string) (int, bool) {
	f, ok := forms.ToFloat64(r[name])
	return int(f), ok
}

// Time returns a date value, either a time.Time or a "2006-01-02" string.
func (r Record) Time(name string) (time.Time, bool) {
	return forms.ToTime(r[name])
}

// Float returns a numeric value.
func (r Record) Float(name string) (float64, bool) {
	return forms.ToFloat64(r[name])
}

// ValidationResult maps field names to their current error message. Fields
// without an entry are valid (or have not been validated yet).
type ValidationResult map[string]string

// Get returns the error for a field, or "".
func (v ValidationResult) Get(name string) string {
	return v[name]
}

// Clone returns a copy.
func (v ValidationResult) Clone() ValidationResult {
	out := make(ValidationResult, len(v))
	for k, msg := range v {
		out[k] = msg
	}
	return out
}
