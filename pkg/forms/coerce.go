// Package forms provides field definitions, validation rules and value
// coercion for tropa forms.
package forms

import "strings"

// Coerce converts a raw client value into the type stored for the field.
// Values that cannot be converted are returned unchanged so that validation
// reports them instead of silently dropping input.
func Coerce(field Field, raw any) any {
	switch field.Type {
	case FieldCheckbox:
		switch v := raw.(type) {
		case bool:
			return v
		case string:
			return v == "true" || v == "on" || v == "1"
		case nil:
			return false
		}
		return raw
	default:
		if s, ok := raw.(string); ok {
			return strings.TrimSpace(s)
		}
		return raw
	}
}
