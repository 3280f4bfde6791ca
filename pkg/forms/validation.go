package forms

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// DateLayout is the storage layout of date field values.
const DateLayout = "2006-01-02"

// RequiredMessage is the error recorded for empty required fields.
const RequiredMessage = "This field is required"

// Validator validates a field value.
type Validator interface {
	// Validate checks if the value is valid.
	Validate(value any) error

	// Message returns the error message.
	Message() string
}

// Lookup reads the current value of another field of the same record.
type Lookup func(name string) any

// DependentValidator is a cross-field rule. Its result depends on the values
// of the fields named by DependsOn, so it has to be re-run whenever one of
// them changes.
type DependentValidator interface {
	Validator
	DependsOn() []string
	ValidateWith(value any, lookup Lookup) error
}

// presenceValidator marks rules that must run even when the value is empty.
type presenceValidator interface {
	checksPresence()
}

// ValidateField runs the field's rules against value and returns the first
// error message, or "" when the value is valid.
func ValidateField(field Field, value any, lookup Lookup) string {
	empty := IsEmpty(value)
	if field.Required && empty {
		return RequiredMessage
	}

	for _, v := range field.Validators {
		if empty {
			if _, ok := v.(presenceValidator); !ok {
				continue
			}
		}

		var err error
		if dv, ok := v.(DependentValidator); ok && lookup != nil {
			err = dv.ValidateWith(value, lookup)
		} else {
			err = v.Validate(value)
		}
		if err != nil {
			return v.Message()
		}
	}
	return ""
}

// IsEmpty reports whether a value counts as "not filled in".
func IsEmpty(value any) bool {
	if value == nil {
		return true
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v) == ""
	case []any:
		return len(v) == 0
	case []string:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	default:
		return false
	}
}

// EmailValidator validates email format.
type EmailValidator struct{}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func (v EmailValidator) Validate(value any) error {
	str, ok := value.(string)
	if !ok || str == "" {
		return nil
	}
	if !emailRegex.MatchString(str) {
		return errors.New("invalid email")
	}
	return nil
}

func (v EmailValidator) Message() string {
	return "Please enter a valid email address"
}

// MinLengthValidator validates minimum string length.
type MinLengthValidator struct {
	Min int
}

func (v MinLengthValidator) Validate(value any) error {
	str, ok := value.(string)
	if !ok || str == "" {
		return nil
	}
	if utf8.RuneCountInString(strings.TrimSpace(str)) < v.Min {
		return fmt.Errorf("too short (min %d)", v.Min)
	}
	return nil
}

func (v MinLengthValidator) Message() string {
	return fmt.Sprintf("Must be at least %d characters", v.Min)
}

// MaxLengthValidator validates maximum string length.
type MaxLengthValidator struct {
	Max int
}

func (v MaxLengthValidator) Validate(value any) error {
	str, ok := value.(string)
	if !ok {
		return nil
	}
	if utf8.RuneCountInString(str) > v.Max {
		return fmt.Errorf("too long (max %d)", v.Max)
	}
	return nil
}

func (v MaxLengthValidator) Message() string {
	return fmt.Sprintf("Must be at most %d characters", v.Max)
}

// PatternValidator validates against a regex pattern.
type PatternValidator struct {
	re  *regexp.Regexp
	Msg string
}

func (v PatternValidator) Validate(value any) error {
	str, ok := value.(string)
	if !ok || str == "" {
		return nil
	}
	if !v.re.MatchString(str) {
		return errors.New("pattern mismatch")
	}
	return nil
}

func (v PatternValidator) Message() string {
	if v.Msg != "" {
		return v.Msg
	}
	return "Invalid format"
}

// RangeValidator validates a numeric range. Numeric strings are accepted.
type RangeValidator struct {
	Min float64
	Max float64
}

func (v RangeValidator) Validate(value any) error {
	num, ok := ToFloat64(value)
	if !ok {
		return errors.New("not a number")
	}
	if num < v.Min || num > v.Max {
		return fmt.Errorf("out of range [%v, %v]", v.Min, v.Max)
	}
	return nil
}

func (v RangeValidator) Message() string {
	return fmt.Sprintf("Must be between %v and %v", v.Min, v.Max)
}

// OneOfValidator validates that value is one of allowed values.
type OneOfValidator struct {
	Values []any
}

func (v OneOfValidator) Validate(value any) error {
	for _, allowed := range v.Values {
		if value == allowed {
			return nil
		}
	}
	return errors.New("invalid option")
}

func (v OneOfValidator) Message() string {
	return "Invalid selection"
}

// DateValidator validates that the value is a date in DateLayout.
type DateValidator struct{}

func (v DateValidator) Validate(value any) error {
	_, ok := ToTime(value)
	if !ok {
		return errors.New("invalid date")
	}
	return nil
}

func (v DateValidator) Message() string {
	return "Please enter a valid date"
}

// NotFutureValidator rejects dates after today. Calendar days are compared,
// today being taken in the clock's own location.
type NotFutureValidator struct {
	Now func() time.Time
}

func (v NotFutureValidator) Validate(value any) error {
	t, ok := ToTime(value)
	if !ok {
		return nil
	}
	now := time.Now
	if v.Now != nil {
		now = v.Now
	}
	if calendarDay(t).After(calendarDay(now())) {
		return errors.New("date in the future")
	}
	return nil
}

// calendarDay drops the clock and the zone, keeping the date as written.
func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (v NotFutureValidator) Message() string {
	return "Date cannot be in the future"
}

// DateNotBeforeValidator requires the value to be on or after the date held
// by another field. It is skipped while the other field is empty or invalid.
type DateNotBeforeValidator struct {
	Other string
	Msg   string
}

func (v DateNotBeforeValidator) Validate(value any) error {
	return nil
}

func (v DateNotBeforeValidator) DependsOn() []string {
	return []string{v.Other}
}

func (v DateNotBeforeValidator) ValidateWith(value any, lookup Lookup) error {
	t, ok := ToTime(value)
	if !ok {
		return nil
	}
	other, ok := ToTime(lookup(v.Other))
	if !ok {
		return nil
	}
	if t.Before(other) {
		return fmt.Errorf("before %s", v.Other)
	}
	return nil
}

func (v DateNotBeforeValidator) Message() string {
	if v.Msg != "" {
		return v.Msg
	}
	return fmt.Sprintf("Must not be before %s", v.Other)
}

// RequiredIfValidator makes a field mandatory when another field satisfies
// a predicate.
type RequiredIfValidator struct {
	Other string
	When  func(other any) bool
	Msg   string
}

func (v RequiredIfValidator) Validate(value any) error {
	return nil
}

func (v RequiredIfValidator) DependsOn() []string {
	return []string{v.Other}
}

func (v RequiredIfValidator) ValidateWith(value any, lookup Lookup) error {
	if v.When(lookup(v.Other)) && IsEmpty(value) {
		return errors.New("required")
	}
	return nil
}

func (v RequiredIfValidator) Message() string {
	if v.Msg != "" {
		return v.Msg
	}
	return RequiredMessage
}

func (RequiredIfValidator) checksPresence() {}

// ToFloat64 converts numeric values and numeric strings.
func ToFloat64(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// ToTime converts a DateLayout string or time.Time.
func ToTime(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, !v.IsZero()
	case string:
		t, err := time.Parse(DateLayout, strings.TrimSpace(v))
		return t, err == nil
	default:
		return time.Time{}, false
	}
}

// Convenience constructors

// Pattern returns a pattern validator. It panics on an invalid expression.
func Pattern(pattern string, msg ...string) Validator {
	v := PatternValidator{re: regexp.MustCompile(pattern)}
	if len(msg) > 0 {
		v.Msg = msg[0]
	}
	return v
}

// Range returns a numeric range validator.
func Range(min, max float64) Validator {
	return RangeValidator{Min: min, Max: max}
}

// NotFuture returns a validator rejecting dates after today.
func NotFuture() Validator {
	return NotFutureValidator{}
}

// DateNotBefore returns a cross-field validator: value >= other.
func DateNotBefore(other string, msg ...string) Validator {
	v := DateNotBeforeValidator{Other: other}
	if len(msg) > 0 {
		v.Msg = msg[0]
	}
	return v
}

// RequiredIf returns a cross-field validator making the field mandatory when
// when(other) holds.
func RequiredIf(other string, when func(any) bool, msg ...string) Validator {
	v := RequiredIfValidator{Other: other, When: when}
	if len(msg) > 0 {
		v.Msg = msg[0]
	}
	return v
}

// IsTrue is a RequiredIf predicate matching a checked checkbox.
func IsTrue(v any) bool {
	b, _ := v.(bool)
	return b
}
