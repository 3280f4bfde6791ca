package forms

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func lookupFrom(values map[string]any) Lookup {
	return func(name string) any { return values[name] }
}

func TestValidateField_Required(t *testing.T) {
	f := TextField("nombres", "Nombres", WithRequired(), WithMinLength(2))

	assert.Equal(t, RequiredMessage, ValidateField(f, "", nil))
	assert.Equal(t, RequiredMessage, ValidateField(f, "   ", nil))
	assert.Equal(t, RequiredMessage, ValidateField(f, nil, nil))
	assert.Equal(t, "Must be at least 2 characters", ValidateField(f, "A", nil))
	assert.Empty(t, ValidateField(f, "Ana", nil))
}

func TestValidateField_OptionalSkipsRulesWhenEmpty(t *testing.T) {
	f := SelectField("cargo", "Cargo", WithOptions(Option{Value: "guia"}, Option{Value: "subguia"}))

	assert.Empty(t, ValidateField(f, "", nil))
	assert.Equal(t, "Invalid selection", ValidateField(f, "jefe", nil))
	assert.Empty(t, ValidateField(f, "guia", nil))
}

func TestValidateField_DisabledOptionRejected(t *testing.T) {
	f := SelectField("cargo", "Cargo", WithOptions(
		Option{Value: "guia"},
		Option{Value: "intendente", Disabled: true},
	))

	assert.Empty(t, ValidateField(f, "guia", nil))
	assert.Equal(t, "Invalid selection", ValidateField(f, "intendente", nil))
}

func TestValidateField_Pattern(t *testing.T) {
	f := TextField("documento", "Documento", WithPattern(`^\d{7,12}$`, "Only digits"))

	assert.Equal(t, "Only digits", ValidateField(f, "12ab", nil))
	assert.Empty(t, ValidateField(f, "40111222", nil))
}

func TestValidateField_Email(t *testing.T) {
	f := EmailField("email", "Email")

	assert.Equal(t, "Please enter a valid email address", ValidateField(f, "nope", nil))
	assert.Empty(t, ValidateField(f, "guia@tropa.org", nil))
}

func TestValidateField_Range(t *testing.T) {
	f := TextField("edad", "Edad", WithValidator(Range(7, 21)))

	assert.Equal(t, "Must be between 7 and 21", ValidateField(f, "5", nil))
	assert.Equal(t, "Must be between 7 and 21", ValidateField(f, "abc", nil))
	assert.Empty(t, ValidateField(f, "12", nil))
	assert.Empty(t, ValidateField(f, 21.0, nil))
}

func TestValidateField_DateNotBefore(t *testing.T) {
	f := DateField("fin", "Fin", WithValidator(DateNotBefore("inicio", "End before start")))

	record := map[string]any{"inicio": "2026-01-10"}
	assert.Equal(t, "End before start", ValidateField(f, "2026-01-09", lookupFrom(record)))
	assert.Empty(t, ValidateField(f, "2026-01-10", lookupFrom(record)))

	// Skipped while the other side is missing.
	assert.Empty(t, ValidateField(f, "2026-01-09", lookupFrom(map[string]any{})))

	assert.Equal(t, "Please enter a valid date", ValidateField(f, "10/01/2026", lookupFrom(record)))
	assert.Equal(t, []string{"inicio"}, f.DependsOn())
}

func TestValidateField_RequiredIf(t *testing.T) {
	f := TextField("seguro_numero", "Número", WithValidator(RequiredIf("seguro_medico", IsTrue)))

	assert.Equal(t, RequiredMessage, ValidateField(f, "", lookupFrom(map[string]any{"seguro_medico": true})))
	assert.Empty(t, ValidateField(f, "", lookupFrom(map[string]any{"seguro_medico": false})))
	assert.Empty(t, ValidateField(f, "A-1", lookupFrom(map[string]any{"seguro_medico": true})))
}

func TestValidateField_NotFuture(t *testing.T) {
	now := func() time.Time { return time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC) }
	f := DateField("nacimiento", "Nacimiento", WithValidator(NotFutureValidator{Now: now}))

	assert.Equal(t, "Date cannot be in the future", ValidateField(f, "2026-05-02", nil))
	assert.Empty(t, ValidateField(f, "2012-05-02", nil))
}

func TestValidateField_NotFutureComparesCalendarDays(t *testing.T) {
	// 01:00 on May 1st three hours east of UTC is still April 30th in UTC.
	east := time.FixedZone("UTC+3", 3*60*60)
	now := func() time.Time { return time.Date(2026, 5, 1, 1, 0, 0, 0, east) }
	f := DateField("nacimiento", "Nacimiento", WithValidator(NotFutureValidator{Now: now}))

	assert.Empty(t, ValidateField(f, "2026-05-01", nil))
	assert.Equal(t, "Date cannot be in the future", ValidateField(f, "2026-05-02", nil))

	// 22:00 on April 30th three hours west of UTC is already May 1st in UTC.
	west := time.FixedZone("UTC-3", -3*60*60)
	now = func() time.Time { return time.Date(2026, 4, 30, 22, 0, 0, 0, west) }
	f = DateField("nacimiento", "Nacimiento", WithValidator(NotFutureValidator{Now: now}))
	assert.Equal(t, "Date cannot be in the future", ValidateField(f, "2026-05-01", nil))
	assert.Empty(t, ValidateField(f, "2026-04-30", nil))
}

func TestCoerce(t *testing.T) {
	assert.Equal(t, true, Coerce(CheckboxField("c", "C"), "on"))
	assert.Equal(t, false, Coerce(CheckboxField("c", "C"), "off"))
	assert.Equal(t, "Ana", Coerce(TextField("t", "T"), "  Ana "))
	assert.Equal(t, false, Coerce(CheckboxField("c", "C"), nil))
}
