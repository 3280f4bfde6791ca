package forms

// FieldType identifies the type of form field.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldEmail    FieldType = "email"
	FieldTextarea FieldType = "textarea"
	FieldSelect   FieldType = "select"
	FieldCheckbox FieldType = "checkbox"
	FieldRadio    FieldType = "radio"
	FieldDate     FieldType = "date"
	FieldTel      FieldType = "tel"
)

// Field describes a single input of a form and the rules attached to it.
type Field struct {
	// Name is the key under which the value is stored in the record.
	Name string

	// Type is the input type used by renderers and value coercion.
	Type FieldType

	// Label is the display label.
	Label string

	// Placeholder is the placeholder text.
	Placeholder string

	// Help is help text shown below the field.
	Help string

	// Required marks the field as mandatory.
	Required bool

	// Validators run in order after the required check.
	Validators []Validator

	// Options are the static choices of select/radio fields.
	Options []Option

	// Source names the lookup level feeding a dynamic select.
	Source string

	// Default is the value used when a new record is created.
	Default any
}

// Option represents a select/radio option.
type Option struct {
	Value    string
	Label    string
	Disabled bool
}

// FieldOption configures a field.
type FieldOption func(*Field)

// NewField creates a new field.
func NewField(name string, fieldType FieldType, label string, opts ...FieldOption) Field {
	field := Field{
		Name:  name,
		Type:  fieldType,
		Label: label,
	}

	for _, opt := range opts {
		opt(&field)
	}

	return field
}

// DependsOn returns the names of the other fields this field's rules read.
func (f Field) DependsOn() []string {
	var deps []string
	for _, v := range f.Validators {
		if dv, ok := v.(DependentValidator); ok {
			deps = append(deps, dv.DependsOn()...)
		}
	}
	return deps
}

// WithRequired marks the field as required.
func WithRequired() FieldOption {
	return func(f *Field) {
		f.Required = true
	}
}

// WithPlaceholder sets the placeholder text.
func WithPlaceholder(placeholder string) FieldOption {
	return func(f *Field) {
		f.Placeholder = placeholder
	}
}

// WithHelp sets the help text.
func WithHelp(help string) FieldOption {
	return func(f *Field) {
		f.Help = help
	}
}

// WithValidator adds a validator.
func WithValidator(v ...Validator) FieldOption {
	return func(f *Field) {
		f.Validators = append(f.Validators, v...)
	}
}

// WithMinLength adds a minimum length validator.
func WithMinLength(n int) FieldOption {
	return WithValidator(MinLengthValidator{Min: n})
}

// WithMaxLength adds a maximum length validator.
func WithMaxLength(n int) FieldOption {
	return WithValidator(MaxLengthValidator{Max: n})
}

// WithPattern adds a regex validator with an optional message.
func WithPattern(pattern string, msg ...string) FieldOption {
	return WithValidator(Pattern(pattern, msg...))
}

// WithOptions sets the select/radio options and restricts values to the
// enabled ones.
func WithOptions(options ...Option) FieldOption {
	return func(f *Field) {
		f.Options = options
		values := make([]any, 0, len(options))
		for _, o := range options {
			if !o.Disabled {
				values = append(values, o.Value)
			}
		}
		f.Validators = append(f.Validators, OneOfValidator{Values: values})
	}
}

// WithSource binds a select field to a named lookup level.
func WithSource(level string) FieldOption {
	return func(f *Field) {
		f.Source = level
	}
}

// TextField creates a text field.
func TextField(name, label string, opts ...FieldOption) Field {
	return NewField(name, FieldText, label, opts...)
}

// EmailField creates an email field.
func EmailField(name, label string, opts ...FieldOption) Field {
	field := NewField(name, FieldEmail, label, opts...)
	field.Validators = append(field.Validators, EmailValidator{})
	return field
}

// TelField creates a telephone field.
func TelField(name, label string, opts ...FieldOption) Field {
	return NewField(name, FieldTel, label, opts...)
}

// TextareaField creates a textarea field.
func TextareaField(name, label string, opts ...FieldOption) Field {
	return NewField(name, FieldTextarea, label, opts...)
}

// SelectField creates a select field.
func SelectField(name, label string, opts ...FieldOption) Field {
	return NewField(name, FieldSelect, label, opts...)
}

// RadioField creates a radio field.
func RadioField(name, label string, opts ...FieldOption) Field {
	return NewField(name, FieldRadio, label, opts...)
}

// CheckboxField creates a checkbox field. Checkboxes default to false.
func CheckboxField(name, label string, opts ...FieldOption) Field {
	field := NewField(name, FieldCheckbox, label, opts...)
	field.Default = false
	return field
}

// DateField creates a date field. Values are stored as "2006-01-02" strings.
func DateField(name, label string, opts ...FieldOption) Field {
	field := NewField(name, FieldDate, label, opts...)
	field.Validators = append([]Validator{DateValidator{}}, field.Validators...)
	return field
}
