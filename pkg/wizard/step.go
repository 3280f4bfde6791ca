// Package wizard implements multi-step data entry sessions: an ordered step
// registry, a form record spanning every step, per-field validation, derived
// step statuses and validation-gated navigation ending in a submission to a
// persistence collaborator.
//
// A Session is UI agnostic. Live views drive it from client events and
// render its state; tests drive it directly.
package wizard

import (
	"errors"
	"fmt"

	"github.com/gosimple/slug"

	"github.com/gabrielmiguelok/tropa/pkg/forms"
)

// Registry errors.
var (
	ErrEmptyRegistry  = errors.New("wizard: registry has no steps")
	ErrDuplicateStep  = errors.New("wizard: duplicate step id")
	ErrDuplicateField = errors.New("wizard: field owned by more than one step")
)

// StepDefinition is one section of the wizard.
type StepDefinition struct {
	// ID is unique within the registry. Derived from Title when empty.
	ID string

	// Title is the label shown in the stepper.
	Title string

	// Icon is a symbolic icon name resolved by the renderer.
	Icon string

	// Description is optional helper text for the section.
	Description string

	// Fields are the inputs owned by this step.
	Fields []forms.Field
}

// Registry is the immutable, ordered list of steps of a wizard.
type Registry struct {
	steps      []StepDefinition
	owner      map[string]int
	fields     map[string]forms.Field
	dependents map[string][]string
}

// NewRegistry validates and indexes the steps. Order defines traversal order.
func NewRegistry(steps ...StepDefinition) (*Registry, error) {
	if len(steps) == 0 {
		return nil, ErrEmptyRegistry
	}

	r := &Registry{
		steps:      make([]StepDefinition, len(steps)),
		owner:      make(map[string]int),
		fields:     make(map[string]forms.Field),
		dependents: make(map[string][]string),
	}

	ids := make(map[string]bool, len(steps))
	for i, step := range steps {
		if step.ID == "" {
			step.ID = slug.Make(step.Title)
		}
		if ids[step.ID] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateStep, step.ID)
		}
		ids[step.ID] = true

		step.Fields = append([]forms.Field(nil), step.Fields...)
		for _, f := range step.Fields {
			if _, dup := r.owner[f.Name]; dup {
				return nil, fmt.Errorf("%w: %q", ErrDuplicateField, f.Name)
			}
			r.owner[f.Name] = i
			r.fields[f.Name] = f
		}
		r.steps[i] = step
	}

	for name, f := range r.fields {
		for _, dep := range f.DependsOn() {
			r.dependents[dep] = append(r.dependents[dep], name)
		}
	}

	return r, nil
}

// MustRegistry is NewRegistry for package-level schemas. It panics on error.
func MustRegistry(steps ...StepDefinition) *Registry {
	r, err := NewRegistry(steps...)
	if err != nil {
		panic(err)
	}
	return r
}

// Len returns the number of steps.
func (r *Registry) Len() int {
	return len(r.steps)
}

// Step returns the step at index i.
func (r *Registry) Step(i int) StepDefinition {
	return r.steps[i]
}

// Steps returns a copy of the step list.
func (r *Registry) Steps() []StepDefinition {
	out := make([]StepDefinition, len(r.steps))
	copy(out, r.steps)
	return out
}

// Index returns the position of the step with the given id.
func (r *Registry) Index(id string) (int, bool) {
	for i, s := range r.steps {
		if s.ID == id {
			return i, true
		}
	}
	return -1, false
}

// StepOf returns the index of the step owning a field.
func (r *Registry) StepOf(field string) (int, bool) {
	i, ok := r.owner[field]
	return i, ok
}

// Field returns a field definition by name.
func (r *Registry) Field(name string) (forms.Field, bool) {
	f, ok := r.fields[name]
	return f, ok
}

// Fields returns every field of every step, in traversal order.
func (r *Registry) Fields() []forms.Field {
	var out []forms.Field
	for _, s := range r.steps {
		out = append(out, s.Fields...)
	}
	return out
}

// Dependents returns the fields whose rules read the named field.
func (r *Registry) Dependents(name string) []string {
	return r.dependents[name]
}

// Defaults builds the record used in create mode.
func (r *Registry) Defaults() Record {
	rec := make(Record, len(r.fields))
	for name, f := range r.fields {
		if f.Default != nil {
			rec[name] = f.Default
		} else {
			rec[name] = ""
		}
	}
	return rec
}
