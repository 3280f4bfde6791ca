package wizard

import (
	"github.com/gabrielmiguelok/tropa/pkg/forms"
)

// Status is the derived display state of a step.
type Status int

const (
	StatusPending Status = iota
	StatusCurrent
	StatusCompleted
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusCurrent:
		return "current"
	case StatusCompleted:
		return "completed"
	case StatusError:
		return "error"
	default:
		return "pending"
	}
}

// StepView is the stepper entry of one step.
type StepView struct {
	Index  int
	Step   StepDefinition
	Status Status
	Errors int
}

// StepStatus derives the status of step i. The active step is always
// current; a step is completed when every rule passes against the record and
// nothing is recorded against it; it is in error when some field has a
// recorded error; otherwise it is pending.
func (s *Session) StepStatus(i int) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked(i)
}

func (s *Session) statusLocked(i int) Status {
	if s.active < 0 || i < 0 || i >= s.reg.Len() {
		return StatusPending
	}
	if i == s.active {
		return StatusCurrent
	}

	recorded := s.errorCountLocked(i)
	if recorded == 0 && s.stepPassesLocked(i) {
		return StatusCompleted
	}
	if recorded > 0 {
		return StatusError
	}
	return StatusPending
}

// stepPassesLocked evaluates the step's rules without recording anything.
func (s *Session) stepPassesLocked(i int) bool {
	for _, f := range s.reg.Step(i).Fields {
		if forms.ValidateField(f, s.record[f.Name], s.lookup) != "" {
			return false
		}
	}
	return true
}

func (s *Session) errorCountLocked(i int) int {
	n := 0
	for _, f := range s.reg.Step(i).Fields {
		if s.errors[f.Name] != "" {
			n++
		}
	}
	return n
}

// ErrorCount returns the number of fields of step i with a recorded error.
func (s *Session) ErrorCount(i int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= s.reg.Len() {
		return 0
	}
	return s.errorCountLocked(i)
}

// Statuses returns the status of every step in order.
func (s *Session) Statuses() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Status, s.reg.Len())
	for i := range out {
		out[i] = s.statusLocked(i)
	}
	return out
}

// Steps returns the stepper view of every step.
func (s *Session) Steps() []StepView {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StepView, s.reg.Len())
	for i := range out {
		out[i] = StepView{
			Index:  i,
			Step:   s.reg.Step(i),
			Status: s.statusLocked(i),
			Errors: s.errorCountLocked(i),
		}
	}
	return out
}

// Progress returns the percentage of completed steps, rounded down.
func (s *Session) Progress() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	completed := 0
	for i := 0; i < s.reg.Len(); i++ {
		if s.statusLocked(i) == StatusCompleted {
			completed++
		}
	}
	return completed * 100 / s.reg.Len()
}
