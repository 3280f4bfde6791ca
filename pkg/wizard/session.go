package wizard

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gabrielmiguelok/tropa/pkg/forms"
	"github.com/gabrielmiguelok/tropa/pkg/logging"
	"github.com/gabrielmiguelok/tropa/pkg/metrics"
)

// Session errors.
var (
	ErrClosed           = errors.New("wizard: session is closed")
	ErrStepOutOfRange   = errors.New("wizard: step index out of range")
	ErrNotLastStep      = errors.New("wizard: submit is only allowed from the last step")
	ErrSubmitInFlight   = errors.New("wizard: a submission is already in progress")
	ErrAlreadySubmitted = errors.New("wizard: record was already submitted")
	ErrValidationFailed = errors.New("wizard: record has invalid fields")
	ErrSubmitFailed     = errors.New("wizard: submission failed")
	ErrNoSubmitter      = errors.New("wizard: no submitter configured")
)

// Mode tells whether the session creates a new entity or edits one.
type Mode int

const (
	ModeCreate Mode = iota
	ModeEdit
)

func (m Mode) String() string {
	if m == ModeEdit {
		return "edit"
	}
	return "create"
}

// Session owns the state of one wizard run: the record, its validation
// result, the active step and the submission guard. All methods are safe for
// concurrent use; Submit releases the lock while the collaborator runs.
type Session struct {
	reg *Registry

	record  Record
	errors  ValidationResult
	touched map[string]bool
	active  int
	mode    Mode

	submitting bool
	submitted  bool
	result     SubmitResult
	notices    []Notice
	text       noticeText

	submitter Submitter
	drafts    DraftStore
	draftKey  string
	dirty     bool

	logger  logging.Logger
	metrics *metrics.Metrics

	mu sync.Mutex
}

// Option configures a Session.
type Option func(*Session)

// WithSubmitter sets the persistence collaborator.
func WithSubmitter(s Submitter) Option {
	return func(sess *Session) {
		sess.submitter = s
	}
}

// WithDraftStore enables best-effort draft snapshots under key.
func WithDraftStore(store DraftStore, key string) Option {
	return func(sess *Session) {
		sess.drafts = store
		sess.draftKey = key
	}
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(sess *Session) {
		sess.logger = l
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(sess *Session) {
		sess.metrics = m
	}
}

// WithInitialRecord opens the session in edit mode with the given values.
func WithInitialRecord(rec Record) Option {
	return func(sess *Session) {
		sess.resetLocked(rec)
	}
}

// New opens a session in create mode on the first step.
func New(reg *Registry, opts ...Option) *Session {
	s := &Session{
		reg:    reg,
		logger: logging.NopLogger{},
		text:   defaultNoticeText,
	}
	s.resetLocked(nil)

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the step registry.
func (s *Session) Registry() *Registry {
	return s.reg
}

// Mode returns whether the session is creating or editing.
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Reset replaces the record. A nil initial restores the schema defaults
// (create mode); otherwise the defaults are overlaid with initial (edit
// mode). Validation errors are cleared and the first step becomes active.
func (s *Session) Reset(initial Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked(initial)
}

func (s *Session) resetLocked(initial Record) {
	s.record = s.reg.Defaults().Merge(initial)
	s.errors = make(ValidationResult)
	s.touched = make(map[string]bool)
	s.active = 0
	s.submitted = false
	s.result = SubmitResult{}
	s.dirty = false
	if initial == nil {
		s.mode = ModeCreate
	} else {
		s.mode = ModeEdit
	}
}

// Close discards the record and errors. Every status becomes pending.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record = nil
	s.errors = make(ValidationResult)
	s.touched = nil
	s.active = -1
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active < 0
}

// SetField stores a value and revalidates the field plus every dependent
// field that was touched, already failed or holds a value. Invalid input is recorded, never rejected.
func (s *Session) SetField(name string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active < 0 {
		return
	}

	s.record[name] = value
	s.touched[name] = true
	s.dirty = true
	s.validateFieldLocked(name)

	for _, dep := range s.reg.Dependents(name) {
		if s.touched[dep] || s.errors[dep] != "" || !isBlank(s.record[dep]) {
			s.validateFieldLocked(dep)
		}
	}
}

// ClearField restores a field to its default and forgets that it was
// edited, so no error is shown for it until it is set or validated again.
func (s *Session) ClearField(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active < 0 {
		return
	}

	var def any = ""
	if f, ok := s.reg.Field(name); ok && f.Default != nil {
		def = f.Default
	}
	s.record[name] = def
	delete(s.touched, name)
	delete(s.errors, name)
	s.dirty = true
}

// FieldValue returns the current value of a field.
func (s *Session) FieldValue(name string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record[name]
}

// FieldError returns the current error of a field, or "".
func (s *Session) FieldError(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errors[name]
}

// Record returns a copy of the current record.
func (s *Session) Record() Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record.Clone()
}

// Errors returns a copy of the current validation result.
func (s *Session) Errors() ValidationResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errors.Clone()
}

// Active returns the active step index, or -1 once closed.
func (s *Session) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// IsSubmitting reports whether a submission is in flight.
func (s *Session) IsSubmitting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitting
}

// Submitted reports whether the record was persisted, and the
// collaborator's answer.
func (s *Session) Submitted() (SubmitResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.submitted
}

func (s *Session) lookup(name string) any {
	return s.record[name]
}

func (s *Session) validateFieldLocked(name string) {
	f, ok := s.reg.Field(name)
	if !ok {
		return
	}
	if msg := forms.ValidateField(f, s.record[name], s.lookup); msg != "" {
		s.errors[name] = msg
	} else {
		delete(s.errors, name)
	}
}

// validateStepLocked records the result of every field of step i and
// reports whether all of them passed.
func (s *Session) validateStepLocked(i int) bool {
	valid := true
	for _, f := range s.reg.Step(i).Fields {
		s.touched[f.Name] = true
		s.validateFieldLocked(f.Name)
		if s.errors[f.Name] != "" {
			valid = false
		}
	}
	return valid
}

// Next validates the fields of the current step and advances when they all
// pass. It returns whether the current step was valid; at the last step a
// valid result does not move the index.
func (s *Session) Next() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active < 0 {
		return false
	}

	from := s.active
	if !s.validateStepLocked(from) {
		s.metrics.Transition("next", "blocked")
		s.logger.Debug("wizard advance blocked",
			logging.String("step", s.reg.Step(from).ID),
			logging.Int("errors", s.errorCountLocked(from)),
		)
		return false
	}

	if s.active < s.reg.Len()-1 {
		s.active++
	}
	s.metrics.Transition("next", "ok")
	s.logger.Debug("wizard advanced", logging.Int("from", from), logging.Int("to", s.active))
	return true
}

// Previous moves one step back. It never validates.
func (s *Session) Previous() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active > 0 {
		s.active--
		s.metrics.Transition("previous", "ok")
	}
}

// JumpTo activates step k without validating the step being left.
func (s *Session) JumpTo(k int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active < 0 {
		return ErrClosed
	}
	if k < 0 || k >= s.reg.Len() {
		return ErrStepOutOfRange
	}
	s.active = k
	s.metrics.Transition("jump", "ok")
	return nil
}

// Submit validates the whole record and hands a copy to the submitter.
//
// Submit is only allowed from the last step. When any field fails, the first
// step containing an error becomes active and ErrValidationFailed is
// returned without calling the submitter. Only one submission can be in
// flight; concurrent calls fail with ErrSubmitInFlight. A submitter failure
// keeps the record so the caller can retry. Once a submission succeeds,
// further calls fail with ErrAlreadySubmitted until Reset.
func (s *Session) Submit(ctx context.Context) (SubmitResult, error) {
	s.mu.Lock()

	if s.active < 0 {
		s.mu.Unlock()
		return SubmitResult{}, ErrClosed
	}
	if s.submitting {
		s.mu.Unlock()
		s.metrics.Transition("submit", "in_flight")
		return SubmitResult{}, ErrSubmitInFlight
	}
	if s.submitted {
		s.mu.Unlock()
		s.metrics.Transition("submit", "repeated")
		return SubmitResult{}, ErrAlreadySubmitted
	}
	if s.active != s.reg.Len()-1 {
		s.mu.Unlock()
		return SubmitResult{}, ErrNotLastStep
	}

	firstInvalid := -1
	for i := 0; i < s.reg.Len(); i++ {
		if !s.validateStepLocked(i) && firstInvalid < 0 {
			firstInvalid = i
		}
	}
	if firstInvalid >= 0 {
		s.active = firstInvalid
		s.mu.Unlock()
		s.metrics.Transition("submit", "blocked")
		s.logger.Debug("wizard submit blocked", logging.Int("first_invalid_step", firstInvalid))
		return SubmitResult{}, ErrValidationFailed
	}
	if s.submitter == nil {
		s.mu.Unlock()
		return SubmitResult{}, ErrNoSubmitter
	}

	s.submitting = true
	snapshot := s.record.Clone()
	submitter := s.submitter
	s.mu.Unlock()

	start := time.Now()
	res, err := submitter.SubmitEntity(ctx, snapshot)
	elapsed := time.Since(start)

	s.mu.Lock()
	s.submitting = false
	if err != nil {
		s.notices = append(s.notices, Notice{Level: NoticeError, Message: s.text.failure})
		s.mu.Unlock()
		s.metrics.Submission("error", elapsed)
		s.logger.Warn("wizard submission failed", logging.Err(err), logging.Duration("duration", elapsed))
		return SubmitResult{}, errors.Join(ErrSubmitFailed, err)
	}

	s.submitted = true
	s.result = res
	s.dirty = false
	s.notices = append(s.notices, Notice{Level: NoticeSuccess, Message: s.text.success(res)})
	drafts, key := s.drafts, s.draftKey
	s.mu.Unlock()

	s.metrics.Submission("ok", elapsed)
	s.logger.Info("wizard submitted",
		logging.String("id", res.ID),
		logging.String("display_code", res.DisplayCode),
		logging.Duration("duration", elapsed),
	)

	if drafts != nil && key != "" {
		if err := drafts.DiscardDraft(ctx, key); err != nil {
			s.logger.Warn("discard draft failed", logging.String("key", key), logging.Err(err))
		}
	}
	return res, nil
}
