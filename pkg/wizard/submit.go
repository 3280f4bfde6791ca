package wizard

import (
	"context"
)

// SubmitResult is what the persistence collaborator returns on success.
type SubmitResult struct {
	ID          string
	DisplayCode string
}

// Submitter persists a complete record. The wizard does not care whether it
// is a remote call, a database write or a fake.
type Submitter interface {
	SubmitEntity(ctx context.Context, rec Record) (SubmitResult, error)
}

// SubmitterFunc adapts a function to Submitter.
type SubmitterFunc func(ctx context.Context, rec Record) (SubmitResult, error)

func (f SubmitterFunc) SubmitEntity(ctx context.Context, rec Record) (SubmitResult, error) {
	return f(ctx, rec)
}

// NoticeLevel classifies a transient notification.
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is a transient, user-facing notification (a toast).
type Notice struct {
	Level   NoticeLevel
	Message string
}

type noticeText struct {
	failure string
	success func(SubmitResult) string
}

var defaultNoticeText = noticeText{
	failure: "The record could not be saved. Please try again.",
	success: func(r SubmitResult) string { return "Saved " + r.DisplayCode },
}

// WithNoticeText overrides the submission notifications.
func WithNoticeText(failure string, success func(SubmitResult) string) Option {
	return func(s *Session) {
		if failure != "" {
			s.text.failure = failure
		}
		if success != nil {
			s.text.success = success
		}
	}
}

// Notify queues a notification.
func (s *Session) Notify(level NoticeLevel, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, Notice{Level: level, Message: msg})
}

// Notices returns and clears the queued notifications.
func (s *Session) Notices() []Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.notices
	s.notices = nil
	return out
}
