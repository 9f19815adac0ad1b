package engine

import "errors"

var (
	// ErrSessionFinished is returned when a mutation targets a finished
	// session. Exam integrity depends on the log being complete, so this is
	// surfaced to the caller instead of being swallowed.
	ErrSessionFinished = errors.New("session already finished")
	// ErrSessionNotStarted is returned when an operation requires a running
	// session.
	ErrSessionNotStarted = errors.New("session not started")
	// ErrQuestionNotFound is returned when an operation references a
	// question id that was never registered with the attempt.
	ErrQuestionNotFound = errors.New("question not found in attempt")
	// ErrSectionNotFound is returned when a question references an
	// unregistered section.
	ErrSectionNotFound = errors.New("section not found in attempt")
	// ErrCorruptLog is returned when a persisted audit log has gaps or
	// out-of-order ids and cannot be replayed.
	ErrCorruptLog = errors.New("audit log ids are not a gap-free increasing sequence")
	// ErrEmptyLog is returned when replay is asked to rebuild from nothing.
	ErrEmptyLog = errors.New("audit log is empty")
)
