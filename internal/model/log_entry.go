package model

import "time"

// ActionType enumerates every state-changing action the engine records.
// The audit log stores one entry per action; consumers switch exhaustively
// on this type, so adding a kind is a compile-visible change.
type ActionType string

const (
	ActionSessionStarted  ActionType = "SESSION_STARTED"
	ActionNavigated       ActionType = "QUESTION_NAVIGATED"
	ActionAnswerChanged   ActionType = "ANSWER_CHANGED"
	ActionAnswerSaved     ActionType = "ANSWER_SAVED"
	ActionAnswerCleared   ActionType = "ANSWER_CLEARED"
	ActionMarkToggled     ActionType = "MARK_TOGGLED"
	ActionSessionPaused   ActionType = "SESSION_PAUSED"
	ActionSessionResumed  ActionType = "SESSION_RESUMED"
	ActionSessionFinished ActionType = "SESSION_FINISHED"
)

// SubmitVia tags how a session finish was triggered.
type SubmitVia string

const (
	SubmitViaAuto   SubmitVia = "AUTO"
	SubmitViaManual SubmitVia = "MANUAL"
)

// ActionDetails carries the before/after payload of a mutation. Prev fields
// hold the persisted values from immediately before the action so a dispute
// review can see exactly what changed.
type ActionDetails struct {
	PrevAnswer *Answer        `json:"prev_answer,omitempty"`
	NewAnswer  *Answer        `json:"new_answer,omitempty"`
	PrevStatus QuestionStatus `json:"prev_status,omitempty"`
	// Navigation destination. The entry snapshot holds the question being
	// left (its committed time and status); these fields record where the
	// current pointer moved.
	ToQuestionID int64     `json:"to_question_id,omitempty"`
	ToSectionID  string    `json:"to_section_id,omitempty"`
	Via          SubmitVia `json:"via,omitempty"`
}

// LogEntry is one immutable audit record. IDs are assigned by the audit
// logger as a gap-free increasing sequence starting at 1; the snapshot
// fields capture the persisted state of the current question right after
// the action, which makes the ordered log sufficient to replay the whole
// session without the live store.
type LogEntry struct {
	ID                   int64          `json:"id"`
	Timestamp            time.Time      `json:"timestamp"`
	TimeRemainingSeconds int            `json:"time_remaining_seconds"`
	Type                 ActionType     `json:"type"`
	QuestionID           int64          `json:"question_id"`
	SectionID            string         `json:"section_id"`
	Status               QuestionStatus `json:"status"`
	Answer               Answer         `json:"answer"`
	TimeSpentSeconds     int            `json:"time_spent_seconds"`
	SessionStatus        SessionStatus  `json:"session_status"`
	Details              *ActionDetails `json:"details,omitempty"`
}
