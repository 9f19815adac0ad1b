package model

import (
	"time"

	"github.com/google/uuid"
)

// QuestionSnapshot is the durable per-question checkpoint written through
// the persistence gateway on every navigation.
type QuestionSnapshot struct {
	AttemptID        uuid.UUID      `json:"attempt_id"`
	QuestionID       int64          `json:"question_id"`
	SectionID        string         `json:"section_id"`
	Status           QuestionStatus `json:"status"`
	Answer           Answer         `json:"answer"`
	TimeSpentSeconds int            `json:"time_spent_seconds"`
	CapturedAt       time.Time      `json:"captured_at"`
}

// SessionSnapshot is the durable session-level checkpoint. SubmittedVia is
// set only on the final checkpoint, so the persist worker can close the
// attempt row even when no client observed the expiry.
type SessionSnapshot struct {
	AttemptID         uuid.UUID     `json:"attempt_id"`
	Status            SessionStatus `json:"status"`
	RemainingSeconds  int           `json:"remaining_seconds"`
	CurrentSectionID  string        `json:"current_section_id"`
	CurrentQuestionID int64         `json:"current_question_id"`
	SubmittedVia      *SubmitVia    `json:"submitted_via,omitempty"`
	CapturedAt        time.Time     `json:"captured_at"`
}
