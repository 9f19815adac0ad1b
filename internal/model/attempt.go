package model

import (
	"time"

	"github.com/google/uuid"
)

// Attempt is the persisted record of a candidate's exam attempt. The live
// state lives in the session engine; this row anchors the audit log and
// snapshots.
type Attempt struct {
	ID          uuid.UUID     `json:"id"`
	ExamID      uuid.UUID     `json:"exam_id"`
	CandidateID int           `json:"candidate_id"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  *time.Time    `json:"finished_at,omitempty"`
	Status      SessionStatus `json:"status"`
	SubmittedVia *SubmitVia   `json:"submitted_via,omitempty"`
}

// BufferAnswerRequest carries an uncommitted answer for the current question.
type BufferAnswerRequest struct {
	Answer Answer `json:"answer" binding:"required"`
}

// NavigateRequest moves the current pointer to another question.
type NavigateRequest struct {
	QuestionID int64 `json:"question_id" binding:"required,min=1"`
}

// SubmitRequest finishes the attempt manually.
type SubmitRequest struct {
	Confirm bool `json:"confirm" binding:"required"`
}
