package model

import "github.com/google/uuid"

// SessionStatus enumerates the lifecycle states of a test session.
type SessionStatus string

const (
	SessionStatusNotStarted SessionStatus = "NOT_STARTED"
	SessionStatusOngoing    SessionStatus = "ONGOING"
	SessionStatusPaused     SessionStatus = "PAUSED"
	SessionStatusFinished   SessionStatus = "FINISHED"
)

// Session is the authoritative in-memory state of one exam attempt.
// RemainingSeconds is derived by the countdown timer and must never be
// written from anywhere else.
type Session struct {
	AttemptID         uuid.UUID     `json:"attempt_id"`
	ExamID            uuid.UUID     `json:"exam_id"`
	CandidateID       int           `json:"candidate_id"`
	Status            SessionStatus `json:"status"`
	DurationSeconds   int           `json:"duration_seconds"`
	RemainingSeconds  int           `json:"remaining_seconds"`
	CurrentSectionID  string        `json:"current_section_id"`
	CurrentQuestionID int64         `json:"current_question_id"`
}
