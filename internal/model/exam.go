package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates the authoring states of an exam.
type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "DRAFT"
	ExamStatusPublished ExamStatus = "PUBLISHED"
	ExamStatusArchived  ExamStatus = "ARCHIVED"
)

// Exam is the authored exam definition.
type Exam struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	AuthorID        int        `json:"author_id"`
	DurationSeconds int        `json:"duration_seconds"`
	TickIntervalMs  int        `json:"tick_interval_ms"`
	EntryToken      string     `json:"entry_token,omitempty"`
	Status          ExamStatus `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// ExamPayload is the Redis-cached exam definition handed to a starting
// attempt: sections plus candidate-safe question content.
type ExamPayload struct {
	ExamID          uuid.UUID         `json:"exam_id"`
	Title           string            `json:"title"`
	DurationSeconds int               `json:"duration_seconds"`
	TickIntervalMs  int               `json:"tick_interval_ms"`
	Sections        []Section         `json:"sections"`
	Questions       []QuestionContent `json:"questions"`
}

// CreateExamRequest is the authoring payload for a new exam.
type CreateExamRequest struct {
	Title           string `json:"title" binding:"required,min=3,max=255"`
	DurationSeconds int    `json:"duration_seconds" binding:"required,min=60,max=28800"`
	TickIntervalMs  int    `json:"tick_interval_ms" binding:"omitempty,min=100,max=5000"`
	EntryToken      string `json:"entry_token" binding:"omitempty,min=4,max=20"`
}

// ReplaceSectionsRequest bulk-replaces the section list of a draft exam.
type ReplaceSectionsRequest struct {
	Sections []AddSectionRequest `json:"sections" binding:"required,min=1,dive"`
}

// JoinExamRequest is the payload for a candidate joining an exam.
type JoinExamRequest struct {
	EntryToken string `json:"entry_token" binding:"required,min=4,max=20"`
}
