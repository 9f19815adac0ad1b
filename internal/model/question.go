package model

import "encoding/json"

// QuestionType enumerates the supported response formats.
type QuestionType string

const (
	QuestionTypeSingleChoice QuestionType = "SINGLE_CHOICE"
	QuestionTypeMultiChoice  QuestionType = "MULTI_CHOICE"
	QuestionTypeNumeric      QuestionType = "NUMERIC"
	QuestionTypeMatching     QuestionType = "MATCHING"
)

// QuestionStatus enumerates the per-question answering states. Every
// question starts as NOT_VISITED and moves only along the transition
// graph enforced by the session engine.
type QuestionStatus string

const (
	QuestionStatusNotVisited     QuestionStatus = "NOT_VISITED"
	QuestionStatusNotAnswered    QuestionStatus = "NOT_ANSWERED"
	QuestionStatusAnswered       QuestionStatus = "ANSWERED"
	QuestionStatusMarked         QuestionStatus = "MARKED"
	QuestionStatusMarkedAnswered QuestionStatus = "MARKED_ANSWERED"
)

// Question is the engine-side record of a single question within an attempt.
type Question struct {
	ID               int64          `json:"id"`
	SectionID        string         `json:"section_id"`
	Type             QuestionType   `json:"type"`
	Status           QuestionStatus `json:"status"`
	Answer           Answer         `json:"answer"`
	TimeSpentSeconds int            `json:"time_spent_seconds"`
}

// QuestionContent is the authored form of a question as stored with the exam
// (prompt, options). The candidate-facing payload strips the answer key.
type QuestionContent struct {
	ID         int64           `json:"id"`
	SectionID  string          `json:"section_id"`
	Type       QuestionType    `json:"type"`
	PromptHTML string          `json:"prompt_html"`
	Options    json.RawMessage `json:"options,omitempty"`
	OrderNum   int             `json:"order_num"`
}

// AddQuestionRequest is the authoring payload for a single question.
type AddQuestionRequest struct {
	SectionID  string          `json:"section_id" binding:"required,min=1,max=64"`
	Type       string          `json:"type" binding:"required,oneof=SINGLE_CHOICE MULTI_CHOICE NUMERIC MATCHING"`
	PromptHTML string          `json:"prompt_html" binding:"required,min=1,max=8000"`
	Options    json.RawMessage `json:"options" binding:"omitempty"`
	OrderNum   int             `json:"order_num" binding:"min=0"`
}

// ReplaceQuestionsRequest bulk-replaces the question set of a draft exam.
type ReplaceQuestionsRequest struct {
	Questions []AddQuestionRequest `json:"questions" binding:"required,min=1,dive"`
}
