package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/provalia/cbt-backend/internal/engine"
	"github.com/provalia/cbt-backend/internal/middleware"
	"github.com/provalia/cbt-backend/internal/model"
	"github.com/provalia/cbt-backend/internal/response"
	"github.com/provalia/cbt-backend/internal/service"
	"github.com/provalia/cbt-backend/internal/validator"
)

// AttemptHandler handles candidate-facing attempt endpoints. Every route
// resolves the live engine through the attempt service, which enforces
// that a candidate only touches their own attempt.
type AttemptHandler struct {
	attemptService *service.AttemptService
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(attemptService *service.AttemptService) *AttemptHandler {
	return &AttemptHandler{attemptService: attemptService}
}

// Join godoc
// POST /api/v1/exams/:exam_id/join
// Starts (or resumes) the candidate's attempt for a published exam.
func (h *AttemptHandler) Join(c *gin.Context) {
	claims := middleware.GetClaims(c)
	examID, ok := parseExamID(c)
	if !ok {
		return
	}

	var req model.JoinExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	attempt, err := h.attemptService.Join(c.Request.Context(), examID, claims.UserID, req.EntryToken)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidEntry):
			response.Fail(c, http.StatusForbidden, response.ErrInvalidEntryToken)
		case errors.Is(err, service.ErrExamNotPublished):
			response.Fail(c, http.StatusNotFound, response.ErrExamNotAvailable)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}

// State godoc
// GET /api/v1/attempts/:attempt_id
// Returns the full live view: session, questions, sections, summaries.
func (h *AttemptHandler) State(c *gin.Context) {
	claims := middleware.GetClaims(c)
	attemptID, ok := parseAttemptID(c)
	if !ok {
		return
	}

	state, err := h.attemptService.State(attemptID, claims.UserID)
	if err != nil {
		failAttemptOp(c, err)
		return
	}

	response.Success(c, http.StatusOK, state)
}

// Navigate godoc
// POST /api/v1/attempts/:attempt_id/navigate
func (h *AttemptHandler) Navigate(c *gin.Context) {
	claims := middleware.GetClaims(c)
	attemptID, ok := parseAttemptID(c)
	if !ok {
		return
	}

	var req model.NavigateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.attemptService.Navigate(attemptID, claims.UserID, req.QuestionID); err != nil {
		failAttemptOp(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// Buffer godoc
// PUT /api/v1/attempts/:attempt_id/answer
// Stages an uncommitted answer for the current question.
func (h *AttemptHandler) Buffer(c *gin.Context) {
	claims := middleware.GetClaims(c)
	attemptID, ok := parseAttemptID(c)
	if !ok {
		return
	}

	var req model.BufferAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.attemptService.Buffer(attemptID, claims.UserID, req.Answer); err != nil {
		failAttemptOp(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// Save godoc
// POST /api/v1/attempts/:attempt_id/answer/save
func (h *AttemptHandler) Save(c *gin.Context) {
	h.engineOp(c, h.attemptService.Save)
}

// Clear godoc
// POST /api/v1/attempts/:attempt_id/answer/clear
func (h *AttemptHandler) Clear(c *gin.Context) {
	h.engineOp(c, h.attemptService.Clear)
}

// ToggleMark godoc
// POST /api/v1/attempts/:attempt_id/mark
func (h *AttemptHandler) ToggleMark(c *gin.Context) {
	h.engineOp(c, h.attemptService.ToggleMark)
}

// Pause godoc
// POST /api/v1/attempts/:attempt_id/pause
func (h *AttemptHandler) Pause(c *gin.Context) {
	h.engineOp(c, h.attemptService.Pause)
}

// Resume godoc
// POST /api/v1/attempts/:attempt_id/resume
func (h *AttemptHandler) Resume(c *gin.Context) {
	h.engineOp(c, h.attemptService.Resume)
}

// Submit godoc
// POST /api/v1/attempts/:attempt_id/submit
func (h *AttemptHandler) Submit(c *gin.Context) {
	claims := middleware.GetClaims(c)
	attemptID, ok := parseAttemptID(c)
	if !ok {
		return
	}

	var req model.SubmitRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.attemptService.Submit(c.Request.Context(), attemptID, claims.UserID); err != nil {
		failAttemptOp(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// Log godoc
// GET /api/v1/attempts/:attempt_id/log
// Returns the attempt's ordered audit log.
// Review godoc
// GET /api/v1/attempts/:attempt_id/review (proctor)
// Returns the durable attempt record with its checkpointed snapshots.
func (h *AttemptHandler) Review(c *gin.Context) {
	claims := middleware.GetClaims(c)
	attemptID, ok := parseAttemptID(c)
	if !ok {
		return
	}

	review, err := h.attemptService.Review(c.Request.Context(), attemptID, claims.UserID)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		case errors.Is(err, service.ErrNotExamAuthor):
			response.Fail(c, http.StatusForbidden, response.ErrNotExamAuthor)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, review)
}

// Summary godoc
// GET /api/v1/attempts/:attempt_id/summary
func (h *AttemptHandler) Summary(c *gin.Context) {
	claims := middleware.GetClaims(c)
	attemptID, ok := parseAttemptID(c)
	if !ok {
		return
	}

	summaries, err := h.attemptService.Summaries(attemptID, claims.UserID)
	if err != nil {
		failAttemptOp(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"summaries": summaries})
}

func (h *AttemptHandler) Log(c *gin.Context) {
	claims := middleware.GetClaims(c)
	attemptID, ok := parseAttemptID(c)
	if !ok {
		return
	}

	entries, err := h.attemptService.Log(attemptID, claims.UserID)
	if err != nil {
		failAttemptOp(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"entries": entries})
}

func (h *AttemptHandler) engineOp(c *gin.Context, op func(uuid.UUID, int) error) {
	claims := middleware.GetClaims(c)
	attemptID, ok := parseAttemptID(c)
	if !ok {
		return
	}

	if err := op(attemptID, claims.UserID); err != nil {
		failAttemptOp(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

func parseAttemptID(c *gin.Context) (uuid.UUID, bool) {
	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return attemptID, true
}

func failAttemptOp(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrAttemptNotLive):
		response.Fail(c, http.StatusNotFound, response.ErrNoActiveAttempt)
	case errors.Is(err, service.ErrNotYourAttempt):
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
	case errors.Is(err, engine.ErrSessionFinished):
		response.Fail(c, http.StatusConflict, response.ErrAttemptFinished)
	case errors.Is(err, engine.ErrSessionNotStarted):
		response.Fail(c, http.StatusConflict, response.ErrAttemptNotStarted)
	case errors.Is(err, engine.ErrQuestionNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrQuestionNotInExam)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
