package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/provalia/cbt-backend/internal/config"
	"github.com/provalia/cbt-backend/internal/engine"
	"github.com/provalia/cbt-backend/internal/gateway"
	"github.com/provalia/cbt-backend/internal/model"
	"github.com/provalia/cbt-backend/internal/repository"
)

// Common attempt errors.
var (
	ErrAttemptNotLive = errors.New("attempt has no live session")
	ErrNotYourAttempt = errors.New("attempt belongs to another candidate")
)

// AttemptService owns the registry of live session engines. Each started
// attempt holds exactly one engine; HTTP and WebSocket handlers reach the
// engine only through this registry so ownership checks happen in one place.
type AttemptService struct {
	mu      sync.RWMutex
	engines map[uuid.UUID]*engine.Engine

	cfg          *config.Config
	examService  *ExamService
	attemptRepo  *repository.AttemptRepository
	auditRepo    *repository.AuditLogRepository
	snapshotRepo *repository.SnapshotRepository
	gw           *gateway.RedisGateway
	rdb          *redis.Client
	log          zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	cfg *config.Config,
	examService *ExamService,
	attemptRepo *repository.AttemptRepository,
	auditRepo *repository.AuditLogRepository,
	snapshotRepo *repository.SnapshotRepository,
	gw *gateway.RedisGateway,
	rdb *redis.Client,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		engines:      make(map[uuid.UUID]*engine.Engine),
		cfg:          cfg,
		examService:  examService,
		attemptRepo:  attemptRepo,
		auditRepo:    auditRepo,
		snapshotRepo: snapshotRepo,
		gw:           gw,
		rdb:          rdb,
		log:          log.With().Str("component", "attempt_service").Logger(),
	}
}

// Join verifies the entry token, creates (or resumes) the candidate's
// attempt for an exam, and starts its session engine.
func (s *AttemptService) Join(ctx context.Context, examID uuid.UUID, candidateID int, entryToken string) (*model.Attempt, error) {
	if err := s.examService.CheckEntryToken(ctx, examID, entryToken); err != nil {
		return nil, err
	}

	// A candidate re-joining an unfinished attempt gets the same session
	// back instead of a fresh clock.
	existing, err := s.attemptRepo.GetActive(ctx, examID, candidateID)
	if err == nil {
		if _, ok := s.getEngine(existing.ID); !ok {
			if err := s.resume(ctx, existing); err != nil {
				return nil, err
			}
		}
		return existing, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("lookup active attempt: %w", err)
	}

	payload, err := s.examService.GetExamPayload(ctx, examID)
	if err != nil {
		return nil, err
	}

	attempt := &model.Attempt{
		ExamID:      examID,
		CandidateID: candidateID,
		StartedAt:   time.Now(),
		Status:      model.SessionStatusNotStarted,
	}
	if err := s.attemptRepo.Create(ctx, attempt); err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	eng, err := s.buildEngine(attempt, payload)
	if err != nil {
		return nil, err
	}
	if err := eng.Start(); err != nil {
		return nil, err
	}

	s.putEngine(attempt.ID, eng)
	s.trackAttempt(ctx, attempt)

	if err := s.attemptRepo.UpdateStatus(ctx, attempt.ID, model.SessionStatusOngoing); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", attempt.ID.String()).Msg("Status update failed")
	}

	s.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Str("exam_id", examID.String()).
		Int("candidate_id", candidateID).
		Msg("Attempt started")
	attempt.Status = model.SessionStatusOngoing
	return attempt, nil
}

// ResumeUnfinished rebuilds engines for every unfinished attempt from their
// audit logs. Called once on startup so a server crash never strands a
// candidate mid-exam.
func (s *AttemptService) ResumeUnfinished(ctx context.Context) error {
	attempts, err := s.attemptRepo.ListUnfinished(ctx)
	if err != nil {
		return fmt.Errorf("list unfinished attempts: %w", err)
	}

	resumed := 0
	for i := range attempts {
		if err := s.resume(ctx, &attempts[i]); err != nil {
			s.log.Warn().
				Err(err).
				Str("attempt_id", attempts[i].ID.String()).
				Msg("Failed to resume attempt, skipping")
			continue
		}
		resumed++
	}

	if resumed > 0 {
		s.log.Info().Int("resumed", resumed).Msg("Resumed live attempts")
	}
	return nil
}

// resume rebuilds one attempt's engine by replaying its persisted log.
func (s *AttemptService) resume(ctx context.Context, attempt *model.Attempt) error {
	payload, err := s.examService.GetExamPayload(ctx, attempt.ExamID)
	if err != nil {
		return err
	}

	entries, err := s.auditRepo.ListByAttempt(ctx, attempt.ID)
	if err != nil {
		return fmt.Errorf("load audit log: %w", err)
	}

	// Ids start at 1 with no gaps, so the row count must equal the highest
	// persisted id. A mismatch means the persist queue lost entries and the
	// replay would reconstruct a partial attempt.
	last, err := s.auditRepo.LastEntryID(ctx, attempt.ID)
	if err != nil {
		return fmt.Errorf("last entry id: %w", err)
	}
	if int64(len(entries)) != last {
		return fmt.Errorf("persisted log has %d rows up to id %d: %w", len(entries), last, engine.ErrCorruptLog)
	}

	eng, err := s.buildEngine(attempt, payload)
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		// Row exists but nothing was logged yet; treat as a fresh start.
		if err := eng.Start(); err != nil {
			return err
		}
	} else if err := eng.Restore(entries); err != nil {
		return fmt.Errorf("replay attempt %s: %w", attempt.ID, err)
	}

	// A log that ends in a finish means the attempt row was left open
	// without a writer observing the end (expiry with no client, crash
	// between finish and seal). Close the row now instead of parking a
	// dead engine in the registry.
	if eng.Session().Status == model.SessionStatusFinished {
		if err := s.seal(ctx, attempt.ID, attempt.CandidateID, submittedVia(entries)); err != nil {
			return err
		}
		return nil
	}

	s.putEngine(attempt.ID, eng)
	s.trackAttempt(ctx, attempt)
	return nil
}

// submittedVia extracts how a finished attempt was submitted from its log,
// defaulting to AUTO when the finish entry carries no detail.
func submittedVia(entries []model.LogEntry) model.SubmitVia {
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Type == model.ActionSessionFinished && entries[i].Details != nil && entries[i].Details.Via != "" {
			return entries[i].Details.Via
		}
	}
	return model.SubmitViaAuto
}

func (s *AttemptService) buildEngine(attempt *model.Attempt, payload *model.ExamPayload) (*engine.Engine, error) {
	tick := time.Duration(payload.TickIntervalMs) * time.Millisecond
	if tick <= 0 {
		tick = time.Duration(s.cfg.DefaultTickMs) * time.Millisecond
	}

	return engine.New(engine.Config{
		AttemptID:       attempt.ID,
		ExamID:          attempt.ExamID,
		CandidateID:     attempt.CandidateID,
		DurationSeconds: payload.DurationSeconds,
		TickInterval:    tick,
		Sections:        payload.Sections,
		Questions:       payload.Questions,
		Gateway:         s.gw.ForAttempt(attempt.ID),
		Logger:          s.log,
	})
}

func (s *AttemptService) trackAttempt(ctx context.Context, attempt *model.Attempt) {
	key := config.CacheKey.CandidateActiveAttemptKey(attempt.CandidateID)
	if err := s.rdb.Set(ctx, key, attempt.ID.String(), 0).Err(); err != nil {
		s.log.Warn().Err(err).Int("candidate_id", attempt.CandidateID).Msg("Active attempt cache write failed")
	}
}

// Engine returns the live engine for an attempt after verifying ownership.
func (s *AttemptService) Engine(attemptID uuid.UUID, candidateID int) (*engine.Engine, error) {
	eng, ok := s.getEngine(attemptID)
	if !ok {
		return nil, ErrAttemptNotLive
	}
	if eng.Session().CandidateID != candidateID {
		return nil, ErrNotYourAttempt
	}
	return eng, nil
}

// Navigate moves the attempt's current pointer.
func (s *AttemptService) Navigate(attemptID uuid.UUID, candidateID int, questionID int64) error {
	eng, err := s.Engine(attemptID, candidateID)
	if err != nil {
		return err
	}
	return eng.NavigateTo(questionID)
}

// Buffer stages an uncommitted answer for the current question.
func (s *AttemptService) Buffer(attemptID uuid.UUID, candidateID int, answer model.Answer) error {
	eng, err := s.Engine(attemptID, candidateID)
	if err != nil {
		return err
	}
	return eng.BufferAnswer(answer)
}

// Save commits the buffered answer to the current question.
func (s *AttemptService) Save(attemptID uuid.UUID, candidateID int) error {
	eng, err := s.Engine(attemptID, candidateID)
	if err != nil {
		return err
	}
	return eng.SaveAnswer()
}

// Clear erases the current question's saved answer.
func (s *AttemptService) Clear(attemptID uuid.UUID, candidateID int) error {
	eng, err := s.Engine(attemptID, candidateID)
	if err != nil {
		return err
	}
	return eng.ClearAnswer()
}

// ToggleMark flips the review mark on the current question.
func (s *AttemptService) ToggleMark(attemptID uuid.UUID, candidateID int) error {
	eng, err := s.Engine(attemptID, candidateID)
	if err != nil {
		return err
	}
	return eng.ToggleMark()
}

// Pause freezes the attempt's countdown.
func (s *AttemptService) Pause(attemptID uuid.UUID, candidateID int) error {
	eng, err := s.Engine(attemptID, candidateID)
	if err != nil {
		return err
	}
	return eng.Pause()
}

// Resume unfreezes the attempt's countdown.
func (s *AttemptService) Resume(attemptID uuid.UUID, candidateID int) error {
	eng, err := s.Engine(attemptID, candidateID)
	if err != nil {
		return err
	}
	return eng.Resume()
}

// Submit finishes the attempt manually and seals its row.
func (s *AttemptService) Submit(ctx context.Context, attemptID uuid.UUID, candidateID int) error {
	eng, err := s.Engine(attemptID, candidateID)
	if err != nil {
		return err
	}

	if err := eng.Finish(model.SubmitViaManual); err != nil {
		return err
	}
	return s.seal(ctx, attemptID, candidateID, model.SubmitViaManual)
}

// SealExpired seals the database row of an attempt whose engine auto
// finished on expiry. Invoked by the clock stream when it observes the
// FINISHED frame.
func (s *AttemptService) SealExpired(ctx context.Context, attemptID uuid.UUID, candidateID int) error {
	return s.seal(ctx, attemptID, candidateID, model.SubmitViaAuto)
}

func (s *AttemptService) seal(ctx context.Context, attemptID uuid.UUID, candidateID int, via model.SubmitVia) error {
	if err := s.attemptRepo.Complete(ctx, attemptID, time.Now(), via); err != nil {
		return fmt.Errorf("seal attempt: %w", err)
	}

	key := config.CacheKey.CandidateActiveAttemptKey(candidateID)
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		s.log.Warn().Err(err).Int("candidate_id", candidateID).Msg("Active attempt cache delete failed")
	}

	s.removeEngine(attemptID)
	s.log.Info().
		Str("attempt_id", attemptID.String()).
		Str("via", string(via)).
		Msg("Attempt sealed")
	return nil
}

// State returns the candidate-facing view of a live attempt: session,
// questions, sections and per-section summaries.
func (s *AttemptService) State(attemptID uuid.UUID, candidateID int) (*AttemptState, error) {
	eng, err := s.Engine(attemptID, candidateID)
	if err != nil {
		return nil, err
	}

	return &AttemptState{
		Session:   eng.Session(),
		Questions: eng.Questions(),
		Sections:  eng.Sections(),
		Summaries: eng.Summaries(),
	}, nil
}

// Summaries returns the per-section answer counters, recomputed live.
func (s *AttemptService) Summaries(attemptID uuid.UUID, candidateID int) ([]model.SectionSummary, error) {
	eng, err := s.Engine(attemptID, candidateID)
	if err != nil {
		return nil, err
	}
	return eng.Summaries(), nil
}

// Log returns the attempt's in-memory audit log.
func (s *AttemptService) Log(attemptID uuid.UUID, candidateID int) ([]model.LogEntry, error) {
	eng, err := s.Engine(attemptID, candidateID)
	if err != nil {
		return nil, err
	}
	return eng.Entries(), nil
}

// AttemptState is the full live view handed to the client on load.
type AttemptState struct {
	Session   model.Session          `json:"session"`
	Questions []model.Question       `json:"questions"`
	Sections  []model.Section        `json:"sections"`
	Summaries []model.SectionSummary `json:"summaries"`
}

// Review returns the persisted view of an attempt for the proctor who
// authored its exam: the attempt row plus the checkpointed session and
// question snapshots. Reads only durable state, so it works for finished
// attempts and live ones alike.
func (s *AttemptService) Review(ctx context.Context, attemptID uuid.UUID, proctorID int) (*AttemptReview, error) {
	attempt, err := s.attemptRepo.GetByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}

	exam, err := s.examService.GetByID(ctx, attempt.ExamID)
	if err != nil {
		return nil, fmt.Errorf("load exam: %w", err)
	}
	if exam.AuthorID != proctorID {
		return nil, ErrNotExamAuthor
	}

	questions, err := s.snapshotRepo.ListQuestionsByAttempt(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("load question snapshots: %w", err)
	}

	review := &AttemptReview{Attempt: attempt, Questions: questions}
	session, err := s.snapshotRepo.GetSession(ctx, attemptID)
	switch {
	case err == nil:
		review.Session = session
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, fmt.Errorf("load session snapshot: %w", err)
	}
	return review, nil
}

// AttemptReview is the proctor-facing durable view of one attempt.
type AttemptReview struct {
	Attempt   *model.Attempt           `json:"attempt"`
	Session   *model.SessionSnapshot   `json:"session,omitempty"`
	Questions []model.QuestionSnapshot `json:"questions"`
}

func (s *AttemptService) getEngine(attemptID uuid.UUID) (*engine.Engine, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	eng, ok := s.engines[attemptID]
	return eng, ok
}

func (s *AttemptService) putEngine(attemptID uuid.UUID, eng *engine.Engine) {
	s.mu.Lock()
	s.engines[attemptID] = eng
	s.mu.Unlock()

	go s.reapOnFinish(attemptID, eng)
}

// reapOnFinish evicts the engine from the registry once its session ends,
// so an expiry with no connected client cannot strand a dead engine. The
// row itself is sealed by the persist worker off the final checkpoint.
func (s *AttemptService) reapOnFinish(attemptID uuid.UUID, eng *engine.Engine) {
	frames, cancel := eng.Subscribe()
	defer cancel()

	for frame := range frames {
		if frame.Status != model.SessionStatusFinished {
			continue
		}
		key := config.CacheKey.CandidateActiveAttemptKey(eng.Session().CandidateID)
		if err := s.rdb.Del(context.Background(), key).Err(); err != nil {
			s.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Active attempt cache delete failed")
		}
		s.removeEngine(attemptID)
		return
	}
}

func (s *AttemptService) removeEngine(attemptID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.engines, attemptID)
}
