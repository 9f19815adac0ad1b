package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/provalia/cbt-backend/internal/model"
)

// SnapshotRepository persists per-question and session-level checkpoints.
type SnapshotRepository struct {
	pool *pgxpool.Pool
}

// NewSnapshotRepository creates a new SnapshotRepository.
func NewSnapshotRepository(pool *pgxpool.Pool) *SnapshotRepository {
	return &SnapshotRepository{pool: pool}
}

// UpsertQuestion writes a question checkpoint, replacing any prior one.
func (r *SnapshotRepository) UpsertQuestion(ctx context.Context, snap model.QuestionSnapshot) error {
	answer, err := json.Marshal(snap.Answer)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO question_snapshots
		   (attempt_id, question_id, section_id, status, answer, time_spent_seconds, captured_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (attempt_id, question_id) DO UPDATE
		 SET section_id = EXCLUDED.section_id,
		     status = EXCLUDED.status,
		     answer = EXCLUDED.answer,
		     time_spent_seconds = EXCLUDED.time_spent_seconds,
		     captured_at = EXCLUDED.captured_at`,
		snap.AttemptID, snap.QuestionID, snap.SectionID, snap.Status,
		answer, snap.TimeSpentSeconds, snap.CapturedAt)
	return err
}

// ListQuestionsByAttempt returns all question checkpoints for an attempt.
func (r *SnapshotRepository) ListQuestionsByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.QuestionSnapshot, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT attempt_id, question_id, section_id, status, answer, time_spent_seconds, captured_at
		 FROM question_snapshots WHERE attempt_id = $1 ORDER BY question_id`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []model.QuestionSnapshot
	for rows.Next() {
		var s model.QuestionSnapshot
		var answer []byte
		if err := rows.Scan(&s.AttemptID, &s.QuestionID, &s.SectionID, &s.Status,
			&answer, &s.TimeSpentSeconds, &s.CapturedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(answer, &s.Answer); err != nil {
			return nil, err
		}
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}

// UpsertSession writes the session-level checkpoint for an attempt.
func (r *SnapshotRepository) UpsertSession(ctx context.Context, snap model.SessionSnapshot) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO session_snapshots
		   (attempt_id, status, remaining_seconds, current_section_id, current_question_id, submitted_via, captured_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (attempt_id) DO UPDATE
		 SET status = EXCLUDED.status,
		     remaining_seconds = EXCLUDED.remaining_seconds,
		     current_section_id = EXCLUDED.current_section_id,
		     current_question_id = EXCLUDED.current_question_id,
		     submitted_via = EXCLUDED.submitted_via,
		     captured_at = EXCLUDED.captured_at`,
		snap.AttemptID, snap.Status, snap.RemainingSeconds,
		snap.CurrentSectionID, snap.CurrentQuestionID, snap.SubmittedVia, snap.CapturedAt)
	return err
}

// GetSession returns the latest session checkpoint for an attempt.
func (r *SnapshotRepository) GetSession(ctx context.Context, attemptID uuid.UUID) (*model.SessionSnapshot, error) {
	s := &model.SessionSnapshot{}
	err := r.pool.QueryRow(ctx,
		`SELECT attempt_id, status, remaining_seconds, current_section_id, current_question_id, submitted_via, captured_at
		 FROM session_snapshots WHERE attempt_id = $1`, attemptID,
	).Scan(&s.AttemptID, &s.Status, &s.RemainingSeconds, &s.CurrentSectionID, &s.CurrentQuestionID, &s.SubmittedVia, &s.CapturedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}
