package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/provalia/cbt-backend/internal/model"
)

// AttemptRepository handles attempt data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// Create inserts a new attempt row.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO attempts (exam_id, candidate_id, started_at, status)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		a.ExamID, a.CandidateID, a.StartedAt, a.Status,
	).Scan(&a.ID)
}

// GetByID retrieves an attempt by its UUID.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, exam_id, candidate_id, started_at, finished_at, status, submitted_via
		 FROM attempts WHERE id = $1`, id,
	).Scan(&a.ID, &a.ExamID, &a.CandidateID, &a.StartedAt, &a.FinishedAt, &a.Status, &a.SubmittedVia)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetActive returns the candidate's unfinished attempt for an exam, or
// pgx.ErrNoRows when none exists.
func (r *AttemptRepository) GetActive(ctx context.Context, examID uuid.UUID, candidateID int) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, exam_id, candidate_id, started_at, finished_at, status, submitted_via
		 FROM attempts
		 WHERE exam_id = $1 AND candidate_id = $2 AND status != 'FINISHED'
		 ORDER BY started_at DESC LIMIT 1`,
		examID, candidateID,
	).Scan(&a.ID, &a.ExamID, &a.CandidateID, &a.StartedAt, &a.FinishedAt, &a.Status, &a.SubmittedVia)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Complete seals an attempt with its finish time and submission channel.
func (r *AttemptRepository) Complete(ctx context.Context, id uuid.UUID, finishedAt time.Time, via model.SubmitVia) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE attempts SET status = 'FINISHED', finished_at = $1, submitted_via = $2
		 WHERE id = $3 AND status != 'FINISHED'`,
		finishedAt, via, id)
	return err
}

// UpdateStatus updates the persisted session status of an attempt.
func (r *AttemptRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.SessionStatus) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE attempts SET status = $1 WHERE id = $2 AND status != 'FINISHED'`,
		status, id)
	return err
}

// ListUnfinished returns every attempt that has not been sealed. Used on
// startup to resume live sessions from their audit logs.
func (r *AttemptRepository) ListUnfinished(ctx context.Context) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, candidate_id, started_at, finished_at, status, submitted_via
		 FROM attempts WHERE status != 'FINISHED'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		var a model.Attempt
		if err := rows.Scan(&a.ID, &a.ExamID, &a.CandidateID, &a.StartedAt, &a.FinishedAt, &a.Status, &a.SubmittedVia); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}
