package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/provalia/cbt-backend/internal/model"
)

// AuditLogRepository persists the append-only attempt audit log.
type AuditLogRepository struct {
	pool *pgxpool.Pool
}

// NewAuditLogRepository creates a new AuditLogRepository.
func NewAuditLogRepository(pool *pgxpool.Pool) *AuditLogRepository {
	return &AuditLogRepository{pool: pool}
}

// Append inserts one log entry. The primary key is (attempt_id, entry_id),
// so requeued duplicates from the persist pipeline land as no-ops instead
// of corrupting the sequence.
func (r *AuditLogRepository) Append(ctx context.Context, attemptID uuid.UUID, entry model.LogEntry) error {
	var details []byte
	if entry.Details != nil {
		raw, err := json.Marshal(entry.Details)
		if err != nil {
			return err
		}
		details = raw
	}

	answer, err := json.Marshal(entry.Answer)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO attempt_log
		   (attempt_id, entry_id, at, time_remaining_seconds, action_type,
		    question_id, section_id, question_status, answer, time_spent_seconds,
		    session_status, details)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (attempt_id, entry_id) DO NOTHING`,
		attemptID, entry.ID, entry.Timestamp, entry.TimeRemainingSeconds, entry.Type,
		entry.QuestionID, entry.SectionID, entry.Status, answer, entry.TimeSpentSeconds,
		entry.SessionStatus, details)
	return err
}

// ListByAttempt returns an attempt's full log ordered by entry id.
// The replayer validates the sequence is gap-free.
func (r *AuditLogRepository) ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.LogEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT entry_id, at, time_remaining_seconds, action_type,
		        question_id, section_id, question_status, answer, time_spent_seconds,
		        session_status, details
		 FROM attempt_log WHERE attempt_id = $1 ORDER BY entry_id`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.LogEntry
	for rows.Next() {
		var e model.LogEntry
		var answer []byte
		var details []byte
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.TimeRemainingSeconds, &e.Type,
			&e.QuestionID, &e.SectionID, &e.Status, &answer, &e.TimeSpentSeconds,
			&e.SessionStatus, &details); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(answer, &e.Answer); err != nil {
			return nil, err
		}
		if len(details) > 0 {
			e.Details = &model.ActionDetails{}
			if err := json.Unmarshal(details, e.Details); err != nil {
				return nil, err
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// LastEntryID returns the highest persisted entry id for an attempt,
// or 0 when the log is empty.
func (r *AuditLogRepository) LastEntryID(ctx context.Context, attemptID uuid.UUID) (int64, error) {
	var last int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(entry_id), 0) FROM attempt_log WHERE attempt_id = $1`,
		attemptID).Scan(&last)
	return last, err
}
