package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/provalia/cbt-backend/internal/model"
)

// ExamRepository handles exam, section and question data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// GetByID retrieves an exam by its UUID.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, author_id, duration_seconds, tick_interval_ms,
		        entry_token, status, created_at, updated_at
		 FROM exams WHERE id = $1`, id,
	).Scan(&e.ID, &e.Title, &e.AuthorID, &e.DurationSeconds, &e.TickIntervalMs,
		&e.EntryToken, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Create inserts a new exam in DRAFT status.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO exams (title, author_id, duration_seconds, tick_interval_ms, entry_token, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at, updated_at`,
		e.Title, e.AuthorID, e.DurationSeconds, e.TickIntervalMs, e.EntryToken, e.Status,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}

// UpdateStatus updates an exam's authoring status.
func (r *ExamRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.ExamStatus) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exams SET status = $1, updated_at = NOW() WHERE id = $2`,
		status, id)
	return err
}

// ListByAuthor retrieves exams created by a proctor, newest first.
func (r *ExamRepository) ListByAuthor(ctx context.Context, authorID int) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, author_id, duration_seconds, tick_interval_ms,
		        entry_token, status, created_at, updated_at
		 FROM exams WHERE author_id = $1 ORDER BY created_at DESC`, authorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := rows.Scan(&e.ID, &e.Title, &e.AuthorID, &e.DurationSeconds, &e.TickIntervalMs,
			&e.EntryToken, &e.Status, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// ListPublished returns all exams with PUBLISHED status.
// Used for cache prewarming on application startup.
func (r *ExamRepository) ListPublished(ctx context.Context) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, author_id, duration_seconds, tick_interval_ms,
		        entry_token, status, created_at, updated_at
		 FROM exams WHERE status = 'PUBLISHED'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := rows.Scan(&e.ID, &e.Title, &e.AuthorID, &e.DurationSeconds, &e.TickIntervalMs,
			&e.EntryToken, &e.Status, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// ReplaceSections atomically replaces the section list of an exam.
// Cascade on the FK removes questions attached to deleted sections.
func (r *ExamRepository) ReplaceSections(ctx context.Context, examID uuid.UUID, sections []model.AddSectionRequest) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM sections WHERE exam_id = $1`, examID); err != nil {
		return err
	}

	for _, s := range sections {
		if _, err := tx.Exec(ctx,
			`INSERT INTO sections (id, exam_id, title, order_num) VALUES ($1, $2, $3, $4)`,
			s.ID, examID, s.Title, s.OrderNum); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// ReplaceQuestions atomically replaces the question set of an exam.
func (r *ExamRepository) ReplaceQuestions(ctx context.Context, examID uuid.UUID, questions []model.AddQuestionRequest) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM questions WHERE exam_id = $1`, examID); err != nil {
		return err
	}

	for _, q := range questions {
		if _, err := tx.Exec(ctx,
			`INSERT INTO questions (exam_id, section_id, type, prompt_html, options, order_num)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			examID, q.SectionID, q.Type, q.PromptHTML, q.Options, q.OrderNum); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// ListSections returns an exam's sections in order, with their question ids.
func (r *ExamRepository) ListSections(ctx context.Context, examID uuid.UUID) ([]model.Section, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, order_num FROM sections WHERE exam_id = $1 ORDER BY order_num, id`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sections []model.Section
	index := make(map[string]int)
	for rows.Next() {
		var s model.Section
		if err := rows.Scan(&s.ID, &s.Title, &s.OrderNum); err != nil {
			return nil, err
		}
		index[s.ID] = len(sections)
		sections = append(sections, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	qRows, err := r.pool.Query(ctx,
		`SELECT id, section_id FROM questions WHERE exam_id = $1 ORDER BY order_num, id`, examID)
	if err != nil {
		return nil, err
	}
	defer qRows.Close()

	for qRows.Next() {
		var qid int64
		var sectionID string
		if err := qRows.Scan(&qid, &sectionID); err != nil {
			return nil, err
		}
		if i, ok := index[sectionID]; ok {
			sections[i].QuestionIDs = append(sections[i].QuestionIDs, qid)
		}
	}
	return sections, qRows.Err()
}

// ListQuestions returns an exam's authored question content in order.
func (r *ExamRepository) ListQuestions(ctx context.Context, examID uuid.UUID) ([]model.QuestionContent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, section_id, type, prompt_html, options, order_num
		 FROM questions WHERE exam_id = $1 ORDER BY order_num, id`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.QuestionContent
	for rows.Next() {
		var q model.QuestionContent
		if err := rows.Scan(&q.ID, &q.SectionID, &q.Type, &q.PromptHTML, &q.Options, &q.OrderNum); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}
