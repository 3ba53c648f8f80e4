package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/victornm/exam/internal/domain"
	"github.com/victornm/exam/internal/guard"
)

const examColumns = `exam_id, title, description, created_by, duration_minutes, anytime, start_at, end_at,
	randomize_questions, pass_percentage, deleted, version, create_time, update_time`

func scanExam(row pgx.Row) (*domain.Exam, error) {
	var e domain.Exam
	err := row.Scan(&e.ExamID, &e.Title, &e.Description, &e.CreatedBy, &e.DurationMinutes, &e.Anytime,
		&e.StartAt, &e.EndAt, &e.RandomizeQuestions, &e.PassPercentage, &e.Deleted, &e.Version,
		&e.CreateTime, &e.UpdateTime)
	if err != nil {
		return nil, err
	}

	return &e, nil
}

func (q *queries) CreateExam(ctx context.Context, e *domain.Exam) error {
	const stmt = `INSERT INTO exams (` + examColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, FALSE, 1, $11, $12);`

	_, err := q.db.Exec(ctx, stmt, e.ExamID, e.Title, e.Description, e.CreatedBy, e.DurationMinutes, e.Anytime,
		e.StartAt, e.EndAt, e.RandomizeQuestions, e.PassPercentage, e.CreateTime, e.UpdateTime)
	if isUniqueViolation(err) {
		return alreadyExists(err, "exam already exists: exam=%s", e.ExamID)
	}
	if err != nil {
		return fmt.Errorf("insert exam: %w", err)
	}

	e.Version = 1
	return nil
}

func (q *queries) GetExam(ctx context.Context, examID string) (*domain.Exam, error) {
	return q.getExam(ctx, examID, false)
}

func (q *queries) LockExam(ctx context.Context, examID string) (*domain.Exam, error) {
	return q.getExam(ctx, examID, true)
}

func (q *queries) getExam(ctx context.Context, examID string, lock bool) (*domain.Exam, error) {
	stmt := `SELECT ` + examColumns + ` FROM exams WHERE exam_id = $1 AND NOT deleted`
	if lock {
		stmt += ` FOR UPDATE`
	}

	e, err := scanExam(q.db.QueryRow(ctx, stmt, examID))
	if noRows(err) {
		return nil, examNotFound(examID)
	}
	if err != nil {
		return nil, fmt.Errorf("select exam: %w", err)
	}

	if e.QuestionIDs, err = q.questionIDs(ctx, examID); err != nil {
		return nil, err
	}

	return e, nil
}

func (q *queries) UpdateExam(ctx context.Context, e *domain.Exam, expected *int) error {
	const stmt = `UPDATE exams SET title = $2, description = $3, duration_minutes = $4, anytime = $5,
			start_at = $6, end_at = $7, randomize_questions = $8, pass_percentage = $9, update_time = $10,
			version = version + 1
		WHERE exam_id = $1 AND NOT deleted AND ($11::INTEGER IS NULL OR version = $11)
		RETURNING version;`

	err := q.db.QueryRow(ctx, stmt, e.ExamID, e.Title, e.Description, e.DurationMinutes, e.Anytime,
		e.StartAt, e.EndAt, e.RandomizeQuestions, e.PassPercentage, e.UpdateTime, expected).Scan(&e.Version)
	if noRows(err) {
		return q.examMiss(ctx, e.ExamID, expected)
	}
	if err != nil {
		return fmt.Errorf("update exam: %w", err)
	}

	return nil
}

func (q *queries) TouchExam(ctx context.Context, examID string) error {
	const stmt = `UPDATE exams SET version = version + 1, update_time = now() WHERE exam_id = $1 AND NOT deleted;`

	tag, err := q.db.Exec(ctx, stmt, examID)
	if err != nil {
		return fmt.Errorf("touch exam: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return examNotFound(examID)
	}

	return nil
}

func (q *queries) DeleteExam(ctx context.Context, examID string, expected *int) error {
	const stmt = `UPDATE exams SET deleted = TRUE, version = version + 1, update_time = now()
		WHERE exam_id = $1 AND NOT deleted AND ($2::INTEGER IS NULL OR version = $2);`

	tag, err := q.db.Exec(ctx, stmt, examID, expected)
	if err != nil {
		return fmt.Errorf("delete exam: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return q.examMiss(ctx, examID, expected)
	}

	return nil
}

// examMiss explains why a conditional exam write touched no row.
func (q *queries) examMiss(ctx context.Context, examID string, expected *int) error {
	const stmt = `SELECT version FROM exams WHERE exam_id = $1 AND NOT deleted;`

	var current int
	err := q.db.QueryRow(ctx, stmt, examID).Scan(&current)
	if noRows(err) {
		return examNotFound(examID)
	}
	if err != nil {
		return fmt.Errorf("select exam version: %w", err)
	}

	if expected == nil {
		return fmt.Errorf("exam write missed: exam=%s", examID)
	}

	return guard.VersionConflict(guard.EntityExam, examID, current, *expected)
}
