package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/victornm/exam/internal/domain"
	"github.com/victornm/exam/internal/errors"
)

const attemptColumns = `attempt_id, exam_id, participant_id, user_id, status, started_at, submitted_at, abandoned_at,
	last_activity_at, time_remaining, current_question_index, question_ids, question_order, answered_questions,
	answers, score, max_score, percentage, passed, grades`

func scanAttempt(row pgx.Row) (*domain.Attempt, error) {
	var (
		a       domain.Attempt
		status  string
		answers []byte
		grades  []byte
	)

	err := row.Scan(&a.AttemptID, &a.ExamID, &a.ParticipantID, &a.UserID, &status, &a.StartedAt, &a.SubmittedAt,
		&a.AbandonedAt, &a.LastActivityAt, &a.TimeRemaining, &a.CurrentQuestionIndex, &a.QuestionIDs,
		&a.QuestionOrder, &a.AnsweredQuestions, &answers, &a.Score, &a.MaxScore, &a.Percentage, &a.Passed, &grades)
	if err != nil {
		return nil, err
	}

	a.Status = domain.AttemptStatus(status)
	if err := json.Unmarshal(answers, &a.Answers); err != nil {
		return nil, fmt.Errorf("decode answers: attempt=%s: %w", a.AttemptID, err)
	}
	if err := json.Unmarshal(grades, &a.Grades); err != nil {
		return nil, fmt.Errorf("decode grades: attempt=%s: %w", a.AttemptID, err)
	}
	if a.Answers == nil {
		a.Answers = make(map[string]domain.AnswerRecord)
	}

	return &a, nil
}

func encodeAttempt(a *domain.Attempt) (answers, grades []byte, err error) {
	ans := a.Answers
	if ans == nil {
		ans = map[string]domain.AnswerRecord{}
	}

	if answers, err = json.Marshal(ans); err != nil {
		return nil, nil, fmt.Errorf("encode answers: %w", err)
	}
	if grades, err = json.Marshal(nonNil(a.Grades)); err != nil {
		return nil, nil, fmt.Errorf("encode grades: %w", err)
	}

	return answers, grades, nil
}

func (q *queries) CreateAttempt(ctx context.Context, a *domain.Attempt) error {
	const stmt = `INSERT INTO attempts (` + attemptColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20);`

	answers, grades, err := encodeAttempt(a)
	if err != nil {
		return err
	}

	_, err = q.db.Exec(ctx, stmt, a.AttemptID, a.ExamID, a.ParticipantID, a.UserID, string(a.Status), a.StartedAt,
		a.SubmittedAt, a.AbandonedAt, a.LastActivityAt, a.TimeRemaining, a.CurrentQuestionIndex,
		nonNil(a.QuestionIDs), nonNil(a.QuestionOrder), nonNil(a.AnsweredQuestions), answers,
		a.Score, a.MaxScore, a.Percentage, a.Passed, grades)
	if isUniqueViolation(err) {
		return alreadyExists(err, "attempt already exists: exam=%s user=%s", a.ExamID, a.UserID)
	}
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}

	return nil
}

func (q *queries) GetAttempt(ctx context.Context, attemptID string) (*domain.Attempt, error) {
	return q.getAttempt(ctx, attemptID, false)
}

func (q *queries) LockAttempt(ctx context.Context, attemptID string) (*domain.Attempt, error) {
	return q.getAttempt(ctx, attemptID, true)
}

func (q *queries) getAttempt(ctx context.Context, attemptID string, lock bool) (*domain.Attempt, error) {
	stmt := `SELECT ` + attemptColumns + ` FROM attempts WHERE attempt_id = $1`
	if lock {
		stmt += ` FOR UPDATE`
	}

	a, err := scanAttempt(q.db.QueryRow(ctx, stmt, attemptID))
	if noRows(err) {
		return nil, attemptNotFound(attemptID)
	}
	if err != nil {
		return nil, fmt.Errorf("select attempt: %w", err)
	}

	return a, nil
}

func (q *queries) FindAttempt(ctx context.Context, examID, userID string) (*domain.Attempt, error) {
	const stmt = `SELECT ` + attemptColumns + ` FROM attempts WHERE exam_id = $1 AND user_id = $2;`

	a, err := scanAttempt(q.db.QueryRow(ctx, stmt, examID, userID))
	if noRows(err) {
		return nil, errors.NotFound("attempt not found: exam=%s user=%s", examID, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("select attempt: %w", err)
	}

	return a, nil
}

func (q *queries) ListUserAttempts(ctx context.Context, userID string) ([]domain.Attempt, error) {
	const stmt = `SELECT ` + attemptColumns + ` FROM attempts WHERE user_id = $1
		ORDER BY started_at DESC, attempt_id;`

	rows, err := q.db.Query(ctx, stmt, userID)
	if err != nil {
		return nil, fmt.Errorf("select attempts: %w", err)
	}
	defer rows.Close()

	var as []domain.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		as = append(as, *a)
	}

	return as, rows.Err()
}

func (q *queries) UpdateAttempt(ctx context.Context, a *domain.Attempt) error {
	const stmt = `UPDATE attempts SET status = $2, submitted_at = $3, abandoned_at = $4, last_activity_at = $5,
			time_remaining = $6, current_question_index = $7, answered_questions = $8, answers = $9,
			score = $10, max_score = $11, percentage = $12, passed = $13, grades = $14
		WHERE attempt_id = $1 AND status = 'in_progress';`

	answers, grades, err := encodeAttempt(a)
	if err != nil {
		return err
	}

	tag, err := q.db.Exec(ctx, stmt, a.AttemptID, string(a.Status), a.SubmittedAt, a.AbandonedAt,
		a.LastActivityAt, a.TimeRemaining, a.CurrentQuestionIndex, nonNil(a.AnsweredQuestions), answers,
		a.Score, a.MaxScore, a.Percentage, a.Passed, grades)
	if err != nil {
		return fmt.Errorf("update attempt: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	cur, err := q.GetAttempt(ctx, a.AttemptID)
	if err != nil {
		return err
	}

	return errors.New(errors.CodeAborted, errors.WithMessagef("attempt is %s: attempt=%s", cur.Status, a.AttemptID))
}

func (q *queries) CountAttempts(ctx context.Context, examID string, statuses ...domain.AttemptStatus) (int, error) {
	const stmt = `SELECT COUNT(*) FROM attempts WHERE exam_id = $1 AND status = ANY($2);`

	ss := make([]string, 0, len(statuses))
	for _, s := range statuses {
		ss = append(ss, string(s))
	}

	var n int
	if err := q.db.QueryRow(ctx, stmt, examID, ss).Scan(&n); err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}

	return n, nil
}

func attemptNotFound(id string) error {
	return errors.NotFound("attempt not found: attempt=%s", id)
}
