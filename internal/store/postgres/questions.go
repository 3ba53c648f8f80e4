package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/victornm/exam/internal/domain"
	"github.com/victornm/exam/internal/errors"
	"github.com/victornm/exam/internal/guard"
)

const questionColumns = `question_id, exam_id, type, prompt, options, correct_answer, points, position, version,
	create_time, update_time`

func scanQuestion(row pgx.Row) (*domain.Question, error) {
	var (
		q       domain.Question
		typ     string
		prompt  []byte
		options []byte
		correct []byte
	)

	err := row.Scan(&q.QuestionID, &q.ExamID, &typ, &prompt, &options, &correct, &q.Points, &q.Position,
		&q.Version, &q.CreateTime, &q.UpdateTime)
	if err != nil {
		return nil, err
	}

	q.Type = domain.QuestionType(typ)
	q.Prompt = json.RawMessage(prompt)
	if err := json.Unmarshal(options, &q.Options); err != nil {
		return nil, fmt.Errorf("decode options: question=%s: %w", q.QuestionID, err)
	}
	if err := json.Unmarshal(correct, &q.CorrectAnswer); err != nil {
		return nil, fmt.Errorf("decode correct answer: question=%s: %w", q.QuestionID, err)
	}

	return &q, nil
}

func collectQuestions(rows pgx.Rows) ([]domain.Question, error) {
	defer rows.Close()

	var qs []domain.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		qs = append(qs, *q)
	}

	return qs, rows.Err()
}

func (q *queries) CreateQuestion(ctx context.Context, qu *domain.Question) error {
	const stmt = `INSERT INTO questions (` + questionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, $9, $10);`

	options, correct, err := encodeQuestion(qu)
	if err != nil {
		return err
	}

	_, err = q.db.Exec(ctx, stmt, qu.QuestionID, qu.ExamID, string(qu.Type), []byte(qu.Prompt), options, correct,
		qu.Points, qu.Position, qu.CreateTime, qu.UpdateTime)
	if isUniqueViolation(err) {
		return alreadyExists(err, "question already exists: question=%s", qu.QuestionID)
	}
	if err != nil {
		return fmt.Errorf("insert question: %w", err)
	}

	qu.Version = 1
	return nil
}

func (q *queries) GetQuestion(ctx context.Context, questionID string) (*domain.Question, error) {
	const stmt = `SELECT ` + questionColumns + ` FROM questions WHERE question_id = $1;`

	qu, err := scanQuestion(q.db.QueryRow(ctx, stmt, questionID))
	if noRows(err) {
		return nil, questionNotFound(questionID)
	}
	if err != nil {
		return nil, fmt.Errorf("select question: %w", err)
	}

	return qu, nil
}

func (q *queries) ListQuestions(ctx context.Context, examID string) ([]domain.Question, error) {
	const stmt = `SELECT ` + questionColumns + ` FROM questions WHERE exam_id = $1 ORDER BY position, question_id;`

	rows, err := q.db.Query(ctx, stmt, examID)
	if err != nil {
		return nil, fmt.Errorf("select questions: %w", err)
	}

	return collectQuestions(rows)
}

func (q *queries) ParticipantQuestions(ctx context.Context, ids []string) ([]domain.Question, error) {
	qs, err := q.GradingQuestions(ctx, ids)
	for i := range qs {
		qs[i].CorrectAnswer = nil
	}

	return qs, err
}

func (q *queries) GradingQuestions(ctx context.Context, ids []string) ([]domain.Question, error) {
	const stmt = `SELECT ` + questionColumns + ` FROM questions WHERE question_id = ANY($1);`

	rows, err := q.db.Query(ctx, stmt, ids)
	if err != nil {
		return nil, fmt.Errorf("select questions: %w", err)
	}

	found, err := collectQuestions(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]domain.Question, len(found))
	for _, qu := range found {
		byID[qu.QuestionID] = qu
	}

	out := make([]domain.Question, 0, len(ids))
	for _, id := range ids {
		if qu, ok := byID[id]; ok {
			out = append(out, qu)
		}
	}

	return out, nil
}

func (q *queries) UpdateQuestion(ctx context.Context, qu *domain.Question, expected *int) error {
	const stmt = `UPDATE questions SET type = $2, prompt = $3, options = $4, correct_answer = $5, points = $6,
			position = $7, update_time = $8, version = version + 1
		WHERE question_id = $1 AND ($9::INTEGER IS NULL OR version = $9)
		RETURNING version;`

	options, correct, err := encodeQuestion(qu)
	if err != nil {
		return err
	}

	err = q.db.QueryRow(ctx, stmt, qu.QuestionID, string(qu.Type), []byte(qu.Prompt), options, correct,
		qu.Points, qu.Position, qu.UpdateTime, expected).Scan(&qu.Version)
	if noRows(err) {
		return q.questionMiss(ctx, qu.QuestionID, expected)
	}
	if err != nil {
		return fmt.Errorf("update question: %w", err)
	}

	return nil
}

func (q *queries) DeleteQuestion(ctx context.Context, questionID string) error {
	const stmt = `DELETE FROM questions WHERE question_id = $1;`

	tag, err := q.db.Exec(ctx, stmt, questionID)
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return questionNotFound(questionID)
	}

	return nil
}

func (q *queries) SetQuestionPositions(ctx context.Context, examID string, ids []string) (err error) {
	const stmt = `UPDATE questions
		SET version = CASE WHEN position <> $3 THEN version + 1 ELSE version END, position = $3
		WHERE question_id = $1 AND exam_id = $2;`

	b := &pgx.Batch{}
	for i, id := range ids {
		b.Queue(stmt, id, examID, i)
	}

	br := q.db.SendBatch(ctx, b)
	defer func() {
		if cerr := br.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close batch: %w", cerr)
		}
	}()

	for _, id := range ids {
		tag, err := br.Exec()
		if err != nil {
			return fmt.Errorf("update question position: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return questionNotFound(id)
		}
	}

	return nil
}

func (q *queries) NextQuestionPosition(ctx context.Context, examID string) (int, error) {
	const stmt = `SELECT COALESCE(MAX(position) + 1, 0) FROM questions WHERE exam_id = $1;`

	var next int
	if err := q.db.QueryRow(ctx, stmt, examID).Scan(&next); err != nil {
		return 0, fmt.Errorf("select next position: %w", err)
	}

	return next, nil
}

func (q *queries) questionIDs(ctx context.Context, examID string) ([]string, error) {
	const stmt = `SELECT question_id FROM questions WHERE exam_id = $1 ORDER BY position, question_id;`

	rows, err := q.db.Query(ctx, stmt, examID)
	if err != nil {
		return nil, fmt.Errorf("select question ids: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect question ids: %w", err)
	}

	return ids, nil
}

func (q *queries) questionMiss(ctx context.Context, questionID string, expected *int) error {
	const stmt = `SELECT version FROM questions WHERE question_id = $1;`

	var current int
	err := q.db.QueryRow(ctx, stmt, questionID).Scan(&current)
	if noRows(err) {
		return questionNotFound(questionID)
	}
	if err != nil {
		return fmt.Errorf("select question version: %w", err)
	}

	if expected == nil {
		return fmt.Errorf("question write missed: question=%s", questionID)
	}

	return guard.VersionConflict(guard.EntityQuestion, questionID, current, *expected)
}

func encodeQuestion(q *domain.Question) (options, correct []byte, err error) {
	if options, err = json.Marshal(nonNil(q.Options)); err != nil {
		return nil, nil, fmt.Errorf("encode options: %w", err)
	}
	if correct, err = json.Marshal(nonNil(q.CorrectAnswer)); err != nil {
		return nil, nil, fmt.Errorf("encode correct answer: %w", err)
	}

	return options, correct, nil
}

func nonNil[S ~[]E, E any](s S) S {
	if s == nil {
		return S{}
	}
	return s
}

func examNotFound(id string) error {
	return errors.NotFound("exam not found: exam=%s", id)
}

func questionNotFound(id string) error {
	return errors.NotFound("question not found: question=%s", id)
}
