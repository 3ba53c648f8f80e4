package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/victornm/exam/internal/domain"
	"github.com/victornm/exam/internal/errors"
)

const participantColumns = `participant_id, exam_id, user_id, access_code, is_used, create_time`

func scanParticipant(row pgx.Row) (*domain.Participant, error) {
	var p domain.Participant
	if err := row.Scan(&p.ParticipantID, &p.ExamID, &p.UserID, &p.AccessCode, &p.IsUsed, &p.CreateTime); err != nil {
		return nil, err
	}

	return &p, nil
}

func (q *queries) CreateParticipant(ctx context.Context, p *domain.Participant) error {
	const stmt = `INSERT INTO participants (` + participantColumns + `) VALUES ($1, $2, $3, $4, $5, $6);`

	_, err := q.db.Exec(ctx, stmt, p.ParticipantID, p.ExamID, p.UserID, p.AccessCode, p.IsUsed, p.CreateTime)
	if isUniqueViolation(err) {
		return alreadyExists(err, "participant already exists: exam=%s user=%s", p.ExamID, p.UserID)
	}
	if err != nil {
		return fmt.Errorf("insert participant: %w", err)
	}

	return nil
}

func (q *queries) GetParticipant(ctx context.Context, participantID string) (*domain.Participant, error) {
	const stmt = `SELECT ` + participantColumns + ` FROM participants WHERE participant_id = $1;`

	p, err := scanParticipant(q.db.QueryRow(ctx, stmt, participantID))
	if noRows(err) {
		return nil, errors.NotFound("participant not found: participant=%s", participantID)
	}
	if err != nil {
		return nil, fmt.Errorf("select participant: %w", err)
	}

	return p, nil
}

func (q *queries) FindParticipantByAccessCode(ctx context.Context, code string) (*domain.Participant, error) {
	const stmt = `SELECT ` + participantColumns + ` FROM participants WHERE access_code = $1;`

	p, err := scanParticipant(q.db.QueryRow(ctx, stmt, code))
	if noRows(err) {
		return nil, errors.NotFound("access code not found")
	}
	if err != nil {
		return nil, fmt.Errorf("select participant: %w", err)
	}

	return p, nil
}

func (q *queries) ListParticipants(ctx context.Context, examID string) ([]domain.Participant, error) {
	const stmt = `SELECT ` + participantColumns + ` FROM participants WHERE exam_id = $1
		ORDER BY create_time, participant_id;`

	rows, err := q.db.Query(ctx, stmt, examID)
	if err != nil {
		return nil, fmt.Errorf("select participants: %w", err)
	}
	defer rows.Close()

	var ps []domain.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		ps = append(ps, *p)
	}

	return ps, rows.Err()
}

func (q *queries) MarkParticipantUsed(ctx context.Context, participantID string) error {
	const stmt = `UPDATE participants SET is_used = TRUE WHERE participant_id = $1 AND NOT is_used;`

	tag, err := q.db.Exec(ctx, stmt, participantID)
	if err != nil {
		return fmt.Errorf("mark participant used: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	if _, err := q.GetParticipant(ctx, participantID); err != nil {
		return err
	}

	return errors.New(errors.CodeAlreadyExists,
		errors.WithMessagef("access code already used: participant=%s", participantID))
}

func (q *queries) DeleteParticipant(ctx context.Context, participantID string) error {
	const stmt = `DELETE FROM participants WHERE participant_id = $1;`

	tag, err := q.db.Exec(ctx, stmt, participantID)
	if err != nil {
		return fmt.Errorf("delete participant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("participant not found: participant=%s", participantID)
	}

	return nil
}
