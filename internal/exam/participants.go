package exam

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/victornm/exam/internal/domain"
	"github.com/victornm/exam/internal/errors"
	"github.com/victornm/exam/internal/store"
)

type AddParticipantRequest struct {
	ExamID  string
	ActorID string
	UserID  string `validate:"required"`
}

// AddParticipant invites a user and issues the single-use access code that starts their attempt.
// Refused while the exam has live attempts.
func (s *Service) AddParticipant(ctx context.Context, req AddParticipantRequest) (*domain.Participant, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate participant ID: %w", err)
	}

	code, err := accessCode()
	if err != nil {
		return nil, err
	}

	p := &domain.Participant{
		ParticipantID: id.String(),
		ExamID:        req.ExamID,
		UserID:        req.UserID,
		AccessCode:    code,
		CreateTime:    s.now(),
	}

	err = s.mutate(ctx, req.ExamID, req.ActorID, func(w store.Work, _ *domain.Exam) error {
		return w.CreateParticipant(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "exam: participant added",
		"exam", p.ExamID,
		"participant", p.ParticipantID,
		"user", p.UserID,
	)

	return p, nil
}

type ListParticipantsRequest struct {
	ExamID  string
	ActorID string
}

func (s *Service) ListParticipants(ctx context.Context, req ListParticipantsRequest) ([]domain.Participant, error) {
	e, err := s.store.GetExam(ctx, req.ExamID)
	if err != nil {
		return nil, err
	}

	if err := ownedBy(e, req.ActorID); err != nil {
		return nil, err
	}

	return s.store.ListParticipants(ctx, e.ExamID)
}

type RemoveParticipantRequest struct {
	ExamID        string
	ActorID       string
	ParticipantID string
}

// RemoveParticipant revokes an invitation whose access code has not been used. Refused while the
// exam has live attempts.
func (s *Service) RemoveParticipant(ctx context.Context, req RemoveParticipantRequest) error {
	return s.mutate(ctx, req.ExamID, req.ActorID, func(w store.Work, e *domain.Exam) error {
		p, err := w.GetParticipant(ctx, req.ParticipantID)
		if err != nil {
			return err
		}

		if p.ExamID != e.ExamID {
			return errors.NotFound("participant not found: participant=%s", req.ParticipantID)
		}

		if p.IsUsed {
			return errors.InvalidArgument("participant already started the exam: participant=%s", p.ParticipantID)
		}

		return w.DeleteParticipant(ctx, p.ParticipantID)
	})
}

func accessCode() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate access code: %w", err)
	}

	return strings.ToUpper(strings.ReplaceAll(u.String(), "-", "")), nil
}
