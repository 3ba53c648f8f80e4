// Package exam is the authoring side: exams, their questions and participants. Every mutation
// runs in one unit of work that locks the exam row and checks the caller owns the exam. Changes to
// the exam, its question set or its participants are additionally refused while attempts against
// the exam are live.
package exam

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/victornm/exam/internal/domain"
	"github.com/victornm/exam/internal/errors"
	"github.com/victornm/exam/internal/guard"
	"github.com/victornm/exam/internal/question"
	"github.com/victornm/exam/internal/store"
)

type Config struct {
	Store    store.Store
	Registry *question.Registry
	Lock     *guard.Lock

	// Now defaults to time.Now.
	Now func() time.Time
}

type Service struct {
	store    store.Store
	registry *question.Registry
	lock     *guard.Lock
	now      func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		store:    c.Store,
		registry: c.Registry,
		lock:     c.Lock,
		now:      c.Now,
	}

	if s.registry == nil {
		s.registry = question.NewRegistry()
	}
	if s.lock == nil {
		s.lock = guard.NewLock()
	}
	if s.now == nil {
		s.now = time.Now
	}

	return s
}

// CreateExamRequest represents a request to create a new exam.
type CreateExamRequest struct {
	// ActorID becomes the exam creator.
	ActorID         string `validate:"required"`
	Title           string `validate:"required,max=200"`
	Description     string `validate:"max=2000"`
	DurationMinutes int    `validate:"gt=0,lte=1440"`
	// Anytime exams ignore StartAt and EndAt.
	Anytime            bool
	StartAt            *time.Time
	EndAt              *time.Time
	RandomizeQuestions bool
	PassPercentage     decimal.Decimal
}

func (s *Service) CreateExam(ctx context.Context, req CreateExamRequest) (*domain.Exam, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	if err := checkSchedule(req.Anytime, req.StartAt, req.EndAt); err != nil {
		return nil, err
	}

	if err := checkPassPercentage(req.PassPercentage); err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate exam ID: %w", err)
	}

	now := s.now()
	e := &domain.Exam{
		ExamID:             id.String(),
		Title:              req.Title,
		Description:        req.Description,
		CreatedBy:          req.ActorID,
		DurationMinutes:    req.DurationMinutes,
		Anytime:            req.Anytime,
		StartAt:            req.StartAt,
		EndAt:              req.EndAt,
		RandomizeQuestions: req.RandomizeQuestions,
		PassPercentage:     req.PassPercentage,
		CreateTime:         now,
		UpdateTime:         now,
	}
	if e.Anytime {
		e.StartAt, e.EndAt = nil, nil
	}

	if err := s.store.CreateExam(ctx, e); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "exam: created", "exam", e.ExamID, "by", e.CreatedBy)
	return e, nil
}

type GetExamRequest struct {
	ExamID  string
	ActorID string
}

// ExamDetails is the creator's view of an exam, correct answers included.
type ExamDetails struct {
	Exam      domain.Exam
	Questions []domain.Question
}

func (s *Service) GetExam(ctx context.Context, req GetExamRequest) (*ExamDetails, error) {
	e, err := s.store.GetExam(ctx, req.ExamID)
	if err != nil {
		return nil, err
	}

	if err := ownedBy(e, req.ActorID); err != nil {
		return nil, err
	}

	qs, err := s.store.ListQuestions(ctx, e.ExamID)
	if err != nil {
		return nil, err
	}

	return &ExamDetails{Exam: *e, Questions: qs}, nil
}

// UpdateExamRequest patches the exam. Nil fields are left unchanged.
type UpdateExamRequest struct {
	ExamID          string
	ActorID         string
	ExpectedVersion *int

	Title              *string `validate:"omitnil,min=1,max=200"`
	Description        *string `validate:"omitnil,max=2000"`
	DurationMinutes    *int    `validate:"omitnil,gt=0,lte=1440"`
	Anytime            *bool
	StartAt            *time.Time
	EndAt              *time.Time
	RandomizeQuestions *bool
	PassPercentage     *decimal.Decimal
}

func (s *Service) UpdateExam(ctx context.Context, req UpdateExamRequest) (*domain.Exam, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	var out *domain.Exam
	err := s.mutate(ctx, req.ExamID, req.ActorID, func(w store.Work, e *domain.Exam) error {
		if req.Title != nil {
			e.Title = *req.Title
		}
		if req.Description != nil {
			e.Description = *req.Description
		}
		if req.DurationMinutes != nil {
			e.DurationMinutes = *req.DurationMinutes
		}
		if req.Anytime != nil {
			e.Anytime = *req.Anytime
		}
		if req.StartAt != nil {
			e.StartAt = req.StartAt
		}
		if req.EndAt != nil {
			e.EndAt = req.EndAt
		}
		if req.RandomizeQuestions != nil {
			e.RandomizeQuestions = *req.RandomizeQuestions
		}
		if req.PassPercentage != nil {
			e.PassPercentage = *req.PassPercentage
		}

		if err := checkSchedule(e.Anytime, e.StartAt, e.EndAt); err != nil {
			return err
		}
		if err := checkPassPercentage(e.PassPercentage); err != nil {
			return err
		}
		if e.Anytime {
			e.StartAt, e.EndAt = nil, nil
		}

		e.UpdateTime = s.now()
		if err := w.UpdateExam(ctx, e, req.ExpectedVersion); err != nil {
			return err
		}

		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

type DeleteExamRequest struct {
	ExamID          string
	ActorID         string
	ExpectedVersion *int
}

// DeleteExam soft-deletes the exam. Attempts already taken keep their results.
func (s *Service) DeleteExam(ctx context.Context, req DeleteExamRequest) error {
	err := s.mutate(ctx, req.ExamID, req.ActorID, func(w store.Work, e *domain.Exam) error {
		return w.DeleteExam(ctx, e.ExamID, req.ExpectedVersion)
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "exam: deleted", "exam", req.ExamID, "by", req.ActorID)
	return nil
}

// mutate runs fn in a unit of work holding the exam row, after the ownership and active-attempt
// checks passed.
func (s *Service) mutate(ctx context.Context, examID, actorID string, fn func(w store.Work, e *domain.Exam) error) error {
	return s.store.WithTransaction(ctx, func(w store.Work) error {
		e, err := s.lockOwned(ctx, w, examID, actorID)
		if err != nil {
			return err
		}

		if err := s.lock.EnsureNoActiveAttempts(ctx, w, e.ExamID); err != nil {
			return err
		}

		return fn(w, e)
	})
}

func (s *Service) lockOwned(ctx context.Context, w store.Work, examID, actorID string) (*domain.Exam, error) {
	e, err := w.LockExam(ctx, examID)
	if err != nil {
		return nil, err
	}

	if err := ownedBy(e, actorID); err != nil {
		return nil, err
	}

	return e, nil
}

func ownedBy(e *domain.Exam, actorID string) error {
	if e.CreatedBy != actorID {
		return errors.PermissionDenied("only the exam creator can do this: exam=%s", e.ExamID)
	}

	return nil
}

func checkSchedule(anytime bool, start, end *time.Time) error {
	if anytime {
		return nil
	}

	if start == nil || end == nil {
		return errors.InvalidArgument("start_at and end_at are required unless the exam is available anytime")
	}

	if !start.Before(*end) {
		return errors.InvalidArgument("start_at must be before end_at")
	}

	return nil
}

func checkPassPercentage(p decimal.Decimal) error {
	if p.IsNegative() || p.GreaterThan(decimal.NewFromInt(100)) {
		return errors.InvalidArgument("pass percentage must be between 0 and 100, got %s", p)
	}

	return nil
}
