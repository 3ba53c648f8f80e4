package exam

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/victornm/exam/internal/domain"
	"github.com/victornm/exam/internal/errors"
	"github.com/victornm/exam/internal/question"
	"github.com/victornm/exam/internal/store"
)

type AddQuestionRequest struct {
	ExamID        string
	ActorID       string
	Type          domain.QuestionType
	Prompt        json.RawMessage
	Options       []string
	CorrectAnswer domain.Answer
	Points        decimal.Decimal
}

// AddQuestion appends a question to the end of the exam.
func (s *Service) AddQuestion(ctx context.Context, req AddQuestionRequest) (*domain.Question, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate question ID: %w", err)
	}

	var out *domain.Question
	err = s.mutate(ctx, req.ExamID, req.ActorID, func(w store.Work, e *domain.Exam) error {
		pos, err := w.NextQuestionPosition(ctx, e.ExamID)
		if err != nil {
			return err
		}

		q, err := s.registry.Build(question.Input{
			Type:          req.Type,
			Prompt:        req.Prompt,
			Options:       req.Options,
			CorrectAnswer: req.CorrectAnswer,
			Points:        req.Points,
			Position:      pos,
		})
		if err != nil {
			return err
		}

		now := s.now()
		q.QuestionID = id.String()
		q.ExamID = e.ExamID
		q.CreateTime = now
		q.UpdateTime = now

		if err := w.CreateQuestion(ctx, &q); err != nil {
			return err
		}

		out = &q
		return w.TouchExam(ctx, e.ExamID)
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// UpdateQuestionRequest replaces the content of a question. Its position is changed with
// ReorderQuestions only.
type UpdateQuestionRequest struct {
	ExamID          string
	QuestionID      string
	ActorID         string
	ExpectedVersion *int
	Type            domain.QuestionType
	Prompt          json.RawMessage
	Options         []string
	CorrectAnswer   domain.Answer
	Points          decimal.Decimal
}

func (s *Service) UpdateQuestion(ctx context.Context, req UpdateQuestionRequest) (*domain.Question, error) {
	var out *domain.Question
	err := s.mutate(ctx, req.ExamID, req.ActorID, func(w store.Work, e *domain.Exam) error {
		cur, err := examQuestion(ctx, w, e.ExamID, req.QuestionID)
		if err != nil {
			return err
		}

		q, err := s.registry.Build(question.Input{
			Type:          req.Type,
			Prompt:        req.Prompt,
			Options:       req.Options,
			CorrectAnswer: req.CorrectAnswer,
			Points:        req.Points,
			Position:      cur.Position,
		})
		if err != nil {
			return err
		}

		q.QuestionID = cur.QuestionID
		q.ExamID = cur.ExamID
		q.CreateTime = cur.CreateTime
		q.UpdateTime = s.now()

		if err := w.UpdateQuestion(ctx, &q, req.ExpectedVersion); err != nil {
			return err
		}

		out = &q
		return w.TouchExam(ctx, e.ExamID)
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

type DeleteQuestionRequest struct {
	ExamID     string
	QuestionID string
	ActorID    string
}

func (s *Service) DeleteQuestion(ctx context.Context, req DeleteQuestionRequest) error {
	return s.mutate(ctx, req.ExamID, req.ActorID, func(w store.Work, e *domain.Exam) error {
		if _, err := examQuestion(ctx, w, e.ExamID, req.QuestionID); err != nil {
			return err
		}

		if err := w.DeleteQuestion(ctx, req.QuestionID); err != nil {
			return err
		}

		return w.TouchExam(ctx, e.ExamID)
	})
}

type ReorderQuestionsRequest struct {
	ExamID  string
	ActorID string
	// QuestionIDs lists every question of the exam in the new order.
	QuestionIDs []string
}

func (s *Service) ReorderQuestions(ctx context.Context, req ReorderQuestionsRequest) ([]domain.Question, error) {
	var out []domain.Question
	err := s.mutate(ctx, req.ExamID, req.ActorID, func(w store.Work, e *domain.Exam) error {
		if !samePermutation(e.QuestionIDs, req.QuestionIDs) {
			return errors.InvalidArgument("question ids must list every question of the exam exactly once")
		}

		if err := w.SetQuestionPositions(ctx, e.ExamID, req.QuestionIDs); err != nil {
			return err
		}

		if err := w.TouchExam(ctx, e.ExamID); err != nil {
			return err
		}

		qs, err := w.ListQuestions(ctx, e.ExamID)
		out = qs
		return err
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// examQuestion loads a question and checks it belongs to the exam.
func examQuestion(ctx context.Context, w store.Work, examID, questionID string) (*domain.Question, error) {
	q, err := w.GetQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}

	if q.ExamID != examID {
		return nil, errors.NotFound("question not found: question=%s", questionID)
	}

	return q, nil
}

func samePermutation(current, next []string) bool {
	if len(current) != len(next) {
		return false
	}

	a, b := slices.Clone(current), slices.Clone(next)
	slices.Sort(a)
	slices.Sort(b)

	return slices.Equal(a, b)
}
