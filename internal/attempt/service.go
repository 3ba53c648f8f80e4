// Package attempt runs the attempt state machine:
//
//	not_started -> in_progress -> submitted | abandoned | expired
//
// Every operation recomputes the remaining time from the wall clock. An in-progress attempt whose
// deadline has passed is finalized as expired by whichever operation touches it first.
package attempt

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/victornm/exam/internal/domain"
	"github.com/victornm/exam/internal/errors"
	"github.com/victornm/exam/internal/event"
	"github.com/victornm/exam/internal/question"
	"github.com/victornm/exam/internal/scoring"
	"github.com/victornm/exam/internal/store"
)

// ResultCache caches rendered results. It is optional.
type ResultCache interface {
	Get(ctx context.Context, key string, v any) (bool, error)
	Set(ctx context.Context, key string, v any) error
	Invalidate(ctx context.Context, keys ...string) error
	InvalidatePrefix(ctx context.Context, prefix string) error
}

type Config struct {
	Store    store.Store
	Registry *question.Registry
	Scoring  *scoring.Engine
	Cache    ResultCache
	EventBus *event.Bus

	// Now defaults to time.Now.
	Now func() time.Time
	// Shuffle returns a random permutation of [0, n). Defaults to math/rand/v2.
	Shuffle func(n int) []int
}

type Service struct {
	store    store.Store
	registry *question.Registry
	scoring  *scoring.Engine
	cache    ResultCache
	eb       *event.Bus
	now      func() time.Time
	shuffle  func(n int) []int
}

func NewService(c Config) *Service {
	s := &Service{
		store:    c.Store,
		registry: c.Registry,
		scoring:  c.Scoring,
		cache:    c.Cache,
		eb:       c.EventBus,
		now:      c.Now,
		shuffle:  c.Shuffle,
	}

	if s.registry == nil {
		s.registry = question.NewRegistry()
	}
	if s.scoring == nil {
		s.scoring = scoring.NewEngine()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.shuffle == nil {
		s.shuffle = rand.Perm
	}

	return s
}

// StartRequest redeems a participant's access code.
type StartRequest struct {
	AccessCode string
	UserID     string
}

type StartResponse struct {
	AttemptID      string
	ExamID         string
	TotalQuestions int
	TimeRemaining  int
}

// Start creates the caller's attempt. The exam row is locked for the whole unit of work, so a
// concurrent structural edit of the exam either completes before the attempt exists or observes it.
func (s *Service) Start(ctx context.Context, req StartRequest) (*StartResponse, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate attempt ID: %w", err)
	}

	var a *domain.Attempt
	err = s.store.WithTransaction(ctx, func(w store.Work) error {
		p, err := w.FindParticipantByAccessCode(ctx, req.AccessCode)
		if err != nil {
			return err
		}

		if p.UserID != req.UserID {
			return errors.PermissionDenied("access code was issued to another user")
		}

		if p.IsUsed {
			return errors.New(errors.CodeAlreadyExists,
				errors.WithMessagef("access code already used: participant=%s", p.ParticipantID))
		}

		switch _, err := w.FindAttempt(ctx, p.ExamID, p.UserID); {
		case err == nil:
			return errors.New(errors.CodeAlreadyExists,
				errors.WithMessagef("attempt already exists: exam=%s user=%s", p.ExamID, p.UserID))
		case !errors.Is(err, errors.CodeNotFound):
			return err
		}

		e, err := w.LockExam(ctx, p.ExamID)
		if err != nil {
			return err
		}

		now := s.now()
		if !e.Available(now) {
			return errors.InvalidArgument("exam is not available at this time: exam=%s", e.ExamID)
		}

		if len(e.QuestionIDs) == 0 {
			return errors.InvalidArgument("exam has no questions: exam=%s", e.ExamID)
		}

		if err := w.MarkParticipantUsed(ctx, p.ParticipantID); err != nil {
			return err
		}

		a = &domain.Attempt{
			AttemptID:      id.String(),
			ExamID:         e.ExamID,
			ParticipantID:  p.ParticipantID,
			UserID:         p.UserID,
			Status:         domain.AttemptStatusInProgress,
			StartedAt:      now,
			LastActivityAt: now,
			TimeRemaining:  e.DurationMinutes * 60,
			QuestionIDs:    e.QuestionIDs,
			QuestionOrder:  s.questionOrder(e),
			Answers:        make(map[string]domain.AnswerRecord),
		}

		return w.CreateAttempt(ctx, a)
	})
	if err != nil {
		return nil, err
	}

	// The user's cached listing predates this attempt.
	s.invalidate(ctx, a.AttemptID, a.UserID)

	slog.InfoContext(ctx, "attempt: started",
		"attempt", a.AttemptID,
		"exam", a.ExamID,
		"user", a.UserID,
	)

	s.publish(ctx, domain.EventAttemptStarted{Attempt: *a})

	return &StartResponse{
		AttemptID:      a.AttemptID,
		ExamID:         a.ExamID,
		TotalQuestions: len(a.QuestionIDs),
		TimeRemaining:  a.TimeRemaining,
	}, nil
}

func (s *Service) questionOrder(e *domain.Exam) []int {
	n := len(e.QuestionIDs)
	if e.RandomizeQuestions {
		return s.shuffle(n)
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	return order
}

func (s *Service) publish(ctx context.Context, e event.Event) {
	if s.eb == nil {
		return
	}

	s.eb.Publish(ctx, e)
}

func ownedBy(a *domain.Attempt, userID string) error {
	if a.UserID != userID {
		return errors.PermissionDenied("attempt belongs to another user: attempt=%s", a.AttemptID)
	}

	return nil
}

func notAllowed(a *domain.Attempt) error {
	return errors.New(errors.CodeAborted,
		errors.WithMessagef("attempt is %s: attempt=%s", a.Status, a.AttemptID),
		errors.WithDetails(map[string]any{"status": string(a.Status)}),
	)
}

// remaining returns the whole seconds left before the deadline, never negative.
func remaining(a *domain.Attempt, e *domain.Exam, now time.Time) int {
	left := a.Deadline(e.Duration()).Sub(now)
	if left <= 0 {
		return 0
	}

	return int(left / time.Second)
}

// elapsed reports whether the remaining time has reached zero.
func elapsed(a *domain.Attempt, e *domain.Exam, now time.Time) bool {
	return remaining(a, e, now) == 0
}
