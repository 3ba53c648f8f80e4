package attempt

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/victornm/exam/internal/cache"
	"github.com/victornm/exam/internal/domain"
	"github.com/victornm/exam/internal/errors"
	"github.com/victornm/exam/internal/scoring"
	"github.com/victornm/exam/internal/store"
)

// finalized carries the post-commit side effects of a grading transition.
type finalized struct {
	attempt    domain.Attempt
	examOwner  string
	examTitle  string
	byDeadline bool
}

// finalize grades the frozen question set and moves the attempt to status. Missing answers earn
// nothing; every question of the frozen set counts towards the maximum score.
func (s *Service) finalize(ctx context.Context, w store.Work, a *domain.Attempt, e *domain.Exam, status domain.AttemptStatus, now time.Time) (*finalized, error) {
	qs, err := w.GradingQuestions(ctx, a.QuestionIDs)
	if err != nil {
		return nil, fmt.Errorf("load grading questions: attempt=%s: %w", a.AttemptID, err)
	}

	grades := make([]domain.Grade, 0, len(qs))
	graded := make([]scoring.Graded, 0, len(qs))
	for _, q := range qs {
		m, err := s.registry.Mark(q, a.Answers[q.QuestionID].Answer)
		if err != nil {
			return nil, err
		}

		grades = append(grades, domain.Grade{
			QuestionID:    q.QuestionID,
			Position:      a.SessionPosition(q.QuestionID),
			Answer:        m.Answer,
			CorrectAnswer: m.Correct,
			IsCorrect:     m.IsCorrect,
			Earned:        m.Earned,
			Points:        q.Points,
		})
		graded = append(graded, scoring.Graded{Earned: m.Earned, Points: q.Points})
	}

	slices.SortFunc(grades, func(x, y domain.Grade) int { return x.Position - y.Position })

	r := s.scoring.Score(graded, e.PassPercentage)

	closedAt := now
	if status == domain.AttemptStatusExpired {
		closedAt = a.Deadline(e.Duration())
	}

	a.Status = status
	a.SubmittedAt = &closedAt
	a.LastActivityAt = now
	a.TimeRemaining = remaining(a, e, now)
	a.Score = r.Score
	a.MaxScore = r.MaxScore
	a.Percentage = r.Percentage
	a.Passed = r.Passed
	a.Grades = grades

	if err := w.UpdateAttempt(ctx, a); err != nil {
		return nil, err
	}

	return &finalized{
		attempt:    *a,
		examOwner:  e.CreatedBy,
		examTitle:  e.Title,
		byDeadline: status == domain.AttemptStatusExpired,
	}, nil
}

// afterFinalize runs once the grading transaction committed. Failures here never undo the result.
func (s *Service) afterFinalize(ctx context.Context, f *finalized) {
	if f == nil {
		return
	}

	a := f.attempt
	s.invalidate(ctx, a.AttemptID, a.UserID)

	slog.InfoContext(ctx, "attempt: finalized",
		"attempt", a.AttemptID,
		"status", a.Status,
		"score", a.Score.String(),
		"max_score", a.MaxScore.String(),
		"passed", a.Passed,
	)

	s.publish(ctx, domain.EventAttemptFinalized{
		Result:     domain.ResultOf(&a),
		ExamOwner:  f.examOwner,
		ExamTitle:  f.examTitle,
		ByDeadline: f.byDeadline,
	})
}

func (s *Service) invalidate(ctx context.Context, attemptID, userID string) {
	if s.cache == nil {
		return
	}

	if err := s.cache.Invalidate(ctx, cache.ResultKey(attemptID)); err != nil {
		slog.WarnContext(ctx, "attempt: invalidate result cache failed", "attempt", attemptID, "error", err)
	}

	if err := s.cache.InvalidatePrefix(ctx, cache.UserResultsPrefix(userID)); err != nil {
		slog.WarnContext(ctx, "attempt: invalidate results listing failed", "user", userID, "error", err)
	}
}

// expire finalizes the attempt as expired if it is still in progress past its deadline, and
// returns the attempt as stored afterwards. It is idempotent.
func (s *Service) expire(ctx context.Context, attemptID string) (*domain.Attempt, error) {
	var (
		out *domain.Attempt
		fin *finalized
	)

	err := s.store.WithTransaction(ctx, func(w store.Work) error {
		a, err := w.LockAttempt(ctx, attemptID)
		if err != nil {
			return err
		}
		out = a

		if a.Status != domain.AttemptStatusInProgress {
			return nil
		}

		e, err := w.GetExam(ctx, a.ExamID)
		if err != nil {
			return err
		}

		now := s.now()
		if !elapsed(a, e, now) {
			return nil
		}

		fin, err = s.finalize(ctx, w, a, e, domain.AttemptStatusExpired, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.afterFinalize(ctx, fin)
	return out, nil
}

type SubmitExamRequest struct {
	AttemptID string
	UserID    string
}

type SubmitExamResponse struct {
	Result domain.Result
	// ByDeadline is set when the deadline passed before the submission and the attempt expired.
	ByDeadline bool
}

// SubmitExam grades the attempt. Every question of the frozen set must be answered. When the
// deadline has already passed the attempt is finalized as expired and its result returned.
func (s *Service) SubmitExam(ctx context.Context, req SubmitExamRequest) (*SubmitExamResponse, error) {
	var fin *finalized

	err := s.store.WithTransaction(ctx, func(w store.Work) error {
		a, err := w.LockAttempt(ctx, req.AttemptID)
		if err != nil {
			return err
		}

		if err := ownedBy(a, req.UserID); err != nil {
			return err
		}

		if a.Status.Terminal() {
			return notAllowed(a)
		}

		e, err := w.GetExam(ctx, a.ExamID)
		if err != nil {
			return err
		}

		now := s.now()
		if elapsed(a, e, now) {
			fin, err = s.finalize(ctx, w, a, e, domain.AttemptStatusExpired, now)
			return err
		}

		if err := checkAllAnswered(a); err != nil {
			return err
		}

		fin, err = s.finalize(ctx, w, a, e, domain.AttemptStatusSubmitted, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.afterFinalize(ctx, fin)

	return &SubmitExamResponse{
		Result:     domain.ResultOf(&fin.attempt),
		ByDeadline: fin.byDeadline,
	}, nil
}

// checkAllAnswered names every unanswered question by its 1-based number in session order.
func checkAllAnswered(a *domain.Attempt) error {
	var (
		numbers []string
		missing []map[string]any
	)

	for pos := range a.QuestionOrder {
		qid := a.QuestionAt(pos)
		if _, ok := a.Answers[qid]; ok {
			continue
		}

		numbers = append(numbers, fmt.Sprintf("%d (%s)", pos+1, qid))
		missing = append(missing, map[string]any{"number": pos + 1, "question_id": qid})
	}

	if len(missing) == 0 {
		return nil
	}

	return errors.New(errors.CodeInvalidArgument,
		errors.WithMessagef("unanswered questions: %s", strings.Join(numbers, ", ")),
		errors.WithDetails(map[string]any{"unanswered": missing}),
	)
}

type AbandonRequest struct {
	AttemptID string
	ActorID   string
}

type AbandonResponse struct {
	AttemptID   string
	Status      domain.AttemptStatus
	AbandonedAt time.Time
}

// Abandon ends an in-progress attempt without grading it. Only the exam creator may abandon.
func (s *Service) Abandon(ctx context.Context, req AbandonRequest) (*AbandonResponse, error) {
	var (
		out *domain.Attempt
		fin *finalized
	)

	err := s.store.WithTransaction(ctx, func(w store.Work) error {
		a, err := w.LockAttempt(ctx, req.AttemptID)
		if err != nil {
			return err
		}
		out = a

		e, err := w.GetExam(ctx, a.ExamID)
		if err != nil {
			return err
		}

		if e.CreatedBy != req.ActorID {
			return errors.PermissionDenied("only the exam creator can abandon an attempt: exam=%s", e.ExamID)
		}

		if a.Status.Terminal() {
			return notAllowed(a)
		}

		now := s.now()
		if elapsed(a, e, now) {
			fin, err = s.finalize(ctx, w, a, e, domain.AttemptStatusExpired, now)
			return err
		}

		a.Status = domain.AttemptStatusAbandoned
		a.AbandonedAt = &now
		a.LastActivityAt = now
		a.TimeRemaining = remaining(a, e, now)

		return w.UpdateAttempt(ctx, a)
	})
	if err != nil {
		return nil, err
	}

	if fin != nil {
		s.afterFinalize(ctx, fin)
		return nil, notAllowed(out)
	}

	s.invalidate(ctx, out.AttemptID, out.UserID)

	slog.InfoContext(ctx, "attempt: abandoned",
		"attempt", out.AttemptID,
		"by", req.ActorID,
	)

	s.publish(ctx, domain.EventAttemptAbandoned{Attempt: *out})

	return &AbandonResponse{
		AttemptID:   out.AttemptID,
		Status:      out.Status,
		AbandonedAt: *out.AbandonedAt,
	}, nil
}
