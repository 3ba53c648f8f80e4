package attempt

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/victornm/exam/internal/cache"
	"github.com/victornm/exam/internal/domain"
	"github.com/victornm/exam/internal/errors"
)

type ResultsRequest struct {
	AttemptID string
	UserID    string
}

// QuestionResult is the graded breakdown of one question. Answers are rendered as option texts.
type QuestionResult struct {
	QuestionID    string              `json:"question_id"`
	Number        int                 `json:"number"`
	Type          domain.QuestionType `json:"type"`
	Prompt        json.RawMessage     `json:"prompt,omitempty"`
	Options       []string            `json:"options"`
	Answer        []string            `json:"answer"`
	CorrectAnswer []string            `json:"correct_answer"`
	IsCorrect     bool                `json:"is_correct"`
	Earned        decimal.Decimal     `json:"earned"`
	Points        decimal.Decimal     `json:"points"`
}

type ResultsResponse struct {
	Result         domain.Result    `json:"result"`
	ExamTitle      string           `json:"exam_title"`
	ExamOwner      string           `json:"exam_owner"`
	PassPercentage decimal.Decimal  `json:"pass_percentage"`
	Questions      []QuestionResult `json:"questions"`
}

// Results returns the graded breakdown of an attempt to its owner or to the exam creator. An
// in-progress attempt past its deadline is finalized first.
func (s *Service) Results(ctx context.Context, req ResultsRequest) (*ResultsResponse, error) {
	key := cache.ResultKey(req.AttemptID)

	var cached ResultsResponse
	if s.cacheGet(ctx, key, &cached) {
		if err := canView(req.UserID, cached.Result.UserID, cached.ExamOwner, req.AttemptID); err != nil {
			return nil, err
		}
		return &cached, nil
	}

	a, err := s.store.GetAttempt(ctx, req.AttemptID)
	if err != nil {
		return nil, err
	}

	e, err := s.store.GetExam(ctx, a.ExamID)
	if err != nil && !errors.Is(err, errors.CodeNotFound) {
		return nil, err
	}

	owner := ""
	if e != nil {
		owner = e.CreatedBy
	}

	if err := canView(req.UserID, a.UserID, owner, a.AttemptID); err != nil {
		return nil, err
	}

	if a.Status == domain.AttemptStatusInProgress {
		if e == nil || !elapsed(a, e, s.now()) {
			return nil, errors.InvalidArgument("attempt is still in progress: attempt=%s", a.AttemptID)
		}

		if a, err = s.expire(ctx, a.AttemptID); err != nil {
			return nil, err
		}
	}

	if !a.Status.Graded() {
		return nil, notAllowed(a)
	}

	resp, err := s.breakdown(ctx, a, e)
	if err != nil {
		return nil, err
	}

	s.cacheSet(ctx, key, resp)
	return resp, nil
}

func (s *Service) breakdown(ctx context.Context, a *domain.Attempt, e *domain.Exam) (*ResultsResponse, error) {
	qs, err := s.store.GradingQuestions(ctx, a.QuestionIDs)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]domain.Question, len(qs))
	for _, q := range qs {
		byID[q.QuestionID] = q
	}

	resp := &ResultsResponse{
		Result:    domain.ResultOf(a),
		Questions: make([]QuestionResult, 0, len(a.Grades)),
	}

	if e != nil {
		resp.ExamTitle = e.Title
		resp.ExamOwner = e.CreatedBy
		resp.PassPercentage = e.PassPercentage
	}

	for _, g := range a.Grades {
		q := byID[g.QuestionID]
		resp.Questions = append(resp.Questions, QuestionResult{
			QuestionID:    g.QuestionID,
			Number:        g.Position + 1,
			Type:          q.Type,
			Prompt:        q.Prompt,
			Options:       q.Options,
			Answer:        g.Answer,
			CorrectAnswer: g.CorrectAnswer,
			IsCorrect:     g.IsCorrect,
			Earned:        g.Earned,
			Points:        g.Points,
		})
	}

	return resp, nil
}

func canView(actor, attemptOwner, examOwner, attemptID string) error {
	if actor == attemptOwner || (examOwner != "" && actor == examOwner) {
		return nil
	}

	return errors.PermissionDenied("not allowed to view results: attempt=%s", attemptID)
}

type ListResultsRequest struct {
	UserID string
}

type ListResultsResponse struct {
	Results []domain.Result `json:"results"`
}

// ListResults returns the graded attempts of a user, most recent first. Attempts past their
// deadline are finalized on the way.
func (s *Service) ListResults(ctx context.Context, req ListResultsRequest) (*ListResultsResponse, error) {
	key := cache.UserResultsPrefix(req.UserID)

	var cached ListResultsResponse
	if s.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	as, err := s.store.ListUserAttempts(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	resp := &ListResultsResponse{Results: make([]domain.Result, 0, len(as))}
	live := false
	for i := range as {
		a := &as[i]
		if a.Status == domain.AttemptStatusInProgress {
			if a, err = s.settle(ctx, a); err != nil {
				return nil, err
			}
		}

		switch {
		case a.Status.Graded():
			resp.Results = append(resp.Results, domain.ResultOf(a))
		case a.Status == domain.AttemptStatusInProgress:
			live = true
		}
	}

	// A live attempt may expire without a write, so the listing is only cached once it is final.
	if !live {
		s.cacheSet(ctx, key, resp)
	}

	return resp, nil
}

// settle expires an in-progress attempt whose deadline passed and returns it unchanged otherwise.
func (s *Service) settle(ctx context.Context, a *domain.Attempt) (*domain.Attempt, error) {
	e, err := s.store.GetExam(ctx, a.ExamID)
	if err != nil {
		return nil, err
	}

	if !elapsed(a, e, s.now()) {
		return a, nil
	}

	return s.expire(ctx, a.AttemptID)
}

func (s *Service) cacheGet(ctx context.Context, key string, v any) bool {
	if s.cache == nil {
		return false
	}

	ok, err := s.cache.Get(ctx, key, v)
	if err != nil {
		slog.WarnContext(ctx, "attempt: read cache failed", "key", key, "error", err)
		return false
	}

	return ok
}

func (s *Service) cacheSet(ctx context.Context, key string, v any) {
	if s.cache == nil {
		return
	}

	if err := s.cache.Set(ctx, key, v); err != nil {
		slog.WarnContext(ctx, "attempt: write cache failed", "key", key, "error", err)
	}
}
