package attempt

import (
	"context"
	"slices"

	"github.com/victornm/exam/internal/domain"
	"github.com/victornm/exam/internal/errors"
	"github.com/victornm/exam/internal/store"
)

type NextQuestionRequest struct {
	AttemptID string
	UserID    string
}

type NextQuestionResponse struct {
	Status domain.AttemptStatus
	// Question is nil once every question is answered or the attempt expired.
	Question *domain.QuestionView
	// QuestionNumber is the 1-based session position of Question.
	QuestionNumber int
	TotalQuestions int
	Answered       int
	HasNext        bool
	ReadyToSubmit  bool
	TimeRemaining  int
	// Result is set when the attempt expired.
	Result *domain.Result
}

// NextQuestion serves the question at the current index. There is no way back: the index only
// moves forward as answers fill the prefix of the session order. An expired attempt yields its
// stored result; a submitted or abandoned one is refused.
func (s *Service) NextQuestion(ctx context.Context, req NextQuestionRequest) (*NextQuestionResponse, error) {
	a, err := s.store.GetAttempt(ctx, req.AttemptID)
	if err != nil {
		return nil, err
	}

	if err := ownedBy(a, req.UserID); err != nil {
		return nil, err
	}

	if a.Status == domain.AttemptStatusExpired {
		return terminalView(a), nil
	}

	if a.Status.Terminal() {
		return nil, notAllowed(a)
	}

	e, err := s.store.GetExam(ctx, a.ExamID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if elapsed(a, e, now) {
		if a, err = s.expire(ctx, a.AttemptID); err != nil {
			return nil, err
		}
		if a.Status != domain.AttemptStatusExpired {
			return nil, notAllowed(a)
		}
		return terminalView(a), nil
	}

	total := len(a.QuestionOrder)
	resp := &NextQuestionResponse{
		Status:         a.Status,
		TotalQuestions: total,
		Answered:       len(a.Answers),
		TimeRemaining:  remaining(a, e, now),
	}

	if a.CurrentQuestionIndex >= total {
		resp.ReadyToSubmit = true
		return resp, nil
	}

	qid := a.QuestionAt(a.CurrentQuestionIndex)
	qs, err := s.store.ParticipantQuestions(ctx, []string{qid})
	if err != nil {
		return nil, err
	}
	if len(qs) == 0 {
		return nil, errors.NotFound("question not found: question=%s", qid)
	}

	view, err := s.registry.Render(qs[0])
	if err != nil {
		return nil, err
	}

	resp.Question = &view
	resp.QuestionNumber = a.CurrentQuestionIndex + 1
	resp.HasNext = a.CurrentQuestionIndex+1 < total

	return resp, nil
}

func terminalView(a *domain.Attempt) *NextQuestionResponse {
	r := domain.ResultOf(a)
	return &NextQuestionResponse{
		Status:         a.Status,
		TotalQuestions: len(a.QuestionOrder),
		Answered:       len(a.Answers),
		TimeRemaining:  a.TimeRemaining,
		Result:         &r,
	}
}

type SubmitAnswerRequest struct {
	AttemptID  string
	UserID     string
	QuestionID string
	Answer     domain.Answer
}

type Progress struct {
	Answered             int
	Total                int
	CurrentQuestionIndex int
}

type SubmitAnswerResponse struct {
	Status        domain.AttemptStatus
	TimeRemaining int
	Progress      Progress
	// Result is set when the attempt expired, including when this call expired it.
	Result *domain.Result
}

// SubmitAnswer records or overwrites the answer to a served question. Like NextQuestion it yields
// the stored result of an expired attempt and refuses a submitted or abandoned one.
func (s *Service) SubmitAnswer(ctx context.Context, req SubmitAnswerRequest) (*SubmitAnswerResponse, error) {
	var (
		out       *domain.Attempt
		fin       *finalized
		overwrite bool
	)

	err := s.store.WithTransaction(ctx, func(w store.Work) error {
		a, err := w.LockAttempt(ctx, req.AttemptID)
		if err != nil {
			return err
		}
		out = a

		if err := ownedBy(a, req.UserID); err != nil {
			return err
		}

		if a.Status == domain.AttemptStatusExpired {
			return nil
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

		pos := a.SessionPosition(req.QuestionID)
		if pos < 0 {
			return errors.NotFound("question is not part of this attempt: question=%s", req.QuestionID)
		}

		if pos > a.CurrentQuestionIndex {
			return errors.InvalidArgument("question has not been served yet: question=%s", req.QuestionID)
		}

		if req.Answer.Empty() {
			return errors.InvalidArgument("answer is required")
		}

		rec, ok := a.Answers[req.QuestionID]
		overwrite = ok
		if !ok {
			rec.AnsweredAt = now
		}
		rec.Answer = req.Answer
		rec.UpdatedAt = now

		if a.Answers == nil {
			a.Answers = make(map[string]domain.AnswerRecord)
		}
		a.Answers[req.QuestionID] = rec

		if !slices.Contains(a.AnsweredQuestions, pos) {
			a.AnsweredQuestions = append(a.AnsweredQuestions, pos)
			slices.Sort(a.AnsweredQuestions)
		}

		a.CurrentQuestionIndex = answeredPrefix(a.AnsweredQuestions)
		a.LastActivityAt = now
		a.TimeRemaining = remaining(a, e, now)

		return w.UpdateAttempt(ctx, a)
	})
	if err != nil {
		return nil, err
	}

	resp := &SubmitAnswerResponse{
		Status:        out.Status,
		TimeRemaining: out.TimeRemaining,
		Progress: Progress{
			Answered:             len(out.Answers),
			Total:                len(out.QuestionOrder),
			CurrentQuestionIndex: out.CurrentQuestionIndex,
		},
	}

	if out.Status.Graded() {
		s.afterFinalize(ctx, fin)
		r := domain.ResultOf(out)
		resp.Result = &r
		return resp, nil
	}

	s.publish(ctx, domain.EventAnswerRecorded{
		AttemptID:  out.AttemptID,
		QuestionID: req.QuestionID,
		Overwrite:  overwrite,
	})

	return resp, nil
}

// answeredPrefix returns the first session position missing from the sorted answered positions.
func answeredPrefix(answered []int) int {
	next := 0
	for _, pos := range answered {
		if pos != next {
			break
		}
		next++
	}

	return next
}
