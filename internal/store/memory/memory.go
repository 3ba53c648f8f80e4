// Package memory is an in-process storage driver. A unit of work holds the store lock and works on
// a copy of the state, which replaces the live state on commit.
package memory

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/victornm/exam/internal/domain"
	"github.com/victornm/exam/internal/errors"
	"github.com/victornm/exam/internal/guard"
	"github.com/victornm/exam/internal/store"
)

type state struct {
	exams        map[string]domain.Exam
	questions    map[string]domain.Question
	participants map[string]domain.Participant
	attempts     map[string]domain.Attempt
}

func newState() *state {
	return &state{
		exams:        make(map[string]domain.Exam),
		questions:    make(map[string]domain.Question),
		participants: make(map[string]domain.Participant),
		attempts:     make(map[string]domain.Attempt),
	}
}

// clone copies the maps. Stored values are never mutated in place, so values are shared.
func (st *state) clone() *state {
	return &state{
		exams:        maps.Clone(st.exams),
		questions:    maps.Clone(st.questions),
		participants: maps.Clone(st.participants),
		attempts:     maps.Clone(st.attempts),
	}
}

type Store struct {
	*work

	mu    sync.Mutex
	state *state
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	s := &Store{state: newState()}
	s.work = &work{s: s}
	return s
}

func (s *Store) WithTransaction(ctx context.Context, fn func(w store.Work) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state.clone()
	if err := fn(&work{s: s, st: st}); err != nil {
		return err
	}

	s.state = st
	return nil
}

func (*Store) Close() {}

// work is bound to a transaction state when st is set, otherwise each call locks the store.
type work struct {
	s  *Store
	st *state
}

func (w *work) do(fn func(st *state) error) error {
	if w.st != nil {
		return fn(w.st)
	}

	w.s.mu.Lock()
	defer w.s.mu.Unlock()

	return fn(w.s.state)
}

// Exams

func (w *work) CreateExam(_ context.Context, e *domain.Exam) error {
	return w.do(func(st *state) error {
		if _, ok := st.exams[e.ExamID]; ok {
			return errors.New(errors.CodeAlreadyExists, errors.WithMessagef("exam already exists: exam=%s", e.ExamID))
		}

		e.Version = 1
		st.exams[e.ExamID] = cloneExam(*e)
		return nil
	})
}

func (w *work) GetExam(_ context.Context, examID string) (*domain.Exam, error) {
	var out *domain.Exam
	err := w.do(func(st *state) error {
		e, ok := st.exams[examID]
		if !ok || e.Deleted {
			return examNotFound(examID)
		}

		e = cloneExam(e)
		e.QuestionIDs = questionIDs(st, examID)
		out = &e
		return nil
	})

	return out, err
}

func (w *work) LockExam(ctx context.Context, examID string) (*domain.Exam, error) {
	return w.GetExam(ctx, examID)
}

func (w *work) UpdateExam(_ context.Context, e *domain.Exam, expected *int) error {
	return w.do(func(st *state) error {
		cur, ok := st.exams[e.ExamID]
		if !ok || cur.Deleted {
			return examNotFound(e.ExamID)
		}

		if err := guard.CheckVersion(guard.EntityExam, e.ExamID, cur.Version, expected); err != nil {
			return err
		}

		next := cloneExam(*e)
		next.CreatedBy = cur.CreatedBy
		next.CreateTime = cur.CreateTime
		next.Deleted = cur.Deleted
		next.QuestionIDs = nil
		next.Version = guard.NextVersion(cur.Version)
		st.exams[e.ExamID] = next

		e.Version = next.Version
		return nil
	})
}

func (w *work) TouchExam(_ context.Context, examID string) error {
	return w.do(func(st *state) error {
		e, ok := st.exams[examID]
		if !ok || e.Deleted {
			return examNotFound(examID)
		}

		e.Version = guard.NextVersion(e.Version)
		st.exams[examID] = e
		return nil
	})
}

func (w *work) DeleteExam(_ context.Context, examID string, expected *int) error {
	return w.do(func(st *state) error {
		e, ok := st.exams[examID]
		if !ok || e.Deleted {
			return examNotFound(examID)
		}

		if err := guard.CheckVersion(guard.EntityExam, examID, e.Version, expected); err != nil {
			return err
		}

		e.Deleted = true
		e.Version = guard.NextVersion(e.Version)
		st.exams[examID] = e
		return nil
	})
}

// Questions

func (w *work) CreateQuestion(_ context.Context, q *domain.Question) error {
	return w.do(func(st *state) error {
		if _, ok := st.questions[q.QuestionID]; ok {
			return errors.New(errors.CodeAlreadyExists, errors.WithMessagef("question already exists: question=%s", q.QuestionID))
		}

		q.Version = 1
		st.questions[q.QuestionID] = cloneQuestion(*q)
		return nil
	})
}

func (w *work) GetQuestion(_ context.Context, questionID string) (*domain.Question, error) {
	var out *domain.Question
	err := w.do(func(st *state) error {
		q, ok := st.questions[questionID]
		if !ok {
			return questionNotFound(questionID)
		}

		q = cloneQuestion(q)
		out = &q
		return nil
	})

	return out, err
}

func (w *work) ListQuestions(_ context.Context, examID string) ([]domain.Question, error) {
	var out []domain.Question
	err := w.do(func(st *state) error {
		for _, q := range sortedQuestions(st, examID) {
			out = append(out, cloneQuestion(q))
		}
		return nil
	})

	return out, err
}

func (w *work) ParticipantQuestions(ctx context.Context, ids []string) ([]domain.Question, error) {
	qs, err := w.GradingQuestions(ctx, ids)
	for i := range qs {
		qs[i].CorrectAnswer = nil
	}

	return qs, err
}

func (w *work) GradingQuestions(_ context.Context, ids []string) ([]domain.Question, error) {
	out := make([]domain.Question, 0, len(ids))
	err := w.do(func(st *state) error {
		for _, id := range ids {
			if q, ok := st.questions[id]; ok {
				out = append(out, cloneQuestion(q))
			}
		}
		return nil
	})

	return out, err
}

func (w *work) UpdateQuestion(_ context.Context, q *domain.Question, expected *int) error {
	return w.do(func(st *state) error {
		cur, ok := st.questions[q.QuestionID]
		if !ok {
			return questionNotFound(q.QuestionID)
		}

		if err := guard.CheckVersion(guard.EntityQuestion, q.QuestionID, cur.Version, expected); err != nil {
			return err
		}

		next := cloneQuestion(*q)
		next.ExamID = cur.ExamID
		next.CreateTime = cur.CreateTime
		next.Version = guard.NextVersion(cur.Version)
		st.questions[q.QuestionID] = next

		q.Version = next.Version
		return nil
	})
}

func (w *work) DeleteQuestion(_ context.Context, questionID string) error {
	return w.do(func(st *state) error {
		if _, ok := st.questions[questionID]; !ok {
			return questionNotFound(questionID)
		}

		delete(st.questions, questionID)
		return nil
	})
}

func (w *work) SetQuestionPositions(_ context.Context, examID string, ids []string) error {
	return w.do(func(st *state) error {
		for i, id := range ids {
			q, ok := st.questions[id]
			if !ok || q.ExamID != examID {
				return questionNotFound(id)
			}

			if q.Position != i {
				q.Position = i
				q.Version = guard.NextVersion(q.Version)
				st.questions[id] = q
			}
		}
		return nil
	})
}

func (w *work) NextQuestionPosition(_ context.Context, examID string) (int, error) {
	next := 0
	err := w.do(func(st *state) error {
		for _, q := range st.questions {
			if q.ExamID == examID && q.Position >= next {
				next = q.Position + 1
			}
		}
		return nil
	})

	return next, err
}

// Participants

func (w *work) CreateParticipant(_ context.Context, p *domain.Participant) error {
	return w.do(func(st *state) error {
		for _, o := range st.participants {
			if o.ExamID == p.ExamID && o.UserID == p.UserID {
				return errors.New(errors.CodeAlreadyExists,
					errors.WithMessagef("participant already exists: exam=%s user=%s", p.ExamID, p.UserID))
			}
			if o.AccessCode == p.AccessCode {
				return errors.New(errors.CodeAlreadyExists, errors.WithMessagef("access code already in use"))
			}
		}

		st.participants[p.ParticipantID] = *p
		return nil
	})
}

func (w *work) GetParticipant(_ context.Context, participantID string) (*domain.Participant, error) {
	var out *domain.Participant
	err := w.do(func(st *state) error {
		p, ok := st.participants[participantID]
		if !ok {
			return participantNotFound(participantID)
		}

		out = &p
		return nil
	})

	return out, err
}

func (w *work) FindParticipantByAccessCode(_ context.Context, code string) (*domain.Participant, error) {
	var out *domain.Participant
	err := w.do(func(st *state) error {
		for _, p := range st.participants {
			if p.AccessCode == code {
				out = &p
				return nil
			}
		}

		return errors.NotFound("access code not found")
	})

	return out, err
}

func (w *work) ListParticipants(_ context.Context, examID string) ([]domain.Participant, error) {
	var out []domain.Participant
	err := w.do(func(st *state) error {
		for _, p := range st.participants {
			if p.ExamID == examID {
				out = append(out, p)
			}
		}
		return nil
	})

	slices.SortFunc(out, func(a, b domain.Participant) int {
		if c := a.CreateTime.Compare(b.CreateTime); c != 0 {
			return c
		}
		return cmp.Compare(a.ParticipantID, b.ParticipantID)
	})

	return out, err
}

func (w *work) MarkParticipantUsed(_ context.Context, participantID string) error {
	return w.do(func(st *state) error {
		p, ok := st.participants[participantID]
		if !ok {
			return participantNotFound(participantID)
		}

		if p.IsUsed {
			return errors.New(errors.CodeAlreadyExists,
				errors.WithMessagef("access code already used: participant=%s", participantID))
		}

		p.IsUsed = true
		st.participants[participantID] = p
		return nil
	})
}

func (w *work) DeleteParticipant(_ context.Context, participantID string) error {
	return w.do(func(st *state) error {
		if _, ok := st.participants[participantID]; !ok {
			return participantNotFound(participantID)
		}

		delete(st.participants, participantID)
		return nil
	})
}

// Attempts

func (w *work) CreateAttempt(_ context.Context, a *domain.Attempt) error {
	return w.do(func(st *state) error {
		for _, o := range st.attempts {
			if o.ExamID == a.ExamID && o.UserID == a.UserID {
				return errors.New(errors.CodeAlreadyExists,
					errors.WithMessagef("attempt already exists: exam=%s user=%s", a.ExamID, a.UserID))
			}
		}

		st.attempts[a.AttemptID] = cloneAttempt(*a)
		return nil
	})
}

func (w *work) GetAttempt(_ context.Context, attemptID string) (*domain.Attempt, error) {
	var out *domain.Attempt
	err := w.do(func(st *state) error {
		a, ok := st.attempts[attemptID]
		if !ok {
			return attemptNotFound(attemptID)
		}

		a = cloneAttempt(a)
		out = &a
		return nil
	})

	return out, err
}

func (w *work) LockAttempt(ctx context.Context, attemptID string) (*domain.Attempt, error) {
	return w.GetAttempt(ctx, attemptID)
}

func (w *work) FindAttempt(_ context.Context, examID, userID string) (*domain.Attempt, error) {
	var out *domain.Attempt
	err := w.do(func(st *state) error {
		for _, a := range st.attempts {
			if a.ExamID == examID && a.UserID == userID {
				a = cloneAttempt(a)
				out = &a
				return nil
			}
		}

		return errors.NotFound("attempt not found: exam=%s user=%s", examID, userID)
	})

	return out, err
}

func (w *work) ListUserAttempts(_ context.Context, userID string) ([]domain.Attempt, error) {
	var out []domain.Attempt
	err := w.do(func(st *state) error {
		for _, a := range st.attempts {
			if a.UserID == userID {
				out = append(out, cloneAttempt(a))
			}
		}
		return nil
	})

	slices.SortFunc(out, func(a, b domain.Attempt) int {
		if c := b.StartedAt.Compare(a.StartedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.AttemptID, b.AttemptID)
	})

	return out, err
}

func (w *work) UpdateAttempt(_ context.Context, a *domain.Attempt) error {
	return w.do(func(st *state) error {
		cur, ok := st.attempts[a.AttemptID]
		if !ok {
			return attemptNotFound(a.AttemptID)
		}

		if cur.Status != domain.AttemptStatusInProgress {
			return errors.New(errors.CodeAborted,
				errors.WithMessagef("attempt is %s: attempt=%s", cur.Status, a.AttemptID))
		}

		st.attempts[a.AttemptID] = cloneAttempt(*a)
		return nil
	})
}

func (w *work) CountAttempts(_ context.Context, examID string, statuses ...domain.AttemptStatus) (int, error) {
	n := 0
	err := w.do(func(st *state) error {
		for _, a := range st.attempts {
			if a.ExamID == examID && slices.Contains(statuses, a.Status) {
				n++
			}
		}
		return nil
	})

	return n, err
}

func sortedQuestions(st *state, examID string) []domain.Question {
	var qs []domain.Question
	for _, q := range st.questions {
		if q.ExamID == examID {
			qs = append(qs, q)
		}
	}

	slices.SortFunc(qs, func(a, b domain.Question) int {
		if a.Position != b.Position {
			return a.Position - b.Position
		}
		return cmp.Compare(a.QuestionID, b.QuestionID)
	})

	return qs
}

func questionIDs(st *state, examID string) []string {
	qs := sortedQuestions(st, examID)
	ids := make([]string, 0, len(qs))
	for _, q := range qs {
		ids = append(ids, q.QuestionID)
	}
	return ids
}

func examNotFound(id string) error {
	return errors.NotFound("exam not found: exam=%s", id)
}

func questionNotFound(id string) error {
	return errors.NotFound("question not found: question=%s", id)
}

func participantNotFound(id string) error {
	return errors.NotFound("participant not found: participant=%s", id)
}

func attemptNotFound(id string) error {
	return errors.NotFound("attempt not found: attempt=%s", id)
}

func cloneExam(e domain.Exam) domain.Exam {
	e.QuestionIDs = slices.Clone(e.QuestionIDs)
	if e.StartAt != nil {
		t := *e.StartAt
		e.StartAt = &t
	}
	if e.EndAt != nil {
		t := *e.EndAt
		e.EndAt = &t
	}
	return e
}

func cloneQuestion(q domain.Question) domain.Question {
	q.Prompt = slices.Clone(q.Prompt)
	q.Options = slices.Clone(q.Options)
	q.CorrectAnswer = slices.Clone(q.CorrectAnswer)
	return q
}

func cloneAttempt(a domain.Attempt) domain.Attempt {
	a.QuestionIDs = slices.Clone(a.QuestionIDs)
	a.QuestionOrder = slices.Clone(a.QuestionOrder)
	a.AnsweredQuestions = slices.Clone(a.AnsweredQuestions)
	a.Grades = slices.Clone(a.Grades)

	answers := make(map[string]domain.AnswerRecord, len(a.Answers))
	for k, v := range a.Answers {
		v.Answer = slices.Clone(v.Answer)
		answers[k] = v
	}
	a.Answers = answers

	if a.SubmittedAt != nil {
		t := *a.SubmittedAt
		a.SubmittedAt = &t
	}
	if a.AbandonedAt != nil {
		t := *a.AbandonedAt
		a.AbandonedAt = &t
	}
	return a
}
