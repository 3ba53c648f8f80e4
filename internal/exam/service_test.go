package exam_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/exam/internal/domain"
	"github.com/victornm/exam/internal/errors"
	"github.com/victornm/exam/internal/exam"
	"github.com/victornm/exam/internal/guard"
	"github.com/victornm/exam/internal/store/memory"
)

const (
	author   = "author"
	stranger = "stranger"
)

var t0 = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func makeService(t *testing.T) (*exam.Service, *memory.Store) {
	t.Helper()

	st := memory.New()
	return exam.NewService(exam.Config{
		Store: st,
		Now:   func() time.Time { return t0 },
	}), st
}

func createExam(t *testing.T, s *exam.Service) *domain.Exam {
	e, err := s.CreateExam(context.Background(), exam.CreateExamRequest{
		ActorID:         author,
		Title:           "Algebra",
		DurationMinutes: 45,
		Anytime:         true,
		PassPercentage:  decimal.NewFromInt(50),
	})
	require.NoError(t, err)
	return e
}

func addQuestion(t *testing.T, s *exam.Service, examID string, prompt string) *domain.Question {
	q, err := s.AddQuestion(context.Background(), exam.AddQuestionRequest{
		ExamID:        examID,
		ActorID:       author,
		Type:          domain.QuestionTypeSingleChoice,
		Prompt:        json.RawMessage(prompt),
		Options:       []string{"1", "2", "4"},
		CorrectAnswer: domain.Answer{"4"},
		Points:        decimal.NewFromInt(1),
	})
	require.NoError(t, err)
	return q
}

func liveAttempt(t *testing.T, st *memory.Store, examID string, status domain.AttemptStatus) {
	require.NoError(t, st.CreateAttempt(context.Background(), &domain.Attempt{
		AttemptID: "a-" + string(status),
		ExamID:    examID,
		UserID:    "u-" + string(status),
		Status:    status,
		StartedAt: t0,
	}))
}

func TestService_CreateExam(t *testing.T) {
	valid := func() exam.CreateExamRequest {
		return exam.CreateExamRequest{
			ActorID:         author,
			Title:           "Algebra",
			DurationMinutes: 45,
			Anytime:         true,
			PassPercentage:  decimal.NewFromInt(50),
		}
	}

	start, end := t0, t0.Add(24*time.Hour)

	tests := map[string]struct {
		arrange func(r *exam.CreateExamRequest)
		assert  func(t *testing.T, e *domain.Exam, err error)
	}{
		"valid anytime exam": {
			assert: func(t *testing.T, e *domain.Exam, err error) {
				require.NoError(t, err)
				assert.NotEmpty(t, e.ExamID)
				assert.Equal(t, author, e.CreatedBy)
				assert.Equal(t, 1, e.Version)
				assert.Equal(t, t0, e.CreateTime)
			},
		},

		"windowed exam keeps its window": {
			arrange: func(r *exam.CreateExamRequest) {
				r.Anytime = false
				r.StartAt, r.EndAt = &start, &end
			},
			assert: func(t *testing.T, e *domain.Exam, err error) {
				require.NoError(t, err)
				require.NotNil(t, e.StartAt)
				assert.Equal(t, start, *e.StartAt)
			},
		},

		"missing title": {
			arrange: func(r *exam.CreateExamRequest) { r.Title = "" },
			assert: func(t *testing.T, _ *domain.Exam, err error) {
				e := errors.Convert(err)
				require.Equal(t, errors.CodeInvalidArgument, e.Code)
				assert.Equal(t, "title is required", e.Message)
			},
		},

		"non-positive duration": {
			arrange: func(r *exam.CreateExamRequest) { r.DurationMinutes = 0 },
			assert: func(t *testing.T, _ *domain.Exam, err error) {
				e := errors.Convert(err)
				require.Equal(t, errors.CodeInvalidArgument, e.Code)
				assert.Equal(t, "duration_minutes must be greater than 0", e.Message)
			},
		},

		"window required unless anytime": {
			arrange: func(r *exam.CreateExamRequest) { r.Anytime = false },
			assert: func(t *testing.T, _ *domain.Exam, err error) {
				assert.True(t, errors.Is(err, errors.CodeInvalidArgument))
			},
		},

		"window must not be inverted": {
			arrange: func(r *exam.CreateExamRequest) {
				r.Anytime = false
				r.StartAt, r.EndAt = &end, &start
			},
			assert: func(t *testing.T, _ *domain.Exam, err error) {
				assert.True(t, errors.Is(err, errors.CodeInvalidArgument))
			},
		},

		"pass percentage above 100": {
			arrange: func(r *exam.CreateExamRequest) { r.PassPercentage = decimal.NewFromFloat(100.5) },
			assert: func(t *testing.T, _ *domain.Exam, err error) {
				assert.True(t, errors.Is(err, errors.CodeInvalidArgument))
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			s, _ := makeService(t)
			req := valid()
			if tt.arrange != nil {
				tt.arrange(&req)
			}

			e, err := s.CreateExam(context.Background(), req)
			tt.assert(t, e, err)
		})
	}
}

func TestService_UpdateExam(t *testing.T) {
	ctx := context.Background()
	s, _ := makeService(t)
	e := createExam(t, s)
	title := "Linear algebra"

	got, err := s.UpdateExam(ctx, exam.UpdateExamRequest{ExamID: e.ExamID, ActorID: author, ExpectedVersion: guard.Expect(1), Title: &title})
	require.NoError(t, err)
	assert.Equal(t, title, got.Title)
	assert.Equal(t, 2, got.Version)
	assert.Equal(t, 45, got.DurationMinutes, "unset fields are kept")

	stale := "Stale"
	_, err = s.UpdateExam(ctx, exam.UpdateExamRequest{ExamID: e.ExamID, ActorID: author, ExpectedVersion: guard.Expect(1), Title: &stale})
	ce := errors.Convert(err)
	require.Equal(t, errors.CodeAborted, ce.Code)
	assert.Equal(t, 2, ce.Details["current_version"])
	assert.Equal(t, 1, ce.Details["expected_version"])
	assert.Equal(t, 409, ce.HTTPStatusCode())

	_, err = s.UpdateExam(ctx, exam.UpdateExamRequest{ExamID: e.ExamID, ActorID: stranger, Title: &stale})
	assert.True(t, errors.Is(err, errors.CodePermissionDenied))

	empty := ""
	_, err = s.UpdateExam(ctx, exam.UpdateExamRequest{ExamID: e.ExamID, ActorID: author, Title: &empty})
	assert.True(t, errors.Is(err, errors.CodeInvalidArgument))
}

func TestService_ActiveAttemptLock(t *testing.T) {
	ctx := context.Background()

	mutations := map[string]func(s *exam.Service, e *domain.Exam, q *domain.Question, p *domain.Participant) error{
		"add question": func(s *exam.Service, e *domain.Exam, _ *domain.Question, _ *domain.Participant) error {
			_, err := s.AddQuestion(ctx, exam.AddQuestionRequest{
				ExamID: e.ExamID, ActorID: author, Type: domain.QuestionTypeSingleChoice,
				Prompt: json.RawMessage(`"2+3?"`), Options: []string{"5", "6"}, CorrectAnswer: domain.Answer{"0"},
				Points: decimal.NewFromInt(1),
			})
			return err
		},
		"update question": func(s *exam.Service, e *domain.Exam, q *domain.Question, _ *domain.Participant) error {
			_, err := s.UpdateQuestion(ctx, exam.UpdateQuestionRequest{
				ExamID: e.ExamID, QuestionID: q.QuestionID, ActorID: author, Type: domain.QuestionTypeSingleChoice,
				Prompt: json.RawMessage(`"2+2?"`), Options: []string{"3", "4"}, CorrectAnswer: domain.Answer{"4"},
				Points: decimal.NewFromInt(2),
			})
			return err
		},
		"delete question": func(s *exam.Service, e *domain.Exam, q *domain.Question, _ *domain.Participant) error {
			return s.DeleteQuestion(ctx, exam.DeleteQuestionRequest{ExamID: e.ExamID, QuestionID: q.QuestionID, ActorID: author})
		},
		"reorder questions": func(s *exam.Service, e *domain.Exam, q *domain.Question, _ *domain.Participant) error {
			_, err := s.ReorderQuestions(ctx, exam.ReorderQuestionsRequest{ExamID: e.ExamID, ActorID: author, QuestionIDs: []string{q.QuestionID}})
			return err
		},
		"update exam": func(s *exam.Service, e *domain.Exam, _ *domain.Question, _ *domain.Participant) error {
			d := 60
			_, err := s.UpdateExam(ctx, exam.UpdateExamRequest{ExamID: e.ExamID, ActorID: author, DurationMinutes: &d})
			return err
		},
		"add participant": func(s *exam.Service, e *domain.Exam, _ *domain.Question, _ *domain.Participant) error {
			_, err := s.AddParticipant(ctx, exam.AddParticipantRequest{ExamID: e.ExamID, ActorID: author, UserID: "zed"})
			return err
		},
		"remove participant": func(s *exam.Service, e *domain.Exam, _ *domain.Question, p *domain.Participant) error {
			return s.RemoveParticipant(ctx, exam.RemoveParticipantRequest{ExamID: e.ExamID, ActorID: author, ParticipantID: p.ParticipantID})
		},
		"delete exam": func(s *exam.Service, e *domain.Exam, _ *domain.Question, _ *domain.Participant) error {
			return s.DeleteExam(ctx, exam.DeleteExamRequest{ExamID: e.ExamID, ActorID: author})
		},
	}

	statuses := map[domain.AttemptStatus]bool{
		domain.AttemptStatusInProgress: true,
		domain.AttemptStatusSubmitted:  true,
		domain.AttemptStatusAbandoned:  false,
		domain.AttemptStatusExpired:    false,
	}

	for name, mutate := range mutations {
		for status, blocked := range statuses {
			t.Run(name+" with "+string(status)+" attempt", func(t *testing.T) {
				s, st := makeService(t)
				e := createExam(t, s)
				q := addQuestion(t, s, e.ExamID, `"2+2?"`)
				p, err := s.AddParticipant(ctx, exam.AddParticipantRequest{ExamID: e.ExamID, ActorID: author, UserID: "yan"})
				require.NoError(t, err)
				liveAttempt(t, st, e.ExamID, status)

				err = mutate(s, e, q, p)
				if !blocked {
					require.NoError(t, err)
					return
				}

				ce := errors.Convert(err)
				require.Equal(t, errors.CodeInvalidArgument, ce.Code)
				assert.Contains(t, ce.Message, "exam has active attempts")
				assert.Equal(t, 1, ce.Details["active_attempts"])

				qs, err := st.ListQuestions(ctx, e.ExamID)
				require.NoError(t, err)
				require.Len(t, qs, 1, "blocked mutation leaves the question set untouched")
				assert.Equal(t, 1, qs[0].Version)

				ps, err := st.ListParticipants(ctx, e.ExamID)
				require.NoError(t, err)
				require.Len(t, ps, 1, "blocked mutation leaves the participants untouched")
				assert.Equal(t, p.ParticipantID, ps[0].ParticipantID)
			})
		}
	}
}

func TestService_Questions(t *testing.T) {
	ctx := context.Background()
	s, st := makeService(t)
	e := createExam(t, s)

	q1 := addQuestion(t, s, e.ExamID, `"2+2?"`)
	q2 := addQuestion(t, s, e.ExamID, `{"text":"2*2?","image":"grid.png"}`)
	assert.Equal(t, 0, q1.Position)
	assert.Equal(t, 1, q2.Position)
	assert.Equal(t, []int{2}, q1.CorrectAnswer, "literal answer is normalized to its option index")

	got, err := st.GetExam(ctx, e.ExamID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Version, "each question change bumps the exam version")

	_, err = s.AddQuestion(ctx, exam.AddQuestionRequest{
		ExamID: e.ExamID, ActorID: author, Type: domain.QuestionTypeSingleChoice,
		Prompt: json.RawMessage(`"?"`), Options: []string{"only"}, CorrectAnswer: domain.Answer{"0"},
	})
	assert.True(t, errors.Is(err, errors.CodeInvalidArgument), "strategy validation is applied")

	_, err = s.AddQuestion(ctx, exam.AddQuestionRequest{
		ExamID: e.ExamID, ActorID: author, Type: "essay",
		Prompt: json.RawMessage(`"?"`), Options: []string{"a", "b"}, CorrectAnswer: domain.Answer{"a"},
	})
	assert.True(t, errors.Is(err, errors.CodeInvalidArgument), "unknown question type")

	updated, err := s.UpdateQuestion(ctx, exam.UpdateQuestionRequest{
		ExamID: e.ExamID, QuestionID: q1.QuestionID, ActorID: author, ExpectedVersion: guard.Expect(1),
		Type: domain.QuestionTypeMultiSelect, Prompt: json.RawMessage(`"Even numbers?"`),
		Options: []string{"1", "2", "4"}, CorrectAnswer: domain.Answer{"1", "2"}, Points: decimal.NewFromInt(2),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, 0, updated.Position)
	assert.Equal(t, []int{1, 2}, updated.CorrectAnswer)

	_, err = s.UpdateQuestion(ctx, exam.UpdateQuestionRequest{
		ExamID: e.ExamID, QuestionID: q1.QuestionID, ActorID: author, ExpectedVersion: guard.Expect(1),
		Type: domain.QuestionTypeSingleChoice, Prompt: json.RawMessage(`"2+2?"`),
		Options: []string{"1", "4"}, CorrectAnswer: domain.Answer{"4"}, Points: decimal.NewFromInt(1),
	})
	ce := errors.Convert(err)
	require.Equal(t, errors.CodeAborted, ce.Code)
	assert.Equal(t, "question", ce.Details["entity"])

	_, err = s.ReorderQuestions(ctx, exam.ReorderQuestionsRequest{ExamID: e.ExamID, ActorID: author, QuestionIDs: []string{q2.QuestionID}})
	assert.True(t, errors.Is(err, errors.CodeInvalidArgument), "reorder must name every question")

	qs, err := s.ReorderQuestions(ctx, exam.ReorderQuestionsRequest{ExamID: e.ExamID, ActorID: author, QuestionIDs: []string{q2.QuestionID, q1.QuestionID}})
	require.NoError(t, err)
	require.Len(t, qs, 2)
	assert.Equal(t, q2.QuestionID, qs[0].QuestionID)

	details, err := s.GetExam(ctx, exam.GetExamRequest{ExamID: e.ExamID, ActorID: author})
	require.NoError(t, err)
	assert.Equal(t, []string{q2.QuestionID, q1.QuestionID}, details.Exam.QuestionIDs)

	_, err = s.GetExam(ctx, exam.GetExamRequest{ExamID: e.ExamID, ActorID: stranger})
	assert.True(t, errors.Is(err, errors.CodePermissionDenied))

	require.NoError(t, s.DeleteQuestion(ctx, exam.DeleteQuestionRequest{ExamID: e.ExamID, QuestionID: q2.QuestionID, ActorID: author}))
	err = s.DeleteQuestion(ctx, exam.DeleteQuestionRequest{ExamID: e.ExamID, QuestionID: q2.QuestionID, ActorID: author})
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestService_Participants(t *testing.T) {
	ctx := context.Background()
	s, st := makeService(t)
	e := createExam(t, s)
	liveAttempt(t, st, e.ExamID, domain.AttemptStatusExpired)

	p, err := s.AddParticipant(ctx, exam.AddParticipantRequest{ExamID: e.ExamID, ActorID: author, UserID: "alice"})
	require.NoError(t, err, "finished attempts do not hold the exam")
	assert.Len(t, p.AccessCode, 32)
	assert.False(t, p.IsUsed)

	_, err = s.AddParticipant(ctx, exam.AddParticipantRequest{ExamID: e.ExamID, ActorID: author, UserID: "alice"})
	assert.True(t, errors.Is(err, errors.CodeAlreadyExists))

	_, err = s.AddParticipant(ctx, exam.AddParticipantRequest{ExamID: e.ExamID, ActorID: stranger, UserID: "bob"})
	assert.True(t, errors.Is(err, errors.CodePermissionDenied))

	_, err = s.AddParticipant(ctx, exam.AddParticipantRequest{ExamID: e.ExamID, ActorID: author})
	assert.True(t, errors.Is(err, errors.CodeInvalidArgument))

	used, err := s.AddParticipant(ctx, exam.AddParticipantRequest{ExamID: e.ExamID, ActorID: author, UserID: "carol"})
	require.NoError(t, err)
	require.NoError(t, st.MarkParticipantUsed(ctx, used.ParticipantID))

	ps, err := s.ListParticipants(ctx, exam.ListParticipantsRequest{ExamID: e.ExamID, ActorID: author})
	require.NoError(t, err)
	assert.Len(t, ps, 2)

	err = s.RemoveParticipant(ctx, exam.RemoveParticipantRequest{ExamID: e.ExamID, ActorID: author, ParticipantID: used.ParticipantID})
	assert.True(t, errors.Is(err, errors.CodeInvalidArgument), "used participants cannot be removed")

	require.NoError(t, s.RemoveParticipant(ctx, exam.RemoveParticipantRequest{ExamID: e.ExamID, ActorID: author, ParticipantID: p.ParticipantID}))
	_, err = st.GetParticipant(ctx, p.ParticipantID)
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}
