package api

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/victornm/exam/internal/attempt"
	"github.com/victornm/exam/internal/domain"
)

type (
	Exam struct {
		ExamID             string          `json:"exam_id"`
		Title              string          `json:"title"`
		Description        string          `json:"description"`
		CreatedBy          string          `json:"created_by"`
		DurationMinutes    int             `json:"duration_minutes"`
		Anytime            bool            `json:"anytime"`
		StartAt            *time.Time      `json:"start_at,omitempty"`
		EndAt              *time.Time      `json:"end_at,omitempty"`
		RandomizeQuestions bool            `json:"randomize_questions"`
		PassPercentage     decimal.Decimal `json:"pass_percentage"`
		QuestionIDs        []string        `json:"question_ids"`
		Version            int             `json:"version"`
		CreateTime         time.Time       `json:"create_time"`
		UpdateTime         time.Time       `json:"update_time"`
	}

	ExamDetails struct {
		Exam      Exam       `json:"exam"`
		Questions []Question `json:"questions"`
	}

	Question struct {
		QuestionID    string              `json:"question_id"`
		ExamID        string              `json:"exam_id,omitempty"`
		Type          domain.QuestionType `json:"type"`
		Prompt        json.RawMessage     `json:"prompt"`
		Options       []string            `json:"options"`
		CorrectAnswer []int               `json:"correct_answer,omitempty"`
		Points        decimal.Decimal     `json:"points"`
		Position      int                 `json:"position"`
		Version       int                 `json:"version,omitempty"`
	}

	Participant struct {
		ParticipantID string    `json:"participant_id"`
		ExamID        string    `json:"exam_id"`
		UserID        string    `json:"user_id"`
		AccessCode    string    `json:"access_code"`
		IsUsed        bool      `json:"is_used"`
		CreateTime    time.Time `json:"create_time"`
	}

	Result struct {
		AttemptID   string               `json:"attempt_id"`
		ExamID      string               `json:"exam_id"`
		UserID      string               `json:"user_id"`
		Status      domain.AttemptStatus `json:"status"`
		Score       decimal.Decimal      `json:"score"`
		MaxScore    decimal.Decimal      `json:"max_score"`
		Percentage  decimal.Decimal      `json:"percentage"`
		Passed      bool                 `json:"passed"`
		SubmittedAt *time.Time           `json:"submitted_at,omitempty"`
	}

	StartAttempt struct {
		AttemptID      string `json:"attempt_id"`
		ExamID         string `json:"exam_id"`
		TotalQuestions int    `json:"total_questions"`
		TimeRemaining  int    `json:"time_remaining"`
	}

	NextQuestion struct {
		Status         domain.AttemptStatus `json:"status"`
		Question       *Question            `json:"question,omitempty"`
		QuestionNumber int                  `json:"question_number,omitempty"`
		TotalQuestions int                  `json:"total_questions"`
		Answered       int                  `json:"answered"`
		HasNext        bool                 `json:"has_next"`
		ReadyToSubmit  bool                 `json:"ready_to_submit"`
		TimeRemaining  int                  `json:"time_remaining"`
		Result         *Result              `json:"result,omitempty"`
	}

	Progress struct {
		Answered             int `json:"answered"`
		Total                int `json:"total"`
		CurrentQuestionIndex int `json:"current_question_index"`
	}

	SubmitAnswer struct {
		Status        domain.AttemptStatus `json:"status"`
		TimeRemaining int                  `json:"time_remaining"`
		Progress      Progress             `json:"progress"`
		Result        *Result              `json:"result,omitempty"`
	}

	SubmitExam struct {
		Result     Result `json:"result"`
		ByDeadline bool   `json:"by_deadline"`
	}

	Abandon struct {
		AttemptID   string               `json:"attempt_id"`
		Status      domain.AttemptStatus `json:"status"`
		AbandonedAt time.Time            `json:"abandoned_at"`
	}

	Results struct {
		Result         Result                   `json:"result"`
		ExamTitle      string                   `json:"exam_title"`
		PassPercentage decimal.Decimal          `json:"pass_percentage"`
		Questions      []attempt.QuestionResult `json:"questions"`
	}
)

func toExam(e *domain.Exam) Exam {
	ids := e.QuestionIDs
	if ids == nil {
		ids = []string{}
	}

	return Exam{
		ExamID:             e.ExamID,
		Title:              e.Title,
		Description:        e.Description,
		CreatedBy:          e.CreatedBy,
		DurationMinutes:    e.DurationMinutes,
		Anytime:            e.Anytime,
		StartAt:            e.StartAt,
		EndAt:              e.EndAt,
		RandomizeQuestions: e.RandomizeQuestions,
		PassPercentage:     e.PassPercentage,
		QuestionIDs:        ids,
		Version:            e.Version,
		CreateTime:         e.CreateTime,
		UpdateTime:         e.UpdateTime,
	}
}

func toQuestion(q *domain.Question) Question {
	return Question{
		QuestionID:    q.QuestionID,
		ExamID:        q.ExamID,
		Type:          q.Type,
		Prompt:        q.Prompt,
		Options:       q.Options,
		CorrectAnswer: q.CorrectAnswer,
		Points:        q.Points,
		Position:      q.Position,
		Version:       q.Version,
	}
}

func toQuestions(qs []domain.Question) []Question {
	out := make([]Question, 0, len(qs))
	for i := range qs {
		out = append(out, toQuestion(&qs[i]))
	}

	return out
}

func toQuestionView(v *domain.QuestionView) *Question {
	if v == nil {
		return nil
	}

	return &Question{
		QuestionID: v.QuestionID,
		Type:       v.Type,
		Prompt:     v.Prompt,
		Options:    v.Options,
		Points:     v.Points,
		Position:   v.Position,
	}
}

func toParticipant(p *domain.Participant) Participant {
	return Participant{
		ParticipantID: p.ParticipantID,
		ExamID:        p.ExamID,
		UserID:        p.UserID,
		AccessCode:    p.AccessCode,
		IsUsed:        p.IsUsed,
		CreateTime:    p.CreateTime,
	}
}

func toResult(r domain.Result) Result {
	return Result{
		AttemptID:   r.AttemptID,
		ExamID:      r.ExamID,
		UserID:      r.UserID,
		Status:      r.Status,
		Score:       r.Score,
		MaxScore:    r.MaxScore,
		Percentage:  r.Percentage,
		Passed:      r.Passed,
		SubmittedAt: r.SubmittedAt,
	}
}

func toResultPtr(r *domain.Result) *Result {
	if r == nil {
		return nil
	}

	out := toResult(*r)
	return &out
}
