package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type QuestionType string

const (
	QuestionTypeSingleChoice QuestionType = "single_choice"
	QuestionTypeMultiSelect  QuestionType = "multi_select"
)

// Exam is owned by its creator. Its question set is frozen while any attempt against it is live.
type Exam struct {
	ExamID             string
	Title              string
	Description        string
	CreatedBy          string
	DurationMinutes    int
	Anytime            bool
	StartAt            *time.Time
	EndAt              *time.Time
	RandomizeQuestions bool
	PassPercentage     decimal.Decimal
	QuestionIDs        []string
	Deleted            bool
	Version            int
	CreateTime         time.Time
	UpdateTime         time.Time
}

// Duration returns the time a participant has to finish an attempt.
func (e *Exam) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}

// Available reports whether an attempt may be started at t.
func (e *Exam) Available(t time.Time) bool {
	if e.Anytime {
		return true
	}
	if e.StartAt != nil && t.Before(*e.StartAt) {
		return false
	}
	if e.EndAt != nil && t.After(*e.EndAt) {
		return false
	}
	return true
}

// Question belongs to exactly one exam. CorrectAnswer holds sorted option indices and is only
// populated on authoring and grading read paths.
type Question struct {
	QuestionID    string
	ExamID        string
	Type          QuestionType
	Prompt        json.RawMessage
	Options       []string
	CorrectAnswer []int
	Points        decimal.Decimal
	Position      int
	Version       int
	CreateTime    time.Time
	UpdateTime    time.Time
}

// QuestionView is the participant-safe projection of a question.
type QuestionView struct {
	QuestionID string
	Type       QuestionType
	Prompt     json.RawMessage
	Options    []string
	Points     decimal.Decimal
	Position   int
}

type Participant struct {
	ParticipantID string
	ExamID        string
	UserID        string
	AccessCode    string
	IsUsed        bool
	CreateTime    time.Time
}

type AttemptStatus string

const (
	AttemptStatusNotStarted AttemptStatus = "not_started"
	AttemptStatusInProgress AttemptStatus = "in_progress"
	AttemptStatusSubmitted  AttemptStatus = "submitted"
	AttemptStatusAbandoned  AttemptStatus = "abandoned"
	AttemptStatusExpired    AttemptStatus = "expired"
)

// Terminal reports whether no further transition is possible.
func (s AttemptStatus) Terminal() bool {
	switch s {
	case AttemptStatusSubmitted, AttemptStatusAbandoned, AttemptStatusExpired:
		return true
	default:
		return false
	}
}

// Graded reports whether the attempt carries a score.
func (s AttemptStatus) Graded() bool {
	return s == AttemptStatusSubmitted || s == AttemptStatusExpired
}

// Answer is the raw answer input, one value for single choice and one or more for multi select.
// Each value is either a stringified option index or the literal option text.
type Answer []string

// AnswerRecord is a stored answer of a question within an attempt.
type AnswerRecord struct {
	Answer     Answer    `json:"answer"`
	AnsweredAt time.Time `json:"answered_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Grade is the graded outcome of a single question, stored with the attempt on finalization.
type Grade struct {
	QuestionID    string          `json:"question_id"`
	Position      int             `json:"position"`
	Answer        []string        `json:"answer"`
	CorrectAnswer []string        `json:"correct_answer"`
	IsCorrect     bool            `json:"is_correct"`
	Earned        decimal.Decimal `json:"earned"`
	Points        decimal.Decimal `json:"points"`
}

// Attempt is one participant's timed pass through an exam. Attempts are never deleted.
type Attempt struct {
	AttemptID            string
	ExamID               string
	ParticipantID        string
	UserID               string
	Status               AttemptStatus
	StartedAt            time.Time
	SubmittedAt          *time.Time
	AbandonedAt          *time.Time
	LastActivityAt       time.Time
	TimeRemaining        int
	CurrentQuestionIndex int
	// QuestionIDs is the frozen question set at start time, in exam position order.
	QuestionIDs []string
	// QuestionOrder is a permutation of indices into QuestionIDs.
	QuestionOrder     []int
	AnsweredQuestions []int
	Answers           map[string]AnswerRecord
	Score             decimal.Decimal
	MaxScore          decimal.Decimal
	Percentage        decimal.Decimal
	Passed            bool
	Grades            []Grade
}

// Deadline returns the instant the attempt expires.
func (a *Attempt) Deadline(duration time.Duration) time.Time {
	return a.StartedAt.Add(duration)
}

// SessionPosition returns the position of the question in session order, or -1.
func (a *Attempt) SessionPosition(questionID string) int {
	for pos, idx := range a.QuestionOrder {
		if idx >= 0 && idx < len(a.QuestionIDs) && a.QuestionIDs[idx] == questionID {
			return pos
		}
	}
	return -1
}

// QuestionAt returns the question id served at the session position.
func (a *Attempt) QuestionAt(pos int) string {
	return a.QuestionIDs[a.QuestionOrder[pos]]
}

// Result is the outcome of a graded attempt.
type Result struct {
	AttemptID   string
	ExamID      string
	UserID      string
	Status      AttemptStatus
	Score       decimal.Decimal
	MaxScore    decimal.Decimal
	Percentage  decimal.Decimal
	Passed      bool
	SubmittedAt *time.Time
}

// ResultOf projects a graded attempt.
func ResultOf(a *Attempt) Result {
	return Result{
		AttemptID:   a.AttemptID,
		ExamID:      a.ExamID,
		UserID:      a.UserID,
		Status:      a.Status,
		Score:       a.Score,
		MaxScore:    a.MaxScore,
		Percentage:  a.Percentage,
		Passed:      a.Passed,
		SubmittedAt: a.SubmittedAt,
	}
}
