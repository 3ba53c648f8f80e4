// Package store defines the persistence contract shared by the storage drivers.
//
// Every repository method hangs off a Work value. Store itself is a Work bound to no transaction;
// WithTransaction hands fn a Work bound to one unit of work, and every read and write issued
// through it commits together or not at all.
package store

import (
	"context"

	"github.com/victornm/exam/internal/domain"
)

type Store interface {
	Work

	// WithTransaction runs fn in a unit of work. The transaction commits when fn returns nil and
	// rolls back otherwise.
	WithTransaction(ctx context.Context, fn func(w Work) error) error

	Close()
}

type Work interface {
	ExamRepository
	QuestionRepository
	ParticipantRepository
	AttemptRepository
}

type ExamRepository interface {
	CreateExam(ctx context.Context, e *domain.Exam) error
	// GetExam returns NotFound for unknown and soft-deleted exams. QuestionIDs is filled in
	// position order.
	GetExam(ctx context.Context, examID string) (*domain.Exam, error)
	// LockExam is GetExam holding a row lock until the unit of work ends.
	LockExam(ctx context.Context, examID string) (*domain.Exam, error)
	// UpdateExam writes the mutable fields when the stored version matches expected, and sets
	// e.Version to the stored version.
	UpdateExam(ctx context.Context, e *domain.Exam, expected *int) error
	// TouchExam bumps the exam version after a structural change of its question set.
	TouchExam(ctx context.Context, examID string) error
	DeleteExam(ctx context.Context, examID string, expected *int) error
}

type QuestionRepository interface {
	CreateQuestion(ctx context.Context, q *domain.Question) error
	// GetQuestion returns the question with its correct answer, for authoring.
	GetQuestion(ctx context.Context, questionID string) (*domain.Question, error)
	// ListQuestions returns the exam's questions with correct answers in position order.
	ListQuestions(ctx context.Context, examID string) ([]domain.Question, error)
	// ParticipantQuestions returns the questions in ids order without correct answers. Unknown ids
	// are skipped.
	ParticipantQuestions(ctx context.Context, ids []string) ([]domain.Question, error)
	// GradingQuestions returns the questions in ids order with correct answers. Unknown ids are
	// skipped.
	GradingQuestions(ctx context.Context, ids []string) ([]domain.Question, error)
	UpdateQuestion(ctx context.Context, q *domain.Question, expected *int) error
	DeleteQuestion(ctx context.Context, questionID string) error
	// SetQuestionPositions assigns position i to ids[i].
	SetQuestionPositions(ctx context.Context, examID string, ids []string) error
	NextQuestionPosition(ctx context.Context, examID string) (int, error)
}

type ParticipantRepository interface {
	// CreateParticipant fails with AlreadyExists for a duplicate (exam, user) or access code.
	CreateParticipant(ctx context.Context, p *domain.Participant) error
	GetParticipant(ctx context.Context, participantID string) (*domain.Participant, error)
	FindParticipantByAccessCode(ctx context.Context, code string) (*domain.Participant, error)
	ListParticipants(ctx context.Context, examID string) ([]domain.Participant, error)
	// MarkParticipantUsed flips isUsed, failing with AlreadyExists when it is already set.
	MarkParticipantUsed(ctx context.Context, participantID string) error
	DeleteParticipant(ctx context.Context, participantID string) error
}

type AttemptRepository interface {
	// CreateAttempt fails with AlreadyExists when the (exam, user) pair already has an attempt.
	CreateAttempt(ctx context.Context, a *domain.Attempt) error
	GetAttempt(ctx context.Context, attemptID string) (*domain.Attempt, error)
	// LockAttempt is GetAttempt holding a row lock until the unit of work ends.
	LockAttempt(ctx context.Context, attemptID string) (*domain.Attempt, error)
	FindAttempt(ctx context.Context, examID, userID string) (*domain.Attempt, error)
	ListUserAttempts(ctx context.Context, userID string) ([]domain.Attempt, error)
	// UpdateAttempt writes the mutable fields of an attempt that is still in progress, failing
	// with Aborted when it is not.
	UpdateAttempt(ctx context.Context, a *domain.Attempt) error
	CountAttempts(ctx context.Context, examID string, statuses ...domain.AttemptStatus) (int, error)
}
