// Package guard holds the two safety mechanisms shared by the authoring and attempt paths:
// optimistic version checks on exams and questions, and the active-attempt lock that blocks
// structural exam edits while attempts against the exam are live.
package guard

import (
	"context"
	"fmt"

	"github.com/victornm/exam/internal/domain"
	"github.com/victornm/exam/internal/errors"
)

// LiveStatuses are the attempt statuses that hold the active-attempt lock.
var LiveStatuses = []domain.AttemptStatus{
	domain.AttemptStatusInProgress,
	domain.AttemptStatusSubmitted,
}

// AttemptCounter counts attempts of an exam in any of the given statuses.
type AttemptCounter interface {
	CountAttempts(ctx context.Context, examID string, statuses ...domain.AttemptStatus) (int, error)
}

// Lock is the active-attempt lock.
type Lock struct{}

func NewLock() *Lock {
	return &Lock{}
}

// EnsureNoActiveAttempts fails with InvalidArgument when any attempt of the exam is live. Callers
// run it inside the same unit of work as the mutation, after locking the exam row.
func (*Lock) EnsureNoActiveAttempts(ctx context.Context, c AttemptCounter, examID string) error {
	n, err := c.CountAttempts(ctx, examID, LiveStatuses...)
	if err != nil {
		return fmt.Errorf("count active attempts: exam=%s: %w", examID, err)
	}

	if n > 0 {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("exam has active attempts: exam=%s", examID),
			errors.WithDetails(map[string]any{"active_attempts": n}),
		)
	}

	return nil
}
