package api

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/exam/internal/domain"
)

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	AttemptFinalized struct {
		Result     Result `json:"result"`
		ExamTitle  string `json:"exam_title"`
		ByDeadline bool   `json:"by_deadline"`
	}
)

// PublishAttemptFinalized notifies the participant and the exam creator that a result is available.
func (a *API) PublishAttemptFinalized(ctx context.Context, e domain.EventAttemptFinalized) error {
	data := AttemptFinalized{
		Result:     toResult(e.Result),
		ExamTitle:  e.ExamTitle,
		ByDeadline: e.ByDeadline,
	}

	users := []string{e.Result.UserID}
	if e.ExamOwner != "" && e.ExamOwner != e.Result.UserID {
		users = append(users, e.ExamOwner)
	}

	var eg errgroup.Group
	for _, user := range users {
		eg.Go(func() error {
			return a.publishNotification(ctx, user, e.Name(), data)
		})
	}

	return eg.Wait()
}

func (a *API) publishNotification(ctx context.Context, user, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, fmt.Sprintf("%s:user:%s", a.prefix, user), b).Err()
}
