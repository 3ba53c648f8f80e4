package attempt_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/victornm/exam/internal/attempt"
	"github.com/victornm/exam/internal/cache"
	"github.com/victornm/exam/internal/domain"
	"github.com/victornm/exam/internal/event"
	"github.com/victornm/exam/internal/store/memory"
)

const (
	examID = "e1"
	author = "author"
	alice  = "alice"
	bob    = "bob"
)

var t0 = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recorder) handle(_ context.Context, e event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) named(name string) []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []event.Event
	for _, e := range r.events {
		if e.Name() == name {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	store  *memory.Store
	clock  *clock
	bus    *event.Bus
	events *recorder
	redis  *miniredis.Miniredis
	svc    *attempt.Service
}

// published waits for in-flight handlers and returns the recorded events with the given name.
func (f *fixture) published(name string) []event.Event {
	f.bus.Drain()
	return f.events.named(name)
}

type examOption func(e *domain.Exam)

func withRandomOrder() examOption {
	return func(e *domain.Exam) { e.RandomizeQuestions = true }
}

func withWindow(start, end time.Time) examOption {
	return func(e *domain.Exam) {
		e.Anytime = false
		e.StartAt = &start
		e.EndAt = &end
	}
}

func withoutQuestions() examOption {
	return func(e *domain.Exam) { e.QuestionIDs = nil }
}

type fixtureOption func(c *attempt.Config)

func withShuffle(fn func(n int) []int) fixtureOption {
	return func(c *attempt.Config) { c.Shuffle = fn }
}

// makeFixture seeds exam e1 by author with three questions worth 1, 2 and 1 points, a 30 minute
// limit and a 60% pass mark, and participants alice (code-alice) and bob (code-bob).
func makeFixture(t *testing.T, examOpts []examOption, opts ...fixtureOption) *fixture {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	t.Cleanup(func() { rc.Close() })
	require.NoError(t, rc.Ping(ctx).Err(), "should be able to ping redis")

	f := &fixture{
		store:  memory.New(),
		clock:  &clock{now: t0},
		bus:    event.NewBus(),
		events: &recorder{},
		redis:  rs,
	}
	t.Cleanup(f.bus.Stop)

	for _, name := range []string{
		domain.EventNameAttemptStarted,
		domain.EventNameAnswerRecorded,
		domain.EventNameAttemptFinalized,
		domain.EventNameAttemptAbandoned,
	} {
		f.bus.Subscribe(name, f.events.handle)
	}

	e := &domain.Exam{
		ExamID:          examID,
		Title:           "General knowledge",
		CreatedBy:       author,
		DurationMinutes: 30,
		Anytime:         true,
		PassPercentage:  decimal.NewFromInt(60),
		QuestionIDs:     []string{"q1", "q2", "q3"},
		CreateTime:      t0.Add(-time.Hour),
		UpdateTime:      t0.Add(-time.Hour),
	}
	for _, opt := range examOpts {
		opt(e)
	}
	require.NoError(t, f.store.CreateExam(ctx, e))

	if len(e.QuestionIDs) > 0 {
		for i, q := range []domain.Question{
			{
				QuestionID:    "q1",
				Type:          domain.QuestionTypeSingleChoice,
				Prompt:        []byte(`"Capital of France?"`),
				Options:       []string{"Paris", "London", "Berlin"},
				CorrectAnswer: []int{0},
				Points:        decimal.NewFromInt(1),
			},
			{
				QuestionID:    "q2",
				Type:          domain.QuestionTypeMultiSelect,
				Prompt:        []byte(`{"text":"Pick the primary colours","hint":"two of them"}`),
				Options:       []string{"Red", "Orange", "Blue"},
				CorrectAnswer: []int{0, 2},
				Points:        decimal.NewFromInt(2),
			},
			{
				QuestionID:    "q3",
				Type:          domain.QuestionTypeSingleChoice,
				Prompt:        []byte(`"Is the earth flat?"`),
				Options:       []string{"Yes", "No"},
				CorrectAnswer: []int{1},
				Points:        decimal.NewFromInt(1),
			},
		} {
			q.ExamID = examID
			q.Position = i
			require.NoError(t, f.store.CreateQuestion(ctx, &q))
		}
	}

	for _, u := range []string{alice, bob} {
		require.NoError(t, f.store.CreateParticipant(ctx, &domain.Participant{
			ParticipantID: "p-" + u,
			ExamID:        examID,
			UserID:        u,
			AccessCode:    "code-" + u,
			CreateTime:    t0.Add(-time.Hour),
		}))
	}

	c := attempt.Config{
		Store: f.store,
		Cache: cache.New(cache.Config{
			Redis:  rc,
			Prefix: "test",
			TTL:    time.Hour,
		}),
		EventBus: f.bus,
		Now:      f.clock.Now,
	}
	for _, opt := range opts {
		opt(&c)
	}
	f.svc = attempt.NewService(c)

	return f
}

// start starts the user's attempt and returns its id.
func (f *fixture) start(t *testing.T, user string) string {
	resp, err := f.svc.Start(context.Background(), attempt.StartRequest{AccessCode: "code-" + user, UserID: user})
	require.NoError(t, err)
	return resp.AttemptID
}

func (f *fixture) answer(t *testing.T, attemptID, user, questionID string, answer ...string) *attempt.SubmitAnswerResponse {
	resp, err := f.svc.SubmitAnswer(context.Background(), attempt.SubmitAnswerRequest{
		AttemptID:  attemptID,
		UserID:     user,
		QuestionID: questionID,
		Answer:     answer,
	})
	require.NoError(t, err)
	return resp
}

// answerAll answers q1 and q2 correctly and q3 wrongly, scoring 3 of 4.
func (f *fixture) answerAll(t *testing.T, attemptID, user string) {
	f.answer(t, attemptID, user, "q1", "0")
	f.answer(t, attemptID, user, "q2", "Red", "2")
	f.answer(t, attemptID, user, "q3", "Yes")
}
