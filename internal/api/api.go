package api

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/victornm/exam/internal/attempt"
	"github.com/victornm/exam/internal/domain"
	"github.com/victornm/exam/internal/errors"
	"github.com/victornm/exam/internal/event"
	"github.com/victornm/exam/internal/exam"
)

type Config struct {
	Router   gin.IRouter
	EventBus *event.Bus
	Exam     *exam.Service
	Attempt  *attempt.Service
	Verifier *Verifier

	// Redis receives user notifications. Notifications are disabled when nil.
	Redis        Redis
	PubsubPrefix string
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	exams    *exam.Service
	attempts *attempt.Service
	verifier *Verifier

	redis  Redis
	prefix string
}

func New(c Config) *API {
	a := &API{
		exams:    c.Exam,
		attempts: c.Attempt,
		verifier: c.Verifier,
		redis:    c.Redis,
		prefix:   c.PubsubPrefix,
	}

	v1 := c.Router.Group("/api/v1", a.authenticate)

	exams := v1.Group("/exams")
	exams.POST("", a.createExam)
	exams.GET("/:examID", a.getExam)
	exams.PATCH("/:examID", a.updateExam)
	exams.DELETE("/:examID", a.deleteExam)
	exams.POST("/:examID/questions", a.addQuestion)
	exams.PUT("/:examID/questions/:questionID", a.updateQuestion)
	exams.DELETE("/:examID/questions/:questionID", a.deleteQuestion)
	exams.PUT("/:examID/question-order", a.reorderQuestions)
	exams.POST("/:examID/participants", a.addParticipant)
	exams.GET("/:examID/participants", a.listParticipants)
	exams.DELETE("/:examID/participants/:participantID", a.removeParticipant)

	attempts := v1.Group("/attempts")
	attempts.POST("", a.startAttempt)
	attempts.GET("/:attemptID/next", a.nextQuestion)
	attempts.PUT("/:attemptID/answers/:questionID", a.submitAnswer)
	attempts.POST("/:attemptID/submit", a.submitExam)
	attempts.GET("/:attemptID/results", a.results)
	attempts.POST("/:attemptID/abandon", a.abandon)

	v1.GET("/me/results", a.listResults)

	// Register event handlers
	if a.redis != nil && c.EventBus != nil {
		c.EventBus.Subscribe(domain.EventNameAttemptFinalized, func(ctx context.Context, e event.Event) error {
			return a.PublishAttemptFinalized(ctx, e.(domain.EventAttemptFinalized))
		})
	}

	return a
}

// fail renders err as the JSON error body and stops the handler chain.
func (a *API) fail(c *gin.Context, err error) {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal {
		slog.ErrorContext(c.Request.Context(), "api: request failed",
			"method", c.Request.Method,
			"route", c.FullPath(),
			"error", err,
		)
	}

	c.AbortWithStatusJSON(e.HTTPStatusCode(), gin.H{"error": e})
}

func badBody(err error) error {
	return errors.New(errors.CodeInvalidArgument,
		errors.WithMessagef("invalid request body: %v", err),
		errors.WithCause(err),
	)
}
