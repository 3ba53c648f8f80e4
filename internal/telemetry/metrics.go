package telemetry

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/victornm/exam/internal/domain"
	"github.com/victornm/exam/internal/event"
)

// Metrics are the service counters. Use NewMetrics with prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
type Metrics struct {
	attemptsStarted   prometheus.Counter
	answersRecorded   *prometheus.CounterVec
	attemptsFinalized *prometheus.CounterVec
	attemptsAbandoned prometheus.Counter
	httpDuration      *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		attemptsStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: "exam",
			Name:      "attempts_started_total",
			Help:      "Attempts started.",
		}),
		answersRecorded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exam",
			Name:      "answers_recorded_total",
			Help:      "Answers recorded, by whether a previous answer was replaced.",
		}, []string{"overwrite"}),
		attemptsFinalized: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exam",
			Name:      "attempts_finalized_total",
			Help:      "Attempts graded, by final status and outcome.",
		}, []string{"status", "passed"}),
		attemptsAbandoned: f.NewCounter(prometheus.CounterOpts{
			Namespace: "exam",
			Name:      "attempts_abandoned_total",
			Help:      "Attempts abandoned by the exam creator.",
		}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "exam",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "code"}),
	}
}

// Observe counts attempt lifecycle events published on the bus.
func (m *Metrics) Observe(bus *event.Bus) {
	bus.Subscribe(domain.EventNameAttemptStarted, func(context.Context, event.Event) error {
		m.attemptsStarted.Inc()
		return nil
	})

	bus.Subscribe(domain.EventNameAnswerRecorded, func(_ context.Context, e event.Event) error {
		m.answersRecorded.WithLabelValues(strconv.FormatBool(e.(domain.EventAnswerRecorded).Overwrite)).Inc()
		return nil
	})

	bus.Subscribe(domain.EventNameAttemptFinalized, func(_ context.Context, e event.Event) error {
		r := e.(domain.EventAttemptFinalized).Result
		m.attemptsFinalized.WithLabelValues(string(r.Status), strconv.FormatBool(r.Passed)).Inc()
		return nil
	})

	bus.Subscribe(domain.EventNameAttemptAbandoned, func(context.Context, event.Event) error {
		m.attemptsAbandoned.Inc()
		return nil
	})
}

// HTTP records request latency by route template.
func (m *Metrics) HTTP() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		m.httpDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
