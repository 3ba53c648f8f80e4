package domain

const (
	EventNameAttemptStarted   = "attempt.started"
	EventNameAnswerRecorded   = "attempt.answered"
	EventNameAttemptFinalized = "attempt.finalized"
	EventNameAttemptAbandoned = "attempt.abandoned"
)

type EventAttemptStarted struct {
	Attempt Attempt
}

func (EventAttemptStarted) Name() string { return EventNameAttemptStarted }

type EventAnswerRecorded struct {
	AttemptID  string
	QuestionID string
	Overwrite  bool
}

func (EventAnswerRecorded) Name() string { return EventNameAnswerRecorded }

// EventAttemptFinalized is published once an attempt is graded, manually or by expiry.
type EventAttemptFinalized struct {
	Result     Result
	ExamOwner  string
	ExamTitle  string
	ByDeadline bool
}

func (EventAttemptFinalized) Name() string { return EventNameAttemptFinalized }

type EventAttemptAbandoned struct {
	Attempt Attempt
}

func (EventAttemptAbandoned) Name() string { return EventNameAttemptAbandoned }
