// Package question implements per-type question behavior: building the stored representation,
// rendering the participant view and marking submitted answers.
package question

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/victornm/exam/internal/domain"
	"github.com/victornm/exam/internal/errors"
)

// Input is the raw authoring input of a question.
type Input struct {
	Type          domain.QuestionType
	Prompt        json.RawMessage
	Options       []string      `validate:"min=2,unique,dive,required"`
	CorrectAnswer domain.Answer `validate:"required,min=1"`
	Points        decimal.Decimal
	Position      int `validate:"gte=0"`
}

// Mark is the outcome of marking one answer. Answer and Correct hold option texts.
type Mark struct {
	Answer    []string
	Correct   []string
	IsCorrect bool
	Earned    decimal.Decimal
}

// Strategy is the behavior of one question type. Adding a question type means registering one
// more Strategy; nothing else branches on the type.
type Strategy interface {
	// Build validates the input and normalizes the correct answer for storage.
	Build(in Input) (domain.Question, error)

	// Render projects the question for participants, without the correct answer.
	Render(q domain.Question) domain.QuestionView

	// Mark grades a submitted answer against the correct option indices.
	Mark(answer domain.Answer, correct []int, points decimal.Decimal, options []string) Mark
}

// Registry routes by question type to the registered Strategy.
type Registry struct {
	mu         sync.RWMutex
	strategies map[domain.QuestionType]Strategy
}

// NewRegistry returns a registry with the built-in question types installed.
func NewRegistry() *Registry {
	r := &Registry{strategies: make(map[domain.QuestionType]Strategy)}
	r.Register(domain.QuestionTypeSingleChoice, singleChoice{})
	r.Register(domain.QuestionTypeMultiSelect, multiSelect{})
	return r
}

func (r *Registry) Register(t domain.QuestionType, s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.strategies[t] = s
}

func (r *Registry) Lookup(t domain.QuestionType) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.strategies[t]
	if !ok {
		return nil, errors.InvalidArgument("unsupported question type %q", t)
	}

	return s, nil
}

func (r *Registry) Build(in Input) (domain.Question, error) {
	s, err := r.Lookup(in.Type)
	if err != nil {
		return domain.Question{}, err
	}

	return s.Build(in)
}

func (r *Registry) Render(q domain.Question) (domain.QuestionView, error) {
	s, err := r.Lookup(q.Type)
	if err != nil {
		return domain.QuestionView{}, err
	}

	return s.Render(q), nil
}

func (r *Registry) Mark(q domain.Question, answer domain.Answer) (Mark, error) {
	s, err := r.Lookup(q.Type)
	if err != nil {
		return Mark{}, fmt.Errorf("mark question %s: %w", q.QuestionID, err)
	}

	return s.Mark(answer, q.CorrectAnswer, q.Points, q.Options), nil
}
