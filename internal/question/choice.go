package question

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/victornm/exam/internal/domain"
	"github.com/victornm/exam/internal/errors"
)

var (
	validate = validator.New()
	indexRe  = regexp.MustCompile(`^\d+$`)
)

type singleChoice struct{}

func (singleChoice) Build(in Input) (domain.Question, error) {
	q, err := buildChoice(in)
	if err != nil {
		return q, err
	}

	if len(q.CorrectAnswer) != 1 {
		return q, errors.InvalidArgument("single choice question requires exactly one correct answer, got %d", len(q.CorrectAnswer))
	}

	return q, nil
}

func (singleChoice) Render(q domain.Question) domain.QuestionView {
	return render(q)
}

// Mark awards full points when exactly one value is given and it matches the correct option.
func (singleChoice) Mark(answer domain.Answer, correct []int, points decimal.Decimal, options []string) Mark {
	m := Mark{
		Answer:  Canonical(answer, options),
		Correct: optionTexts(correct, options),
		Earned:  decimal.Zero,
	}

	if len(m.Answer) == 1 && len(m.Correct) == 1 && m.Answer[0] == m.Correct[0] {
		m.IsCorrect = true
		m.Earned = points
	}

	return m
}

type multiSelect struct{}

func (multiSelect) Build(in Input) (domain.Question, error) {
	return buildChoice(in)
}

func (multiSelect) Render(q domain.Question) domain.QuestionView {
	return render(q)
}

// Mark is all-or-nothing: full points only when the selected set equals the correct set.
func (multiSelect) Mark(answer domain.Answer, correct []int, points decimal.Decimal, options []string) Mark {
	m := Mark{
		Answer:  Canonical(answer, options),
		Correct: optionTexts(correct, options),
		Earned:  decimal.Zero,
	}

	if len(m.Correct) > 0 && setEqual(m.Answer, m.Correct) {
		m.IsCorrect = true
		m.Earned = points
	}

	return m
}

func buildChoice(in Input) (domain.Question, error) {
	in.Options = trimAll(in.Options)

	if err := validate.Struct(in); err != nil {
		return domain.Question{}, validationError(err)
	}

	if err := checkPrompt(in.Prompt); err != nil {
		return domain.Question{}, err
	}

	if in.Points.IsNegative() {
		return domain.Question{}, errors.InvalidArgument("points must not be negative, got %s", in.Points)
	}

	correct, err := normalizeCorrect(in.CorrectAnswer, in.Options)
	if err != nil {
		return domain.Question{}, err
	}

	return domain.Question{
		Type:          in.Type,
		Prompt:        in.Prompt,
		Options:       in.Options,
		CorrectAnswer: correct,
		Points:        in.Points,
		Position:      in.Position,
	}, nil
}

func render(q domain.Question) domain.QuestionView {
	return domain.QuestionView{
		QuestionID: q.QuestionID,
		Type:       q.Type,
		Prompt:     q.Prompt,
		Options:    slices.Clone(q.Options),
		Points:     q.Points,
		Position:   q.Position,
	}
}

// checkPrompt accepts a non-blank JSON string or a non-empty JSON object.
func checkPrompt(p json.RawMessage) error {
	p = bytes.TrimSpace(p)
	if len(p) == 0 {
		return errors.InvalidArgument("prompt is required")
	}

	switch p[0] {
	case '"':
		var s string
		if err := json.Unmarshal(p, &s); err != nil || strings.TrimSpace(s) == "" {
			return errors.InvalidArgument("prompt is required")
		}
	case '{':
		var m map[string]any
		if err := json.Unmarshal(p, &m); err != nil {
			return errors.InvalidArgument("prompt is malformed: %v", err)
		}
		if len(m) == 0 {
			return errors.InvalidArgument("prompt is required")
		}
	default:
		return errors.InvalidArgument("prompt must be a text or an object")
	}

	return nil
}

// normalizeCorrect maps each value, given as an option index or the option text, to its index.
func normalizeCorrect(answer domain.Answer, options []string) ([]int, error) {
	seen := make(map[int]struct{}, len(answer))
	out := make([]int, 0, len(answer))

	for _, v := range answer {
		idx, ok := optionIndex(v, options)
		if !ok {
			return nil, errors.InvalidArgument("correct answer %q does not match any option", v)
		}

		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		out = append(out, idx)
	}

	slices.Sort(out)
	return out, nil
}

func optionIndex(v string, options []string) (int, bool) {
	v = strings.TrimSpace(v)
	if indexRe.MatchString(v) {
		if i, err := strconv.Atoi(v); err == nil && i < len(options) {
			return i, true
		}
	}

	i := slices.Index(options, v)
	return i, i >= 0
}

// Canonical maps every answer value to option text: a stringified index within range becomes the
// text of that option, anything else is taken as literal text.
func Canonical(answer domain.Answer, options []string) []string {
	out := make([]string, 0, len(answer))
	for _, v := range answer {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}

		if indexRe.MatchString(v) {
			if i, err := strconv.Atoi(v); err == nil && i < len(options) {
				v = options[i]
			}
		}

		out = append(out, v)
	}

	return out
}

func optionTexts(indices []int, options []string) []string {
	out := make([]string, 0, len(indices))
	for _, i := range indices {
		if i >= 0 && i < len(options) {
			out = append(out, options[i])
		}
	}

	return out
}

func setEqual(a, b []string) bool {
	as, bs := toSet(a), toSet(b)
	if len(as) != len(bs) {
		return false
	}

	for k := range as {
		if _, ok := bs[k]; !ok {
			return false
		}
	}

	return true
}

func toSet(arr []string) map[string]struct{} {
	m := make(map[string]struct{}, len(arr))
	for _, s := range arr {
		m[s] = struct{}{}
	}
	return m
}

func trimAll(ss []string) []string {
	if ss == nil {
		return nil
	}

	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strings.TrimSpace(s)
	}
	return out
}

func validationError(err error) error {
	var ves validator.ValidationErrors
	if !stderrors.As(err, &ves) {
		return errors.New(errors.CodeInvalidArgument, errors.WithCause(err))
	}

	msgs := make([]string, 0, len(ves))
	for _, fe := range ves {
		msgs = append(msgs, describe(fe))
	}

	return errors.InvalidArgument("%s", strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	if field == "correctanswer" {
		field = "correct answer"
	}

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must have at least %s items", field, fe.Param())
	case "unique":
		return fmt.Sprintf("%s must be unique", field)
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid (%s)", field, fe.Tag())
	}
}
