package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// UnmarshalJSON accepts a string, a number, or an array of strings and numbers.
func (a *Answer) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*a = nil
		return nil
	}

	if b[0] != '[' {
		v, err := answerValue(b)
		if err != nil {
			return err
		}
		*a = Answer{v}
		return nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("answer: %w", err)
	}

	out := make(Answer, 0, len(raw))
	for _, r := range raw {
		v, err := answerValue(r)
		if err != nil {
			return err
		}
		out = append(out, v)
	}
	*a = out
	return nil
}

func answerValue(b []byte) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return "", fmt.Errorf("answer: %w", err)
	}

	switch t := v.(type) {
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	default:
		return "", fmt.Errorf("answer: unsupported value %s", b)
	}
}

// Empty reports whether the answer carries no non-blank value.
func (a Answer) Empty() bool {
	for _, v := range a {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
