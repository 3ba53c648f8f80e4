package exam

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/victornm/exam/internal/errors"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var ves validator.ValidationErrors
	if !stderrors.As(err, &ves) {
		return errors.New(errors.CodeInvalidArgument, errors.WithCause(err))
	}

	msgs := make([]string, 0, len(ves))
	fields := make(map[string]any, len(ves))
	for _, fe := range ves {
		msg := describe(fe)
		msgs = append(msgs, msg)
		fields[snake(fe.Field())] = msg
	}

	return errors.New(errors.CodeInvalidArgument,
		errors.WithMessagef("%s", strings.Join(msgs, "; ")),
		errors.WithDetails(map[string]any{"fields": fields}),
	)
}

func describe(fe validator.FieldError) string {
	field := snake(fe.Field())

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must not be empty", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid (%s)", field, fe.Tag())
	}
}

// snake turns a Go field name into the snake_case name used on the wire.
func snake(s string) string {
	var (
		b     strings.Builder
		lower bool
	)
	for _, r := range s {
		upper := r >= 'A' && r <= 'Z'
		if upper {
			if lower {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		lower = !upper
		b.WriteRune(r)
	}

	return b.String()
}
