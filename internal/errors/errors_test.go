package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/victornm/exam/internal/errors"
)

func TestError_HTTPStatusCode(t *testing.T) {
	tests := map[string]struct {
		code errors.Code
		want int
	}{
		"invalid argument is bad request": {code: errors.CodeInvalidArgument, want: http.StatusBadRequest},
		"not found":                       {code: errors.CodeNotFound, want: http.StatusNotFound},
		"already exists is conflict":      {code: errors.CodeAlreadyExists, want: http.StatusConflict},
		"aborted is conflict":             {code: errors.CodeAborted, want: http.StatusConflict},
		"permission denied is forbidden":  {code: errors.CodePermissionDenied, want: http.StatusForbidden},
		"unauthenticated":                 {code: errors.CodeUnauthenticated, want: http.StatusUnauthorized},
		"internal":                        {code: errors.CodeInternal, want: http.StatusInternalServerError},
		"unmapped code falls back to 500": {code: errors.Code(codes.DataLoss), want: http.StatusInternalServerError},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.New(tt.code).HTTPStatusCode())
		})
	}
}

func TestConvert(t *testing.T) {
	cause := stderrors.New("boom")

	e := errors.Convert(fmt.Errorf("wrapped: %w", errors.NotFound("exam %s", "e1")))
	require.Equal(t, errors.CodeNotFound, e.Code)
	require.Equal(t, "exam e1", e.Message)

	e = errors.Convert(cause)
	require.Equal(t, errors.CodeInternal, e.Code)
	require.ErrorIs(t, e, cause)
}

func TestIs(t *testing.T) {
	err := fmt.Errorf("ctx: %w", errors.New(errors.CodeAborted))

	assert.True(t, errors.Is(err, errors.CodeAborted))
	assert.False(t, errors.Is(err, errors.CodeNotFound))
	assert.False(t, errors.Is(nil, errors.CodeAborted))
}

func TestWithDetails(t *testing.T) {
	e := errors.New(errors.CodeAborted,
		errors.WithDetails(map[string]any{"a": 1}),
		errors.WithDetails(map[string]any{"b": 2}),
	)

	assert.Equal(t, map[string]any{"a": 1, "b": 2}, e.Details)
	assert.Equal(t, codes.Aborted, status.Code(e))
}
