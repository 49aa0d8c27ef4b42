package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"live-quiz-service/internal/domain"
)

func TestConvert(t *testing.T) {
	tests := map[string]struct {
		err    error
		code   Code
		status int
	}{
		"wrapped not found": {
			err:    fmt.Errorf("quiz q1: %w", domain.ErrQuizNotFound),
			code:   CodeNotFound,
			status: http.StatusNotFound,
		},
		"invalid state": {
			err:    domain.ErrInvalidState,
			code:   CodeInvalidState,
			status: http.StatusConflict,
		},
		"stale submission": {
			err:    domain.ErrStaleSubmission,
			code:   CodeStaleSubmission,
			status: http.StatusConflict,
		},
		"invalid quiz": {
			err:    fmt.Errorf("%w: missing id", domain.ErrInvalidQuiz),
			code:   CodeInvalidArgument,
			status: http.StatusBadRequest,
		},
		"already coded": {
			err:    New(CodeEmptyQuiz),
			code:   CodeEmptyQuiz,
			status: http.StatusUnprocessableEntity,
		},
		"unknown": {
			err:    stderrors.New("boom"),
			code:   CodeInternal,
			status: http.StatusInternalServerError,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			e := Convert(tc.err)
			assert.Equal(t, tc.code, e.Code)
			assert.Equal(t, tc.status, e.HTTPStatusCode())
			assert.ErrorIs(t, e, tc.err)
		})
	}
}

func TestErrorMessage(t *testing.T) {
	e := New(CodeInvalidState, WithMessagef("cannot %s a %s session", "pause", "waiting"), WithCause(domain.ErrInvalidState))

	assert.Equal(t, "cannot pause a waiting session", e.Message)
	assert.Contains(t, e.Error(), "code: invalid_state")
	assert.True(t, stderrors.Is(e, domain.ErrInvalidState))
	assert.Equal(t, http.StatusInternalServerError, (&Error{Code: "weird"}).HTTPStatusCode())
}
