package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"live-quiz-service/internal/domain"
)

type Code string

const (
	CodeInvalidArgument Code = "invalid_argument"
	CodeNotFound        Code = "not_found"
	CodeInvalidState    Code = "invalid_state"
	CodeEmptyQuiz       Code = "empty_quiz"
	CodeStaleSubmission Code = "stale_submission"
	CodeInternal        Code = "internal"
)

var code2http = map[Code]int{
	CodeInvalidArgument: http.StatusBadRequest,
	CodeNotFound:        http.StatusNotFound,
	CodeInvalidState:    http.StatusConflict,
	CodeEmptyQuiz:       http.StatusUnprocessableEntity,
	CodeStaleSubmission: http.StatusConflict,
	CodeInternal:        http.StatusInternalServerError,
}

// sentinel2code classifies domain errors that reach a boundary unwrapped.
var sentinel2code = []struct {
	err  error
	code Code
}{
	{domain.ErrSessionNotFound, CodeNotFound},
	{domain.ErrQuizNotFound, CodeNotFound},
	{domain.ErrParticipantNotFound, CodeNotFound},
	{domain.ErrQuestionNotFound, CodeNotFound},
	{domain.ErrResponseNotFound, CodeNotFound},
	{domain.ErrInvalidState, CodeInvalidState},
	{domain.ErrEmptyQuiz, CodeEmptyQuiz},
	{domain.ErrStaleSubmission, CodeStaleSubmission},
	{domain.ErrInvalidAnswer, CodeInvalidArgument},
	{domain.ErrInvalidQuiz, CodeInvalidArgument},
}

type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	err     error
}

func New(code Code, opts ...Option) *Error {
	e := &Error{
		Code:    code,
		Message: string(code),
	}

	for _, opt := range opts {
		opt.apply(e)
	}

	return e
}

func (e *Error) Error() string {
	s := fmt.Sprintf("code: %s, message: %s", e.Code, e.Message)
	if e.err != nil {
		s += fmt.Sprintf(", err: %s", e.err)
	}

	return s
}

func (e *Error) Unwrap() error {
	return e.err
}

func (e *Error) HTTPStatusCode() int {
	if c, ok := code2http[e.Code]; ok {
		return c
	}

	return http.StatusInternalServerError
}

// Convert returns err as a coded error. Domain sentinels are classified, anything else is
// internal.
func Convert(err error) *Error {
	var e *Error
	if stderrors.As(err, &e) {
		return e
	}

	for _, s := range sentinel2code {
		if stderrors.Is(err, s.err) {
			return New(s.code, WithCause(err), WithMessagef("%s", s.err.Error()))
		}
	}

	return Internal(err)
}

func Internal(err error) *Error {
	return New(CodeInternal, WithCause(err))
}

type Option interface {
	apply(*Error)
}

type optionFunc func(*Error)

func (f optionFunc) apply(e *Error) {
	f(e)
}

func WithCause(err error) Option {
	return optionFunc(func(e *Error) {
		e.err = err
	})
}

func WithMessagef(format string, args ...any) Option {
	return optionFunc(func(e *Error) {
		e.Message = fmt.Sprintf(format, args...)
	})
}
