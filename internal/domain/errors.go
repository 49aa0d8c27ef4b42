package domain

import "errors"

var (
	// ErrSessionNotFound is returned when a session id or join code does not resolve.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrParticipantNotFound is returned when a user tries to act before joining.
	ErrParticipantNotFound = errors.New("participant not found in session")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a question index outside the quiz.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrResponseNotFound is returned when a participant has not answered a question.
	ErrResponseNotFound = errors.New("response not found")
	// ErrInvalidState is returned when a transition is attempted from a disallowed status.
	ErrInvalidState = errors.New("invalid session state")
	// ErrEmptyQuiz is returned when starting a quiz without questions.
	ErrEmptyQuiz = errors.New("quiz has no questions")
	// ErrStaleSubmission rejects answers for a question that is not the current one.
	ErrStaleSubmission = errors.New("stale submission")
	// ErrInvalidAnswer indicates an answer whose shape does not fit the question type.
	ErrInvalidAnswer = errors.New("invalid answer")
	// ErrDuplicateJoinCode signals a join code collision with a live session.
	ErrDuplicateJoinCode = errors.New("duplicate join code")
	// ErrConflict is returned by stores when a concurrent writer won the race.
	ErrConflict = errors.New("concurrent session update")
)
