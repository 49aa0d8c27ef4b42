package app

import (
	"context"
	"log/slog"
	"time"

	"live-quiz-service/internal/domain"
	apperrors "live-quiz-service/internal/errors"
	"live-quiz-service/internal/telemetry"
)

// Start moves a waiting session onto its first question.
func (e *Engine) Start(ctx context.Context, id string) (*domain.Session, error) {
	lock := e.locks.get(id)
	lock.Lock()
	defer lock.Unlock()

	current, err := e.sessions.Get(ctx, id)
	if err != nil {
		return nil, apperrors.Convert(err)
	}
	if current.Status != domain.StatusWaiting {
		return nil, e.reject("start", current.Status)
	}
	quiz, err := e.quizzes.GetQuiz(ctx, current.QuizID)
	if err != nil {
		return nil, apperrors.Convert(err)
	}

	now := e.clock.Now()
	s, err := e.transition(ctx, "start", id, func(s *domain.Session) error {
		if s.Status != domain.StatusWaiting {
			return invalidState("start", s.Status)
		}
		if len(quiz.Questions) == 0 {
			return apperrors.New(apperrors.CodeEmptyQuiz, apperrors.WithCause(domain.ErrEmptyQuiz),
				apperrors.WithMessagef("quiz %s has no questions", quiz.ID))
		}
		s.Status = domain.StatusActive
		s.QuestionCount = len(quiz.Questions)
		s.StartedAt = &now
		e.enterQuestion(s, quiz.Questions[0], 0, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.rearm(s)
	e.publish(domain.StartedEvent{SessionID: s.ID, StartedAt: now, QuestionCount: s.QuestionCount})
	e.publish(questionChanged(s, now))
	return s, nil
}

// Pause freezes the current question's countdown.
func (e *Engine) Pause(ctx context.Context, id string) (*domain.Session, error) {
	lock := e.locks.get(id)
	lock.Lock()
	defer lock.Unlock()

	now := e.clock.Now()
	s, err := e.transition(ctx, "pause", id, func(s *domain.Session) error {
		if s.Status != domain.StatusActive {
			return invalidState("pause", s.Status)
		}
		var spent time.Duration
		if s.QuestionStartedAt != nil {
			spent = now.Sub(*s.QuestionStartedAt)
		}
		s.PausedRemaining = max(s.QuestionTimeLimit-spent, 0)
		s.QuestionElapsed += spent
		s.Status = domain.StatusPaused
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.alarms.clear(s.ID)
	e.publish(domain.PausedEvent{SessionID: s.ID, QuestionIndex: s.CurrentQuestionIndex, Remaining: s.PausedRemaining})
	return s, nil
}

// Resume restarts the countdown with the remaining time captured by Pause.
func (e *Engine) Resume(ctx context.Context, id string) (*domain.Session, error) {
	lock := e.locks.get(id)
	lock.Lock()
	defer lock.Unlock()

	now := e.clock.Now()
	s, err := e.transition(ctx, "resume", id, func(s *domain.Session) error {
		if s.Status != domain.StatusPaused {
			return invalidState("resume", s.Status)
		}
		s.Status = domain.StatusActive
		s.QuestionStartedAt = &now
		s.QuestionTimeLimit = s.PausedRemaining
		s.PausedRemaining = 0
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.rearm(s)
	e.publish(domain.ResumedEvent{
		SessionID:         s.ID,
		QuestionIndex:     s.CurrentQuestionIndex,
		QuestionStartedAt: now,
		TimeLimit:         s.QuestionTimeLimit,
		ServerTime:        now,
	})
	return s, nil
}

// Advance moves to the next question, or finishes the session after the last one.
func (e *Engine) Advance(ctx context.Context, id string) (*domain.Session, error) {
	lock := e.locks.get(id)
	lock.Lock()
	defer lock.Unlock()

	current, err := e.sessions.Get(ctx, id)
	if err != nil {
		return nil, apperrors.Convert(err)
	}
	if current.Status != domain.StatusActive && current.Status != domain.StatusPaused {
		return nil, e.reject("advance", current.Status)
	}
	quiz, err := e.quizzes.GetQuiz(ctx, current.QuizID)
	if err != nil {
		return nil, apperrors.Convert(err)
	}

	now := e.clock.Now()
	s, err := e.transition(ctx, "advance", id, func(s *domain.Session) error {
		if s.Status != domain.StatusActive && s.Status != domain.StatusPaused {
			return invalidState("advance", s.Status)
		}
		e.advance(s, quiz, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.afterAdvance(s)
	return s, nil
}

// Stop ends a session from any non-finished status.
func (e *Engine) Stop(ctx context.Context, id string) (*domain.Session, error) {
	lock := e.locks.get(id)
	lock.Lock()
	defer lock.Unlock()

	now := e.clock.Now()
	s, err := e.transition(ctx, "stop", id, func(s *domain.Session) error {
		if s.Status == domain.StatusFinished {
			return invalidState("stop", s.Status)
		}
		finish(s, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.afterAdvance(s)
	return s, nil
}

// transition commits mutate through the store and records the outcome.
func (e *Engine) transition(ctx context.Context, op, id string, mutate func(*domain.Session) error) (*domain.Session, error) {
	s, err := e.sessions.ApplyTransition(ctx, id, mutate)
	if err != nil {
		coded := apperrors.Convert(err)
		telemetry.Transitions.WithLabelValues(op, string(coded.Code)).Inc()
		if coded.Code == apperrors.CodeInternal {
			slog.ErrorContext(ctx, "engine: transition failed", "op", op, "session_id", id, "error", err)
		}
		return nil, coded
	}
	telemetry.Transitions.WithLabelValues(op, "ok").Inc()
	slog.InfoContext(ctx, "engine: transition", "op", op, "session_id", id,
		"status", s.Status, "question_index", s.CurrentQuestionIndex)
	return s, nil
}

// reject records a transition refused before reaching the store.
func (e *Engine) reject(op string, status domain.Status) error {
	err := invalidState(op, status)
	telemetry.Transitions.WithLabelValues(op, string(err.Code)).Inc()
	return err
}

func invalidState(op string, status domain.Status) *apperrors.Error {
	return apperrors.New(apperrors.CodeInvalidState, apperrors.WithCause(domain.ErrInvalidState),
		apperrors.WithMessagef("cannot %s a %s session", op, status))
}

// advance moves s to the next question or finishes it. Callers hold the session write lock.
func (e *Engine) advance(s *domain.Session, quiz domain.Quiz, now time.Time) {
	next := s.CurrentQuestionIndex + 1
	q, ok := quiz.Question(next)
	if next >= s.QuestionCount || !ok {
		finish(s, now)
		return
	}
	s.Status = domain.StatusActive
	e.enterQuestion(s, q, next, now)
}

func (e *Engine) enterQuestion(s *domain.Session, q domain.Question, index int, now time.Time) {
	s.CurrentQuestionIndex = index
	s.QuestionStartedAt = &now
	s.QuestionTimeLimit = q.TimeLimit(e.defaultTimeLimit)
	s.QuestionElapsed = 0
	s.PausedRemaining = 0
}

func finish(s *domain.Session, now time.Time) {
	s.Status = domain.StatusFinished
	s.EndedAt = &now
	s.QuestionStartedAt = nil
	s.QuestionTimeLimit = 0
	s.QuestionElapsed = 0
	s.PausedRemaining = 0
}

// afterAdvance re-arms the timer and announces the new question or the end of the session.
func (e *Engine) afterAdvance(s *domain.Session) {
	e.rearm(s)
	if s.Status == domain.StatusFinished {
		e.publish(domain.FinishedEvent{SessionID: s.ID, QuestionIndex: s.CurrentQuestionIndex, EndedAt: *s.EndedAt})
		e.locks.forget(s.ID)
		return
	}
	e.publish(questionChanged(s, *s.QuestionStartedAt))
}

func questionChanged(s *domain.Session, now time.Time) domain.QuestionChangedEvent {
	return domain.QuestionChangedEvent{
		SessionID:         s.ID,
		QuestionIndex:     s.CurrentQuestionIndex,
		QuestionStartedAt: *s.QuestionStartedAt,
		TimeLimit:         s.QuestionTimeLimit,
		ServerTime:        now,
	}
}
