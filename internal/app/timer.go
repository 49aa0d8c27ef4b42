package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/telemetry"
)

// Clock is the engine's source of time. Tests swap in a fake to drive alarms.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending alarm.
type Timer interface {
	Stop() bool
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// errStaleAlarm marks an alarm whose question was already left by a manual transition.
var errStaleAlarm = errors.New("stale alarm")

type alarm struct {
	timer  Timer
	index  int
	anchor time.Time
}

// alarms holds at most one pending timer per session.
type alarms struct {
	mu sync.Mutex
	m  map[string]alarm
}

func newAlarms() *alarms {
	return &alarms{m: make(map[string]alarm)}
}

func (a *alarms) set(id string, al alarm) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if prev, ok := a.m[id]; ok {
		prev.timer.Stop()
	}
	a.m[id] = al
}

func (a *alarms) clear(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if prev, ok := a.m[id]; ok {
		prev.timer.Stop()
		delete(a.m, id)
	}
}

// pending reports the armed alarm of a session, if any.
func (a *alarms) pending(id string) (index int, anchor time.Time, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	al, ok := a.m[id]
	return al.index, al.anchor, ok
}

func (a *alarms) stopAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, al := range a.m {
		al.timer.Stop()
		delete(a.m, id)
	}
}

// rearm replaces the session's alarm so it fires at the current question deadline, or
// clears it when the session is not active. Callers must hold the session write lock.
func (e *Engine) rearm(s *domain.Session) {
	deadline, ok := s.Deadline()
	if !ok {
		e.alarms.clear(s.ID)
		return
	}

	id, index, anchor := s.ID, s.CurrentQuestionIndex, *s.QuestionStartedAt
	wait := max(deadline.Sub(e.clock.Now()), 0)
	t := e.clock.AfterFunc(wait, func() {
		e.expire(id, index, anchor)
	})
	e.alarms.set(id, alarm{timer: t, index: index, anchor: anchor})
}

// expire auto-advances a session whose question timed out. The alarm only acts when the
// session is still active on the same question with the same anchor.
func (e *Engine) expire(id string, index int, anchor time.Time) {
	ctx := context.Background()

	lock := e.locks.get(id)
	lock.Lock()
	defer lock.Unlock()

	current, err := e.sessions.Get(ctx, id)
	if err != nil {
		slog.ErrorContext(ctx, "engine: load session on timeout", "session_id", id, "error", err)
		return
	}
	if !alarmMatches(current, index, anchor) {
		return
	}

	quiz, err := e.quizzes.GetQuiz(ctx, current.QuizID)
	if err != nil {
		slog.ErrorContext(ctx, "engine: load quiz on timeout", "session_id", id, "error", err)
		return
	}

	now := e.clock.Now()
	next, err := e.sessions.ApplyTransition(ctx, id, func(s *domain.Session) error {
		if !alarmMatches(s, index, anchor) {
			return errStaleAlarm
		}
		e.advance(s, quiz, now)
		return nil
	})
	switch {
	case errors.Is(err, errStaleAlarm):
		return
	case err != nil:
		telemetry.Transitions.WithLabelValues("auto_advance", "error").Inc()
		slog.ErrorContext(ctx, "engine: auto advance", "session_id", id, "question_index", index, "error", err)
		return
	}

	telemetry.Transitions.WithLabelValues("auto_advance", "ok").Inc()
	slog.InfoContext(ctx, "engine: question timed out", "session_id", id, "question_index", index)
	e.afterAdvance(next)
}

func alarmMatches(s *domain.Session, index int, anchor time.Time) bool {
	return s.Status == domain.StatusActive &&
		s.CurrentQuestionIndex == index &&
		s.QuestionStartedAt != nil &&
		s.QuestionStartedAt.Equal(anchor)
}

// Recover re-arms the alarms of every live active session found in the store. It is meant
// to run once at startup, before traffic is accepted.
func (e *Engine) Recover(ctx context.Context) (int, error) {
	live, err := e.sessions.ListLive(ctx)
	if err != nil {
		return 0, err
	}

	armed := 0
	for _, s := range live {
		if s.Status != domain.StatusActive {
			continue
		}
		lock := e.locks.get(s.ID)
		lock.Lock()
		e.rearm(s)
		lock.Unlock()
		armed++
	}
	slog.InfoContext(ctx, "engine: recovered timers", "sessions", len(live), "armed", armed)
	return armed, nil
}
