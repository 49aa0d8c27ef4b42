package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"live-quiz-service/internal/domain"
	apperrors "live-quiz-service/internal/errors"
	"live-quiz-service/internal/realtime"
)

const (
	defaultTimeLimit        = 30 * time.Second
	defaultFreeTextTopN     = 50
	defaultJoinCodeAttempts = 10
)

// Config wires the engine to its collaborators. Zero tunables fall back to defaults.
type Config struct {
	Sessions  SessionStore
	Responses ResponseLedger
	Quizzes   QuizProvider
	Events    Broadcaster
	Clock     Clock

	// DefaultTimeLimit applies to questions without their own limit.
	DefaultTimeLimit time.Duration
	// FreeTextTopN caps the rendered labels of free-text distributions.
	FreeTextTopN     int
	JoinCodeAttempts int
	// JoinCodes generates candidate join codes. Defaults to random 6-digit codes.
	JoinCodes func() string
}

// Engine runs live quiz sessions: lifecycle, question timers, answer intake and fan-out.
type Engine struct {
	sessions  SessionStore
	responses ResponseLedger
	quizzes   QuizProvider
	events    Broadcaster
	clock     Clock

	defaultTimeLimit time.Duration
	freeTextTopN     int
	joinCodeAttempts int
	joinCodes        func() string

	locks  *sessionLocks
	alarms *alarms
}

func NewEngine(cfg Config) *Engine {
	e := &Engine{
		sessions:         cfg.Sessions,
		responses:        cfg.Responses,
		quizzes:          cfg.Quizzes,
		events:           cfg.Events,
		clock:            cfg.Clock,
		defaultTimeLimit: cfg.DefaultTimeLimit,
		freeTextTopN:     cfg.FreeTextTopN,
		joinCodeAttempts: cfg.JoinCodeAttempts,
		joinCodes:        cfg.JoinCodes,
		locks:            newSessionLocks(),
		alarms:           newAlarms(),
	}
	if e.clock == nil {
		e.clock = SystemClock
	}
	if e.defaultTimeLimit <= 0 {
		e.defaultTimeLimit = defaultTimeLimit
	}
	if e.freeTextTopN <= 0 {
		e.freeTextTopN = defaultFreeTextTopN
	}
	if e.joinCodeAttempts <= 0 {
		e.joinCodeAttempts = defaultJoinCodeAttempts
	}
	if e.joinCodes == nil {
		e.joinCodes = randomJoinCode
	}
	return e
}

func randomJoinCode() string {
	return fmt.Sprintf("%06d", rand.IntN(1000000))
}

// Close cancels every pending alarm.
func (e *Engine) Close() {
	e.alarms.stopAll()
}

// Create opens a waiting session for a quiz under a fresh join code.
func (e *Engine) Create(ctx context.Context, quizID string) (*domain.Session, error) {
	if _, err := e.quizzes.GetQuiz(ctx, quizID); err != nil {
		return nil, apperrors.Convert(err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("session id: %w", err))
	}

	for attempt := 1; attempt <= e.joinCodeAttempts; attempt++ {
		s := domain.NewSession(id.String(), quizID, e.joinCodes(), e.clock.Now())
		err := e.sessions.Create(ctx, s)
		if errors.Is(err, domain.ErrDuplicateJoinCode) {
			slog.DebugContext(ctx, "engine: join code taken", "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, apperrors.Internal(fmt.Errorf("create session: %w", err))
		}
		slog.InfoContext(ctx, "engine: session created", "session_id", s.ID, "quiz_id", quizID)
		return s, nil
	}
	return nil, apperrors.Internal(fmt.Errorf("create session: no free join code after %d attempts", e.joinCodeAttempts))
}

// Get returns the committed state of a session.
func (e *Engine) Get(ctx context.Context, id string) (*domain.Session, error) {
	s, err := e.sessions.Get(ctx, id)
	if err != nil {
		return nil, apperrors.Convert(err)
	}
	return s, nil
}

// Join adds a participant to the live session behind code and returns the session with
// the student-facing quiz. Joining twice is a no-op.
func (e *Engine) Join(ctx context.Context, code string, p domain.Participant) (*domain.Session, domain.Quiz, error) {
	if p.ID == "" {
		return nil, domain.Quiz{}, apperrors.New(apperrors.CodeInvalidArgument, apperrors.WithMessagef("participant id is required"))
	}

	found, err := e.sessions.FindLiveByCode(ctx, code)
	if err != nil {
		return nil, domain.Quiz{}, apperrors.Convert(err)
	}
	quiz, err := e.quizzes.GetQuiz(ctx, found.QuizID)
	if err != nil {
		return nil, domain.Quiz{}, apperrors.Convert(err)
	}

	lock := e.locks.get(found.ID)
	lock.Lock()
	defer lock.Unlock()

	p.JoinedAt = e.clock.Now()
	s, added, err := e.sessions.AddParticipant(ctx, found.ID, p)
	if err != nil {
		return nil, domain.Quiz{}, apperrors.Convert(err)
	}
	if added {
		joined, _ := s.Participant(p.ID)
		e.publish(domain.ParticipantJoinedEvent{
			SessionID:        s.ID,
			Participant:      joined,
			ParticipantCount: len(s.Participants),
		})
	}
	return s, quiz.Public(), nil
}

// Leave announces that a participant's channel closed. Membership is kept so the student
// can reconnect.
func (e *Engine) Leave(ctx context.Context, id, participantID string) {
	lock := e.locks.get(id)
	lock.RLock()
	defer lock.RUnlock()

	if _, err := e.sessions.Get(ctx, id); err != nil {
		return
	}
	e.publish(domain.ParticipantLeftEvent{SessionID: id, ParticipantID: participantID})
}

// Snapshot restates the session with the live tally of its current question.
func (e *Engine) Snapshot(ctx context.Context, id string) (domain.SnapshotEvent, error) {
	lock := e.locks.get(id)
	lock.RLock()
	defer lock.RUnlock()
	return e.snapshot(ctx, id)
}

func (e *Engine) snapshot(ctx context.Context, id string) (domain.SnapshotEvent, error) {
	s, err := e.sessions.Get(ctx, id)
	if err != nil {
		return domain.SnapshotEvent{}, apperrors.Convert(err)
	}

	now := e.clock.Now()
	snap := domain.SnapshotEvent{
		Session:    *s,
		Remaining:  s.Remaining(now),
		ServerTime: now,
	}
	if s.Status == domain.StatusActive || s.Status == domain.StatusPaused {
		quiz, err := e.quizzes.GetQuiz(ctx, s.QuizID)
		if err != nil {
			return domain.SnapshotEvent{}, apperrors.Convert(err)
		}
		d, err := e.distribution(ctx, s, quiz, s.CurrentQuestionIndex)
		if err != nil {
			return domain.SnapshotEvent{}, err
		}
		snap.Tally = &d
	}
	return snap, nil
}

// Subscribe attaches a viewer to a session. The first event it receives is a snapshot and
// every later event is ordered after it. When participantID is set it must belong to the
// session.
func (e *Engine) Subscribe(ctx context.Context, id, participantID string) (*realtime.Subscription, error) {
	lock := e.locks.get(id)
	lock.Lock()
	defer lock.Unlock()

	snap, err := e.snapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	if participantID != "" {
		if _, ok := snap.Session.Participant(participantID); !ok {
			return nil, apperrors.Convert(domain.ErrParticipantNotFound)
		}
	}
	return e.events.Subscribe(id, snap), nil
}

// Resync queues a fresh snapshot for one subscriber.
func (e *Engine) Resync(ctx context.Context, sub *realtime.Subscription) error {
	id := sub.SessionID()
	lock := e.locks.get(id)
	lock.Lock()
	defer lock.Unlock()

	snap, err := e.snapshot(ctx, id)
	if err != nil {
		return err
	}
	e.events.Resync(sub, snap)
	return nil
}

func (e *Engine) publish(ev domain.Event) {
	e.events.Publish(ev.Topic(), ev)
}
