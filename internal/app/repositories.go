package app

import (
	"context"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/realtime"
)

// SessionStore abstracts how quiz sessions are stored (in-memory, Redis, SQL).
type SessionStore interface {
	// Create persists a new session. It returns domain.ErrDuplicateJoinCode when the join
	// code is held by another live session.
	Create(ctx context.Context, s *domain.Session) error
	Get(ctx context.Context, id string) (*domain.Session, error)
	// FindLiveByCode resolves a join code to its non-finished session.
	FindLiveByCode(ctx context.Context, code string) (*domain.Session, error)
	// AddParticipant is idempotent; the bool reports whether p was newly added.
	AddParticipant(ctx context.Context, id string, p domain.Participant) (*domain.Session, bool, error)
	// ApplyTransition runs mutate against the latest committed session and persists the
	// result atomically. Nothing is written when mutate returns an error.
	ApplyTransition(ctx context.Context, id string, mutate func(*domain.Session) error) (*domain.Session, error)
	ListLive(ctx context.Context) ([]*domain.Session, error)
}

// ResponseLedger stores one response per (session, question, participant).
type ResponseLedger interface {
	// Upsert replaces any prior response for the same triple and returns the stored row.
	Upsert(ctx context.Context, r domain.Response) (domain.Response, error)
	Get(ctx context.Context, sessionID string, questionIndex int, participantID string) (domain.Response, error)
	ListByQuestion(ctx context.Context, sessionID string, questionIndex int) ([]domain.Response, error)
	ListBySession(ctx context.Context, sessionID string) ([]domain.Response, error)
}

// QuizProvider loads quiz content (from cache/backing store).
type QuizProvider interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// Broadcaster fans session events out to connected viewers.
type Broadcaster interface {
	Publish(sessionID string, e domain.Event)
	Subscribe(sessionID string, snapshot domain.SnapshotEvent) *realtime.Subscription
	Resync(sub *realtime.Subscription, snapshot domain.SnapshotEvent)
}
