package memory

import (
	"context"
	"fmt"
	"sync"

	"live-quiz-service/internal/domain"
)

// SessionStore is an in-process implementation of app.SessionStore. Sessions are copied on
// the way in and out so callers never alias stored state.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
	codes    map[string]string // live join code -> session id
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*domain.Session),
		codes:    make(map[string]string),
	}
}

func (s *SessionStore) Create(_ context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.codes[session.JoinCode]; ok {
		return domain.ErrDuplicateJoinCode
	}
	if _, ok := s.sessions[session.ID]; ok {
		return fmt.Errorf("session %s: %w", session.ID, domain.ErrConflict)
	}
	s.sessions[session.ID] = session.Clone()
	s.codes[session.JoinCode] = session.ID
	return nil
}

func (s *SessionStore) Get(_ context.Context, id string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session.Clone(), nil
}

func (s *SessionStore) FindLiveByCode(_ context.Context, code string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.codes[code]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return s.sessions[id].Clone(), nil
}

func (s *SessionStore) AddParticipant(_ context.Context, id string, p domain.Participant) (*domain.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, false, domain.ErrSessionNotFound
	}
	if _, exists := session.Participant(p.ID); exists {
		return session.Clone(), false, nil
	}
	if session.Status == domain.StatusFinished {
		return nil, false, fmt.Errorf("join finished session: %w", domain.ErrInvalidState)
	}
	session.Participants = append(session.Participants, p)
	session.Version++
	return session.Clone(), true, nil
}

// ApplyTransition mutates a copy and swaps it in only when mutate succeeds.
func (s *SessionStore) ApplyTransition(_ context.Context, id string, mutate func(*domain.Session) error) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.Version = current.Version + 1
	s.sessions[id] = next
	if !next.Status.Live() && s.codes[next.JoinCode] == id {
		delete(s.codes, next.JoinCode)
	}
	return next.Clone(), nil
}

func (s *SessionStore) ListLive(_ context.Context) ([]*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	live := make([]*domain.Session, 0, len(s.codes))
	for _, id := range s.codes {
		live = append(live, s.sessions[id].Clone())
	}
	return live, nil
}
