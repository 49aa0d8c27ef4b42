package domain

import (
	"slices"
	"time"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusActive   Status = "active"
	StatusPaused   Status = "paused"
	StatusFinished Status = "finished"
)

// Live reports whether the session still owns its join code.
func (s Status) Live() bool {
	return s != StatusFinished
}

// Participant is a student identity attached to a session.
type Participant struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// Session is one live run of a quiz.
type Session struct {
	ID                   string        `json:"id"`
	QuizID               string        `json:"quizId"`
	JoinCode             string        `json:"joinCode"`
	Status               Status        `json:"status"`
	CurrentQuestionIndex int           `json:"currentQuestionIndex"`
	QuestionCount        int           `json:"questionCount"`
	QuestionStartedAt    *time.Time    `json:"questionStartedAt,omitempty"`
	QuestionTimeLimit    time.Duration `json:"questionTimeLimit"`
	// QuestionElapsed is the time consumed on the current question before the latest resume.
	QuestionElapsed time.Duration `json:"questionElapsed"`
	PausedRemaining time.Duration `json:"pausedRemaining"`
	Participants    []Participant `json:"participants"`
	CreatedAt       time.Time     `json:"createdAt"`
	StartedAt       *time.Time    `json:"startedAt,omitempty"`
	EndedAt         *time.Time    `json:"endedAt,omitempty"`
	Version         int64         `json:"version"`
}

// NewSession builds a waiting session with no current question.
func NewSession(id, quizID, joinCode string, now time.Time) *Session {
	return &Session{
		ID:                   id,
		QuizID:               quizID,
		JoinCode:             joinCode,
		Status:               StatusWaiting,
		CurrentQuestionIndex: -1,
		Participants:         []Participant{},
		CreatedAt:            now,
	}
}

// Clone returns a deep copy so callers never share mutable state with a store.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Participants = slices.Clone(s.Participants)
	if c.Participants == nil {
		c.Participants = []Participant{}
	}
	c.QuestionStartedAt = cloneTime(s.QuestionStartedAt)
	c.StartedAt = cloneTime(s.StartedAt)
	c.EndedAt = cloneTime(s.EndedAt)
	return &c
}

// Participant looks up a participant by id.
func (s *Session) Participant(id string) (Participant, bool) {
	for _, p := range s.Participants {
		if p.ID == id {
			return p, true
		}
	}
	return Participant{}, false
}

// Elapsed is the total time spent on the current question, pauses excluded.
func (s *Session) Elapsed(now time.Time) time.Duration {
	switch s.Status {
	case StatusActive:
		if s.QuestionStartedAt == nil {
			return s.QuestionElapsed
		}
		return s.QuestionElapsed + now.Sub(*s.QuestionStartedAt)
	case StatusPaused:
		return s.QuestionElapsed
	default:
		return 0
	}
}

// Remaining is the time left on the current question, never negative.
func (s *Session) Remaining(now time.Time) time.Duration {
	var left time.Duration
	switch s.Status {
	case StatusActive:
		if s.QuestionStartedAt == nil {
			return 0
		}
		left = s.QuestionTimeLimit - now.Sub(*s.QuestionStartedAt)
	case StatusPaused:
		left = s.PausedRemaining
	}
	return max(left, 0)
}

// Deadline is the instant the current question times out. Only active sessions have one.
func (s *Session) Deadline() (time.Time, bool) {
	if s.Status != StatusActive || s.QuestionStartedAt == nil {
		return time.Time{}, false
	}
	return s.QuestionStartedAt.Add(s.QuestionTimeLimit), true
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
