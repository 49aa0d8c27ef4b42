package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"live-quiz-service/internal/domain"
)

// Envelope is the wire frame pushed to clients.
type Envelope struct {
	Type      domain.EventKind `json:"type"`
	Seq       uint64           `json:"seq"`
	SessionID string           `json:"sessionId"`
	Payload   any              `json:"payload"`
}

// SessionView is the client-facing rendering of a session. Durations are milliseconds.
type SessionView struct {
	ID                   string               `json:"id"`
	QuizID               string               `json:"quizId"`
	JoinCode             string               `json:"joinCode"`
	Status               domain.Status        `json:"status"`
	CurrentQuestionIndex int                  `json:"currentQuestionIndex"`
	QuestionCount        int                  `json:"questionCount"`
	QuestionStartedAt    *time.Time           `json:"questionStartedAt,omitempty"`
	QuestionTimeLimitMs  int64                `json:"questionTimeLimitMs"`
	PausedRemainingMs    int64                `json:"pausedRemainingMs"`
	Participants         []domain.Participant `json:"participants"`
	CreatedAt            time.Time            `json:"createdAt"`
	StartedAt            *time.Time           `json:"startedAt,omitempty"`
	EndedAt              *time.Time           `json:"endedAt,omitempty"`
}

func NewSessionView(s domain.Session) SessionView {
	participants := s.Participants
	if participants == nil {
		participants = []domain.Participant{}
	}
	return SessionView{
		ID:                   s.ID,
		QuizID:               s.QuizID,
		JoinCode:             s.JoinCode,
		Status:               s.Status,
		CurrentQuestionIndex: s.CurrentQuestionIndex,
		QuestionCount:        s.QuestionCount,
		QuestionStartedAt:    s.QuestionStartedAt,
		QuestionTimeLimitMs:  s.QuestionTimeLimit.Milliseconds(),
		PausedRemainingMs:    s.PausedRemaining.Milliseconds(),
		Participants:         participants,
		CreatedAt:            s.CreatedAt,
		StartedAt:            s.StartedAt,
		EndedAt:              s.EndedAt,
	}
}

type snapshotPayload struct {
	Session     SessionView          `json:"session"`
	Tally       *domain.Distribution `json:"tally,omitempty"`
	RemainingMs int64                `json:"remainingMs"`
	ServerTime  time.Time            `json:"serverTime"`
}

type startedPayload struct {
	StartedAt     time.Time `json:"startedAt"`
	QuestionCount int       `json:"questionCount"`
}

// timingPayload anchors the client countdown: it ends at questionStartedAt + timeLimitMs.
type timingPayload struct {
	QuestionIndex     int       `json:"questionIndex"`
	QuestionStartedAt time.Time `json:"questionStartedAt"`
	TimeLimitMs       int64     `json:"timeLimitMs"`
	ServerTime        time.Time `json:"serverTime"`
}

type pausedPayload struct {
	QuestionIndex int   `json:"questionIndex"`
	RemainingMs   int64 `json:"remainingMs"`
}

type finishedPayload struct {
	QuestionIndex int       `json:"questionIndex"`
	EndedAt       time.Time `json:"endedAt"`
}

type joinedPayload struct {
	Participant      domain.Participant `json:"participant"`
	ParticipantCount int                `json:"participantCount"`
}

type leftPayload struct {
	ParticipantID string `json:"participantId"`
}

// Encode renders an event as a wire envelope.
func Encode(seq uint64, e domain.Event) (Envelope, error) {
	env := Envelope{Type: e.Kind(), Seq: seq, SessionID: e.Topic()}

	switch ev := e.(type) {
	case domain.SnapshotEvent:
		env.Payload = snapshotPayload{
			Session:     NewSessionView(ev.Session),
			Tally:       ev.Tally,
			RemainingMs: ev.Remaining.Milliseconds(),
			ServerTime:  ev.ServerTime,
		}
	case domain.StartedEvent:
		env.Payload = startedPayload{StartedAt: ev.StartedAt, QuestionCount: ev.QuestionCount}
	case domain.QuestionChangedEvent:
		env.Payload = timingPayload{
			QuestionIndex:     ev.QuestionIndex,
			QuestionStartedAt: ev.QuestionStartedAt,
			TimeLimitMs:       ev.TimeLimit.Milliseconds(),
			ServerTime:        ev.ServerTime,
		}
	case domain.PausedEvent:
		env.Payload = pausedPayload{QuestionIndex: ev.QuestionIndex, RemainingMs: ev.Remaining.Milliseconds()}
	case domain.ResumedEvent:
		env.Payload = timingPayload{
			QuestionIndex:     ev.QuestionIndex,
			QuestionStartedAt: ev.QuestionStartedAt,
			TimeLimitMs:       ev.TimeLimit.Milliseconds(),
			ServerTime:        ev.ServerTime,
		}
	case domain.FinishedEvent:
		env.Payload = finishedPayload{QuestionIndex: ev.QuestionIndex, EndedAt: ev.EndedAt}
	case domain.TallyChangedEvent:
		env.Payload = ev.Distribution
	case domain.ParticipantJoinedEvent:
		env.Payload = joinedPayload{Participant: ev.Participant, ParticipantCount: ev.ParticipantCount}
	case domain.ParticipantLeftEvent:
		env.Payload = leftPayload{ParticipantID: ev.ParticipantID}
	default:
		return Envelope{}, fmt.Errorf("realtime: unknown event %T", e)
	}
	return env, nil
}

// Marshal encodes an event straight to JSON.
func Marshal(seq uint64, e domain.Event) ([]byte, error) {
	env, err := Encode(seq, e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}
