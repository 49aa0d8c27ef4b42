package domain

import "time"

// EventKind names an event on the wire.
type EventKind string

const (
	EventSnapshot          EventKind = "snapshot"
	EventStarted           EventKind = "started"
	EventQuestionChanged   EventKind = "question_changed"
	EventPaused            EventKind = "paused"
	EventResumed           EventKind = "resumed"
	EventFinished          EventKind = "finished"
	EventTallyChanged      EventKind = "answer_tally_changed"
	EventParticipantJoined EventKind = "participant_joined"
	EventParticipantLeft   EventKind = "participant_left"
)

// Event is a state change pushed to session viewers. The set is closed: only types in this
// package implement it.
type Event interface {
	Kind() EventKind
	Topic() string
	sealed()
}

// SnapshotEvent restates the full session state for a (re)subscribing viewer.
type SnapshotEvent struct {
	Session    Session       `json:"session"`
	Tally      *Distribution `json:"tally,omitempty"`
	Remaining  time.Duration `json:"remaining"`
	ServerTime time.Time     `json:"serverTime"`
}

type StartedEvent struct {
	SessionID     string    `json:"sessionId"`
	StartedAt     time.Time `json:"startedAt"`
	QuestionCount int       `json:"questionCount"`
}

// QuestionChangedEvent carries the server anchor clients derive their countdown from.
type QuestionChangedEvent struct {
	SessionID         string        `json:"sessionId"`
	QuestionIndex     int           `json:"questionIndex"`
	QuestionStartedAt time.Time     `json:"questionStartedAt"`
	TimeLimit         time.Duration `json:"timeLimit"`
	ServerTime        time.Time     `json:"serverTime"`
}

type PausedEvent struct {
	SessionID     string        `json:"sessionId"`
	QuestionIndex int           `json:"questionIndex"`
	Remaining     time.Duration `json:"remaining"`
}

type ResumedEvent struct {
	SessionID         string        `json:"sessionId"`
	QuestionIndex     int           `json:"questionIndex"`
	QuestionStartedAt time.Time     `json:"questionStartedAt"`
	TimeLimit         time.Duration `json:"timeLimit"`
	ServerTime        time.Time     `json:"serverTime"`
}

type FinishedEvent struct {
	SessionID     string    `json:"sessionId"`
	QuestionIndex int       `json:"questionIndex"`
	EndedAt       time.Time `json:"endedAt"`
}

type TallyChangedEvent struct {
	Distribution Distribution `json:"distribution"`
}

type ParticipantJoinedEvent struct {
	SessionID        string      `json:"sessionId"`
	Participant      Participant `json:"participant"`
	ParticipantCount int         `json:"participantCount"`
}

type ParticipantLeftEvent struct {
	SessionID     string `json:"sessionId"`
	ParticipantID string `json:"participantId"`
}

func (SnapshotEvent) Kind() EventKind          { return EventSnapshot }
func (StartedEvent) Kind() EventKind           { return EventStarted }
func (QuestionChangedEvent) Kind() EventKind   { return EventQuestionChanged }
func (PausedEvent) Kind() EventKind            { return EventPaused }
func (ResumedEvent) Kind() EventKind           { return EventResumed }
func (FinishedEvent) Kind() EventKind          { return EventFinished }
func (TallyChangedEvent) Kind() EventKind      { return EventTallyChanged }
func (ParticipantJoinedEvent) Kind() EventKind { return EventParticipantJoined }
func (ParticipantLeftEvent) Kind() EventKind   { return EventParticipantLeft }

func (e SnapshotEvent) Topic() string          { return e.Session.ID }
func (e StartedEvent) Topic() string           { return e.SessionID }
func (e QuestionChangedEvent) Topic() string   { return e.SessionID }
func (e PausedEvent) Topic() string            { return e.SessionID }
func (e ResumedEvent) Topic() string           { return e.SessionID }
func (e FinishedEvent) Topic() string          { return e.SessionID }
func (e TallyChangedEvent) Topic() string      { return e.Distribution.SessionID }
func (e ParticipantJoinedEvent) Topic() string { return e.SessionID }
func (e ParticipantLeftEvent) Topic() string   { return e.SessionID }

func (SnapshotEvent) sealed()          {}
func (StartedEvent) sealed()           {}
func (QuestionChangedEvent) sealed()   {}
func (PausedEvent) sealed()            {}
func (ResumedEvent) sealed()           {}
func (FinishedEvent) sealed()          {}
func (TallyChangedEvent) sealed()      {}
func (ParticipantJoinedEvent) sealed() {}
func (ParticipantLeftEvent) sealed()   {}
