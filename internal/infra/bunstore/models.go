package bunstore

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"live-quiz-service/internal/domain"
)

// SessionModel is the quiz_sessions row. Durations are stored as milliseconds.
type SessionModel struct {
	bun.BaseModel `bun:"table:quiz_sessions,alias:qs"`

	ID                   string     `bun:"id,pk"`
	QuizID               string     `bun:"quiz_id,notnull"`
	JoinCode             string     `bun:"join_code,notnull"`
	Status               string     `bun:"status,notnull"`
	CurrentQuestionIndex int        `bun:"current_question_index,notnull"`
	QuestionCount        int        `bun:"question_count,notnull"`
	QuestionStartedAt    *time.Time `bun:"question_started_at,nullzero"`
	QuestionTimeLimitMs  int64      `bun:"question_time_limit_ms,notnull"`
	QuestionElapsedMs    int64      `bun:"question_elapsed_ms,notnull"`
	PausedRemainingMs    int64      `bun:"paused_remaining_ms,notnull"`
	CreatedAt            time.Time  `bun:"created_at,notnull"`
	StartedAt            *time.Time `bun:"started_at,nullzero"`
	EndedAt              *time.Time `bun:"ended_at,nullzero"`
	Version              int64      `bun:"version,notnull"`

	Participants []*ParticipantModel `bun:"rel:has-many,join:id=session_id"`
}

// ParticipantModel is one session_participants row; Position keeps join order.
type ParticipantModel struct {
	bun.BaseModel `bun:"table:session_participants,alias:sp"`

	SessionID     string    `bun:"session_id,pk"`
	ParticipantID string    `bun:"participant_id,pk"`
	DisplayName   string    `bun:"display_name,notnull"`
	JoinedAt      time.Time `bun:"joined_at,notnull"`
	Position      int       `bun:"position,notnull"`
}

// ResponseModel is one session_responses row, unique per (session, question, participant).
type ResponseModel struct {
	bun.BaseModel `bun:"table:session_responses,alias:sr"`

	SessionID           string          `bun:"session_id,pk"`
	QuestionIndex       int             `bun:"question_index,pk"`
	ParticipantID       string          `bun:"participant_id,pk"`
	Answer              domain.Answer   `bun:"answer,type:jsonb,notnull"`
	IsCorrect           *bool           `bun:"is_correct"`
	PointsEarned        decimal.Decimal `bun:"points_earned,type:numeric(12,2),notnull"`
	SubmittedAtOffsetMs int64           `bun:"submitted_at_offset_ms,notnull"`
	Revision            int             `bun:"revision,notnull"`
	SubmittedAt         time.Time       `bun:"submitted_at,notnull"`
}

func toSessionModel(s *domain.Session) *SessionModel {
	m := &SessionModel{
		ID:                   s.ID,
		QuizID:               s.QuizID,
		JoinCode:             s.JoinCode,
		Status:               string(s.Status),
		CurrentQuestionIndex: s.CurrentQuestionIndex,
		QuestionCount:        s.QuestionCount,
		QuestionStartedAt:    microPtr(s.QuestionStartedAt),
		QuestionTimeLimitMs:  s.QuestionTimeLimit.Milliseconds(),
		QuestionElapsedMs:    s.QuestionElapsed.Milliseconds(),
		PausedRemainingMs:    s.PausedRemaining.Milliseconds(),
		CreatedAt:            micro(s.CreatedAt),
		StartedAt:            microPtr(s.StartedAt),
		EndedAt:              microPtr(s.EndedAt),
		Version:              s.Version,
	}
	for i, p := range s.Participants {
		m.Participants = append(m.Participants, &ParticipantModel{
			SessionID:     s.ID,
			ParticipantID: p.ID,
			DisplayName:   p.DisplayName,
			JoinedAt:      micro(p.JoinedAt),
			Position:      i,
		})
	}
	return m
}

func (m *SessionModel) toDomain() *domain.Session {
	s := &domain.Session{
		ID:                   m.ID,
		QuizID:               m.QuizID,
		JoinCode:             m.JoinCode,
		Status:               domain.Status(m.Status),
		CurrentQuestionIndex: m.CurrentQuestionIndex,
		QuestionCount:        m.QuestionCount,
		QuestionStartedAt:    utc(m.QuestionStartedAt),
		QuestionTimeLimit:    time.Duration(m.QuestionTimeLimitMs) * time.Millisecond,
		QuestionElapsed:      time.Duration(m.QuestionElapsedMs) * time.Millisecond,
		PausedRemaining:      time.Duration(m.PausedRemainingMs) * time.Millisecond,
		Participants:         make([]domain.Participant, 0, len(m.Participants)),
		CreatedAt:            m.CreatedAt.UTC(),
		StartedAt:            utc(m.StartedAt),
		EndedAt:              utc(m.EndedAt),
		Version:              m.Version,
	}
	for _, p := range m.Participants {
		s.Participants = append(s.Participants, domain.Participant{
			ID:          p.ParticipantID,
			DisplayName: p.DisplayName,
			JoinedAt:    p.JoinedAt.UTC(),
		})
	}
	return s
}

func toResponseModel(r domain.Response) *ResponseModel {
	return &ResponseModel{
		SessionID:           r.SessionID,
		QuestionIndex:       r.QuestionIndex,
		ParticipantID:       r.ParticipantID,
		Answer:              r.Answer,
		IsCorrect:           r.IsCorrect,
		PointsEarned:        r.PointsEarned,
		SubmittedAtOffsetMs: r.SubmittedAtOffset.Milliseconds(),
		Revision:            r.Revision,
		SubmittedAt:         micro(r.SubmittedAt),
	}
}

func (m *ResponseModel) toDomain() domain.Response {
	return domain.Response{
		SessionID:         m.SessionID,
		QuestionIndex:     m.QuestionIndex,
		ParticipantID:     m.ParticipantID,
		Answer:            m.Answer,
		IsCorrect:         m.IsCorrect,
		PointsEarned:      m.PointsEarned,
		SubmittedAtOffset: time.Duration(m.SubmittedAtOffsetMs) * time.Millisecond,
		Revision:          m.Revision,
		SubmittedAt:       m.SubmittedAt.UTC(),
	}
}

// micro drops what SQL timestamps cannot hold, so a session read back equals the one written.
// Alarm anchors are compared for equality.
func micro(t time.Time) time.Time {
	return t.Truncate(time.Microsecond)
}

func microPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := micro(*t)
	return &v
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

// QuizModel stores a whole quiz document; questions are only ever read together.
type QuizModel struct {
	bun.BaseModel `bun:"table:quizzes,alias:q"`

	ID        string          `bun:"id,pk"`
	Data      json.RawMessage `bun:"data,type:jsonb,notnull"`
	UpdatedAt time.Time       `bun:"updated_at,notnull"`
}
