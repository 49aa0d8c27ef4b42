package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Answer is the raw payload a participant submits. Which fields are used depends on the
// question type: OptionID for single choice, OptionIDs for multi choice, Text for free
// text and Blanks for fill-in-blank.
type Answer struct {
	OptionID  string   `json:"optionId,omitempty"`
	OptionIDs []string `json:"optionIds,omitempty"`
	Text      string   `json:"text,omitempty"`
	Blanks    []string `json:"blanks,omitempty"`
}

// Response is one participant's recorded answer to one question within one session.
type Response struct {
	SessionID         string          `json:"sessionId"`
	QuestionIndex     int             `json:"questionIndex"`
	ParticipantID     string          `json:"participantId"`
	Answer            Answer          `json:"answer"`
	IsCorrect         *bool           `json:"isCorrect,omitempty"`
	PointsEarned      decimal.Decimal `json:"pointsEarned"`
	SubmittedAtOffset time.Duration   `json:"submittedAtOffset"`
	Revision          int             `json:"revision"`
	SubmittedAt       time.Time       `json:"submittedAt"`
}

// Distribution is the tally of answers for one question.
type Distribution struct {
	SessionID     string         `json:"sessionId"`
	QuestionIndex int            `json:"questionIndex"`
	Type          QuestionType   `json:"type"`
	Labels        []string       `json:"labels"`
	Counts        map[string]int `json:"counts"`
	Total         int            `json:"total"`
	Distinct      int            `json:"distinct"`
	Truncated     bool           `json:"truncated,omitempty"`
}

// LeaderboardEntry is a participant's running total.
type LeaderboardEntry struct {
	ParticipantID string          `json:"participantId"`
	DisplayName   string          `json:"displayName"`
	Points        decimal.Decimal `json:"points"`
	Answered      int             `json:"answered"`
}

// Leaderboard captures the ordered totals for a session.
type Leaderboard struct {
	SessionID string             `json:"sessionId"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}
