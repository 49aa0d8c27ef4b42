package realtime_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/realtime"
)

func TestEncode(t *testing.T) {
	anchor := time.Date(2024, 11, 22, 9, 0, 0, 0, time.UTC)

	tests := map[string]struct {
		event  domain.Event
		assert func(t *testing.T, frame map[string]any)
	}{
		"question change carries the countdown anchor": {
			event: domain.QuestionChangedEvent{SessionID: "s1", QuestionIndex: 2, QuestionStartedAt: anchor, TimeLimit: 30 * time.Second},
			assert: func(t *testing.T, frame map[string]any) {
				payload := frame["payload"].(map[string]any)
				assert.Equal(t, float64(30000), payload["timeLimitMs"])
				assert.Equal(t, float64(2), payload["questionIndex"])
				assert.Equal(t, "2024-11-22T09:00:00Z", payload["questionStartedAt"])
			},
		},
		"pause reports the frozen remainder": {
			event: domain.PausedEvent{SessionID: "s1", Remaining: 18 * time.Second},
			assert: func(t *testing.T, frame map[string]any) {
				assert.Equal(t, float64(18000), frame["payload"].(map[string]any)["remainingMs"])
			},
		},
		"tally is the distribution itself": {
			event: domain.TallyChangedEvent{Distribution: domain.Distribution{SessionID: "s1", Total: 3, Counts: map[string]int{"a": 3}}},
			assert: func(t *testing.T, frame map[string]any) {
				assert.Equal(t, "s1", frame["sessionId"])
				assert.Equal(t, float64(3), frame["payload"].(map[string]any)["total"])
			},
		},
		"snapshot renders the session view": {
			event: domain.SnapshotEvent{Session: domain.Session{ID: "s1", Status: domain.StatusPaused, PausedRemaining: 5 * time.Second}, Remaining: 5 * time.Second},
			assert: func(t *testing.T, frame map[string]any) {
				payload := frame["payload"].(map[string]any)
				session := payload["session"].(map[string]any)
				assert.Equal(t, "paused", session["status"])
				assert.Equal(t, float64(5000), session["pausedRemainingMs"])
				assert.Equal(t, []any{}, session["participants"])
				assert.Equal(t, float64(5000), payload["remainingMs"])
			},
		},
		"participant left": {
			event: domain.ParticipantLeftEvent{SessionID: "s1", ParticipantID: "p1"},
			assert: func(t *testing.T, frame map[string]any) {
				assert.Equal(t, "participant_left", frame["type"])
				assert.Equal(t, "p1", frame["payload"].(map[string]any)["participantId"])
			},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			raw, err := realtime.Marshal(7, tc.event)
			require.NoError(t, err)

			var frame map[string]any
			require.NoError(t, json.Unmarshal(raw, &frame))
			assert.Equal(t, float64(7), frame["seq"])
			assert.Equal(t, string(tc.event.Kind()), frame["type"])
			tc.assert(t, frame)
		})
	}
}
