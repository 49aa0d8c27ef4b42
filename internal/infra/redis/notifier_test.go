package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"live-quiz-service/internal/domain"
)

func TestNotifierMirrorsEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, client := newMiniredis(t)
	n := NewNotifier(client, "test")

	frames, err := n.Follow(ctx, "s1")
	if err != nil {
		t.Fatalf("follow: %v", err)
	}

	n.Mirror("s1", 3, domain.PausedEvent{SessionID: "s1", QuestionIndex: 1, Remaining: 18 * time.Second})

	select {
	case raw := <-frames:
		var frame struct {
			Type    string `json:"type"`
			Seq     uint64 `json:"seq"`
			Payload struct {
				RemainingMs int64 `json:"remainingMs"`
			} `json:"payload"`
		}
		if err := json.Unmarshal(raw, &frame); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		if frame.Type != "paused" || frame.Seq != 3 || frame.Payload.RemainingMs != 18000 {
			t.Fatalf("unexpected frame %+v", frame)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for mirrored event")
	}
}
