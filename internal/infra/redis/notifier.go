package redis

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/realtime"
)

const publishTimeout = 2 * time.Second

// Notifier mirrors session events onto Redis pub/sub so other processes (another API
// instance, dashboards) can follow a session. Channel: {prefix}:events:{sessionID}.
type Notifier struct {
	client redis.UniversalClient
	prefix string
}

func NewNotifier(client redis.UniversalClient, prefix string) *Notifier {
	return &Notifier{client: client, prefix: prefix}
}

// Mirror implements realtime.Mirror. Failures are logged; local delivery does not depend on
// Redis being reachable.
func (n *Notifier) Mirror(sessionID string, seq uint64, e domain.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	data, err := realtime.Marshal(seq, e)
	if err != nil {
		slog.ErrorContext(ctx, "notifier: encode event", "session_id", sessionID, "error", err)
		return
	}
	if err := n.client.Publish(ctx, n.Channel(sessionID), data).Err(); err != nil {
		slog.WarnContext(ctx, "notifier: publish failed", "session_id", sessionID, "kind", e.Kind(), "error", err)
	}
}

// Follow streams the raw frames mirrored for a session until ctx is cancelled.
func (n *Notifier) Follow(ctx context.Context, sessionID string) (<-chan []byte, error) {
	sub := n.client.Subscribe(ctx, n.Channel(sessionID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	out := make(chan []byte, 16)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (n *Notifier) Channel(sessionID string) string {
	return n.prefix + ":events:" + sessionID
}
