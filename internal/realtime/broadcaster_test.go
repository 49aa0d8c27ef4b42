package realtime_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/realtime"
)

func snapshotOf(id string) domain.SnapshotEvent {
	return domain.SnapshotEvent{Session: domain.Session{ID: id, Status: domain.StatusWaiting}}
}

func next(t *testing.T, sub *realtime.Subscription) realtime.Message {
	t.Helper()
	select {
	case m, ok := <-sub.Events():
		require.True(t, ok, "subscription closed")
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return realtime.Message{}
	}
}

func TestBroadcaster_SnapshotFirstThenOrderedDeltas(t *testing.T) {
	b := realtime.NewBroadcaster()
	defer b.Close()

	b.Publish("s1", domain.ParticipantLeftEvent{SessionID: "s1", ParticipantID: "old"})
	sub := b.Subscribe("s1", snapshotOf("s1"))
	defer sub.Close()

	for i := 0; i < 5; i++ {
		b.Publish("s1", domain.PausedEvent{SessionID: "s1", QuestionIndex: i})
	}

	first := next(t, sub)
	assert.Equal(t, domain.EventSnapshot, first.Event.Kind())

	prev := first.Seq
	for i := 0; i < 5; i++ {
		m := next(t, sub)
		ev, ok := m.Event.(domain.PausedEvent)
		require.True(t, ok, "got %T", m.Event)
		assert.Equal(t, i, ev.QuestionIndex)
		assert.Greater(t, m.Seq, prev)
		prev = m.Seq
	}
}

func TestBroadcaster_FansOutToEverySubscriber(t *testing.T) {
	b := realtime.NewBroadcaster()
	defer b.Close()

	subs := make([]*realtime.Subscription, 3)
	for i := range subs {
		subs[i] = b.Subscribe("s1", snapshotOf("s1"))
		defer subs[i].Close()
		next(t, subs[i])
	}

	b.Publish("s1", domain.StartedEvent{SessionID: "s1"})
	for _, sub := range subs {
		assert.Equal(t, domain.EventStarted, next(t, sub).Event.Kind())
	}
}

func TestBroadcaster_SessionsAreIsolated(t *testing.T) {
	b := realtime.NewBroadcaster()
	defer b.Close()

	a := b.Subscribe("a", snapshotOf("a"))
	defer a.Close()
	next(t, a)

	b.Publish("b", domain.PausedEvent{SessionID: "b"})
	b.Publish("a", domain.ResumedEvent{SessionID: "a"})

	m := next(t, a)
	assert.Equal(t, domain.EventResumed, m.Event.Kind())
}

func TestBroadcaster_ResyncTargetsOneSubscriber(t *testing.T) {
	b := realtime.NewBroadcaster()
	defer b.Close()

	one := b.Subscribe("s1", snapshotOf("s1"))
	two := b.Subscribe("s1", snapshotOf("s1"))
	defer one.Close()
	defer two.Close()
	next(t, one)
	next(t, two)

	b.Resync(one, snapshotOf("s1"))
	b.Publish("s1", domain.FinishedEvent{SessionID: "s1"})

	assert.Equal(t, domain.EventSnapshot, next(t, one).Event.Kind())
	assert.Equal(t, domain.EventFinished, next(t, one).Event.Kind())
	assert.Equal(t, domain.EventFinished, next(t, two).Event.Kind())
}

func TestBroadcaster_EvictsSlowSubscriber(t *testing.T) {
	b := realtime.NewBroadcaster(realtime.WithBuffer(2))
	defer b.Close()

	slow := b.Subscribe("s1", snapshotOf("s1"))
	fast := b.Subscribe("s1", snapshotOf("s1"))
	defer fast.Close()
	next(t, fast)

	for i := 0; i < 10; i++ {
		b.Publish("s1", domain.PausedEvent{SessionID: "s1", QuestionIndex: i})
		m := next(t, fast)
		assert.Equal(t, i, m.Event.(domain.PausedEvent).QuestionIndex)
	}

	require.Eventually(t, func() bool {
		for {
			select {
			case _, ok := <-slow.Events():
				if !ok {
					return true
				}
			default:
				return false
			}
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBroadcaster_CloseIsIdempotent(t *testing.T) {
	b := realtime.NewBroadcaster()
	sub := b.Subscribe("s1", snapshotOf("s1"))
	sub.Close()
	sub.Close()
	b.Close()
	b.Close()

	_, ok := <-sub.Events()
	if ok {
		_, ok = <-sub.Events()
	}
	assert.False(t, ok)
}

type recordingMirror struct {
	mu   sync.Mutex
	seqs []uint64
}

func (m *recordingMirror) Mirror(_ string, seq uint64, _ domain.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seqs = append(m.seqs, seq)
}

func TestBroadcaster_MirrorsBroadcastEventsOnly(t *testing.T) {
	mirror := &recordingMirror{}
	b := realtime.NewBroadcaster(realtime.WithMirror(mirror))
	defer b.Close()

	sub := b.Subscribe("s1", snapshotOf("s1"))
	defer sub.Close()
	b.Publish("s1", domain.StartedEvent{SessionID: "s1"})
	b.Publish("s1", domain.FinishedEvent{SessionID: "s1"})
	next(t, sub)
	next(t, sub)
	next(t, sub)

	mirror.mu.Lock()
	defer mirror.mu.Unlock()
	assert.Equal(t, []uint64{1, 2}, mirror.seqs)
}
