package realtime

import (
	"sync"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/telemetry"
)

const defaultBuffer = 64

// Message is an event with its position in the session's stream.
type Message struct {
	Seq   uint64
	Event domain.Event
}

// Mirror receives every broadcast (non-targeted) event after it leaves the outbox.
type Mirror interface {
	Mirror(sessionID string, seq uint64, e domain.Event)
}

// Broadcaster fans session events out to subscribers. Each session has an ordered outbox
// drained by one dispatcher goroutine, so Publish never waits on slow readers.
type Broadcaster struct {
	buffer int
	mirror Mirror

	mu     sync.Mutex
	topics map[string]*topic
	done   chan struct{}
	closed bool
	wg     sync.WaitGroup
	nextID uint64
}

type Option func(*Broadcaster)

// WithBuffer sets the per-subscriber queue length.
func WithBuffer(n int) Option {
	return func(b *Broadcaster) {
		if n > 0 {
			b.buffer = n
		}
	}
}

func WithMirror(m Mirror) Option {
	return func(b *Broadcaster) { b.mirror = m }
}

func NewBroadcaster(opts ...Option) *Broadcaster {
	b := &Broadcaster{
		buffer: defaultBuffer,
		topics: make(map[string]*topic),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type item struct {
	seq    uint64
	event  domain.Event
	target *Subscription
}

type topic struct {
	id   string
	wake chan struct{}

	mu    sync.Mutex
	seq   uint64
	queue []item
	subs  map[uint64]*Subscription
}

// Subscription is one viewer's queue of session events.
type Subscription struct {
	id        uint64
	sessionID string
	since     uint64
	t         *topic

	mu     sync.Mutex
	ch     chan Message
	closed bool
}

// Events yields the snapshot first and then every later event. The channel is closed when
// the subscription is closed or evicted for falling behind.
func (s *Subscription) Events() <-chan Message { return s.ch }

func (s *Subscription) SessionID() string { return s.sessionID }

// Close detaches the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.t.mu.Lock()
	_, ok := s.t.subs[s.id]
	delete(s.t.subs, s.id)
	s.t.mu.Unlock()
	if ok {
		telemetry.Subscribers.Dec()
	}
	s.shut()
}

func (s *Subscription) deliver(m Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- m:
		return true
	default:
		return false
	}
}

func (s *Subscription) shut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Publish appends e to the session's outbox.
func (b *Broadcaster) Publish(sessionID string, e domain.Event) {
	b.mu.Lock()
	t := b.topicLocked(sessionID)
	if t == nil {
		b.mu.Unlock()
		return
	}
	t.mu.Lock()
	t.seq++
	t.queue = append(t.queue, item{seq: t.seq, event: e})
	t.mu.Unlock()
	b.mu.Unlock()

	telemetry.Published.WithLabelValues(string(e.Kind())).Inc()
	t.signal()
}

// Subscribe registers a viewer and queues snapshot as its first message. Events already in
// the outbox are not replayed to it.
func (b *Broadcaster) Subscribe(sessionID string, snapshot domain.SnapshotEvent) *Subscription {
	b.mu.Lock()
	t := b.topicLocked(sessionID)
	b.nextID++
	sub := &Subscription{id: b.nextID, sessionID: sessionID, t: t, ch: make(chan Message, b.buffer)}
	if t == nil {
		b.mu.Unlock()
		sub.t = &topic{subs: map[uint64]*Subscription{}}
		sub.shut()
		return sub
	}
	t.mu.Lock()
	sub.since = t.seq
	t.subs[sub.id] = sub
	t.queue = append(t.queue, item{seq: t.seq, event: snapshot, target: sub})
	t.mu.Unlock()
	b.mu.Unlock()

	telemetry.Subscribers.Inc()
	t.signal()
	return sub
}

// Resync queues a fresh snapshot for a single subscriber, ordered after everything already
// published.
func (b *Broadcaster) Resync(sub *Subscription, snapshot domain.SnapshotEvent) {
	t := sub.t
	t.mu.Lock()
	if _, ok := t.subs[sub.id]; !ok {
		t.mu.Unlock()
		return
	}
	t.queue = append(t.queue, item{seq: t.seq, event: snapshot, target: sub})
	t.mu.Unlock()
	t.signal()
}

// Close stops every dispatcher and closes all subscriptions.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.done)
	b.mu.Unlock()

	b.wg.Wait()

	b.mu.Lock()
	defer b.mu.Unlock()
	for id, t := range b.topics {
		t.mu.Lock()
		for _, sub := range t.subs {
			sub.shut()
			telemetry.Subscribers.Dec()
		}
		t.subs = map[uint64]*Subscription{}
		t.mu.Unlock()
		delete(b.topics, id)
	}
}

// topicLocked returns the session's topic, starting its dispatcher on first use. It
// returns nil once the broadcaster is closed.
func (b *Broadcaster) topicLocked(sessionID string) *topic {
	if b.closed {
		return nil
	}
	t, ok := b.topics[sessionID]
	if !ok {
		t = &topic{
			id:   sessionID,
			wake: make(chan struct{}, 1),
			subs: make(map[uint64]*Subscription),
		}
		b.topics[sessionID] = t
		b.wg.Add(1)
		go b.run(t)
	}
	return t
}

func (t *topic) signal() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

func (b *Broadcaster) run(t *topic) {
	defer b.wg.Done()
	for {
		select {
		case <-t.wake:
		case <-b.done:
			return
		}
		b.drain(t)
		if b.retire(t) {
			return
		}
	}
}

func (b *Broadcaster) drain(t *topic) {
	t.mu.Lock()
	items := t.queue
	t.queue = nil
	subs := make([]*Subscription, 0, len(t.subs))
	for _, sub := range t.subs {
		subs = append(subs, sub)
	}
	t.mu.Unlock()

	for _, it := range items {
		msg := Message{Seq: it.seq, Event: it.event}
		if it.target != nil {
			if !it.target.deliver(msg) {
				b.evict(t, it.target)
			}
			continue
		}
		if b.mirror != nil {
			b.mirror.Mirror(t.id, it.seq, it.event)
		}
		for _, sub := range subs {
			if it.seq <= sub.since {
				continue
			}
			if !sub.deliver(msg) {
				b.evict(t, sub)
			}
		}
	}
}

// evict drops a subscriber whose queue is full. Its channel closes and the client is
// expected to reconnect for a fresh snapshot.
func (b *Broadcaster) evict(t *topic, sub *Subscription) {
	t.mu.Lock()
	_, ok := t.subs[sub.id]
	delete(t.subs, sub.id)
	t.mu.Unlock()
	if ok {
		telemetry.Subscribers.Dec()
		telemetry.Evictions.Inc()
	}
	sub.shut()
}

// retire removes an idle topic with no subscribers.
func (b *Broadcaster) retire(t *topic) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.queue) > 0 || len(t.subs) > 0 {
		return false
	}
	delete(b.topics, t.id)
	return true
}
