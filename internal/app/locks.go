package app

import "sync"

// sessionLock serializes work on one session. Transitions, joins and timer expiry take the
// write lock; submissions share the read lock and use tally to publish in commit order.
type sessionLock struct {
	sync.RWMutex
	tally sync.Mutex
}

type sessionLocks struct {
	mu sync.Mutex
	m  map[string]*sessionLock
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{m: make(map[string]*sessionLock)}
}

func (l *sessionLocks) get(id string) *sessionLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.m[id]
	if !ok {
		lock = &sessionLock{}
		l.m[id] = lock
	}
	return lock
}

// forget drops the lock of a finished session. Callers must hold its write lock.
func (l *sessionLocks) forget(id string) {
	l.mu.Lock()
	delete(l.m, id)
	l.mu.Unlock()
}
