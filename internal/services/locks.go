package services

import "sync"

// keyedMutex serializes work per key. The session and participant services
// share one instance keyed by session id so registration admission, waitlist
// promotion, refund issuance, and lifecycle transitions on the same session
// never interleave; the chat service uses another instance keyed by message
// id. Locks are never removed: the key space is bounded by live entities.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[int64]*sync.Mutex)}
}

func (k *keyedMutex) Lock(key int64) {
	k.mu.Lock()
	lock, ok := k.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		k.locks[key] = lock
	}
	k.mu.Unlock()
	lock.Lock()
}

func (k *keyedMutex) Unlock(key int64) {
	k.mu.Lock()
	lock := k.locks[key]
	k.mu.Unlock()
	lock.Unlock()
}

// SessionLocks is the shared per-session critical section handed to both the
// session and participant services by the wiring layer.
type SessionLocks struct {
	inner *keyedMutex
}

func NewSessionLocks() *SessionLocks {
	return &SessionLocks{inner: newKeyedMutex()}
}

func (s *SessionLocks) Lock(sessionID int64)   { s.inner.Lock(sessionID) }
func (s *SessionLocks) Unlock(sessionID int64) { s.inner.Unlock(sessionID) }
