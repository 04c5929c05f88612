package services

import (
	"sync"

	"github.com/custodia-labs/testctx/internal/core/domain"
)

// KeyedLocker hands out one RWMutex per document identity.
// Writers (ingestion) hold the write lock across commit, chunk, embed and
// reindex; scoped readers hold the read lock for the whole query.
// An identity's entry is dropped once nobody holds or waits for it.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sync.RWMutex
	refs int
}

// NewKeyedLocker creates an empty locker. Services sharing documents must
// share one locker.
func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[string]*keyedLock)}
}

func (l *KeyedLocker) acquire(key string) *keyedLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[key]
	if !ok {
		m = &keyedLock{}
		l.locks[key] = m
	}
	m.refs++
	return m
}

func (l *KeyedLocker) release(key string, m *keyedLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m.refs--
	if m.refs == 0 {
		delete(l.locks, key)
	}
}

// Lock acquires the write lock for id and returns its release function,
// which must be called exactly once.
func (l *KeyedLocker) Lock(id domain.DocumentID) func() {
	key := id.Key()
	m := l.acquire(key)
	m.Lock()
	return func() {
		m.Unlock()
		l.release(key, m)
	}
}

// RLock acquires the read lock for id and returns its release function,
// which must be called exactly once.
func (l *KeyedLocker) RLock(id domain.DocumentID) func() {
	key := id.Key()
	m := l.acquire(key)
	m.RLock()
	return func() {
		m.RUnlock()
		l.release(key, m)
	}
}

// size returns the number of identities currently tracked.
func (l *KeyedLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
