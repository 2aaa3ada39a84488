package database

import "sync"

// lockMap hands out one mutex per key so read-modify-write sections on the
// same account or match serialize while unrelated ones run freely. Mutexes
// are never reclaimed; the key space is bounded by registered users and
// matches ever created.
type lockMap struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newLockMap() *lockMap {
	return &lockMap{locks: make(map[int64]*sync.Mutex)}
}

func (l *lockMap) lock(key int64) func() {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
