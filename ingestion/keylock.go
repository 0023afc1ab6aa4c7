package ingestion

import (
	"slices"
	"sync"
)

// keyLocker hands out one mutex per identity key. Entries are reference
// counted and dropped once no holder or waiter remains.
type keyLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocker() *keyLocker {
	return &keyLocker{locks: make(map[string]*keyLock)}
}

func (l *keyLocker) lock(key string) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	kl.mu.Lock()
}

func (l *keyLocker) unlock(key string) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		l.mu.Unlock()
		return
	}
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()

	kl.mu.Unlock()
}

// lockAll acquires every distinct key in sorted order and returns a func
// releasing them. Two callers with overlapping key sets cannot deadlock.
func (l *keyLocker) lockAll(keys []string) func() {
	sorted := slices.Clone(keys)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	for _, k := range sorted {
		l.lock(k)
	}
	return func() {
		for i := len(sorted) - 1; i >= 0; i-- {
			l.unlock(sorted[i])
		}
	}
}

// size reports the number of live lock entries.
func (l *keyLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
