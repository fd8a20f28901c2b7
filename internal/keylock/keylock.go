// Package keylock serialises work per (rotation, park) key and lets rotation
// changes exclude report submission.
package keylock

import "sync"

// Key identifies one ledger slot.
type Key struct {
	Rotation uint
	Park     uint
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// Locker hands out one mutex per key. Entries are reference counted and
// dropped once no goroutine holds or waits on them.
type Locker struct {
	mu    sync.Mutex
	locks map[Key]*entry
}

// New returns an empty Locker.
func New() *Locker {
	return &Locker{locks: make(map[Key]*entry)}
}

// Lock blocks until k is free and returns the matching unlock func.
func (l *Locker) Lock(k Key) (unlock func()) {
	l.mu.Lock()
	e, ok := l.locks[k]
	if !ok {
		e = &entry{}
		l.locks[k] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, k)
		}
		l.mu.Unlock()
	}
}

// Len reports how many keys are held or waited on.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// Gate separates report submission (shared) from rotation create and undo
// (exclusive).
type Gate struct {
	mu sync.RWMutex
}

// Shared admits a submission; many may hold it at once.
func (g *Gate) Shared() (release func()) {
	g.mu.RLock()
	return g.mu.RUnlock
}

// Exclusive waits for in-flight submissions to finish and blocks new ones.
func (g *Gate) Exclusive() (release func()) {
	g.mu.Lock()
	return g.mu.Unlock
}
