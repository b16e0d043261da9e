// Package writelock implements a path-keyed mapping to reentrant exclusive
// locks, one per resource, lazily created and explicitly removable.
//
// Go has no portable notion of "current goroutine identity" the way Java
// exposes Thread.currentThread(), so true implicit thread-local reentrancy
// (as the legacy source implements it) isn't idiomatic here. Instead, each
// Lock is reentrant with respect to an explicit holder token the caller
// supplies — typically a pointer to the write-transaction object doing the
// recursive re-entry — which is the pattern the corpus uses for the same
// problem (compare the activeWriter-pointer-as-owner check in
// other_examples' slotcache lock.go).
package writelock

import (
	"sync"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// Lock is a reentrant exclusive lock. The zero value is not usable; use New.
type Lock struct {
	sem    chan struct{}
	mu     sync.Mutex
	holder any
	depth  int
}

// New constructs an unheld reentrant Lock.
func New() *Lock {
	l := &Lock{sem: make(chan struct{}, 1)}
	l.sem <- struct{}{}
	return l
}

// Lock acquires the lock on behalf of holder, blocking if another holder
// currently owns it. Calling Lock again with the same holder while already
// held by that holder is a reentrant no-block re-acquisition.
func (l *Lock) Lock(holder any) {
	l.mu.Lock()
	if l.depth > 0 && l.holder == holder {
		l.depth++
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()

	<-l.sem

	l.mu.Lock()
	l.holder = holder
	l.depth = 1
	l.mu.Unlock()
}

// Unlock releases one level of holder's acquisition. Once depth returns to
// zero the lock is released for other holders. Unlock by a holder that does
// not currently own the lock panics: it is a programming error, not a
// recoverable condition.
func (l *Lock) Unlock(holder any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.depth == 0 || l.holder != holder {
		panic("writelock: Unlock called by non-holder")
	}
	l.depth--
	if l.depth == 0 {
		l.holder = nil
		l.sem <- struct{}{}
	}
}

// HeldBy reports whether holder currently owns the lock, at any reentrancy
// depth. Intended for assertions in tests, not for synchronization
// decisions (it is inherently racy against concurrent Lock/Unlock calls).
func (l *Lock) HeldBy(holder any) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.depth > 0 && l.holder == holder
}

// Registry is a path-keyed mapping to reentrant exclusive locks.
type Registry struct {
	locks cmap.ConcurrentMap[string, *Lock]
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{locks: cmap.New[*Lock]()}
}

// GetWriteLock lazily get-or-creates the Lock for path.
func (r *Registry) GetWriteLock(path string) *Lock {
	return r.locks.Upsert(path, New(), func(exists bool, valueInMap, newValue *Lock) *Lock {
		if exists {
			return valueInMap
		}
		return newValue
	})
}

// RemoveWriteLock removes the entry for path, fire-and-forget. Callers
// holding a reference to the Lock obtained before removal may safely keep
// using it; it simply will no longer be handed out to new callers of
// GetWriteLock for the same path (a fresh Lock will be created instead).
func (r *Registry) RemoveWriteLock(path string) {
	r.locks.Remove(path)
}
