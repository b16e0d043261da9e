// Package pathpool implements a thread-safe many-to-many registry from a
// filesystem path to a set of live objects of type T. It backs both the
// process-wide database-sessions pool and the process-wide
// resource-sessions pool.
//
// The top-level path->bucket map is github.com/orcaman/concurrent-map/v2,
// the same sharded-map library already reachable from the teacher's
// dependency graph and the idiomatic generalization of the
// sync.RWMutex-guarded maps the teacher hand-rolls in statemanager/manager.go
// and registry/registry.go. Bucket-level compaction (collapse-to-empty
// removal) is deliberately NOT delegated to the map library: no version of
// its API exposes an atomic "check-empty-then-delete" across two calls, and
// ContainsAnyEntry must never observe a stale empty bucket. Each bucket
// therefore carries its own mutex and a tombstone flag; callers that
// observe a tombstoned bucket retry against the map, which is the standard
// pattern for emulating Java's ConcurrentHashMap.compute() semantics.
package pathpool

import (
	"sync"

	cmap "github.com/orcaman/concurrent-map/v2"
)

type bucket[T comparable] struct {
	mu         sync.Mutex
	members    map[T]struct{}
	tombstoned bool
}

func newBucket[T comparable]() *bucket[T] {
	return &bucket[T]{members: make(map[T]struct{})}
}

// Pool is a thread-safe many-to-many registry from path to a set of T.
type Pool[T comparable] struct {
	buckets cmap.ConcurrentMap[string, *bucket[T]]
}

// New constructs an empty Pool.
func New[T comparable]() *Pool[T] {
	return &Pool[T]{buckets: cmap.New[*bucket[T]]()}
}

// PutObject atomically inserts value into the bucket for path, creating the
// bucket if absent.
func (p *Pool[T]) PutObject(path string, value T) {
	for {
		b := p.buckets.Upsert(path, newBucket[T](), func(exists bool, valueInMap, newValue *bucket[T]) *bucket[T] {
			if exists {
				return valueInMap
			}
			return newValue
		})
		b.mu.Lock()
		if b.tombstoned {
			b.mu.Unlock()
			continue
		}
		b.members[value] = struct{}{}
		b.mu.Unlock()
		return
	}
}

// RemoveObject atomically removes value from the bucket for path; if the
// resulting bucket is empty, the path entry itself is removed.
func (p *Pool[T]) RemoveObject(path string, value T) {
	b, ok := p.buckets.Get(path)
	if !ok {
		return
	}
	b.mu.Lock()
	delete(b.members, value)
	empty := len(b.members) == 0
	if empty {
		b.tombstoned = true
	}
	b.mu.Unlock()

	if empty {
		p.buckets.RemoveCb(path, func(key string, v *bucket[T], exists bool) bool {
			return exists && v == b
		})
	}
}

// ContainsAnyEntry reports whether path's bucket exists and is non-empty.
func (p *Pool[T]) ContainsAnyEntry(path string) bool {
	b, ok := p.buckets.Get(path)
	if !ok {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.members) > 0
}

// AsMap returns a defensive snapshot of path to its members at the moment
// of the call. Callers must not mutate the returned map or slices; mutating
// the Pool afterward does not affect the snapshot.
func (p *Pool[T]) AsMap() map[string][]T {
	out := make(map[string][]T, p.buckets.Count())
	for item := range p.buckets.IterBuffered() {
		b := item.Val
		b.mu.Lock()
		if len(b.members) > 0 {
			members := make([]T, 0, len(b.members))
			for v := range b.members {
				members = append(members, v)
			}
			out[item.Key] = members
		}
		b.mu.Unlock()
	}
	return out
}
