// Package resourcestore implements the registry and factory for resource
// sessions within one database, generalized over a session type R.
//
// Go idiom prefers substituting an interface for a single-collaborator-
// contract type parameter rather than carrying a generic type argument
// through every dependent type (database.Handle, dbmanager.Manager) for no
// behavioral gain — this module has exactly one ResourceSession contract
// (rsession.Session) and exactly one production implementation
// (pagestore.Store), so R is realized as the rsession.Session interface
// rather than a Go type parameter. This is recorded as an Open Question
// resolution in DESIGN.md.
package resourcestore

import (
	"fmt"

	cmap "github.com/orcaman/concurrent-map/v2"
	"golang.org/x/sync/singleflight"

	"github.com/evalgo/treedb/buffermgr"
	"github.com/evalgo/treedb/dberrors"
	"github.com/evalgo/treedb/pathpool"
	"github.com/evalgo/treedb/rsession"
)

// Store is the registry and factory for resource sessions within one
// database.
type Store struct {
	sessions cmap.ConcurrentMap[string, rsession.Session]
	// pool is the enclosing process-wide resource-sessions pool; Store
	// registers/deregisters into it as sessions open and close so the pool
	// and this registry never disagree about what is currently open.
	pool    *pathpool.Pool[rsession.Session]
	factory rsession.Factory
	group   singleflight.Group
}

// New constructs a Store whose sessions are created by factory and
// registered into the enclosing process-wide pool.
func New(pool *pathpool.Pool[rsession.Session], factory rsession.Factory) *Store {
	return &Store{sessions: cmap.New[rsession.Session](), pool: pool, factory: factory}
}

// BeginResourceSession is an atomic get-or-create: exactly one Session is
// created per path even under concurrent first-open races — N concurrent
// callers for the same unopened resource yield one session reference
// observed by all N — via golang.org/x/sync/singleflight coalescing
// concurrent calls for the same path onto one in-flight creation. bm is the
// resource's buffer manager, resolved by the caller (database.Handle) from
// the per-database buffer-manager map before this call.
func (s *Store) BeginResourceSession(path string, bm *buffermgr.Manager) (rsession.Session, error) {
	if existing, ok := s.sessions.Get(path); ok {
		return existing, nil
	}

	v, err, _ := s.group.Do(path, func() (interface{}, error) {
		if existing, ok := s.sessions.Get(path); ok {
			return existing, nil
		}
		sess, err := s.factory(path, bm)
		if err != nil {
			return nil, fmt.Errorf("resourcestore: open session for %s: %w", path, err)
		}
		s.sessions.Set(path, sess)
		s.pool.PutObject(path, sess)

		if sess.MostRecentRevisionNumber() > 0 {
			if primer, ok := sess.(rsession.PageTrxPoolPrimer); ok {
				primer.PrimePageTrxPool()
			}
		}
		return sess, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(rsession.Session), nil
}

// HasOpenResourceSession reports whether a session is currently open for
// path.
func (s *Store) HasOpenResourceSession(path string) bool {
	_, ok := s.sessions.Get(path)
	return ok
}

// GetOpenResourceSession returns the open session for path, if any.
func (s *Store) GetOpenResourceSession(path string) (rsession.Session, bool) {
	return s.sessions.Get(path)
}

// HasAnyOpenResourceSession reports whether this Store currently has at
// least one resource session open, across all paths: true iff at least one
// session exists. TestStore_HasAnyOpenResourceSession in store_test.go pins that
// behavior down since a plausible prior implementation inverted it.
func (s *Store) HasAnyOpenResourceSession() bool {
	return s.sessions.Count() > 0
}

// CloseResourceSession removes and closes the session for path, if one is
// open, deregistering it from the enclosing pool. Returns whether a
// session was actually closed.
func (s *Store) CloseResourceSession(path string) (bool, error) {
	sess, ok := s.sessions.Pop(path)
	if !ok {
		return false, nil
	}
	s.pool.RemoveObject(path, sess)
	if err := sess.Close(); err != nil {
		return true, dberrors.NewIO(fmt.Sprintf("close resource session %s", path), err)
	}
	return true, nil
}

// Close closes every managed session, then clears the map. Teardown is
// best-effort: every session's Close is attempted even if an earlier one
// fails, and the first error encountered is returned.
func (s *Store) Close() error {
	var firstErr error
	for item := range s.sessions.IterBuffered() {
		s.pool.RemoveObject(item.Key, item.Val)
		if err := item.Val.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("resourcestore: close %s: %w", item.Key, err)
		}
	}
	s.sessions.Clear()
	if firstErr != nil {
		return firstErr
	}
	return nil
}
