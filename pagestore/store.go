// Package pagestore is the access layer's concrete, minimal implementation
// of the page-tree persistence collaborator: the external engine treated
// as a pluggable dependency by the rest of this module. It backs a
// ResourceSession with go.etcd.io/bbolt, a teacher dependency already used
// for embedded KV storage — bbolt's own copy-on-write MVCC B+tree is a
// faithful, testable analogue of an uber-page atomically swung on commit:
// a bbolt write transaction's Commit is exactly that swing, and concurrent
// readers already see a consistent, pre-commit snapshot for free from
// bbolt's own MVCC guarantees.
//
// This is intentionally not a full page-tree/index/query engine — that
// remains out of scope. It exists so every access-layer operation that
// needs to be testable (revision visibility, bootstrap commit,
// single-writer exclusion) has a real collaborator to run against instead
// of a mock.
package pagestore

import (
	"encoding/binary"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/evalgo/treedb/buffermgr"
	"github.com/evalgo/treedb/node"
	"github.com/evalgo/treedb/respaths"
	"github.com/evalgo/treedb/rsession"
)

var (
	metaBucket      = []byte("meta")
	revisionsBucket = []byte("revisions")
	maxRevisionKey  = []byte("maxRevision")
	committedAtKey  = []byte("committedAt")
	documentRootKey = []byte("documentRoot")
)

// Store is the bbolt-backed ResourceSession implementation.
type Store struct {
	db *bolt.DB
	bm *buffermgr.Manager
}

var (
	_ rsession.Session           = (*Store)(nil)
	_ rsession.PageTrxPoolPrimer = (*Store)(nil)
)

// Open opens (creating if absent) the bbolt file at path and returns a
// ready-to-use Store. bm may be nil if no buffer manager is wired.
func Open(path string, bm *buffermgr.Manager) (*Store, error) {
	db, err := bolt.Open(path, 0o640, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("pagestore: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(metaBucket); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(revisionsBucket); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pagestore: initialize %s: %w", path, err)
	}
	return &Store{db: db, bm: bm}, nil
}

// NewFactory returns the rsession.Factory resourcestore.Store uses to open
// sessions for this data-model flavor's resources. The factory receives a
// resource *directory* (resourcestore.Store.BeginResourceSession's path
// argument is always respaths.ResourcePath(...)), so it routes Open to
// respaths.StoragePath(path) — the actual bbolt file within that directory
// — rather than handing the directory itself to bolt.Open.
func NewFactory() rsession.Factory {
	return func(path string, bm *buffermgr.Manager) (rsession.Session, error) {
		return Open(respaths.StoragePath(path), bm)
	}
}

// PrimePageTrxPool implements rsession.PageTrxPoolPrimer. bbolt has no
// separate page-transaction pool to warm — its own MVCC snapshotting
// already makes an existing revision cheap to read on first access — so
// this is a documented no-op. It still exists (and is called by
// resourcestore.Store.BeginResourceSession) so the hook point stays
// reachable rather than inlined away.
func (s *Store) PrimePageTrxPool() {}

// MostRecentRevisionNumber returns the highest committed revision number;
// zero means no revision has been committed yet.
func (s *Store) MostRecentRevisionNumber() uint64 {
	var rev uint64
	_ = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(metaBucket)
		if b == nil {
			return nil
		}
		if raw := b.Get(maxRevisionKey); raw != nil {
			rev = binary.BigEndian.Uint64(raw)
		}
		return nil
	})
	return rev
}

// BeginNodeTrx starts the resource's single write transaction. bbolt
// itself serializes writable transactions (Begin(true) blocks until any
// prior writable transaction completes), which is what makes this
// collaborator's "single active writer" guarantee real rather than
// advisory — on top of the caller already holding the resource's
// writelock.Lock.
func (s *Store) BeginNodeTrx() (rsession.WriteTrx, error) {
	tx, err := s.db.Begin(true)
	if err != nil {
		return nil, fmt.Errorf("pagestore: begin write trx: %w", err)
	}
	return &writeTrx{tx: tx}, nil
}

// BeginReadTrx opens a read-only view. Passing 0 opens the most recent
// revision at the moment of the call; bbolt's read transactions pin a
// consistent snapshot for their lifetime regardless of later writers.
func (s *Store) BeginReadTrx(revision uint64) (rsession.ReadTrx, error) {
	tx, err := s.db.Begin(false)
	if err != nil {
		return nil, fmt.Errorf("pagestore: begin read trx: %w", err)
	}
	if revision == 0 {
		b := tx.Bucket(metaBucket)
		if b != nil {
			if raw := b.Get(maxRevisionKey); raw != nil {
				revision = binary.BigEndian.Uint64(raw)
			}
		}
	}
	return &readTrx{tx: tx, revision: revision}, nil
}

// Close releases the underlying bbolt file handle. Idempotent.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("pagestore: close: %w", err)
	}
	return nil
}

type writeTrx struct {
	tx           *bolt.Tx
	done         bool
	documentRoot *node.Node
}

// SetDocumentRoot stages n to be persisted alongside the revision this
// transaction publishes on Commit.
func (t *writeTrx) SetDocumentRoot(n node.Node) error {
	if t.done {
		return fmt.Errorf("pagestore: transaction already finished")
	}
	t.documentRoot = &n
	return nil
}

// Commit publishes the transaction as a new revision. If customTimestamp
// is the zero time, wall-clock time is recorded instead — callers pass
// time.Unix(0, 0) explicitly for a deterministic bootstrap commit when
// ResourceConfig.CustomCommitTimestamps is set.
func (t *writeTrx) Commit(customTimestamp time.Time) (uint64, error) {
	if t.done {
		return 0, fmt.Errorf("pagestore: transaction already finished")
	}
	t.done = true

	meta := t.tx.Bucket(metaBucket)
	revisions := t.tx.Bucket(revisionsBucket)
	if meta == nil || revisions == nil {
		_ = t.tx.Rollback()
		return 0, fmt.Errorf("pagestore: corrupt store: missing meta or revisions bucket")
	}

	next := uint64(1)
	if raw := meta.Get(maxRevisionKey); raw != nil {
		next = binary.BigEndian.Uint64(raw) + 1
	}

	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, next)
	revBucket, err := revisions.CreateBucket(key)
	if err != nil {
		_ = t.tx.Rollback()
		return 0, fmt.Errorf("pagestore: create revision bucket: %w", err)
	}

	ts := customTimestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	tsBytes, err := ts.UTC().MarshalBinary()
	if err != nil {
		_ = t.tx.Rollback()
		return 0, fmt.Errorf("pagestore: marshal commit timestamp: %w", err)
	}
	if err := revBucket.Put(committedAtKey, tsBytes); err != nil {
		_ = t.tx.Rollback()
		return 0, fmt.Errorf("pagestore: record commit timestamp: %w", err)
	}

	if t.documentRoot != nil {
		data := make([]byte, 1+len(t.documentRoot.DeweyID))
		data[0] = byte(t.documentRoot.Kind)
		copy(data[1:], t.documentRoot.DeweyID)
		if err := revBucket.Put(documentRootKey, data); err != nil {
			_ = t.tx.Rollback()
			return 0, fmt.Errorf("pagestore: record document root: %w", err)
		}
	}

	newMax := make([]byte, 8)
	binary.BigEndian.PutUint64(newMax, next)
	if err := meta.Put(maxRevisionKey, newMax); err != nil {
		_ = t.tx.Rollback()
		return 0, fmt.Errorf("pagestore: advance max revision: %w", err)
	}

	if err := t.tx.Commit(); err != nil {
		return 0, fmt.Errorf("pagestore: commit: %w", err)
	}
	return next, nil
}

// Abort discards the transaction's writes.
func (t *writeTrx) Abort() error {
	if t.done {
		return fmt.Errorf("pagestore: transaction already finished")
	}
	t.done = true
	if err := t.tx.Rollback(); err != nil {
		return fmt.Errorf("pagestore: abort: %w", err)
	}
	return nil
}

type readTrx struct {
	tx       *bolt.Tx
	revision uint64
}

// Revision returns the revision number this transaction observes.
func (t *readTrx) Revision() uint64 {
	return t.revision
}

// Close releases the underlying bbolt read transaction.
func (t *readTrx) Close() error {
	if err := t.tx.Rollback(); err != nil {
		return fmt.Errorf("pagestore: close read trx: %w", err)
	}
	return nil
}
