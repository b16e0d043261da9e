// Package rsession declares the ResourceSession collaborator contract the
// page-tree persistence engine must satisfy: the access layer requires
// only a single active write transaction, the most recent revision
// number, and a close operation. It is deliberately an interface package
// with no implementation so resourcestore, database, and dbmanager can
// depend on the contract without depending on any one collaborator
// (pagestore is this module's concrete implementation).
package rsession

import (
	"time"

	"github.com/evalgo/treedb/buffermgr"
	"github.com/evalgo/treedb/node"
)

// WriteTrx is the single active write transaction a Session may have open
// at a time. Acquiring the resource's write lock before calling
// Session.BeginNodeTrx is the caller's responsibility, not this
// interface's.
type WriteTrx interface {
	// SetDocumentRoot records the transaction's document-root node-delegate
	// (get_document_node's writer-side counterpart), persisted as part of
	// the revision this transaction publishes on Commit. Called at most
	// once per transaction, before Commit.
	SetDocumentRoot(n node.Node) error
	// Commit publishes the transaction's writes as a new revision and
	// returns its revision number. If customTimestamp is the zero Time,
	// implementations use wall-clock time; callers pass epoch zero
	// explicitly to get a deterministic bootstrap commit.
	Commit(customTimestamp time.Time) (revision uint64, err error)
	// Abort discards the transaction's writes without publishing them.
	Abort() error
}

// ReadTrx is a read-only view of one committed revision. Multiple ReadTrx
// may be open concurrently, over the same or different revisions, without
// acquiring the write lock — readers never contend with the single writer.
type ReadTrx interface {
	// Revision is the revision number this transaction observes.
	Revision() uint64
	// Close releases any resources held by the transaction.
	Close() error
}

// Session is a live handle for transacting against one resource.
type Session interface {
	// BeginNodeTrx starts the resource's single write transaction. The
	// caller must already hold the resource's write lock; Session does not
	// enforce that itself — that responsibility belongs to the write-lock
	// registry, not the session.
	BeginNodeTrx() (WriteTrx, error)
	// BeginReadTrx opens a read-only view of the given revision number.
	// Passing 0 opens the most recent revision.
	BeginReadTrx(revision uint64) (ReadTrx, error)
	// MostRecentRevisionNumber is the highest committed revision number;
	// zero means no revision has been committed yet.
	MostRecentRevisionNumber() uint64
	// Close releases the session's resources. Idempotent.
	Close() error
}

// Factory constructs a Session for the resource at path, given the
// resource's buffer manager. bm is resolved by the
// caller from the per-database buffer-manager map before the factory runs.
type Factory func(path string, bm *buffermgr.Manager) (Session, error)

// PageTrxPoolPrimer is an optional capability a Session implementation may
// satisfy: when resourcestore.Store.BeginResourceSession opens a resource
// that already has committed revisions (spec.md §4.4), it type-asserts the
// freshly created Session against this interface and, if present, calls
// PrimePageTrxPool to warm whatever page-transaction pool that collaborator
// maintains. Collaborators with no such pool simply don't implement it.
type PageTrxPoolPrimer interface {
	PrimePageTrxPool()
}
