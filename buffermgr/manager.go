// Package buffermgr implements per-resource LRU cache bundles whose sizing
// depends on the storage backend, and a per-database map from resource path
// to its buffer manager.
//
// Caches are github.com/hashicorp/golang-lru/v2, already reachable
// transitively from the teacher's dependency graph and promoted here to a
// direct, exercised dependency — the natural Go analogue of the
// VictoriaMetrics/fastcache-style bounded caches the rest of the example
// pack reaches for when it needs a sized LRU.
package buffermgr

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/evalgo/treedb/dbconfig"
)

// PageRef is the opaque page/revision reference the caches are keyed by.
// The page-tree persistence collaborator owns the real meaning of this
// value; the buffer manager only needs it to be comparable.
type PageRef uint64

// Manager bundles five LRU caches sized per storage backend: page,
// record-page, and revision-root caches, plus a node-page cache and a
// trail cache for the concrete sizing numbers the policy table specifies.
type Manager struct {
	Page         *lru.Cache[PageRef, []byte]
	RecordPage   *lru.Cache[PageRef, []byte]
	RevisionRoot *lru.Cache[PageRef, []byte]
	NodePage     *lru.Cache[PageRef, []byte]
	Trail        *lru.Cache[PageRef, []byte]
}

// sizes for a given storage backend, per the cache-capacity policy table.
type sizes struct {
	page, recordPage, revisionRoot, nodePage, trail int
}

// envDefaults lets an operator override the policy table's cache-capacity
// numbers without recompiling, reading "TREEDB_<KEY>" variables such as
// TREEDB_PAGE_CACHE_SIZE.
var envDefaults = dbconfig.NewEnvDefaults("TREEDB")

func sizesFor(kind dbconfig.StorageKind) sizes {
	var base sizes
	switch kind {
	case dbconfig.StorageMemoryMapped:
		base = sizes{page: 100, recordPage: 10_000_000, revisionRoot: 100_000, nodePage: 50_000_000, trail: 1_000}
	case dbconfig.StorageFile:
		base = sizes{page: 50_000, recordPage: 10_000_000, revisionRoot: 100_000, nodePage: 50_000_000, trail: 1_000}
	default:
		base = sizes{page: 50_000, recordPage: 10_000_000, revisionRoot: 100_000, nodePage: 50_000_000, trail: 1_000}
	}
	return sizes{
		page:         envDefaults.GetInt("PAGE_CACHE_SIZE", base.page),
		recordPage:   envDefaults.GetInt("RECORD_PAGE_CACHE_SIZE", base.recordPage),
		revisionRoot: envDefaults.GetInt("REVISION_ROOT_CACHE_SIZE", base.revisionRoot),
		nodePage:     envDefaults.GetInt("NODE_PAGE_CACHE_SIZE", base.nodePage),
		trail:        envDefaults.GetInt("TRAIL_CACHE_SIZE", base.trail),
	}
}

// NewManager constructs a Manager sized for the given storage backend.
func NewManager(kind dbconfig.StorageKind) (*Manager, error) {
	s := sizesFor(kind)

	page, err := lru.New[PageRef, []byte](s.page)
	if err != nil {
		return nil, fmt.Errorf("buffermgr: page cache: %w", err)
	}
	recordPage, err := lru.New[PageRef, []byte](s.recordPage)
	if err != nil {
		return nil, fmt.Errorf("buffermgr: record-page cache: %w", err)
	}
	revisionRoot, err := lru.New[PageRef, []byte](s.revisionRoot)
	if err != nil {
		return nil, fmt.Errorf("buffermgr: revision-root cache: %w", err)
	}
	nodePage, err := lru.New[PageRef, []byte](s.nodePage)
	if err != nil {
		return nil, fmt.Errorf("buffermgr: node-page cache: %w", err)
	}
	trail, err := lru.New[PageRef, []byte](s.trail)
	if err != nil {
		return nil, fmt.Errorf("buffermgr: trail cache: %w", err)
	}

	return &Manager{
		Page:         page,
		RecordPage:   recordPage,
		RevisionRoot: revisionRoot,
		NodePage:     nodePage,
		Trail:        trail,
	}, nil
}

// Purge clears every cache, releasing references to cached page bytes.
func (m *Manager) Purge() {
	m.Page.Purge()
	m.RecordPage.Purge()
	m.RevisionRoot.Purge()
	m.NodePage.Purge()
	m.Trail.Purge()
}
