// Package dbconfig holds the immutable-after-construction database and
// resource configuration types and their collaborator-provided
// (de)serialization, grounded on the teacher's gopkg.in/yaml.v3 usage and
// registry/registry.go's load/save pattern.
package dbconfig

import (
	"fmt"
	"sync/atomic"

	"github.com/evalgo/treedb/dbtype"
)

// StorageKind selects the storage backend a resource's page store binds to.
type StorageKind int

const (
	// StorageMemoryMapped backs a resource with a memory-mapped store —
	// see buffermgr's sizing policy for the larger cache budgets this
	// implies.
	StorageMemoryMapped StorageKind = iota
	// StorageFile backs a resource with a plain file-backed store.
	StorageFile
)

func (k StorageKind) String() string {
	switch k {
	case StorageMemoryMapped:
		return "memory-mapped"
	case StorageFile:
		return "file"
	default:
		return fmt.Sprintf("storagekind(%d)", int(k))
	}
}

// HashingKind selects the per-node hashing policy.
type HashingKind int

const (
	// HashingNone disables structural hashing.
	HashingNone HashingKind = iota
	// HashingRolling maintains a rolling hash as nodes are inserted.
	HashingRolling
	// HashingPostorder computes hashes in a postorder pass at commit time.
	HashingPostorder
)

func (k HashingKind) String() string {
	switch k {
	case HashingNone:
		return "none"
	case HashingRolling:
		return "rolling"
	case HashingPostorder:
		return "postorder"
	default:
		return fmt.Sprintf("hashingkind(%d)", int(k))
	}
}

// DatabaseConfig is immutable after construction except for MaxResourceID,
// which is monotonically non-decreasing and is mutated only via
// NextResourceID and EnsureMaxResourceID (neither ever lowers it).
type DatabaseConfig struct {
	// Path is the database directory.
	Path string `yaml:"path"`
	// Name is the database name.
	Name string `yaml:"name"`
	// Type is the data-model flavor: XML or JSON.
	Type dbtype.Type `yaml:"type"`

	maxResourceID atomic.Uint64
}

// NewDatabaseConfig constructs a DatabaseConfig with MaxResourceID starting
// at zero.
func NewDatabaseConfig(path, name string, t dbtype.Type) *DatabaseConfig {
	return &DatabaseConfig{Path: path, Name: name, Type: t}
}

// MaxResourceID returns the highest resource ID assigned so far.
func (c *DatabaseConfig) MaxResourceID() uint64 {
	return c.maxResourceID.Load()
}

// NextResourceID atomically assigns and returns the next resource ID,
// incrementing the database's max-resource-ID counter. This is the single
// mutation point for the bijection invariant's monotonic counter. Callers
// must persist the DatabaseConfig (via a Codec) after calling this, or the
// advance is lost on the next process restart.
func (c *DatabaseConfig) NextResourceID() uint64 {
	return c.maxResourceID.Add(1) - 1
}

// EnsureMaxResourceID advances the max-resource-ID counter to at least min
// if it currently sits below that, and is a no-op otherwise. It lets
// database.Open self-heal a DatabaseConfig whose persisted counter fell
// behind the resources actually present on disk (e.g. a config write that
// was lost between a resource's creation and a crash).
func (c *DatabaseConfig) EnsureMaxResourceID(min uint64) {
	for {
		cur := c.maxResourceID.Load()
		if cur >= min {
			return
		}
		if c.maxResourceID.CompareAndSwap(cur, min) {
			return
		}
	}
}

// snapshot is the wire shape used for (de)serialization: atomic.Uint64 has
// no zero-cost yaml mapping, so marshaling goes through this plain struct.
type snapshot struct {
	Path          string      `yaml:"path"`
	Name          string      `yaml:"name"`
	Type          dbtype.Type `yaml:"type"`
	MaxResourceID uint64      `yaml:"maxResourceId"`
}

// ResourceConfig is immutable after construction. ID is assigned once by
// DatabaseConfig.NextResourceID and never changes thereafter.
type ResourceConfig struct {
	// Name is the resource name, unique within its database.
	Name string `yaml:"name"`
	// ID is the resource's assigned ID, unique within its database.
	ID uint64 `yaml:"id"`
	// Storage selects the backing store kind.
	Storage StorageKind `yaml:"storage"`
	// ByteHandlers names the byte-handler pipeline applied between memory
	// and storage, e.g. ["snappy"] or ["snappy", "aes-gcm"]. This module
	// only stores the names and checks them in Encrypted; it does not run
	// the handlers on page data itself.
	ByteHandlers []string `yaml:"byteHandlers,omitempty"`
	// Hashing selects the per-node hashing policy.
	Hashing HashingKind `yaml:"hashing"`
	// CustomCommitTimestamps, when true, makes the bootstrap commit made by
	// CreateResource use epoch zero instead of wall-clock time. Later
	// commits are not affected: a commit given the zero Time still records
	// wall-clock time.
	CustomCommitTimestamps bool `yaml:"customCommitTimestamps"`
}

// Encrypted reports whether the byte-handler pipeline includes encryption.
func (c *ResourceConfig) Encrypted() bool {
	for _, h := range c.ByteHandlers {
		if h == "aes-gcm" || h == "chacha20poly1305" {
			return true
		}
	}
	return false
}
