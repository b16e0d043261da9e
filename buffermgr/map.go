package buffermgr

import (
	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/evalgo/treedb/dbconfig"
)

// Map is the per-database path-to-buffer-manager registry: entries are
// created lazily on first resource-session open and evicted on resource
// removal.
type Map struct {
	managers cmap.ConcurrentMap[string, *Manager]
}

// NewMap constructs an empty Map.
func NewMap() *Map {
	return &Map{managers: cmap.New[*Manager]()}
}

// GetOrCreate returns the Manager for path, creating one sized for kind if
// absent. Safe under concurrent first-open races: racing callers may each
// build a Manager, but exactly one is stored for path and returned to all
// of them.
func (m *Map) GetOrCreate(path string, kind dbconfig.StorageKind) (*Manager, error) {
	if existing, ok := m.managers.Get(path); ok {
		return existing, nil
	}
	fresh, err := NewManager(kind)
	if err != nil {
		return nil, err
	}
	return m.managers.Upsert(path, fresh, func(exists bool, valueInMap, newValue *Manager) *Manager {
		if exists {
			return valueInMap
		}
		return newValue
	}), nil
}

// Get returns the Manager for path, if one exists.
func (m *Map) Get(path string) (*Manager, bool) {
	return m.managers.Get(path)
}

// Remove evicts the Manager entry for path. It drops only the buffer entry;
// database.Handle.RemoveResource drops the write-lock entry separately.
func (m *Map) Remove(path string) {
	m.managers.Remove(path)
}

// Count returns the number of resources with an active buffer manager.
func (m *Map) Count() int {
	return m.managers.Count()
}
