// Package dbmanager implements the process-wide façade for
// create/open/truncate/exists operations, coordinating cross-process
// exclusion via a lock file and dispatching to the per-format (XML, JSON)
// session factory.
package dbmanager

import (
	"fmt"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/evalgo/treedb/database"
	"github.com/evalgo/treedb/dbconfig"
	"github.com/evalgo/treedb/dberrors"
	"github.com/evalgo/treedb/dbtype"
	"github.com/evalgo/treedb/pagestore"
	"github.com/evalgo/treedb/pathpool"
	"github.com/evalgo/treedb/respaths"
	"github.com/evalgo/treedb/rsession"
	"github.com/evalgo/treedb/writelock"
)

// Manager is the process-wide façade. Operations are serialized against
// each other via mu, since each one inspects and mutates global directory
// state.
type Manager struct {
	mu sync.Mutex

	codec            dbconfig.Codec
	databaseSessions *pathpool.Pool[*database.Handle]
	resourceSessions *pathpool.Pool[rsession.Session]
	writeLocks       *writelock.Registry
	factories        map[dbtype.Type]rsession.Factory

	log     *logrus.Entry
	metrics *Metrics
}

// NewManager constructs a Manager with a factory for every DatabaseType
// variant. The access layer's minimal page-tree collaborator (pagestore)
// does not vary by data-model flavor — XML and JSON resources differ only
// in which node-model document root dbtype.Type constructs, not in how
// their pages are persisted — so both entries share one factory.
//
// Metrics are disabled by default; use NewManagerWithRegistry to opt in.
func NewManager(codec dbconfig.Codec) *Manager {
	return newManager(codec, nil)
}

// NewManagerWithRegistry is NewManager with Prometheus instrumentation
// registered against reg. reg is typically a *prometheus.Registry owned by
// the embedding application; passing nil is equivalent to NewManager.
func NewManagerWithRegistry(codec dbconfig.Codec, reg prometheus.Registerer) *Manager {
	return newManager(codec, reg)
}

func newManager(codec dbconfig.Codec, reg prometheus.Registerer) *Manager {
	factory := pagestore.NewFactory()
	return &Manager{
		codec:            codec,
		databaseSessions: pathpool.New[*database.Handle](),
		resourceSessions: pathpool.New[rsession.Session](),
		writeLocks:       writelock.NewRegistry(),
		factories: map[dbtype.Type]rsession.Factory{
			dbtype.XML:  factory,
			dbtype.JSON: factory,
		},
		log:     logrus.WithField("component", "dbmanager"),
		metrics: newMetrics(reg),
	}
}

// existingHandle returns the already-open Handle registered for dir, if
// any. The database-sessions pool is the single source of truth: a Handle
// deregisters itself from it in Close, so this never goes stale.
func (m *Manager) existingHandle(dir string) (*database.Handle, bool) {
	entries := m.databaseSessions.AsMap()[dir]
	if len(entries) == 0 {
		return nil, false
	}
	return entries[0], true
}

// CreateDatabase refuses if dir already exists; otherwise it creates the
// directory tree DatabasePaths mandates and serializes the configuration.
// Any failure recursively removes the partial tree.
func (m *Manager) CreateDatabase(dir, name string, t dbtype.Type) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if respaths.Exists(dir) {
		return dberrors.NewUsage("create database", fmt.Errorf("database directory %s already exists", dir))
	}

	succeeded := false
	defer func() {
		if !succeeded {
			_ = respaths.RemoveAll(dir)
		}
	}()

	if err := respaths.MkdirAll(dir); err != nil {
		return dberrors.NewIO("create database directory", err)
	}
	if err := respaths.MkdirAll(respaths.DataDir(dir)); err != nil {
		return dberrors.NewIO("create data directory", err)
	}

	config := dbconfig.NewDatabaseConfig(dir, name, t)
	if err := m.codec.WriteDatabaseConfig(respaths.ConfigPath(dir), config); err != nil {
		return dberrors.NewIO("write database config", err)
	}

	succeeded = true
	m.log.WithFields(logrus.Fields{"database": dir, "name": name, "type": t}).Info("database created")
	if m.metrics != nil {
		m.metrics.DatabasesCreated.Inc()
	}
	return nil
}

// OpenDatabase requires dir to exist, deserializes its configuration,
// builds the Handle via the matching per-format factory, and creates the
// lock file. A lock file that already exists with no in-process Handle
// registered is treated as fatal: it signals a foreign process or a
// crashed prior run, and recovering from the latter is an operator's
// manual-removal decision, not this module's.
//
// If a Handle is already registered for dir in this process, OpenDatabase
// returns it rather than erroring — erroring instead was a plausible
// alternative, resolved here in favor of idempotent reuse, which is what
// TestManager_OpenDatabaseIsIdempotentWithinProcess pins down.
func (m *Manager) OpenDatabase(dir string) (*database.Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.existingHandle(dir); ok {
		return existing, nil
	}

	if !respaths.Exists(dir) {
		return nil, dberrors.NewUsage("open database", fmt.Errorf("database directory %s does not exist", dir))
	}

	config, err := m.codec.ReadDatabaseConfig(respaths.ConfigPath(dir))
	if err != nil {
		return nil, dberrors.NewConfig("read database config", err)
	}

	factory, ok := m.factories[config.Type]
	if !ok {
		return nil, dberrors.NewConfig("open database", fmt.Errorf("unsupported database type %s", config.Type))
	}

	lockPath := respaths.LockPath(dir)
	if err := respaths.Touch(lockPath); err != nil {
		if os.IsExist(err) {
			m.log.WithField("database", dir).Error("refusing to open: foreign lock file present with no in-process handle")
			return nil, dberrors.NewUsage("open database", fmt.Errorf("lock file present at %s with no in-process handle: foreign process or crashed prior run", lockPath))
		}
		return nil, dberrors.NewIO("create lock file", err)
	}

	handle, err := database.Open(dir, config, m.codec, factory, m.resourceSessions, m.writeLocks, m.databaseSessions)
	if err != nil {
		_ = respaths.RemoveAll(lockPath)
		return nil, dberrors.NewIO("open database handle", err)
	}
	m.log.WithField("database", dir).Info("database opened")
	if m.metrics != nil {
		m.metrics.DatabasesOpened.Inc()
	}
	return handle, nil
}

// TruncateDatabase refuses if any Handle is registered for dir; otherwise
// it recursively removes the directory.
func (m *Manager) TruncateDatabase(dir string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.databaseSessions.ContainsAnyEntry(dir) {
		return dberrors.NewUsage("truncate database", fmt.Errorf("database %s has an open handle", dir))
	}
	if err := respaths.RemoveAll(dir); err != nil {
		return dberrors.NewIO("truncate database", err)
	}
	m.log.WithField("database", dir).Warn("database truncated")
	if m.metrics != nil {
		m.metrics.DatabasesTruncated.Inc()
	}
	return nil
}

// ExistsDatabase reports whether dir exists and matches the canonical
// database directory structure (a config file and a data directory).
func (m *Manager) ExistsDatabase(dir string) bool {
	return respaths.Exists(dir) && respaths.Exists(respaths.ConfigPath(dir)) && respaths.Exists(respaths.DataDir(dir))
}
