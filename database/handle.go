// Package database implements the per-opened-database façade owning its
// configuration, its resource-name↔ID bijection, its resource store, and
// its per-resource buffer-manager map.
package database

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/evalgo/treedb/buffermgr"
	"github.com/evalgo/treedb/dbconfig"
	"github.com/evalgo/treedb/dbcrypto"
	"github.com/evalgo/treedb/dberrors"
	"github.com/evalgo/treedb/pathpool"
	"github.com/evalgo/treedb/resourcestore"
	"github.com/evalgo/treedb/respaths"
	"github.com/evalgo/treedb/rsession"
	"github.com/evalgo/treedb/writelock"
)

// Handle is the per-opened-database façade. Created by dbmanager.Manager on
// open, registered into the process-wide database-sessions pool, and
// irrevocably transitions OPEN -> CLOSED on Close.
type Handle struct {
	// mu guards the bijection maps and serializes CreateResource/
	// RemoveResource mutators: the per-database resource store and bijection
	// are guarded by this handle's coarse instance lock.
	mu sync.Mutex

	dir    string
	config *dbconfig.DatabaseConfig
	codec  dbconfig.Codec

	buffers   *buffermgr.Map
	resources *resourcestore.Store

	// writeLocks and databaseSessions are process-wide collaborators
	// shared across every open Handle; this Handle only registers and
	// deregisters itself and its resources' entries, it does not own
	// their lifecycle.
	writeLocks       *writelock.Registry
	databaseSessions *pathpool.Pool[*Handle]

	nameToID map[string]uint64
	idToName map[uint64]string

	closed atomic.Bool

	// log carries the database directory and name as structured fields,
	// the same pre-populated-entry pattern the teacher's
	// common.ServiceLogger uses for service/version fields.
	log *logrus.Entry
}

// Open constructs a Handle for an already-validated, already-existing
// database directory, populates its resource bijection by scanning the
// data directory for already-created resources, and registers itself in
// databaseSessions. Callers (dbmanager.Manager) are responsible for the
// lock-file acquisition and per-format factory dispatch.
func Open(
	dir string,
	config *dbconfig.DatabaseConfig,
	codec dbconfig.Codec,
	sessionFactory rsession.Factory,
	resourceSessions *pathpool.Pool[rsession.Session],
	writeLocks *writelock.Registry,
	databaseSessions *pathpool.Pool[*Handle],
) (*Handle, error) {
	h := &Handle{
		dir:              dir,
		config:           config,
		codec:            codec,
		buffers:          buffermgr.NewMap(),
		resources:        resourcestore.New(resourceSessions, sessionFactory),
		writeLocks:       writeLocks,
		databaseSessions: databaseSessions,
		nameToID:         make(map[string]uint64),
		idToName:         make(map[uint64]string),
		log:              logrus.WithFields(logrus.Fields{"database": dir, "name": config.Name}),
	}

	entries, err := os.ReadDir(respaths.DataDir(dir))
	if err != nil && !os.IsNotExist(err) {
		return nil, dberrors.NewIO("scan data directory", err)
	}
	var highestSeen uint64
	anySeen := false
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		resourceDir := respaths.ResourcePath(dir, entry.Name())
		rc, err := codec.ReadResourceConfig(respaths.ResourceConfigPath(resourceDir))
		if err != nil {
			return nil, dberrors.NewConfig(fmt.Sprintf("read resource config for %q", entry.Name()), err)
		}
		h.nameToID[rc.Name] = rc.ID
		h.idToName[rc.ID] = rc.Name
		if !anySeen || rc.ID > highestSeen {
			highestSeen = rc.ID
			anySeen = true
		}
	}
	// Self-heal: if the persisted counter fell behind the resources actually
	// on disk (e.g. a database config write lost to a crash between a
	// resource's creation and its own config flush), advance it past every
	// ID already in use so the bijection never reissues one.
	if anySeen {
		config.EnsureMaxResourceID(highestSeen + 1)
	}

	databaseSessions.PutObject(dir, h)
	h.log.WithField("resources", len(h.nameToID)).Debug("database handle opened")
	return h, nil
}

// IsOpen reports whether the database has not yet been closed.
func (h *Handle) IsOpen() bool {
	return !h.closed.Load()
}

func (h *Handle) requireOpen(op string) error {
	if h.closed.Load() {
		return dberrors.NewState(op + ": database is closed")
	}
	return nil
}

// CreateResource validates that the named resource does not already exist,
// creates its mandated directory substructure, optionally generates and
// persists an encryption key set, assigns its resource ID from the
// database's monotonic counter, persists its configuration, updates the
// bijection, and bootstraps it by committing an initial empty revision. Any
// failure along the way recursively removes the partial substructure and
// any partial in-memory registration.
func (h *Handle) CreateResource(name string, storage dbconfig.StorageKind, byteHandlers []string, hashing dbconfig.HashingKind, customCommitTimestamps bool) error {
	if err := h.requireOpen("create resource"); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	resourceDir := respaths.ResourcePath(h.dir, name)
	if respaths.Exists(resourceDir) {
		return dberrors.NewUsage("create resource", fmt.Errorf("resource %q already exists", name))
	}

	var resourceID uint64
	bijectionAssigned := false
	succeeded := false
	defer func() {
		if succeeded {
			return
		}
		h.log.WithField("resource", name).Warn("create_resource failed, rolling back partial substructure")
		if bijectionAssigned {
			delete(h.nameToID, name)
			delete(h.idToName, resourceID)
		}
		_, _ = h.resources.CloseResourceSession(resourceDir)
		h.buffers.Remove(resourceDir)
		_ = respaths.RemoveAll(resourceDir)
	}()

	if err := respaths.MkdirAll(resourceDir); err != nil {
		return dberrors.NewIO("create resource directory", err)
	}
	for _, dir := range respaths.MandatorySubdirs(resourceDir) {
		if err := respaths.MkdirAll(dir); err != nil {
			return dberrors.NewIO("create resource subdirectory", err)
		}
	}

	rc := &dbconfig.ResourceConfig{
		Name:                   name,
		Storage:                storage,
		ByteHandlers:           byteHandlers,
		Hashing:                hashing,
		CustomCommitTimestamps: customCommitTimestamps,
	}

	if rc.Encrypted() {
		ks, err := dbcrypto.Generate()
		if err != nil {
			return dberrors.NewBootstrap(name, err)
		}
		if err := ks.WriteFile(respaths.EncryptionKeyPath(resourceDir)); err != nil {
			return dberrors.NewBootstrap(name, err)
		}
	}

	resourceID = h.config.NextResourceID()
	rc.ID = resourceID

	// The advanced counter must reach disk before anything else observes
	// resourceID, or a crash (or a later reopen) would hand the same ID out
	// twice and break the monotonic name<->ID bijection.
	if err := h.codec.WriteDatabaseConfig(respaths.ConfigPath(h.dir), h.config); err != nil {
		return dberrors.NewBootstrap(name, err)
	}

	if err := h.codec.WriteResourceConfig(respaths.ResourceConfigPath(resourceDir), rc); err != nil {
		return dberrors.NewBootstrap(name, err)
	}

	h.nameToID[name] = resourceID
	h.idToName[resourceID] = name
	bijectionAssigned = true

	bm, err := h.buffers.GetOrCreate(resourceDir, storage)
	if err != nil {
		return dberrors.NewBootstrap(name, err)
	}

	sess, err := h.resources.BeginResourceSession(resourceDir, bm)
	if err != nil {
		return dberrors.NewBootstrap(name, err)
	}

	wtx, err := sess.BeginNodeTrx()
	if err != nil {
		return dberrors.NewBootstrap(name, err)
	}

	// Bootstrap the resource's document-root node-delegate (get_document_node)
	// so the first revision is a real, if empty, document rather than a bare
	// commit marker.
	root, err := h.config.Type.DocumentRootNode(nil)
	if err != nil {
		_ = wtx.Abort()
		return dberrors.NewBootstrap(name, err)
	}
	if err := wtx.SetDocumentRoot(root); err != nil {
		_ = wtx.Abort()
		return dberrors.NewBootstrap(name, err)
	}

	commitTimestamp := time.Now()
	if customCommitTimestamps {
		commitTimestamp = time.Unix(0, 0)
	}
	if _, err := wtx.Commit(commitTimestamp); err != nil {
		_ = wtx.Abort()
		return dberrors.NewBootstrap(name, err)
	}

	// The bootstrap session has served its purpose (establishing the first
	// revision); close it so a fresh BeginResourceSession call is what hands
	// out the resource's first real session — create_resource does not
	// itself return a live session.
	if _, err := h.resources.CloseResourceSession(resourceDir); err != nil {
		return dberrors.NewBootstrap(name, err)
	}

	succeeded = true
	h.log.WithFields(logrus.Fields{"resource": name, "id": resourceID}).Info("resource created")
	return nil
}

// BeginResourceSession returns the already-open session for name if one
// exists; otherwise it deserializes the resource configuration, updates the
// bijection, ensures a buffer manager exists, and delegates to the resource
// store.
func (h *Handle) BeginResourceSession(name string) (rsession.Session, error) {
	if err := h.requireOpen("begin resource session"); err != nil {
		return nil, err
	}

	resourceDir := respaths.ResourcePath(h.dir, name)
	if sess, ok := h.resources.GetOpenResourceSession(resourceDir); ok {
		return sess, nil
	}
	if !respaths.Exists(resourceDir) {
		return nil, dberrors.NewUsage("begin resource session", fmt.Errorf("resource %q does not exist", name))
	}

	rc, err := h.codec.ReadResourceConfig(respaths.ResourceConfigPath(resourceDir))
	if err != nil {
		return nil, dberrors.NewConfig(fmt.Sprintf("read resource config for %q", name), err)
	}

	h.mu.Lock()
	h.nameToID[name] = rc.ID
	h.idToName[rc.ID] = name
	h.mu.Unlock()

	bm, err := h.buffers.GetOrCreate(resourceDir, rc.Storage)
	if err != nil {
		return nil, dberrors.NewIO("create buffer manager", err)
	}

	sess, err := h.resources.BeginResourceSession(resourceDir, bm)
	if err != nil {
		return nil, dberrors.NewIO("begin resource session", err)
	}
	return sess, nil
}

// RemoveResource refuses if a session is currently open for name; otherwise
// it recursively removes the on-disk substructure and drops the
// write-lock and buffer-manager entries.
func (h *Handle) RemoveResource(name string) error {
	if err := h.requireOpen("remove resource"); err != nil {
		return err
	}

	resourceDir := respaths.ResourcePath(h.dir, name)
	if h.resources.HasOpenResourceSession(resourceDir) {
		return dberrors.NewUsage("remove resource", fmt.Errorf("resource %q has an open session", name))
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := respaths.RemoveAll(resourceDir); err != nil {
		return dberrors.NewIO("remove resource directory", err)
	}
	h.writeLocks.RemoveWriteLock(resourceDir)
	h.buffers.Remove(resourceDir)
	if id, ok := h.nameToID[name]; ok {
		delete(h.nameToID, name)
		delete(h.idToName, id)
	}
	return nil
}

// WriteLock returns the reentrant exclusive lock guarding writes to name.
// Callers acquire it before calling Session.BeginNodeTrx and release it
// after Commit or Abort returns; the Handle itself does not acquire it on
// the caller's behalf, since only the caller knows the extent of its own
// transactional region.
func (h *Handle) WriteLock(name string) *writelock.Lock {
	return h.writeLocks.GetWriteLock(respaths.ResourcePath(h.dir, name))
}

// ExistsResource reports whether name exists on disk.
func (h *Handle) ExistsResource(name string) (bool, error) {
	if err := h.requireOpen("exists resource"); err != nil {
		return false, err
	}
	return respaths.Exists(respaths.ResourcePath(h.dir, name)), nil
}

// ListResources returns the names of every resource this database knows
// about, from its bijection (populated at Open and kept current by
// CreateResource/RemoveResource/BeginResourceSession).
func (h *Handle) ListResources() ([]string, error) {
	if err := h.requireOpen("list resources"); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	names := make([]string, 0, len(h.nameToID))
	for name := range h.nameToID {
		names = append(names, name)
	}
	return names, nil
}

// GetResourceName looks up the name bound to id.
func (h *Handle) GetResourceName(id uint64) (string, bool, error) {
	if err := h.requireOpen("get resource name"); err != nil {
		return "", false, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	name, ok := h.idToName[id]
	return name, ok, nil
}

// GetResourceID looks up the ID bound to name.
func (h *Handle) GetResourceID(name string) (uint64, bool, error) {
	if err := h.requireOpen("get resource id"); err != nil {
		return 0, false, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	id, ok := h.nameToID[name]
	return id, ok, nil
}

// Close is idempotent: it marks the handle closed, closes the resource
// store, deregisters from the database-sessions pool, and removes the
// lock file. Once closed the OPEN -> CLOSED transition is irrevocable.
func (h *Handle) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}

	closeErr := h.resources.Close()
	h.databaseSessions.RemoveObject(h.dir, h)

	if err := respaths.RemoveAll(respaths.LockPath(h.dir)); err != nil && closeErr == nil {
		closeErr = dberrors.NewIO("remove lock file", err)
	}

	if closeErr != nil {
		h.log.WithError(closeErr).Warn("error while closing database handle")
	} else {
		h.log.Debug("database handle closed")
	}
	return closeErr
}
