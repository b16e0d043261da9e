package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalgo/treedb/dbconfig"
	"github.com/evalgo/treedb/dberrors"
	"github.com/evalgo/treedb/dbtype"
	"github.com/evalgo/treedb/pagestore"
	"github.com/evalgo/treedb/pathpool"
	"github.com/evalgo/treedb/respaths"
	"github.com/evalgo/treedb/rsession"
	"github.com/evalgo/treedb/writelock"
)

func newTestHandle(t *testing.T) *Handle {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, respaths.MkdirAll(respaths.DataDir(dir)))

	config := dbconfig.NewDatabaseConfig(dir, "testdb", dbtype.XML)
	h, err := Open(
		dir,
		config,
		dbconfig.YAMLCodec{},
		pagestore.NewFactory(),
		pathpool.New[rsession.Session](),
		writelock.NewRegistry(),
		pathpool.New[*Handle](),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestHandle_CreateResourceBootstrapsFirstRevision(t *testing.T) {
	h := newTestHandle(t)

	require.NoError(t, h.CreateResource("orders", dbconfig.StorageFile, nil, dbconfig.HashingNone, false))

	exists, err := h.ExistsResource("orders")
	require.NoError(t, err)
	assert.True(t, exists)

	id, ok, err := h.GetResourceID("orders")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(0), id)

	name, ok, err := h.GetResourceName(0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "orders", name)
}

func TestHandle_CreateResourceAssignsIncreasingIDs(t *testing.T) {
	h := newTestHandle(t)

	require.NoError(t, h.CreateResource("a", dbconfig.StorageFile, nil, dbconfig.HashingNone, false))
	require.NoError(t, h.CreateResource("b", dbconfig.StorageFile, nil, dbconfig.HashingNone, false))

	idA, _, err := h.GetResourceID("a")
	require.NoError(t, err)
	idB, _, err := h.GetResourceID("b")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), idA)
	assert.Equal(t, uint64(1), idB)
}

func TestHandle_CreateResourceRefusesIfAlreadyExists(t *testing.T) {
	h := newTestHandle(t)
	require.NoError(t, h.CreateResource("orders", dbconfig.StorageFile, nil, dbconfig.HashingNone, false))

	err := h.CreateResource("orders", dbconfig.StorageFile, nil, dbconfig.HashingNone, false)
	require.Error(t, err)
	var usageErr *dberrors.UsageError
	assert.ErrorAs(t, err, &usageErr)
}

func TestHandle_BeginResourceSessionReturnsSameSessionOnReopen(t *testing.T) {
	h := newTestHandle(t)
	require.NoError(t, h.CreateResource("orders", dbconfig.StorageFile, nil, dbconfig.HashingNone, false))

	first, err := h.BeginResourceSession("orders")
	require.NoError(t, err)
	second, err := h.BeginResourceSession("orders")
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestHandle_BeginResourceSessionFailsForUnknownResource(t *testing.T) {
	h := newTestHandle(t)
	_, err := h.BeginResourceSession("missing")
	require.Error(t, err)
	var usageErr *dberrors.UsageError
	assert.ErrorAs(t, err, &usageErr)
}

func TestHandle_RemoveResourceRefusesWhileSessionOpen(t *testing.T) {
	h := newTestHandle(t)
	require.NoError(t, h.CreateResource("orders", dbconfig.StorageFile, nil, dbconfig.HashingNone, false))
	_, err := h.BeginResourceSession("orders")
	require.NoError(t, err)

	err = h.RemoveResource("orders")
	require.Error(t, err)
	var usageErr *dberrors.UsageError
	assert.ErrorAs(t, err, &usageErr)
}

func TestHandle_RemoveResourceSucceedsWhenClosed(t *testing.T) {
	h := newTestHandle(t)
	require.NoError(t, h.CreateResource("orders", dbconfig.StorageFile, nil, dbconfig.HashingNone, false))

	closed, err := h.resources.CloseResourceSession(respaths.ResourcePath(h.dir, "orders"))
	require.NoError(t, err)
	assert.False(t, closed, "bootstrap's own session is closed as part of its own commit path, not left open")

	require.NoError(t, h.RemoveResource("orders"))
	exists, err := h.ExistsResource("orders")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestHandle_ResourceIDsAreNeverReused(t *testing.T) {
	h := newTestHandle(t)
	require.NoError(t, h.CreateResource("a", dbconfig.StorageFile, nil, dbconfig.HashingNone, false))
	require.NoError(t, h.CreateResource("b", dbconfig.StorageFile, nil, dbconfig.HashingNone, false))
	require.NoError(t, h.RemoveResource("a"))

	require.NoError(t, h.CreateResource("c", dbconfig.StorageFile, nil, dbconfig.HashingNone, false))
	idC, _, err := h.GetResourceID("c")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), idC, "removing resource a's ID 0 must not make it available for reuse")

	_, ok, err := h.GetResourceID("a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHandle_ResourceIDCounterSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, respaths.MkdirAll(respaths.DataDir(dir)))
	codec := dbconfig.YAMLCodec{}
	config := dbconfig.NewDatabaseConfig(dir, "testdb", dbtype.XML)
	require.NoError(t, codec.WriteDatabaseConfig(respaths.ConfigPath(dir), config))

	h1, err := Open(dir, config, codec, pagestore.NewFactory(), pathpool.New[rsession.Session](), writelock.NewRegistry(), pathpool.New[*Handle]())
	require.NoError(t, err)
	require.NoError(t, h1.CreateResource("a", dbconfig.StorageFile, nil, dbconfig.HashingNone, false))
	require.NoError(t, h1.CreateResource("b", dbconfig.StorageFile, nil, dbconfig.HashingNone, false))
	require.NoError(t, h1.Close())

	reloadedConfig, err := codec.ReadDatabaseConfig(respaths.ConfigPath(dir))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), reloadedConfig.MaxResourceID(), "the counter advanced by a and b must have reached disk")

	h2, err := Open(dir, reloadedConfig, codec, pagestore.NewFactory(), pathpool.New[rsession.Session](), writelock.NewRegistry(), pathpool.New[*Handle]())
	require.NoError(t, err)
	t.Cleanup(func() { _ = h2.Close() })

	require.NoError(t, h2.CreateResource("c", dbconfig.StorageFile, nil, dbconfig.HashingNone, false))
	idC, _, err := h2.GetResourceID("c")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), idC, "the resource-ID counter must survive close+reopen, not restart at 0")
}

func TestHandle_OpenSelfHealsStaleMaxResourceID(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, respaths.MkdirAll(respaths.DataDir(dir)))
	codec := dbconfig.YAMLCodec{}
	config := dbconfig.NewDatabaseConfig(dir, "testdb", dbtype.XML)

	// Simulate a resource whose own config reached disk but whose database-
	// config flush (advancing the counter) did not, e.g. a crash between
	// the two writes CreateResource now performs back-to-back.
	resourceDir := respaths.ResourcePath(dir, "orders")
	require.NoError(t, respaths.MkdirAll(resourceDir))
	require.NoError(t, codec.WriteResourceConfig(respaths.ResourceConfigPath(resourceDir), &dbconfig.ResourceConfig{Name: "orders", ID: 5}))

	h, err := Open(dir, config, codec, pagestore.NewFactory(), pathpool.New[rsession.Session](), writelock.NewRegistry(), pathpool.New[*Handle]())
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	assert.Equal(t, uint64(6), config.MaxResourceID(), "Open must advance the counter past the highest ID found on disk")

	require.NoError(t, h.CreateResource("invoices", dbconfig.StorageFile, nil, dbconfig.HashingNone, false))
	id, _, err := h.GetResourceID("invoices")
	require.NoError(t, err)
	assert.Equal(t, uint64(6), id, "the self-healed counter must be what the next CreateResource draws from")
}

func TestHandle_WriteLockIsPerResourceAndReentrant(t *testing.T) {
	h := newTestHandle(t)
	require.NoError(t, h.CreateResource("orders", dbconfig.StorageFile, nil, dbconfig.HashingNone, false))
	require.NoError(t, h.CreateResource("invoices", dbconfig.StorageFile, nil, dbconfig.HashingNone, false))

	ordersLock := h.WriteLock("orders")
	invoicesLock := h.WriteLock("invoices")
	assert.NotSame(t, ordersLock, invoicesLock)

	token := "writer-1"
	ordersLock.Lock(token)
	ordersLock.Lock(token) // reentrant re-acquisition by the same holder must not deadlock
	assert.True(t, ordersLock.HeldBy(token))
	ordersLock.Unlock(token)
	ordersLock.Unlock(token)
	assert.False(t, ordersLock.HeldBy(token))
}

func TestHandle_ListResources(t *testing.T) {
	h := newTestHandle(t)
	require.NoError(t, h.CreateResource("a", dbconfig.StorageFile, nil, dbconfig.HashingNone, false))
	require.NoError(t, h.CreateResource("b", dbconfig.StorageFile, nil, dbconfig.HashingNone, false))

	names, err := h.ListResources()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, names)
}

func TestHandle_CloseIsIdempotentAndRemovesLockFile(t *testing.T) {
	h := newTestHandle(t)
	require.NoError(t, respaths.Touch(respaths.LockPath(h.dir)))

	require.NoError(t, h.Close())
	assert.False(t, respaths.Exists(respaths.LockPath(h.dir)))
	require.NoError(t, h.Close())
	assert.False(t, h.IsOpen())
}

func TestHandle_OperationsFailFastOnceClosed(t *testing.T) {
	h := newTestHandle(t)
	require.NoError(t, h.Close())

	_, err := h.BeginResourceSession("orders")
	require.Error(t, err)
	var stateErr *dberrors.StateError
	assert.ErrorAs(t, err, &stateErr)

	err = h.CreateResource("orders", dbconfig.StorageFile, nil, dbconfig.HashingNone, false)
	assert.ErrorAs(t, err, &stateErr)
}
