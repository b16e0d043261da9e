package pagestore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalgo/treedb/node"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "storage.db")
	s, err := Open(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_InitialRevisionIsZero(t *testing.T) {
	s := openTestStore(t)
	assert.Equal(t, uint64(0), s.MostRecentRevisionNumber())
}

func TestStore_CommitAdvancesRevision(t *testing.T) {
	s := openTestStore(t)

	wtx, err := s.BeginNodeTrx()
	require.NoError(t, err)
	rev, err := wtx.Commit(time.Time{})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rev)
	assert.Equal(t, uint64(1), s.MostRecentRevisionNumber())

	wtx2, err := s.BeginNodeTrx()
	require.NoError(t, err)
	rev2, err := wtx2.Commit(time.Time{})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), rev2)
}

func TestStore_AbortDoesNotAdvanceRevision(t *testing.T) {
	s := openTestStore(t)

	wtx, err := s.BeginNodeTrx()
	require.NoError(t, err)
	require.NoError(t, wtx.Abort())

	assert.Equal(t, uint64(0), s.MostRecentRevisionNumber())
}

func TestStore_CommitAfterFinishIsError(t *testing.T) {
	s := openTestStore(t)
	wtx, err := s.BeginNodeTrx()
	require.NoError(t, err)
	_, err = wtx.Commit(time.Time{})
	require.NoError(t, err)

	_, err = wtx.Commit(time.Time{})
	assert.Error(t, err)
}

func TestStore_ReadTrxObservesMostRecentRevisionAtOpen(t *testing.T) {
	s := openTestStore(t)

	wtx, err := s.BeginNodeTrx()
	require.NoError(t, err)
	_, err = wtx.Commit(time.Time{})
	require.NoError(t, err)

	rtx, err := s.BeginReadTrx(0)
	require.NoError(t, err)
	defer rtx.Close()
	assert.Equal(t, uint64(1), rtx.Revision())
}

func TestStore_BootstrapCommitUsesEpochZeroWhenRequested(t *testing.T) {
	s := openTestStore(t)
	wtx, err := s.BeginNodeTrx()
	require.NoError(t, err)
	rev, err := wtx.Commit(time.Unix(0, 0))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rev)
}

func TestStore_SetDocumentRootSucceedsBeforeCommit(t *testing.T) {
	s := openTestStore(t)
	wtx, err := s.BeginNodeTrx()
	require.NoError(t, err)
	require.NoError(t, wtx.SetDocumentRoot(node.NewXMLDocumentRoot(nil)))
	_, err = wtx.Commit(time.Time{})
	require.NoError(t, err)
}

func TestStore_SetDocumentRootAfterFinishIsError(t *testing.T) {
	s := openTestStore(t)
	wtx, err := s.BeginNodeTrx()
	require.NoError(t, err)
	_, err = wtx.Commit(time.Time{})
	require.NoError(t, err)

	err = wtx.SetDocumentRoot(node.NewXMLDocumentRoot(nil))
	assert.Error(t, err)
}
