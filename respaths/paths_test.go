package respaths

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabaseLayoutPaths(t *testing.T) {
	dbDir := "/tmp/db1"
	assert.Equal(t, filepath.Join(dbDir, "config.yaml"), ConfigPath(dbDir))
	assert.Equal(t, filepath.Join(dbDir, "lock"), LockPath(dbDir))
	assert.Equal(t, filepath.Join(dbDir, "data"), DataDir(dbDir))
	assert.Equal(t, filepath.Join(dbDir, "data", "doc1"), ResourcePath(dbDir, "doc1"))
}

func TestResourceLayoutPaths(t *testing.T) {
	resourceDir := "/tmp/db1/data/doc1"
	assert.Equal(t, filepath.Join(resourceDir, "ressetting.yaml"), ResourceConfigPath(resourceDir))
	assert.Equal(t, filepath.Join(resourceDir, "storage.db"), StoragePath(resourceDir))
	assert.Equal(t, filepath.Join(resourceDir, "encryptionKey.json"), EncryptionKeyPath(resourceDir))
}

func TestMandatorySubdirs_IsClosedSet(t *testing.T) {
	resourceDir := "/tmp/db1/data/doc1"
	dirs := MandatorySubdirs(resourceDir)
	assert.ElementsMatch(t, []string{
		filepath.Join(resourceDir, "revisions"),
		filepath.Join(resourceDir, "indexes"),
		filepath.Join(resourceDir, "path-summary"),
		filepath.Join(resourceDir, "log"),
	}, dirs)
}

func TestExistsMkdirAllRemoveAll(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "a", "b", "c")

	assert.False(t, Exists(target))
	require.NoError(t, MkdirAll(target))
	assert.True(t, Exists(target))

	require.NoError(t, RemoveAll(filepath.Join(root, "a")))
	assert.False(t, Exists(target))

	// RemoveAll is idempotent: removing an already-absent path is not an error.
	require.NoError(t, RemoveAll(filepath.Join(root, "a")))
}

func TestTouch_CreatesZeroByteFile_FailsIfExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lock")

	require.NoError(t, Touch(path))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size())

	err = Touch(path)
	assert.Error(t, err, "Touch must fail if the lock file already exists")
}
