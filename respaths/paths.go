// Package respaths defines the closed set of subdirectory and file names
// mandated for a database directory and for a resource directory, plus the
// recursive-remove collaborator used to tear down partial or deleted
// substructure.
package respaths

import (
	"os"
	"path/filepath"
)

// Database-directory layout.
const (
	// ConfigFileName is the serialized DatabaseConfig, relative to the
	// database directory root.
	ConfigFileName = "config.yaml"
	// LockFileName is the zero-byte presence file indicating the database
	// is open, relative to the database directory root.
	LockFileName = "lock"
	// DataDirName holds one subdirectory per resource, relative to the
	// database directory root.
	DataDirName = "data"
)

// DatabasePath returns the path to name under the database directory root.
func DatabasePath(dbDir, name string) string {
	return filepath.Join(dbDir, name)
}

// ConfigPath returns the path to the database's config file.
func ConfigPath(dbDir string) string {
	return filepath.Join(dbDir, ConfigFileName)
}

// LockPath returns the path to the database's lock file.
func LockPath(dbDir string) string {
	return filepath.Join(dbDir, LockFileName)
}

// DataDir returns the path to the database's data directory.
func DataDir(dbDir string) string {
	return filepath.Join(dbDir, DataDirName)
}

// ResourcePath returns the path to the named resource's directory.
func ResourcePath(dbDir, resourceName string) string {
	return filepath.Join(DataDir(dbDir), resourceName)
}

// Per-resource directory layout. A resource directory holds the subset of
// these entries relevant to its storage backend and options.
const (
	// ResourceConfigFileName is the serialized ResourceConfig.
	ResourceConfigFileName = "ressetting.yaml"
	// StorageFileName is the page-tree persistence collaborator's backing
	// store (see pagestore).
	StorageFileName = "storage.db"
	// RevisionsDirName holds revision metadata.
	RevisionsDirName = "revisions"
	// IndexesDirName holds secondary index structures.
	IndexesDirName = "indexes"
	// PathSummaryDirName holds the path-summary structure.
	PathSummaryDirName = "path-summary"
	// TransactionLogDirName holds the write-ahead transaction log.
	TransactionLogDirName = "log"
	// EncryptionKeyFileName holds the cleartext key set generated for
	// streaming AEAD when encryption is enabled, per the template chosen by
	// the byte-handler collaborator.
	EncryptionKeyFileName = "encryptionKey.json"
)

// ResourceConfigPath returns the path to a resource's serialized config.
func ResourceConfigPath(resourceDir string) string {
	return filepath.Join(resourceDir, ResourceConfigFileName)
}

// StoragePath returns the path to a resource's page-store backing file.
func StoragePath(resourceDir string) string {
	return filepath.Join(resourceDir, StorageFileName)
}

// EncryptionKeyPath returns the path to a resource's key-set file.
func EncryptionKeyPath(resourceDir string) string {
	return filepath.Join(resourceDir, EncryptionKeyFileName)
}

// MandatorySubdirs is the closed set of subdirectories CreateResource must
// establish under a resource's directory before it is considered bootstrap-
// ready.
func MandatorySubdirs(resourceDir string) []string {
	return []string{
		filepath.Join(resourceDir, RevisionsDirName),
		filepath.Join(resourceDir, IndexesDirName),
		filepath.Join(resourceDir, PathSummaryDirName),
		filepath.Join(resourceDir, TransactionLogDirName),
	}
}

// RemoveAll idempotently and recursively removes path and everything under
// it. It is not an error for path to already be absent.
func RemoveAll(path string) error {
	return os.RemoveAll(path)
}

// Exists reports whether path exists on disk (file or directory).
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// MkdirAll creates path and all necessary parents with 0750 permissions
// (full access for the owner, read and traverse for the group, none for
// others).
func MkdirAll(path string) error {
	return os.MkdirAll(path, 0o750)
}

// Touch creates an empty, zero-byte presence file at path, matching the
// lock file's contract: a zero-byte presence file indicating the database
// is open. It fails if path already exists.
func Touch(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return err
	}
	return f.Close()
}
