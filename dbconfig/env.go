package dbconfig

import (
	"os"
	"strconv"
)

// EnvDefaults loads process-wide default overrides from environment
// variables, adapted from the teacher's config.EnvConfig helper
// (config/config.go): a thin prefix-scoped getenv-with-fallback, generalized
// here to the handful of ints the buffer-manager sizing policy allows an
// operator to override.
type EnvDefaults struct {
	prefix string
}

// NewEnvDefaults creates an EnvDefaults reading variables named
// "<prefix>_<KEY>" (e.g. prefix "TREEDB" reads "TREEDB_PAGE_CACHE_SIZE").
func NewEnvDefaults(prefix string) *EnvDefaults {
	return &EnvDefaults{prefix: prefix}
}

func (e *EnvDefaults) key(name string) string {
	if e.prefix == "" {
		return name
	}
	return e.prefix + "_" + name
}

// GetInt retrieves an integer value from environment with a fallback
// default, ignoring unparsable values exactly as the teacher's GetInt does.
func (e *EnvDefaults) GetInt(name string, defaultValue int) int {
	raw := os.Getenv(e.key(name))
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return v
}
