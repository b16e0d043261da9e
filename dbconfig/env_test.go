package dbconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvDefaults_GetInt_FallsBackWhenUnset(t *testing.T) {
	e := NewEnvDefaults("TREEDB_TEST_UNSET_PREFIX")
	assert.Equal(t, 42, e.GetInt("PAGE_CACHE_SIZE", 42))
}

func TestEnvDefaults_GetInt_ReadsOverride(t *testing.T) {
	e := NewEnvDefaults("TREEDB_TEST")
	t.Setenv("TREEDB_TEST_PAGE_CACHE_SIZE", "7")
	assert.Equal(t, 7, e.GetInt("PAGE_CACHE_SIZE", 42))
}

func TestEnvDefaults_GetInt_IgnoresUnparsableValue(t *testing.T) {
	e := NewEnvDefaults("TREEDB_TEST")
	t.Setenv("TREEDB_TEST_PAGE_CACHE_SIZE", "not-a-number")
	assert.Equal(t, 42, e.GetInt("PAGE_CACHE_SIZE", 42))
}

func TestEnvDefaults_NoPrefix(t *testing.T) {
	e := NewEnvDefaults("")
	t.Setenv("PAGE_CACHE_SIZE", "9")
	assert.Equal(t, 9, e.GetInt("PAGE_CACHE_SIZE", 42))
}
