package localcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func schemaVersion(t *testing.T, kv *KV) (int, bool) {
	t.Helper()
	var version int
	var dirty bool
	require.NoError(t, kv.db.QueryRow("SELECT version, dirty FROM schema_migrations").Scan(&version, &dirty))
	return version, dirty
}

func TestMigrationsAppliedOnReopen(t *testing.T) {
	dir := t.TempDir()

	kv, err := Open(dir)
	require.NoError(t, err)
	version, dirty := schemaVersion(t, kv)
	assert.Equal(t, 2, version)
	assert.False(t, dirty)

	// Соединение остается открытым после миграций
	require.NoError(t, kv.Set("k", []byte("v")))
	require.NoError(t, kv.Close())

	kv, err = Open(dir)
	require.NoError(t, err)
	defer kv.Close()

	version, _ = schemaVersion(t, kv)
	assert.Equal(t, 2, version)

	value, ok, err := kv.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), value)
}

func TestMigrationsInMemory(t *testing.T) {
	kv := openTestKV(t)

	version, dirty := schemaVersion(t, kv)
	assert.Equal(t, 2, version)
	assert.False(t, dirty)
}
