package localstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	db, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenCreatesDataDirAndSubdirs(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, filepath.Join(dir, "data.db"), db.Path())
	for _, sub := range []string{"resources", "screenshots", "lightmaps"} {
		assert.DirExists(t, filepath.Join(dir, sub))
	}
}

func TestMarkPresentThenIsPresentAndLocalPath(t *testing.T) {
	db := openTestDB(t)
	url := "rock_123.obj"

	assert.False(t, db.IsPresent(url))

	require.NoError(t, db.MarkPresent(url, 123, "/data/resources/rock_123.obj"))
	assert.True(t, db.IsPresent(url))

	path, ok := db.LocalPath(url)
	require.True(t, ok)
	assert.Equal(t, "/data/resources/rock_123.obj", path)
}

func TestMarkFailedThenIsFailed(t *testing.T) {
	db := openTestDB(t)
	url := "missing_1.obj"

	assert.False(t, db.IsFailed(url))
	require.NoError(t, db.MarkFailed(url))
	assert.True(t, db.IsFailed(url))
	assert.False(t, db.IsPresent(url))
}

func TestMarkPresentOverwritesPriorFailedEntry(t *testing.T) {
	db := openTestDB(t)
	url := "flaky_1.obj"

	require.NoError(t, db.MarkFailed(url))
	assert.True(t, db.IsFailed(url))

	require.NoError(t, db.MarkPresent(url, 1, "/x"))
	assert.True(t, db.IsPresent(url))
	assert.False(t, db.IsFailed(url))
}

func TestLocalPathMissingWhenNotPresent(t *testing.T) {
	db := openTestDB(t)
	_, ok := db.LocalPath("never_seen.obj")
	assert.False(t, ok)
}

func TestSetSettingGetSettingRoundTrip(t *testing.T) {
	db := openTestDB(t)
	_, ok := db.GetSetting("setting/show_chat")
	assert.False(t, ok)

	require.NoError(t, db.SetSetting("setting/show_chat", "true"))
	val, ok := db.GetSetting("setting/show_chat")
	require.True(t, ok)
	assert.Equal(t, "true", val)

	require.NoError(t, db.SetSetting("setting/show_chat", "false"))
	val, ok = db.GetSetting("setting/show_chat")
	require.True(t, ok)
	assert.Equal(t, "false", val)
}

func TestReopenClearsSessionScopedDenylist(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, db.MarkFailed("gone_9.obj"))
	require.True(t, db.IsFailed("gone_9.obj"))
	require.NoError(t, db.Close())

	db2, err := Open(dir)
	require.NoError(t, err)
	defer db2.Close()
	assert.False(t, db2.IsFailed("gone_9.obj"), "the denylist must not outlive the session")
}
