package runtime

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
}

func TestLuaMaxExecTimeDerivesFromSeconds(t *testing.T) {
	l := Lua{MaxExecTimeSec: 2}
	assert.Equal(t, 2e9, float64(l.MaxExecTime()))
}

func TestValidateRejectsEmptyServerAddr(t *testing.T) {
	cfg := Default()
	cfg.Server.Addr = "  "
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsEmptyDataDir(t *testing.T) {
	cfg := Default()
	cfg.Paths.DataDir = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveLoadDistance(t *testing.T) {
	cfg := Default()
	cfg.World.LoadDistance = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveWorkerCounts(t *testing.T) {
	cfg := Default()
	cfg.Workers.DownloadWorkers = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Workers.UploadWorkers = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveMaxConcurrentDownloads(t *testing.T) {
	cfg := Default()
	cfg.Workers.MaxConcurrentDownloads = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveLuaExecTime(t *testing.T) {
	cfg := Default()
	cfg.Lua.MaxExecTimeSec = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNegativeLuaMemory(t *testing.T) {
	cfg := Default()
	cfg.Lua.MaxMemoryMB = -1
	assert.Error(t, cfg.Validate())
}

func TestValidateRequiresValidControlPortWhenEnabled(t *testing.T) {
	cfg := Default()
	cfg.Control.Enabled = true
	cfg.Control.Port = 0
	assert.Error(t, cfg.Validate())

	cfg.Control.Port = 70000
	assert.Error(t, cfg.Validate())

	cfg.Control.Port = 34534
	assert.NoError(t, cfg.Validate())
}

func TestValidateIgnoresControlPortWhenDisabled(t *testing.T) {
	cfg := Default()
	cfg.Control.Enabled = false
	cfg.Control.Port = 0
	assert.NoError(t, cfg.Validate())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := Default()
	cfg.Identity.Username = "alice"
	cfg.Server.Addr = "sub://example.com:7600"

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "alice", loaded.Identity.Username)
	assert.Equal(t, "sub://example.com:7600", loaded.Server.Addr)
}

func TestSaveRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := Default()
	cfg.Server.Addr = ""
	assert.Error(t, Save(path, cfg))
}

func TestLoadRejectsInvalidConfigAfterUnmarshal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, writeRawJSON(path, `{"world": {"load_distance": 0}}`))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadPropagatesReadError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	assert.Error(t, err)
}

func TestEnsureCreatesDefaultWhenMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg, createdNew, err := Ensure(path)
	require.NoError(t, err)
	assert.True(t, createdNew)
	assert.Equal(t, Default().Server.Addr, cfg.Server.Addr)
	assert.FileExists(t, path)
}

func TestEnsureLoadsExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := Default()
	cfg.Identity.Username = "bob"
	require.NoError(t, Save(path, cfg))

	loaded, createdNew, err := Ensure(path)
	require.NoError(t, err)
	assert.False(t, createdNew)
	assert.Equal(t, "bob", loaded.Identity.Username)
}

func TestLoadPreservesDefaultsForMissingJSONFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, writeRawJSON(path, `{"identity": {"username": "carol"}}`))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "carol", cfg.Identity.Username)
	assert.Equal(t, Default().World.LoadDistance, cfg.World.LoadDistance)
	assert.Equal(t, Default().Workers.DownloadWorkers, cfg.Workers.DownloadWorkers)
}

func writeRawJSON(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
