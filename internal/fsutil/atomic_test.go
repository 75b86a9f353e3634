package fsutil_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamancini/hoist/internal/fsutil"
)

func TestAtomicWrite_CreatesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "active.json")
	data := []byte(`{"version": "1.0.0"}`)

	require.NoError(t, fsutil.AtomicWrite(path, data, 0644))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, content)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), info.Mode().Perm())
}

func TestAtomicWrite_OverwritesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "active.json")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0644))

	require.NoError(t, fsutil.AtomicWrite(path, []byte("new"), 0644))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(content))
}

func TestAtomicWrite_NoTmpLeftBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	require.NoError(t, fsutil.AtomicWrite(path, []byte("{}"), 0600))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, "state.json", entries[0].Name())
}

func TestAtomicWrite_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "state.json")
	assert.Error(t, fsutil.AtomicWrite(path, []byte("{}"), 0644))
}

func TestFsyncDir(t *testing.T) {
	require.NoError(t, fsutil.FsyncDir(t.TempDir()))
	assert.Error(t, fsutil.FsyncDir(filepath.Join(t.TempDir(), "missing")))
}

func TestRenameAndSync(t *testing.T) {
	dir := t.TempDir()
	staged := filepath.Join(dir, ".stage-1.2.0")
	require.NoError(t, os.Mkdir(staged, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(staged, "bundle"), []byte("payload"), 0644))

	final := filepath.Join(dir, "1.2.0")
	require.NoError(t, fsutil.RenameAndSync(staged, final))

	content, err := os.ReadFile(filepath.Join(final, "bundle"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(content))
	_, err = os.Stat(staged)
	assert.True(t, os.IsNotExist(err))

	assert.Error(t, fsutil.RenameAndSync(staged, final))
}
