package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestFindFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "b.model.hcl"))
	writeFile(t, filepath.Join(root, "sub", "a.model.hcl"))
	writeFile(t, filepath.Join(root, "sub", "notes.hcl"))
	single := filepath.Join(root, "sub", "a.model.hcl")

	files, err := FindFiles([]string{root, single, filepath.Join(root, "missing")}, ".model.hcl")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "b.model.hcl"),
		filepath.Join(root, "sub", "a.model.hcl"),
	}, files)

	assert.Panics(t, func() { _, _ = FindFiles([]string{root}, "") })
}

func TestDirs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a", "b", "file"))

	dirs, err := Dirs(root)
	require.NoError(t, err)
	assert.Equal(t, []string{root, filepath.Join(root, "a"), filepath.Join(root, "a", "b")}, dirs)

	dirs, err = Dirs(filepath.Join(root, "missing"))
	require.NoError(t, err)
	assert.Empty(t, dirs)

	assert.True(t, IsDir(root))
	assert.False(t, IsDir(filepath.Join(root, "a", "b", "file")))
}
