package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// WriteFiles creates a temporary root directory and writes every entry of
// files below it. Keys are slash-separated paths relative to the root, so
// "models/lhc.model.hcl" creates the models subdirectory as needed.
func WriteFiles(t *testing.T, files map[string]string) string {
	t.Helper()

	root := t.TempDir()
	WriteFilesIn(t, root, files)
	return root
}

// WriteFilesIn writes files below an existing root, see WriteFiles.
func WriteFilesIn(t *testing.T, root string, files map[string]string) {
	t.Helper()

	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}
