package fileutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnsureDirExists(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b", "c")
	absPath, err := EnsureDirExists(dir)
	require.NoError(t, err)
	require.Equal(t, dir, absPath)
	fi, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, fi.IsDir())

	// Idempotent for an existing directory.
	absPath2, err := EnsureDirExists(dir)
	require.NoError(t, err)
	require.Equal(t, absPath, absPath2)
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	require.False(t, FileExists(filepath.Join(dir, "missing.txt")))

	file := filepath.Join(dir, "present.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))
	require.True(t, FileExists(file))

	// Directories are not files.
	require.False(t, FileExists(dir))
}
