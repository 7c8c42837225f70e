// Package testutils provides helpers shared by the package tests.
package testutils

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// SkipIfRoot skips the test if the current user is root, as permissions can't be denied to it.
func SkipIfRoot(t *testing.T) {
	t.Helper()

	if os.Geteuid() == 0 {
		t.Skip("Test can't be run as root, skipping...")
	}
}

// MakeReadOnly removes write permissions on path and, for directories, on everything below it.
// Permissions are restored when the test ends so that temporary directories can be purged.
func MakeReadOnly(t *testing.T, path string) {
	t.Helper()

	type saved struct {
		path string
		mode fs.FileMode
	}
	var modes []saved

	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		require.NoError(t, err, "Setup: unexpected error when walking directory")
		info, err := d.Info()
		require.NoError(t, err, "Setup: can't stat %s", p)
		modes = append(modes, saved{path: p, mode: info.Mode().Perm()})
		return nil
	})
	require.NoError(t, err, "Setup: can't walk %s", path)

	// Children first, so that we can still walk into directories.
	for i := len(modes) - 1; i >= 0; i-- {
		perm := fs.FileMode(0400)
		if fi, err := os.Stat(modes[i].path); err == nil && fi.IsDir() {
			perm = 0500
		}
		require.NoError(t, os.Chmod(modes[i].path, perm), "Setup: can't make %s read only", modes[i].path)
	}

	t.Cleanup(func() {
		for _, m := range modes {
			_ = os.Chmod(m.path, m.mode)
		}
	})
}
