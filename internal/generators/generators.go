// Package generators contains helpers shared by the programs generating packaging assets, like
// shell completions and man pages.
package generators

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

const installVar = "GENERATE_ONLY_INSTALL_TO_DESTDIR"

// InstallOnlyMode returns if assets are only installed to a destination directory, without
// touching the repository.
func InstallOnlyMode() bool {
	return os.Getenv(installVar) != ""
}

// DestDirectory returns the root directory to generate to: the install directory if set,
// p otherwise.
func DestDirectory(p string) string {
	if d := os.Getenv(installVar); d != "" {
		return d
	}
	return p
}

// ShareDirectory returns the usr/share directory below the root directory to generate to.
func ShareDirectory(p string) string {
	return filepath.Join(DestDirectory(p), "usr", "share")
}

// CleanDirectory removes a directory and recreates it empty.
func CleanDirectory(p string) error {
	if err := os.RemoveAll(p); err != nil {
		return fmt.Errorf("couldn't delete %q: %w", p, err)
	}
	if err := CreateDirectory(p, 0750); err != nil {
		return fmt.Errorf("couldn't create %q: %w", p, err)
	}
	return nil
}

// CreateDirectory creates a directory and its parents with the given permissions.
// An existing directory is left untouched.
//
// mkdir is called instead of os.MkdirAll so that fakeroot sees the directory creation.
func CreateDirectory(dir string, perm os.FileMode) error {
	// #nosec:G204 - we control the mode and directory we run mkdir on
	cmd := exec.Command("mkdir", "-m", fmt.Sprintf("%o", perm.Perm()), "-p", dir)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("couldn't create directory %q: %v", dir, string(output))
	}
	return nil
}
