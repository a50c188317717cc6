package archive

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// FlattenSingleDir hoists the contents of dest/<only> into dest when dest
// holds exactly one entry and that entry is a directory. It reports whether
// anything moved.
func FlattenSingleDir(fs afero.Fs, dest string) (bool, error) {
	entries, err := afero.ReadDir(fs, dest)
	if err != nil {
		return false, err
	}
	if len(entries) != 1 || !entries[0].IsDir() {
		return false, nil
	}

	// Move the wrapper aside first so a child sharing its name can take its place.
	wrapper := filepath.Join(dest, entries[0].Name())
	aside := filepath.Join(dest, ".flatten-"+entries[0].Name())
	if err := MoveTree(fs, wrapper, aside); err != nil {
		return false, err
	}
	children, err := afero.ReadDir(fs, aside)
	if err != nil {
		return false, err
	}
	for _, child := range children {
		if err := MoveTree(fs, filepath.Join(aside, child.Name()), filepath.Join(dest, child.Name())); err != nil {
			return false, err
		}
	}
	return true, fs.RemoveAll(aside)
}

// MoveTree renames src to dst, copying and removing src when a rename is not
// possible (for example across devices).
func MoveTree(fs afero.Fs, src, dst string) error {
	if err := fs.Rename(src, dst); err == nil {
		return nil
	}
	if err := CopyTree(fs, src, dst); err != nil {
		return fmt.Errorf("move %s to %s: %w", src, dst, err)
	}
	return fs.RemoveAll(src)
}

// CopyTree copies the file or directory src to dst, preserving permissions.
func CopyTree(fs afero.Fs, src, dst string) error {
	return afero.Walk(fs, src, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return fs.MkdirAll(target, info.Mode().Perm()|0o700)
		}
		return copyFile(fs, p, target)
	})
}
