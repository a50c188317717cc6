// Package archive unpacks release artifacts onto an afero filesystem.
package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/ulikunitz/xz"

	"github.com/3leaps/toolup/internal/model"
)

// Options tune Extract.
type Options struct {
	// RawName is the destination file name for ArchiveFormatRaw artifacts.
	RawName string
}

// UnsafePathError is returned for entries that would land outside the destination.
type UnsafePathError struct {
	Entry string
}

func (e *UnsafePathError) Error() string {
	return fmt.Sprintf("archive entry %q escapes the destination directory", e.Entry)
}

// Extract unpacks src into dest, creating dest if needed.
func Extract(fs afero.Fs, src string, format model.ArchiveFormat, dest string, opts Options) error {
	if err := fs.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}

	f, err := fs.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer f.Close()

	switch format {
	case model.ArchiveFormatZip:
		info, err := f.Stat()
		if err != nil {
			return err
		}
		return extractZip(fs, f, info.Size(), dest)
	case model.ArchiveFormatTarGz:
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("gzip: %w", err)
		}
		defer gz.Close()
		return extractTar(fs, gz, dest)
	case model.ArchiveFormatTarXz:
		xzr, err := xz.NewReader(f)
		if err != nil {
			return fmt.Errorf("xz: %w", err)
		}
		return extractTar(fs, xzr, dest)
	case model.ArchiveFormatTarBz2:
		return extractTar(fs, bzip2.NewReader(f), dest)
	case model.ArchiveFormatTar:
		return extractTar(fs, f, dest)
	case model.ArchiveFormatRaw:
		name := opts.RawName
		if name == "" {
			name = filepath.Base(src)
		}
		target, err := safeJoin(dest, name)
		if err != nil {
			return err
		}
		return writeFile(fs, target, f, 0o755)
	default:
		return fmt.Errorf("unsupported archive format %q", format)
	}
}

func extractTar(fs afero.Fs, r io.Reader, dest string) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("tar: %w", err)
		}

		target, err := safeJoin(dest, hdr.Name)
		if err != nil {
			return err
		}
		if target == filepath.Clean(dest) {
			continue
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := fs.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			perm := os.FileMode(hdr.Mode).Perm()
			if perm == 0 {
				perm = 0o644
			}
			if err := writeFile(fs, target, tr, perm); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := extractSymlink(fs, dest, target, hdr.Name, hdr.Linkname); err != nil {
				return err
			}
		case tar.TypeLink:
			from, err := safeJoin(dest, hdr.Linkname)
			if err != nil {
				return err
			}
			if err := copyFile(fs, from, target); err != nil {
				return fmt.Errorf("hard link %s: %w", hdr.Name, err)
			}
		default:
			// Devices, fifos and pax metadata have no place in a toolchain tree.
		}
	}
}

func extractZip(fs afero.Fs, r io.ReaderAt, size int64, dest string) error {
	zr, err := zip.NewReader(r, size)
	// Non-local names are rejected entry by entry below.
	if err != nil && !(errors.Is(err, zip.ErrInsecurePath) && zr != nil) {
		return fmt.Errorf("zip: %w", err)
	}
	for _, zf := range zr.File {
		target, err := safeJoin(dest, zf.Name)
		if err != nil {
			return err
		}
		if target == filepath.Clean(dest) {
			continue
		}
		mode := zf.Mode()
		switch {
		case mode.IsDir():
			if err := fs.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case mode&os.ModeSymlink != 0:
			link, err := readZipEntry(zf)
			if err != nil {
				return err
			}
			if err := extractSymlink(fs, dest, target, zf.Name, string(link)); err != nil {
				return err
			}
		default:
			perm := mode.Perm()
			if perm == 0 {
				perm = 0o644
			}
			rc, err := zf.Open()
			if err != nil {
				return fmt.Errorf("zip %s: %w", zf.Name, err)
			}
			err = writeFile(fs, target, rc, perm)
			rc.Close()
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func readZipEntry(zf *zip.File) ([]byte, error) {
	rc, err := zf.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// extractSymlink only creates links whose target stays inside dest. Filesystems
// without symlink support skip them.
func extractSymlink(fs afero.Fs, dest, target, name, linkname string) error {
	if filepath.IsAbs(linkname) || path.IsAbs(linkname) {
		return &UnsafePathError{Entry: name + " -> " + linkname}
	}
	resolved := filepath.Join(filepath.Dir(target), filepath.FromSlash(linkname))
	if !within(dest, resolved) {
		return &UnsafePathError{Entry: name + " -> " + linkname}
	}
	linker, ok := fs.(afero.Linker)
	if !ok {
		return nil
	}
	if err := fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	_ = fs.Remove(target)
	return linker.SymlinkIfPossible(linkname, target)
}

func safeJoin(dest, name string) (string, error) {
	slashed := strings.ReplaceAll(name, `\`, "/")
	if path.IsAbs(slashed) || filepath.VolumeName(name) != "" {
		return "", &UnsafePathError{Entry: name}
	}
	for _, part := range strings.Split(slashed, "/") {
		if part == ".." {
			return "", &UnsafePathError{Entry: name}
		}
	}
	target := filepath.Join(dest, filepath.FromSlash(path.Clean(slashed)))
	if !within(dest, target) {
		return "", &UnsafePathError{Entry: name}
	}
	return target, nil
}

func within(dest, target string) bool {
	rel, err := filepath.Rel(filepath.Clean(dest), filepath.Clean(target))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func writeFile(fs afero.Fs, target string, r io.Reader, perm os.FileMode) error {
	if err := fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	out, err := fs.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("write %s: %w", target, err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	// OpenFile perms are masked by umask on real filesystems.
	return fs.Chmod(target, perm)
}

func copyFile(fs afero.Fs, from, to string) error {
	info, err := fs.Stat(from)
	if err != nil {
		return err
	}
	in, err := fs.Open(from)
	if err != nil {
		return err
	}
	defer in.Close()
	return writeFile(fs, to, in, info.Mode().Perm())
}
