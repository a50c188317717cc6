// Package link exposes an installed binary on PATH through a symlink.
package link

import (
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	toolerrors "github.com/3leaps/toolup/internal/errors"
	"github.com/3leaps/toolup/internal/hostenv"
	"github.com/3leaps/toolup/internal/logging"
)

// Result describes what Create did.
type Result struct {
	Path    string `json:"path" yaml:"path"`
	Target  string `json:"target" yaml:"target"`
	Created bool   `json:"created" yaml:"created"`
	OnPath  bool   `json:"onPath" yaml:"onPath"`
}

// Create points linkDir/name at binary. An existing symlink is replaced; any
// other file is left alone. Every failure is a LinkWarning: the install
// itself is already complete when linking runs.
func Create(fs afero.Fs, env hostenv.Env, linkDir, name, binary string) (Result, error) {
	logger := logging.Get("link")
	res := Result{Path: filepath.Join(linkDir, name), Target: binary, OnPath: env.PathContains(linkDir)}

	linker, ok := fs.(afero.Linker)
	if !ok {
		return res, warn("filesystem does not support symlinks", res.Path, nil)
	}

	if err := fs.MkdirAll(linkDir, 0o755); err != nil {
		return res, warn("cannot create link directory", linkDir, err)
	}

	if info, isSymlink, err := lstat(fs, res.Path); err == nil {
		if !isSymlink {
			return res, warn("refusing to replace existing file", res.Path, nil).
				WithDetail("mode", info.Mode().String())
		}
		if current, err := readlink(fs, res.Path); err == nil && current == binary {
			logger.Debug().Str("link", res.Path).Msg("Link already up to date")
			return res, pathWarning(env, res)
		}
		if err := fs.Remove(res.Path); err != nil {
			return res, warn("cannot replace existing link", res.Path, err)
		}
	}

	if err := linker.SymlinkIfPossible(binary, res.Path); err != nil {
		w := warn("cannot create link", res.Path, err)
		if env.GOOS == "windows" {
			w = w.WithDetail("hint", "enable Developer Mode or "+env.PathHint(filepath.Dir(binary)))
		}
		return res, w
	}
	res.Created = true
	logger.Info().Str("link", res.Path).Str("target", binary).Msg("Linked binary")
	return res, pathWarning(env, res)
}

func pathWarning(env hostenv.Env, res Result) error {
	if res.OnPath {
		return nil
	}
	dir := filepath.Dir(res.Path)
	return toolerrors.Newf(toolerrors.ErrLinkWarning, "%s is not on PATH; %s", dir, env.PathHint(dir)).
		WithDetail("dir", dir)
}

func warn(msg, path string, err error) *toolerrors.Error {
	var e *toolerrors.Error
	if err != nil {
		e = toolerrors.Wrap(err, toolerrors.ErrLinkWarning, msg+" "+path)
	} else {
		e = toolerrors.New(toolerrors.ErrLinkWarning, msg+" "+path)
	}
	return e.WithDetail("path", path)
}

func lstat(fs afero.Fs, path string) (os.FileInfo, bool, error) {
	if l, ok := fs.(afero.Lstater); ok {
		info, _, err := l.LstatIfPossible(path)
		if err != nil {
			return nil, false, err
		}
		return info, info.Mode()&os.ModeSymlink != 0, nil
	}
	info, err := fs.Stat(path)
	return info, false, err
}

func readlink(fs afero.Fs, path string) (string, error) {
	if r, ok := fs.(afero.LinkReader); ok {
		return r.ReadlinkIfPossible(path)
	}
	return "", &os.PathError{Op: "readlink", Path: path, Err: afero.ErrNoReadlink}
}
