// Package hostenv captures the parts of the host environment toolup depends on
// and answers questions about executability and PATH membership.
package hostenv

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Env is read once per invocation and passed to every stage that needs it.
type Env struct {
	Home    string
	Path    string
	TempDir string
	GOOS    string
}

// Snapshot reads the current process environment.
func Snapshot() Env {
	home, _ := os.UserHomeDir()
	return Env{
		Home:    home,
		Path:    os.Getenv("PATH"),
		TempDir: os.TempDir(),
		GOOS:    runtime.GOOS,
	}
}

// PathContains reports whether dir is one of the entries of e.Path.
func (e Env) PathContains(dir string) bool {
	return PathListContains(e.Path, dir, e.GOOS)
}

// PathListContains reports whether dir appears in the PATH-style list
// pathEnv. Entries compare case-insensitively on windows.
func PathListContains(pathEnv, dir, goos string) bool {
	if pathEnv == "" || dir == "" {
		return false
	}
	want := filepath.Clean(strings.TrimSpace(dir))
	for _, p := range filepath.SplitList(pathEnv) {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		got := filepath.Clean(p)
		if goos == "windows" {
			if strings.EqualFold(got, want) {
				return true
			}
			continue
		}
		if got == want {
			return true
		}
	}
	return false
}

// PathHint is a one-line suggestion for adding dir to PATH.
func (e Env) PathHint(dir string) string {
	if e.GOOS == "windows" {
		return `add it with: setx PATH "%PATH%;` + dir + `"`
	}
	return `add 'export PATH="` + dir + `:$PATH"' to your shell rc (e.g. ~/.bashrc)`
}
