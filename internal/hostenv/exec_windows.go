//go:build windows

package hostenv

import (
	"os"
	"path/filepath"
	"strings"
)

var executableExts = map[string]bool{".exe": true, ".bat": true, ".cmd": true, ".com": true}

// CanExecute reports whether path is a regular file with an executable suffix.
func CanExecute(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return executableExts[strings.ToLower(filepath.Ext(path))]
}
