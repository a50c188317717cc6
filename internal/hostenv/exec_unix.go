//go:build !windows

package hostenv

import "golang.org/x/sys/unix"

// CanExecute asks the kernel whether the current user may execute path.
// Files on noexec mounts are reported as not executable even when access(2)
// succeeds.
func CanExecute(path string) bool {
	if err := unix.Access(path, unix.X_OK); err != nil {
		return false
	}
	return !IsNoExecMount(path)
}
