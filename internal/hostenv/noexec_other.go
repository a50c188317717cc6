//go:build !linux

package hostenv

// LoadMountTable returns an empty table outside linux.
func LoadMountTable() MountTable { return MountTable{} }

// IsNoExecMount is only implemented on linux.
func IsNoExecMount(string) bool { return false }
