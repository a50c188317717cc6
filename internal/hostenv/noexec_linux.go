//go:build linux

package hostenv

import "os"

// LoadMountTable reads the mount table of the current process, preferring
// mountinfo over /proc/mounts. The table is empty when neither can be read.
func LoadMountTable() MountTable {
	if data, err := os.ReadFile("/proc/self/mountinfo"); err == nil { // #nosec G304 -- fixed procfs path
		if table := ParseMountinfo(string(data)); table.Len() > 0 {
			return table
		}
	}
	data, err := os.ReadFile("/proc/mounts") // #nosec G304 -- fixed procfs path
	if err != nil {
		return MountTable{}
	}
	return ParseProcMounts(string(data))
}

// IsNoExecMount is best effort: any doubt answers false.
func IsNoExecMount(path string) bool {
	if path == "" {
		return false
	}
	return LoadMountTable().NoExec(path)
}
