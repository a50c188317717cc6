package hostenv

import (
	"path/filepath"
	"strings"
)

type mountEntry struct {
	mountPoint string
	options    map[string]struct{}
}

// MountTable is a parsed view of the kernel mount table.
type MountTable struct {
	entries []mountEntry
}

// Len is the number of mounts in the table.
func (t MountTable) Len() int { return len(t.entries) }

// ParseMountinfo parses /proc/self/mountinfo content.
func ParseMountinfo(content string) MountTable {
	var out []mountEntry
	for _, line := range strings.Split(content, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 6 {
			continue
		}
		sep := -1
		for i, f := range fields {
			if f == "-" {
				sep = i
				break
			}
		}
		if sep < 0 {
			continue
		}
		// id parent major:minor root mountpoint options [optional...] - fstype source superopts
		opts := parseMountOptions(fields[5])
		if sep+3 < len(fields) {
			for k := range parseMountOptions(fields[sep+3]) {
				opts[k] = struct{}{}
			}
		}
		out = append(out, mountEntry{mountPoint: unescapeMountPath(fields[4]), options: opts})
	}
	return MountTable{entries: out}
}

// ParseProcMounts parses /proc/mounts (fstab format) content.
func ParseProcMounts(content string) MountTable {
	var out []mountEntry
	for _, line := range strings.Split(content, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		out = append(out, mountEntry{
			mountPoint: unescapeMountPath(fields[1]),
			options:    parseMountOptions(fields[3]),
		})
	}
	return MountTable{entries: out}
}

func parseMountOptions(opt string) map[string]struct{} {
	m := make(map[string]struct{})
	for _, part := range strings.Split(opt, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			m[part] = struct{}{}
		}
	}
	return m
}

var mountPathUnescaper = strings.NewReplacer(
	`\040`, " ",
	`\011`, "\t",
	`\012`, "\n",
	`\134`, `\`,
)

// procfs encodes whitespace and backslashes in mount points as octal escapes.
func unescapeMountPath(value string) string {
	return mountPathUnescaper.Replace(value)
}

// NoExec reports whether the mount holding path carries the noexec option.
// The longest matching mount point wins.
func (t MountTable) NoExec(path string) bool {
	dest := filepath.ToSlash(filepath.Clean(path))
	if dest == "." || dest == "" {
		return false
	}

	bestLen := -1
	noexec := false
	for _, m := range t.entries {
		mountPoint := filepath.ToSlash(filepath.Clean(m.mountPoint))
		if mountPoint == "." || mountPoint == "" || !pathHasPrefix(dest, mountPoint) {
			continue
		}
		if len(mountPoint) > bestLen {
			bestLen = len(mountPoint)
			_, noexec = m.options["noexec"]
		}
	}
	return noexec
}

func pathHasPrefix(path, prefix string) bool {
	if prefix == "/" {
		return strings.HasPrefix(path, "/")
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
