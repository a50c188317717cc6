package reconcile

import (
	"strings"

	goversion "github.com/hashicorp/go-version"
)

// NormalizeVersion trims whitespace and strips one leading "v" or "V".
func NormalizeVersion(v string) string {
	trimmed := strings.TrimSpace(v)
	if len(trimmed) > 1 && (trimmed[0] == 'v' || trimmed[0] == 'V') {
		return trimmed[1:]
	}
	if trimmed == "v" || trimmed == "V" {
		return ""
	}
	return trimmed
}

// SameVersion reports whether a and b name the same version.
func SameVersion(a, b string) bool {
	na, nb := NormalizeVersion(a), NormalizeVersion(b)
	return na != "" && na == nb
}

// FormatVersionDisplay formats a version string for display, adding "v" prefix if needed.
func FormatVersionDisplay(v string) string {
	n := NormalizeVersion(v)
	if n == "" {
		return "(unknown)"
	}
	if n[0] < '0' || n[0] > '9' {
		return n
	}
	return "v" + n
}

// CompareVersions orders a and b. ok is false when either does not parse.
func CompareVersions(a, b string) (cmp int, ok bool) {
	va, err := goversion.NewVersion(NormalizeVersion(a))
	if err != nil {
		return 0, false
	}
	vb, err := goversion.NewVersion(NormalizeVersion(b))
	if err != nil {
		return 0, false
	}
	return va.Compare(vb), true
}

// Direction describes moving from one version to another: "upgrade",
// "downgrade", "reinstall" or "change" when the versions do not parse.
func Direction(from, to string) string {
	if SameVersion(from, to) {
		return "reinstall"
	}
	cmp, ok := CompareVersions(from, to)
	switch {
	case !ok:
		return "change"
	case cmp < 0:
		return "upgrade"
	case cmp > 0:
		return "downgrade"
	default:
		// Equal precedence but different strings, e.g. differing build metadata.
		return "change"
	}
}
