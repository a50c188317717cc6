package executor

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/3leaps/toolup/internal/model"
)

// SelectAsset picks the release asset for platform. Configured patterns are
// tried in order; when none matches exactly one asset, the OS/arch scoring
// heuristics decide.
func SelectAsset(assets []model.Asset, profile model.ToolProfile, platform model.Platform) (*model.Asset, error) {
	if asset := matchWithPatterns(assets, profile, platform); asset != nil {
		return asset, nil
	}
	return pickByHeuristics(assets, profile, platform)
}

func matchWithRegex(assets []model.Asset, re *regexp.Regexp) (*model.Asset, error) {
	var selected *model.Asset
	for i := range assets {
		if looksLikeSupplemental(assets[i].Name) || !re.MatchString(assets[i].Name) {
			continue
		}
		if selected != nil {
			return nil, fmt.Errorf("multiple assets match %s: %s and %s", re, selected.Name, assets[i].Name)
		}
		selected = &assets[i]
	}
	if selected == nil {
		return nil, fmt.Errorf("no asset matches %s", re)
	}
	return selected, nil
}

func matchWithPatterns(assets []model.Asset, profile model.ToolProfile, platform model.Platform) *model.Asset {
	for _, pattern := range profile.AssetPatterns {
		re, err := regexp.Compile(renderPattern(pattern, profile.BinaryName, platform))
		if err != nil {
			continue
		}
		if match, err := matchWithRegex(assets, re); err == nil {
			return match
		}
	}
	return nil
}

func pickByHeuristics(assets []model.Asset, profile model.ToolProfile, platform model.Platform) (*model.Asset, error) {
	exactOS := strings.ToLower(platform.OS)
	exactArch := strings.ToLower(platform.Arch)
	osAliases := without(aliasList(platform.OS, goosAliasTable), exactOS)
	archAliases := without(aliasList(platform.Arch, archAliasTable), exactArch)
	binaryToken := strings.ToLower(profile.BinaryName)

	bestScore := 0
	var best *model.Asset

	for i := range assets {
		nameLower := strings.ToLower(assets[i].Name)
		if looksLikeSupplemental(nameLower) {
			continue
		}

		// Exact OS/arch tokens outrank aliases. An asset naming neither is never
		// a platform build.
		osScore := 0
		switch {
		case strings.Contains(nameLower, exactOS):
			osScore = 5
		case containsAny(nameLower, osAliases):
			osScore = 3
		}
		archScore := 0
		switch {
		case strings.Contains(nameLower, exactArch):
			archScore = 5
		case containsAny(nameLower, archAliases):
			archScore = 3
		}
		if osScore == 0 || archScore == 0 {
			continue
		}

		score := osScore + archScore
		if binaryToken != "" && strings.Contains(nameLower, binaryToken) {
			score += 3
		}
		if hasAllowedExtension(nameLower, profile.ArchiveExtensions) {
			score += 2
		}

		switch {
		case best == nil || score > bestScore:
			best = &assets[i]
			bestScore = score
		case score == bestScore:
			return nil, fmt.Errorf("multiple assets tie for %s: %s and %s", platform, best.Name, assets[i].Name)
		}
	}

	if best == nil {
		return nil, fmt.Errorf("no asset matches %s", platform)
	}
	return best, nil
}

func looksLikeSupplemental(name string) bool {
	lower := strings.ToLower(name)
	for _, suffix := range []string{".asc", ".sig", ".minisig", ".pub", ".sha256", ".sha512", ".sbom.json", ".pem"} {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return strings.Contains(lower, "sha256sums") ||
		strings.Contains(lower, "sha512sums") ||
		strings.Contains(lower, "checksum") ||
		strings.Contains(lower, "signature")
}

func containsAny(haystack string, needles []string) bool {
	for _, needle := range needles {
		if needle != "" && strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}

func hasAllowedExtension(name string, exts []string) bool {
	for _, ext := range exts {
		if ext != "" && strings.HasSuffix(name, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}

func renderPattern(pattern, binary string, platform model.Platform) string {
	return strings.NewReplacer(
		"{{binary}}", regexp.QuoteMeta(binary),
		"{{osToken}}", aliasRegex(platform.OS, goosAliasTable),
		"{{archToken}}", aliasRegex(platform.Arch, archAliasTable),
		"{{goos}}", regexp.QuoteMeta(platform.OS),
		"{{GOOS}}", regexp.QuoteMeta(strings.ToUpper(platform.OS)),
		"{{Goos}}", regexp.QuoteMeta(titleCase(platform.OS)),
		"{{goarch}}", regexp.QuoteMeta(platform.Arch),
		"{{GOARCH}}", regexp.QuoteMeta(strings.ToUpper(platform.Arch)),
		"{{Goarch}}", regexp.QuoteMeta(titleCase(platform.Arch)),
	).Replace(pattern)
}

func aliasRegex(value string, table map[string][]string) string {
	aliases := aliasList(value, table)
	parts := make([]string, len(aliases))
	for i, alias := range aliases {
		parts[i] = regexp.QuoteMeta(alias)
	}
	return "(?:" + strings.Join(parts, "|") + ")"
}

var goosAliasTable = map[string][]string{
	"darwin":  {"macos", "macosx", "osx", "apple-darwin"},
	"windows": {"win", "win32", "win64", "mingw", "pc-windows"},
	"linux":   {"linux", "unknown-linux"},
}

var archAliasTable = map[string][]string{
	"amd64": {"x86_64", "x64"},
	"arm64": {"aarch64"},
	"386":   {"x86", "i386", "i686"},
	"arm":   {"armv7", "armv6", "armhf"},
}

// aliasList returns value and its aliases, lowercased, longest first so
// alternations prefer the most specific token.
func aliasList(value string, table map[string][]string) []string {
	base := strings.ToLower(value)
	seen := map[string]struct{}{base: {}}
	for _, alias := range table[base] {
		seen[strings.ToLower(alias)] = struct{}{}
	}
	arr := make([]string, 0, len(seen))
	for k := range seen {
		arr = append(arr, k)
	}
	sort.Slice(arr, func(i, j int) bool {
		if len(arr[i]) != len(arr[j]) {
			return len(arr[i]) > len(arr[j])
		}
		return arr[i] < arr[j]
	})
	return arr
}

func without(list []string, drop string) []string {
	out := list[:0:0]
	for _, s := range list {
		if s != drop {
			out = append(out, s)
		}
	}
	return out
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
