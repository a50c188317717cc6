package model

import (
	"fmt"
	"runtime"
	"strings"
)

// Release is the subset of the GitHub release payload that toolup uses.
type Release struct {
	TagName    string  `json:"tag_name"`
	Draft      bool    `json:"draft"`
	Prerelease bool    `json:"prerelease"`
	Assets     []Asset `json:"assets"`
}

// Asset is the subset of the GitHub release asset payload that toolup uses.
type Asset struct {
	Name               string `json:"name"`
	BrowserDownloadUrl string `json:"browser_download_url"`
	Size               int64  `json:"size"`
}

// ArchiveFormat specifies the extraction strategy for a downloaded asset.
type ArchiveFormat string

const (
	ArchiveFormatTarGz  ArchiveFormat = "tar.gz"
	ArchiveFormatTarXz  ArchiveFormat = "tar.xz"
	ArchiveFormatTarBz2 ArchiveFormat = "tar.bz2"
	ArchiveFormatTar    ArchiveFormat = "tar"
	ArchiveFormatZip    ArchiveFormat = "zip"
	// ArchiveFormatRaw is a bare executable published without an archive.
	ArchiveFormatRaw ArchiveFormat = "raw"
)

var archiveSuffixes = []struct {
	suffix string
	format ArchiveFormat
}{
	{".tar.gz", ArchiveFormatTarGz},
	{".tgz", ArchiveFormatTarGz},
	{".tar.xz", ArchiveFormatTarXz},
	{".txz", ArchiveFormatTarXz},
	{".tar.bz2", ArchiveFormatTarBz2},
	{".tbz2", ArchiveFormatTarBz2},
	{".tar", ArchiveFormatTar},
	{".zip", ArchiveFormatZip},
}

// ArchiveFormatFromName infers the format from an asset file name. Names with
// no known archive suffix are treated as raw binaries.
func ArchiveFormatFromName(name string) ArchiveFormat {
	lower := strings.ToLower(name)
	for _, s := range archiveSuffixes {
		if strings.HasSuffix(lower, s.suffix) {
			return s.format
		}
	}
	return ArchiveFormatRaw
}

// Platform identifies the host an installation targets.
type Platform struct {
	OS   string
	Arch string
}

// CurrentPlatform returns the platform of the running process.
func CurrentPlatform() Platform {
	return Platform{OS: runtime.GOOS, Arch: runtime.GOARCH}
}

func (p Platform) String() string {
	return p.OS + "-" + p.Arch
}

// ExeSuffix is the file suffix executables need on this platform.
func (p Platform) ExeSuffix() string {
	if p.OS == "windows" {
		return ".exe"
	}
	return ""
}

// LinkPolicy controls whether the installed binary is linked onto PATH.
type LinkPolicy int

const (
	LinkCreate LinkPolicy = iota
	LinkSkip
)

func (l LinkPolicy) String() string {
	if l == LinkSkip {
		return "skip"
	}
	return "create"
}

// InstallTarget is supplied once per invocation and never modified.
type InstallTarget struct {
	Root     string
	Platform Platform
	Link     LinkPolicy
	LinkDir  string
}

// ToolProfile describes the toolchain being installed and how its releases
// are laid out.
type ToolProfile struct {
	Repo       string `koanf:"repo" json:"repo"`
	BinaryName string `koanf:"binary_name" json:"binaryName"`
	// BinaryPath is relative to the install root and may reference {{binary}}.
	BinaryPath         string   `koanf:"binary_path" json:"binaryPath"`
	AssetPatterns      []string `koanf:"asset_patterns" json:"assetPatterns"`
	ArchiveExtensions  []string `koanf:"archive_extensions" json:"archiveExtensions"`
	ChecksumCandidates []string `koanf:"checksum_candidates" json:"checksumCandidates"`
	// ChecksumSignatureCandidates name signatures over the checksum file;
	// SignatureCandidates name signatures over the artifact itself.
	ChecksumSignatureCandidates []string `koanf:"checksum_signature_candidates" json:"checksumSignatureCandidates"`
	SignatureCandidates         []string `koanf:"signature_candidates" json:"signatureCandidates"`
	// MinisignKey is a public key, inline or as a file path. Empty disables
	// signature verification.
	MinisignKey  string   `koanf:"minisign_key" json:"minisignKey,omitempty"`
	HashAlgo     string   `koanf:"hash_algo" json:"hashAlgo"`
	VersionArgs  []string `koanf:"version_args" json:"versionArgs"`
	BuildCommand string   `koanf:"build_command" json:"buildCommand,omitempty"`
	MarkerFile   string   `koanf:"marker_file" json:"markerFile"`
}

// BinaryRelPath is the binary's path relative to the install root.
func (p ToolProfile) BinaryRelPath(platform Platform) string {
	rel := p.BinaryPath
	if rel == "" {
		rel = "{{binary}}"
	}
	rel = strings.ReplaceAll(rel, "{{binary}}", p.BinaryName)
	if suffix := platform.ExeSuffix(); suffix != "" && !strings.HasSuffix(strings.ToLower(rel), suffix) {
		rel += suffix
	}
	return rel
}

// LinkName is the file name used for the PATH link.
func (p ToolProfile) LinkName(platform Platform) string {
	return p.BinaryName + platform.ExeSuffix()
}

// Validate reports the first structural problem with the profile.
func (p ToolProfile) Validate() error {
	parts := strings.Split(p.Repo, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("tool.repo must be owner/name (got %q)", p.Repo)
	}
	if strings.TrimSpace(p.BinaryName) == "" {
		return fmt.Errorf("tool.binary_name: missing")
	}
	if strings.TrimSpace(p.MarkerFile) == "" {
		return fmt.Errorf("tool.marker_file: missing")
	}
	return nil
}
