// Package config loads toolup's layered configuration: embedded defaults, an
// optional user file, TOOLUP_* environment variables and command-line flags,
// in increasing order of precedence.
package config

import (
	_ "embed"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"

	"github.com/3leaps/toolup/internal/model"
)

//go:embed embedded/defaults.toml
var defaultConfig []byte

//go:embed embedded/config.schema.json
var schemaJSON []byte

// AppName names toolup's XDG directories.
const AppName = "toolup"

// EnvPrefix marks environment variables read as configuration.
const EnvPrefix = "TOOLUP_"

// Config is the fully merged configuration.
type Config struct {
	Tool    model.ToolProfile `koanf:"tool" json:"tool"`
	Install Install           `koanf:"install" json:"install"`
	Network Network           `koanf:"network" json:"network"`
	Output  Output            `koanf:"output" json:"output"`

	// Source lists the configuration layers that contributed, lowest first.
	Source []string `koanf:"-" json:"-"`
}

type Install struct {
	Dir         string        `koanf:"dir" json:"dir"`
	LinkDir     string        `koanf:"link_dir" json:"linkDir"`
	CacheDir    string        `koanf:"cache_dir" json:"cacheDir"`
	Link        bool          `koanf:"link" json:"link"`
	LockTimeout time.Duration `koanf:"lock_timeout" json:"lockTimeout"`
}

type Network struct {
	APIBase         string        `koanf:"api_base" json:"apiBase"`
	DownloadRetries int           `koanf:"download_retries" json:"downloadRetries"`
	VersionTimeout  time.Duration `koanf:"version_timeout" json:"versionTimeout"`
}

type Output struct {
	Format  string `koanf:"format" json:"format"`
	LogFile string `koanf:"log_file" json:"logFile"`
}

// DefaultInstallDir is $XDG_DATA_HOME/toolup/<binary>.
func DefaultInstallDir(binary string) string {
	return filepath.Join(xdg.DataHome, AppName, binary)
}

// DefaultLinkDir is the XDG user binary directory (~/.local/bin on unix).
func DefaultLinkDir() string {
	return xdg.BinHome
}

// DefaultCacheDir is $XDG_CACHE_HOME/toolup.
func DefaultCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// InferBinaryName returns the repository name of an owner/name pair.
func InferBinaryName(repo string) string {
	parts := strings.Split(strings.TrimSpace(repo), "/")
	if len(parts) >= 2 && parts[1] != "" {
		return parts[1]
	}
	return repo
}

// Target builds the immutable install target for platform.
func (c *Config) Target(platform model.Platform) model.InstallTarget {
	policy := model.LinkCreate
	if !c.Install.Link {
		policy = model.LinkSkip
	}
	return model.InstallTarget{
		Root:     c.Install.Dir,
		Platform: platform,
		Link:     policy,
		LinkDir:  c.Install.LinkDir,
	}
}

func (c *Config) applyDerivedDefaults() {
	if c.Install.Dir == "" {
		c.Install.Dir = DefaultInstallDir(c.Tool.BinaryName)
	}
	if c.Install.LinkDir == "" {
		c.Install.LinkDir = DefaultLinkDir()
	}
	if c.Install.CacheDir == "" {
		c.Install.CacheDir = DefaultCacheDir()
	}
	c.Install.Dir = expandHome(c.Install.Dir)
	c.Install.LinkDir = expandHome(c.Install.LinkDir)
	c.Install.CacheDir = expandHome(c.Install.CacheDir)
}

func expandHome(p string) string {
	if p == "~" {
		return xdg.Home
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(xdg.Home, p[2:])
	}
	return p
}
