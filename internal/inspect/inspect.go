// Package inspect derives the InstallState of an install directory. It never
// modifies anything on disk.
package inspect

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/3leaps/toolup/internal/hostenv"
	"github.com/3leaps/toolup/internal/logging"
	"github.com/3leaps/toolup/internal/model"
	"github.com/3leaps/toolup/pkg/reconcile"
)

const DefaultVersionTimeout = 10 * time.Second

var versionPattern = regexp.MustCompile(`v?\d+\.\d+(?:\.\d+)?(?:[-+][0-9A-Za-z.-]+)?`)

// ParseVersionOutput returns the first version-looking token in out.
func ParseVersionOutput(out string) (string, bool) {
	m := versionPattern.FindString(out)
	if m == "" {
		return "", false
	}
	return reconcile.NormalizeVersion(m), true
}

// Inspector reports on one tool profile's installation.
type Inspector struct {
	fs      afero.Fs
	runner  hostenv.Runner
	profile model.ToolProfile

	// HostCheck, when set, must also approve a binary before it counts as
	// executable. The CLI sets it to hostenv.CanExecute on the real filesystem.
	HostCheck      func(path string) bool
	VersionTimeout time.Duration
}

// New creates an Inspector.
func New(fs afero.Fs, runner hostenv.Runner, profile model.ToolProfile) *Inspector {
	return &Inspector{fs: fs, runner: runner, profile: profile, VersionTimeout: DefaultVersionTimeout}
}

// BinaryPath is where the binary lives for target.
func (i *Inspector) BinaryPath(target model.InstallTarget) string {
	return filepath.Join(target.Root, filepath.FromSlash(i.profile.BinaryRelPath(target.Platform)))
}

// MarkerPath is where the advisory version marker lives for target.
func (i *Inspector) MarkerPath(target model.InstallTarget) string {
	return filepath.Join(target.Root, i.profile.MarkerFile)
}

// Inspect examines target and returns its state.
func (i *Inspector) Inspect(ctx context.Context, target model.InstallTarget) reconcile.InstallState {
	logger := logging.Get("inspect")
	state := reconcile.InstallState{
		BinaryPath:    i.BinaryPath(target),
		VersionSource: reconcile.VersionSourceNone,
	}

	state.BinaryExists, state.BinaryExecutable = i.binaryStatus(state.BinaryPath, target.Platform)
	state.Present = state.BinaryExists && state.BinaryExecutable
	state.MarkerVersion = ReadMarker(i.fs, i.MarkerPath(target))

	if !state.Present {
		logger.Debug().
			Str("binary", state.BinaryPath).
			Bool("exists", state.BinaryExists).
			Str("marker", state.MarkerVersion).
			Msg("Binary not usable")
		return state
	}

	binVersion, err := i.queryBinary(ctx, state.BinaryPath, target.Root)
	switch {
	case err == nil:
		state.Version = binVersion
		state.VersionSource = reconcile.VersionSourceBinary
		if state.MarkerVersion != "" && !reconcile.SameVersion(state.MarkerVersion, binVersion) {
			logger.Debug().
				Str("binary", binVersion).
				Str("marker", state.MarkerVersion).
				Msg("Marker disagrees with binary, trusting binary")
		}
	case state.MarkerVersion != "":
		logger.Debug().Err(err).Msg("Version query failed, using marker")
		state.Version = state.MarkerVersion
		state.VersionSource = reconcile.VersionSourceMarker
	default:
		logger.Debug().Err(err).Msg("Installed version unknown")
	}
	return state
}

func (i *Inspector) binaryStatus(path string, platform model.Platform) (exists, executable bool) {
	info, err := i.fs.Stat(path)
	if err != nil || info.IsDir() {
		return false, false
	}
	if platform.OS == "windows" {
		executable = strings.EqualFold(filepath.Ext(path), ".exe")
	} else {
		executable = info.Mode().IsRegular() && info.Mode().Perm()&0o111 != 0
	}
	if executable && i.HostCheck != nil {
		executable = i.HostCheck(path)
	}
	return true, executable
}

type versionError string

func (e versionError) Error() string { return string(e) }

func (i *Inspector) queryBinary(ctx context.Context, path, dir string) (string, error) {
	if i.runner == nil {
		return "", versionError("no process runner configured")
	}
	timeout := i.VersionTimeout
	if timeout <= 0 {
		timeout = DefaultVersionTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := i.profile.VersionArgs
	if len(args) == 0 {
		args = []string{"--version"}
	}
	out, err := i.runner.Run(ctx, dir, path, args...)
	if err != nil {
		return "", err
	}
	v, ok := ParseVersionOutput(string(out))
	if !ok {
		return "", versionError("no version in output: " + hostenv.TrimCommandOutput(string(out)))
	}
	return v, nil
}

// ReadMarker returns the normalized version recorded in the marker file, or
// "" when it is missing or empty.
func ReadMarker(fs afero.Fs, path string) string {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return ""
	}
	return reconcile.NormalizeVersion(string(data))
}
