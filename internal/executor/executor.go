// Package executor carries out a reconcile.Plan: it acquires and verifies the
// release artifact, stages the new tree beside the install root, swaps it into
// place and then links, marks and verifies the installation.
//
// The prior installation is only removed once the replacement tree is fully
// staged, so a failure before the swap leaves it untouched.
package executor

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/3leaps/toolup/internal/archive"
	toolerrors "github.com/3leaps/toolup/internal/errors"
	"github.com/3leaps/toolup/internal/hostenv"
	"github.com/3leaps/toolup/internal/inspect"
	"github.com/3leaps/toolup/internal/link"
	"github.com/3leaps/toolup/internal/logging"
	"github.com/3leaps/toolup/internal/model"
	"github.com/3leaps/toolup/internal/resolve"
	"github.com/3leaps/toolup/pkg/reconcile"
)

// ReleaseSource fetches release metadata and downloads assets.
type ReleaseSource interface {
	ReleaseByTag(ctx context.Context, repo, tag string) (*model.Release, error)
	Download(ctx context.Context, url string, w io.Writer) (int64, error)
}

// Options configure an Executor.
type Options struct {
	Env hostenv.Env
	// CacheDir holds downloaded artifacts under <CacheDir>/<version>/.
	CacheDir string
	// Retries is how many times a failed download is retried.
	Retries        int
	VersionTimeout time.Duration
	// HostCheck is passed to the post-install inspector.
	HostCheck func(path string) bool
}

// Result reports what Execute did.
type Result struct {
	Action     reconcile.Kind
	Version    string
	Tag        string
	Root       string
	BinaryPath string
	Asset      string
	AssetSize  int64
	CacheHit   bool
	Verified   []string
	Link       *link.Result
	// Warnings are non-fatal problems; the installation itself succeeded.
	Warnings []error
}

// Executor runs mutating plans. It is not safe for concurrent use.
type Executor struct {
	fs        afero.Fs
	source    ReleaseSource
	runner    hostenv.Runner
	profile   model.ToolProfile
	opts      Options
	inspector *inspect.Inspector
	log       zerolog.Logger
	warnings  []error
}

// New creates an Executor for profile.
func New(fs afero.Fs, source ReleaseSource, runner hostenv.Runner, profile model.ToolProfile, opts Options) *Executor {
	insp := inspect.New(fs, runner, profile)
	insp.HostCheck = opts.HostCheck
	if opts.VersionTimeout > 0 {
		insp.VersionTimeout = opts.VersionTimeout
	}
	return &Executor{
		fs:        fs,
		source:    source,
		runner:    runner,
		profile:   profile,
		opts:      opts,
		inspector: insp,
		log:       logging.Get("executor"),
	}
}

// StagingPath is the sibling directory a new tree is assembled in.
func StagingPath(root string) string {
	return filepath.Clean(root) + ".incoming"
}

// Execute carries out plan against target. Skip, Check and DryRun plans are
// returned as no-op results.
func (e *Executor) Execute(ctx context.Context, plan reconcile.Plan, target model.InstallTarget, resolved resolve.Resolved) (res Result, err error) {
	res = Result{Action: plan.Kind, Root: target.Root}
	if !plan.Mutates() {
		res.Version = plan.From
		return res, nil
	}

	e.warnings = nil
	defer func() { res.Warnings = e.warnings }()
	defer logging.LogOperationStart(e.log, string(plan.Kind))()

	version := reconcile.NormalizeVersion(plan.To)
	binRel := e.profile.BinaryRelPath(target.Platform)
	res.Version = version

	if err := e.checkRoot(target.Root, binRel); err != nil {
		return res, err
	}

	art, err := e.acquire(ctx, version, tagCandidates(resolved, version), target.Platform)
	if err != nil {
		return res, err
	}
	res.Tag = art.release.TagName
	res.Asset = art.asset.Name
	res.AssetSize = art.asset.Size
	res.CacheHit = art.cacheHit
	res.Verified = art.verified

	staging := StagingPath(target.Root)
	if err := e.stage(ctx, art, staging, binRel, version, target.Platform); err != nil {
		return res, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		e.discard(staging)
		return res, toolerrors.Wrap(ctxErr, toolerrors.ErrInternal, "interrupted before replacing the installation")
	}

	if err := e.swap(target.Root, staging); err != nil {
		return res, err
	}
	defer e.cleanupArtifact(art)

	res.BinaryPath = filepath.Join(target.Root, filepath.FromSlash(binRel))
	e.log.Info().Str("root", target.Root).Str("version", version).Msg("Installed")

	if target.Link == model.LinkCreate {
		lr, linkErr := link.Create(e.fs, e.opts.Env, target.LinkDir, e.profile.LinkName(target.Platform), res.BinaryPath)
		res.Link = &lr
		if linkErr != nil {
			e.warn(linkErr)
		}
	}

	if err := WriteMarker(e.fs, e.inspector.MarkerPath(target), version); err != nil {
		e.warn(toolerrors.Wrap(err, toolerrors.ErrLinkWarning, "could not write version marker"))
	}

	e.verifyInstalled(ctx, target, version)
	return res, nil
}

func tagCandidates(resolved resolve.Resolved, version string) []string {
	if reconcile.SameVersion(resolved.Version, version) {
		return resolved.TagCandidates()
	}
	return resolve.Resolved{Version: version}.TagCandidates()
}

// checkRoot refuses to replace a directory toolup does not manage.
func (e *Executor) checkRoot(root, binRel string) error {
	info, err := e.fs.Stat(root)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return toolerrors.Wrapf(err, toolerrors.ErrFilesystem, "inspect %s", root)
	}
	if !info.IsDir() {
		return toolerrors.Newf(toolerrors.ErrConfig, "install directory %s exists and is not a directory", root)
	}
	for _, p := range []string{filepath.Join(root, e.profile.MarkerFile), filepath.Join(root, filepath.FromSlash(binRel))} {
		if _, err := e.fs.Stat(p); err == nil {
			return nil
		}
	}
	entries, err := afero.ReadDir(e.fs, root)
	if err != nil {
		return toolerrors.Wrapf(err, toolerrors.ErrFilesystem, "read %s", root)
	}
	if len(entries) == 0 {
		return nil
	}
	return toolerrors.Newf(toolerrors.ErrConfig,
		"refusing to replace %s: it is not empty and holds neither %s nor %s", root, e.profile.MarkerFile, binRel).
		WithDetail("root", root)
}

// swap removes the old root and moves staging into its place.
func (e *Executor) swap(root, staging string) error {
	if err := e.fs.RemoveAll(root); err != nil {
		return toolerrors.Wrapf(err, toolerrors.ErrFilesystem, "remove previous installation %s", root)
	}
	if err := e.fs.MkdirAll(filepath.Dir(root), 0o755); err != nil {
		return toolerrors.Wrapf(err, toolerrors.ErrFilesystem, "create %s", filepath.Dir(root))
	}
	if err := archive.MoveTree(e.fs, staging, root); err != nil {
		return toolerrors.Wrapf(err, toolerrors.ErrFilesystem,
			"previous installation removed but %s could not be moved into place; rerun to install", staging)
	}
	return nil
}

func (e *Executor) verifyInstalled(ctx context.Context, target model.InstallTarget, version string) {
	state := e.inspector.Inspect(ctx, target)
	switch {
	case !state.Present:
		e.warn(toolerrors.Newf(toolerrors.ErrLinkWarning, "installed binary %s is not executable on this host", state.BinaryPath))
	case state.VersionSource != reconcile.VersionSourceBinary:
		e.warn(toolerrors.Newf(toolerrors.ErrLinkWarning, "installed binary %s did not report a version", state.BinaryPath))
	case !reconcile.SameVersion(state.Version, version):
		e.warn(toolerrors.Newf(toolerrors.ErrLinkWarning, "installed binary reports %s, expected %s",
			reconcile.FormatVersionDisplay(state.Version), reconcile.FormatVersionDisplay(version)))
	default:
		e.log.Debug().Str("version", state.Version).Msg("Installed binary verified")
	}
}

func (e *Executor) cleanupArtifact(art *artifact) {
	if err := e.fs.RemoveAll(art.dir); err != nil {
		e.log.Debug().Err(err).Str("dir", art.dir).Msg("Could not remove cached artifact")
	}
}

func (e *Executor) discard(staging string) {
	if err := e.fs.RemoveAll(staging); err != nil {
		e.log.Debug().Err(err).Str("staging", staging).Msg("Could not remove staging directory")
	}
}

func (e *Executor) warn(err error) {
	e.log.Debug().Err(err).Msg("Warning recorded")
	e.warnings = append(e.warnings, err)
}

// WriteMarker records version in path atomically, without a trailing newline.
func WriteMarker(fs afero.Fs, path, version string) error {
	tmp := path + ".tmp"
	if err := afero.WriteFile(fs, tmp, []byte(reconcile.NormalizeVersion(version)), 0o644); err != nil {
		return err
	}
	if err := fs.Rename(tmp, path); err != nil {
		_ = fs.Remove(tmp)
		return err
	}
	return nil
}
