package executor

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/kballard/go-shellquote"
	"github.com/spf13/afero"

	"github.com/3leaps/toolup/internal/archive"
	toolerrors "github.com/3leaps/toolup/internal/errors"
	"github.com/3leaps/toolup/internal/hostenv"
	"github.com/3leaps/toolup/internal/model"
)

// stage assembles the new tree in staging: extract, flatten, build, then
// check the binary. On failure staging is left in place for diagnosis; the
// next run clears it.
func (e *Executor) stage(ctx context.Context, art *artifact, staging, binRel, version string, platform model.Platform) error {
	if err := e.fs.RemoveAll(staging); err != nil {
		return toolerrors.Wrapf(err, toolerrors.ErrFilesystem, "clear stale staging directory %s", staging)
	}

	format := model.ArchiveFormatFromName(art.asset.Name)
	e.log.Debug().Str("format", string(format)).Str("staging", staging).Msg("Extracting artifact")
	if err := archive.Extract(e.fs, art.path, format, staging, archive.Options{RawName: binRel}); err != nil {
		return toolerrors.Wrapf(err, toolerrors.ErrExtraction, "extract %s", art.asset.Name).
			WithDetail("staging", staging)
	}

	binary := filepath.Join(staging, filepath.FromSlash(binRel))
	if format != model.ArchiveFormatRaw && !e.exists(binary) {
		flattened, err := archive.FlattenSingleDir(e.fs, staging)
		if err != nil {
			return toolerrors.Wrapf(err, toolerrors.ErrExtraction, "flatten %s", staging).
				WithDetail("staging", staging)
		}
		if flattened {
			e.log.Debug().Msg("Flattened single top-level directory")
		}
	}

	code := toolerrors.ErrExtraction
	if strings.TrimSpace(e.profile.BuildCommand) != "" {
		if err := e.build(ctx, staging, version); err != nil {
			return err
		}
		code = toolerrors.ErrBuild
	}

	info, err := e.fs.Stat(binary)
	if err != nil || info.IsDir() {
		return toolerrors.Newf(code, "%s does not provide %s", art.asset.Name, binRel).
			WithDetail("staging", staging)
	}
	// Zip archives routinely drop the execute bits.
	if platform.OS != "windows" && info.Mode().Perm()&0o111 == 0 {
		if err := e.fs.Chmod(binary, info.Mode().Perm()|0o755); err != nil {
			return toolerrors.Wrapf(err, toolerrors.ErrFilesystem, "chmod %s", binary)
		}
	}
	return nil
}

// build runs the profile's build command inside staging. {{root}} expands to
// the staging directory and {{version}} to the bare version.
func (e *Executor) build(ctx context.Context, staging, version string) error {
	args, err := shellquote.Split(e.profile.BuildCommand)
	if err != nil || len(args) == 0 {
		if err == nil {
			err = errEmptyCommand
		}
		return toolerrors.Wrap(err, toolerrors.ErrConfig, "tool.build_command cannot be parsed")
	}
	r := strings.NewReplacer("{{root}}", staging, "{{version}}", version)
	for i := range args {
		args[i] = r.Replace(args[i])
	}

	path, err := e.runner.LookPath(args[0])
	if err != nil {
		return toolerrors.Wrapf(err, toolerrors.ErrPrerequisite, "build needs %s, which is not on PATH", args[0]).
			WithDetail("command", args[0])
	}

	e.log.Info().Strs("command", args).Msg("Building")
	out, err := e.runner.Run(ctx, staging, path, args[1:]...)
	if err != nil {
		// The output travels as a detail; keep it out of the one-line message.
		var cmdErr *hostenv.CommandError
		if errors.As(err, &cmdErr) && cmdErr.Err != nil {
			err = cmdErr.Err
		}
		return toolerrors.Wrap(err, toolerrors.ErrBuild, "build command failed").
			WithDetail("output", string(out)).
			WithDetail("staging", staging)
	}
	e.log.Debug().Str("output", hostenv.TrimCommandOutput(string(out))).Msg("Build finished")
	return nil
}

func (e *Executor) exists(path string) bool {
	ok, err := afero.Exists(e.fs, path)
	return err == nil && ok
}

type commandError string

func (c commandError) Error() string { return string(c) }

const errEmptyCommand = commandError("empty command")
