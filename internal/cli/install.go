package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/3leaps/toolup/internal/config"
	toolerrors "github.com/3leaps/toolup/internal/errors"
	"github.com/3leaps/toolup/internal/executor"
	"github.com/3leaps/toolup/internal/inspect"
	"github.com/3leaps/toolup/internal/lock"
	"github.com/3leaps/toolup/internal/logging"
	"github.com/3leaps/toolup/internal/resolve"
	"github.com/3leaps/toolup/internal/ui"
	"github.com/3leaps/toolup/pkg/reconcile"
)

// run carries the state of one invocation so the report can be built from
// whatever stages completed.
type run struct {
	deps   Deps
	opts   *options
	stdout io.Writer
	stderr io.Writer
	format ui.Format
	report ui.Report
}

func runInstall(cmd *cobra.Command, deps Deps, opts *options) int {
	r := &run{deps: deps, opts: opts, stdout: cmd.OutOrStdout(), stderr: cmd.ErrOrStderr(), format: ui.FormatText}

	closeLog, err := logging.Setup(logging.Options{Verbosity: opts.verbose, Quiet: opts.quiet, Out: r.stderr})
	if err != nil {
		fmt.Fprintf(r.stderr, "warning: %v\n", err)
	}
	defer func() { _ = closeLog() }()

	code, err := r.execute(cmd)
	return r.finish(code, err)
}

func (r *run) execute(cmd *cobra.Command) (int, error) {
	ctx := cmd.Context()
	opts := r.opts

	overrides, err := flagOverrides(cmd, opts)
	if err != nil {
		return 0, err
	}
	if opts.format != "" {
		if r.format, err = ui.ParseFormat(opts.format); err != nil {
			return 0, toolerrors.Wrap(err, toolerrors.ErrConfig, "invalid --format")
		}
	}

	cfg, err := config.Load(config.LoadOptions{File: opts.configFile, Overrides: overrides})
	if err != nil {
		return 0, err
	}
	if opts.format == "" {
		if r.format, err = ui.ParseFormat(cfg.Output.Format); err != nil {
			return 0, toolerrors.Wrap(err, toolerrors.ErrConfig, "invalid output.format")
		}
	}
	if cfg.Output.LogFile != "" {
		closeLog, err := logging.Setup(logging.Options{
			Verbosity: opts.verbose, Quiet: opts.quiet, Out: r.stderr, File: cfg.Output.LogFile,
		})
		if err != nil {
			return 0, toolerrors.Wrap(err, toolerrors.ErrConfig, "cannot open output.log_file")
		}
		defer func() { _ = closeLog() }()
	}
	logger := logging.Get("cli")
	logger.Debug().Str("config", cfg.Describe()).Msg("Starting")

	spec, err := resolve.ParseSpec(opts.version, opts.versionFile)
	if err != nil {
		return 0, err
	}
	target := cfg.Target(r.deps.Platform)
	r.report.Repo = cfg.Tool.Repo
	r.report.Requested = spec.String()
	r.report.Root = target.Root

	insp := inspect.New(r.deps.Fs, r.deps.Runner, cfg.Tool)
	insp.HostCheck = r.deps.HostCheck
	insp.VersionTimeout = cfg.Network.VersionTimeout

	flags := reconcile.Flags{Force: opts.force, UpdateOnly: opts.update, CheckOnly: opts.check, DryRun: opts.dryRun}

	// A check reports local state only and never touches the network.
	if flags.CheckOnly {
		state := insp.Inspect(ctx, target)
		plan, err := reconcile.Decide(reconcile.UnresolvedTarget(), state, flags)
		if err != nil {
			return 0, toolerrors.Wrap(err, toolerrors.ErrInternal, "check")
		}
		r.setPlan(plan)
		r.report.Installed = state.Version
		if !state.Present {
			return toolerrors.ExitNotInstalled, nil
		}
		return toolerrors.ExitOK, nil
	}

	source := r.deps.NewSource(cfg)
	resolved, err := resolve.New(source, cfg.Tool.Repo, r.deps.Fs).Resolve(ctx, spec)
	if err != nil {
		return 0, err
	}
	r.report.Resolved = resolved.Version
	r.report.Unresolved = resolved.Unresolved

	state := insp.Inspect(ctx, target)
	plan, err := r.decide(resolved, spec, cfg.Tool.Repo, state, flags)
	if err != nil {
		return 0, err
	}

	// Only mutating plans take the lock. The state may have changed while
	// waiting for it, so the plan is decided again under the lock.
	if plan.Mutates() {
		held, err := lock.Acquire(ctx, r.deps.Fs, target.Root, cfg.Install.LockTimeout)
		if err != nil {
			return 0, err
		}
		defer func() {
			if err := held.Release(); err != nil {
				logger.Debug().Err(err).Msg("Releasing install lock")
			}
		}()
		state = insp.Inspect(ctx, target)
		if plan, err = r.decide(resolved, spec, cfg.Tool.Repo, state, flags); err != nil {
			return 0, err
		}
	}
	r.setPlan(plan)
	logger.Info().Str("plan", string(plan.Kind)).Msg(reconcile.Describe(plan))

	if !plan.Mutates() {
		return toolerrors.ExitOK, nil
	}

	ex := executor.New(r.deps.Fs, source, r.deps.Runner, cfg.Tool, executor.Options{
		Env:            r.deps.Env,
		CacheDir:       cfg.Install.CacheDir,
		Retries:        cfg.Network.DownloadRetries,
		VersionTimeout: cfg.Network.VersionTimeout,
		HostCheck:      r.deps.HostCheck,
	})
	res, err := ex.Execute(ctx, plan, target, resolved)
	r.setResult(res)
	if err != nil {
		return 0, err
	}
	return toolerrors.ExitOK, nil
}

func (r *run) decide(resolved resolve.Resolved, spec resolve.Spec, repo string, state reconcile.InstallState, flags reconcile.Flags) (reconcile.Plan, error) {
	r.report.State = state
	r.report.Installed = state.Version

	plan, err := reconcile.Decide(resolved.Target(), state, flags)
	if errors.Is(err, reconcile.ErrUnresolved) {
		nerr := toolerrors.Wrapf(err, toolerrors.ErrNetwork, "cannot determine the %s release of %s", spec, repo)
		if resolved.Cause != nil {
			nerr = nerr.WithDetail("cause", resolved.Cause.Error())
		}
		return reconcile.Plan{}, nerr
	}
	if err != nil {
		return reconcile.Plan{}, toolerrors.Wrap(err, toolerrors.ErrInternal, "plan")
	}
	return plan, nil
}

func (r *run) setPlan(plan reconcile.Plan) {
	r.report.Action = plan.Kind
	r.report.Reason = plan.Reason
	if plan.Kind == reconcile.KindDryRun {
		r.report.Reason = reconcile.Describe(plan)
	}
	r.report.State = plan.State
}

func (r *run) setResult(res executor.Result) {
	if res.Asset != "" {
		r.report.Artifact = &ui.Artifact{Name: res.Asset, Size: res.AssetSize, CacheHit: res.CacheHit, Verified: res.Verified}
	}
	if res.BinaryPath != "" {
		r.report.Installed = res.Version
	}
	if res.Link != nil && res.Link.Created {
		r.report.Link = res.Link.Path
	}
	for _, w := range res.Warnings {
		_, msg := describeError(w)
		r.report.Warnings = append(r.report.Warnings, msg)
	}
}

// finish renders the report and returns the exit code. Text reports go to
// stdout with fatal errors on stderr; structured reports carry the error.
func (r *run) finish(code int, err error) int {
	if err != nil {
		errCode, msg := describeError(err)
		r.report.ErrorCode = string(errCode)
		r.report.Error = msg
		r.report.Output = errorOutput(err)
		code = toolerrors.ExitCode(err)
		logger := logging.Get("cli")
		logger.Debug().Err(err).Msg("Run failed")
	}
	r.report.ExitCode = code

	if r.format == ui.FormatText {
		out := r.report
		out.Error, out.ErrorCode, out.Output = "", "", ""
		if writeErr := ui.Write(r.stdout, ui.FormatText, out); writeErr != nil {
			return toolerrors.ExitFailure
		}
		if err != nil {
			fmt.Fprint(r.stderr, ui.ErrorLine(r.report.ErrorCode, r.report.Error))
			fmt.Fprint(r.stderr, ui.OutputBlock(r.report.Output))
		}
		return code
	}
	if writeErr := ui.Write(r.stdout, r.format, r.report); writeErr != nil {
		fmt.Fprint(r.stderr, ui.ErrorLine(string(toolerrors.ErrInternal), writeErr.Error()))
		return toolerrors.ExitFailure
	}
	return code
}

// errorOutput returns the captured command output carried by err, if any.
func errorOutput(err error) string {
	var te *toolerrors.Error
	if !toolerrors.As(err, &te) {
		return ""
	}
	out, _ := te.Details["output"].(string)
	return out
}

// flagOverrides maps explicitly set flags onto config keys and rejects
// contradictory combinations before any stage runs.
func flagOverrides(cmd *cobra.Command, opts *options) (map[string]interface{}, error) {
	f := cmd.Flags()
	if opts.link && opts.noLink {
		return nil, toolerrors.New(toolerrors.ErrConfig, "--link and --no-link are mutually exclusive")
	}
	if opts.versionFile != "" && f.Changed("version") {
		return nil, toolerrors.New(toolerrors.ErrConfig, "--version and --version-file are mutually exclusive")
	}
	if opts.check && (opts.force || opts.update) {
		logger := logging.Get("cli")
		logger.Debug().Msg("--check ignores --force and --update")
	}

	overrides := map[string]interface{}{}
	if f.Changed("dir") {
		overrides["install.dir"] = opts.dir
	}
	if f.Changed("repo") {
		overrides["tool.repo"] = opts.repo
	}
	if f.Changed("link-dir") {
		overrides["install.link_dir"] = opts.linkDir
	}
	if f.Changed("timeout") {
		overrides["install.lock_timeout"] = opts.timeout.String()
	}
	if opts.link {
		overrides["install.link"] = true
	}
	if opts.noLink {
		overrides["install.link"] = false
	}
	return overrides, nil
}
