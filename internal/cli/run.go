// Package cli implements the toolup command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"

	"github.com/3leaps/toolup/internal/config"
	toolerrors "github.com/3leaps/toolup/internal/errors"
	"github.com/3leaps/toolup/internal/executor"
	"github.com/3leaps/toolup/internal/host/github"
	"github.com/3leaps/toolup/internal/hostenv"
	"github.com/3leaps/toolup/internal/model"
	"github.com/3leaps/toolup/internal/resolve"
	"github.com/3leaps/toolup/internal/ui"
)

// Version is the toolup build version, set by the main package.
var Version = "dev"

// Source is the release backend: version lookup plus downloads.
type Source interface {
	resolve.ReleaseIndex
	executor.ReleaseSource
}

// Deps are the host facilities a run uses. Tests substitute fakes.
type Deps struct {
	Fs       afero.Fs
	Runner   hostenv.Runner
	Env      hostenv.Env
	Platform model.Platform
	// HostCheck adds kernel-level executability checks to mode bits.
	HostCheck func(path string) bool
	NewSource func(cfg *config.Config) Source
}

// DefaultDeps wires the real filesystem, processes and GitHub.
func DefaultDeps() Deps {
	return Deps{
		Fs:        afero.NewOsFs(),
		Runner:    hostenv.ExecRunner{},
		Env:       hostenv.Snapshot(),
		Platform:  model.CurrentPlatform(),
		HostCheck: hostenv.CanExecute,
		NewSource: func(cfg *config.Config) Source {
			return github.NewClient(cfg.Network.APIBase, github.UserAgent(Version))
		},
	}
}

// Run executes toolup with args and returns the process exit code. An
// interrupt or SIGTERM cancels the run between steps.
func Run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return RunContext(ctx, DefaultDeps(), args, stdout, stderr)
}

// RunContext is Run with explicit dependencies.
func RunContext(ctx context.Context, deps Deps, args []string, stdout, stderr io.Writer) int {
	exitCode := toolerrors.ExitOK
	cmd := NewRootCmd(deps, &exitCode)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	ui.ConfigureColor(stdout)
	if err := cmd.ExecuteContext(ctx); err != nil {
		// Only usage errors reach here; the install command reports its own.
		code, msg := describeError(err)
		if code == toolerrors.ErrUnknown {
			code = toolerrors.ErrConfig
		}
		fmt.Fprint(stderr, ui.ErrorLine(string(code), msg))
		return toolerrors.ExitFailure
	}
	return exitCode
}

// describeError splits err into its code and a message without the code.
func describeError(err error) (toolerrors.ErrorCode, string) {
	var te *toolerrors.Error
	if toolerrors.As(err, &te) {
		msg := te.Message
		if te.Wrapped != nil {
			msg += ": " + te.Wrapped.Error()
		}
		return te.Code, msg
	}
	return toolerrors.ErrUnknown, err.Error()
}
