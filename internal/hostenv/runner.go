package hostenv

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

const maxCommandOutput = 512

// Runner starts processes. Tests substitute a fake.
type Runner interface {
	// Run executes name with args in dir and returns combined output.
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
	LookPath(file string) (string, error)
}

// ExecRunner runs real processes through os/exec.
type ExecRunner struct {
	// Env, when non-nil, replaces the inherited environment.
	Env []string
}

func (r ExecRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if r.Env != nil {
		cmd.Env = r.Env
	}
	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined
	if err := cmd.Run(); err != nil {
		return combined.Bytes(), &CommandError{
			Command: strings.TrimSpace(name + " " + strings.Join(args, " ")),
			Output:  combined.String(),
			Err:     err,
		}
	}
	return combined.Bytes(), nil
}

func (ExecRunner) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

// CommandError is returned by ExecRunner when a process fails to start or
// exits non-zero. Output holds the full combined output.
type CommandError struct {
	Command string
	Output  string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %v: %s", e.Command, e.Err, TrimCommandOutput(e.Output))
}

func (e *CommandError) Unwrap() error { return e.Err }

// TrimCommandOutput shortens process output for one-line error messages.
func TrimCommandOutput(out string) string {
	clean := strings.TrimSpace(out)
	if clean == "" {
		return "command failed"
	}
	if len(clean) > maxCommandOutput {
		return clean[:maxCommandOutput] + "..."
	}
	return clean
}
