package reconcile

import (
	"errors"
	"fmt"
)

// Kind is the tag of a Plan.
type Kind string

const (
	KindSkip      Kind = "skip"      // Nothing to do
	KindInstall   Kind = "install"   // Nothing usable installed
	KindReinstall Kind = "reinstall" // Replace the installed tree
	KindUpdate    Kind = "update"    // Move from one version to another
	KindCheck     Kind = "check"     // Report state only
	KindDryRun    Kind = "dry-run"   // Describe the plan without running it
)

// VersionSource records where InstallState.Version came from.
type VersionSource string

const (
	VersionSourceNone   VersionSource = "none"
	VersionSourceBinary VersionSource = "binary"
	VersionSourceMarker VersionSource = "marker"
)

// InstallState is what is on disk right now. It is recomputed on every run.
type InstallState struct {
	// Present requires the binary to exist and be executable.
	Present          bool          `json:"present" yaml:"present"`
	Version          string        `json:"version,omitempty" yaml:"version,omitempty"`
	BinaryExecutable bool          `json:"binaryExecutable" yaml:"binaryExecutable"`
	BinaryExists     bool          `json:"binaryExists" yaml:"binaryExists"`
	MarkerVersion    string        `json:"markerVersion,omitempty" yaml:"markerVersion,omitempty"`
	VersionSource    VersionSource `json:"versionSource" yaml:"versionSource"`
	BinaryPath       string        `json:"binaryPath" yaml:"binaryPath"`
}

// Target is the version a run should end at. An unresolved target means the
// newest release could not be determined.
type Target struct {
	Version  string
	Resolved bool
}

// ResolvedTarget returns a target for a concrete version.
func ResolvedTarget(version string) Target {
	return Target{Version: NormalizeVersion(version), Resolved: true}
}

// UnresolvedTarget returns the sentinel used when the release index was unreachable.
func UnresolvedTarget() Target {
	return Target{}
}

// Flags are the user-selected modes that influence the decision.
type Flags struct {
	Force      bool
	UpdateOnly bool
	CheckOnly  bool
	DryRun     bool
}

// Plan is the outcome of Decide.
type Plan struct {
	Kind   Kind
	Reason string
	// From and To are set for Update, Install and Reinstall.
	From  string
	To    string
	State InstallState
	// Next is the plan a DryRun describes.
	Next *Plan
}

// Mutates reports whether executing the plan changes the filesystem.
func (p Plan) Mutates() bool {
	switch p.Kind {
	case KindInstall, KindReinstall, KindUpdate:
		return true
	default:
		return false
	}
}

// ErrUnresolved is returned when the target could not be resolved and there is
// no installation to fall back on.
var ErrUnresolved = errors.New("requested version could not be resolved and nothing is installed")

// Decide evaluates the decision table. It never performs I/O.
func Decide(target Target, state InstallState, flags Flags) (Plan, error) {
	if flags.CheckOnly {
		return Plan{Kind: KindCheck, Reason: describeState(state), State: state}, nil
	}
	if flags.DryRun {
		next, err := decideMutation(target, state, flags)
		if err != nil {
			return Plan{}, err
		}
		return Plan{Kind: KindDryRun, Reason: Describe(next), State: state, Next: &next}, nil
	}
	return decideMutation(target, state, flags)
}

func decideMutation(target Target, state InstallState, flags Flags) (Plan, error) {
	if !target.Resolved {
		if state.Present {
			return Plan{
				Kind:   KindSkip,
				Reason: fmt.Sprintf("could not resolve the requested release; keeping installed %s", FormatVersionDisplay(state.Version)),
				From:   state.Version,
				State:  state,
			}, nil
		}
		return Plan{}, ErrUnresolved
	}

	want := NormalizeVersion(target.Version)
	have := NormalizeVersion(state.Version)
	same := SameVersion(want, have)

	switch {
	// Both same-version rows skip; the update-only wording wins under --update.
	case flags.UpdateOnly && state.Present && same && !flags.Force:
		return skip(state, want, "already up to date"), nil

	case state.Present && same && !flags.Force:
		return skip(state, want, "already at requested version "+FormatVersionDisplay(want)), nil

	case flags.UpdateOnly && state.Present && !same:
		return Plan{
			Kind:   KindUpdate,
			Reason: fmt.Sprintf("%s %s -> %s", Direction(have, want), FormatVersionDisplay(have), FormatVersionDisplay(want)),
			From:   have,
			To:     want,
			State:  state,
		}, nil

	case state.Present && !same && !flags.Force:
		return skip(state, want, fmt.Sprintf(
			"installed version %s differs from requested %s; rerun with --update or --force to replace it",
			FormatVersionDisplay(have), FormatVersionDisplay(want))), nil
	}

	if state.Present {
		return Plan{
			Kind:   KindReinstall,
			Reason: fmt.Sprintf("reinstalling %s (installed %s)", FormatVersionDisplay(want), FormatVersionDisplay(have)),
			From:   have,
			To:     want,
			State:  state,
		}, nil
	}

	reason := "installing " + FormatVersionDisplay(want)
	if state.BinaryExists {
		reason += " (existing binary is not executable and will be replaced)"
	}
	return Plan{Kind: KindInstall, Reason: reason, To: want, State: state}, nil
}

func skip(state InstallState, want, reason string) Plan {
	return Plan{Kind: KindSkip, Reason: reason, From: NormalizeVersion(state.Version), To: want, State: state}
}

func describeState(state InstallState) string {
	switch {
	case state.Present:
		return fmt.Sprintf("installed %s at %s", FormatVersionDisplay(state.Version), state.BinaryPath)
	case state.BinaryExists:
		return fmt.Sprintf("not installed: %s exists but is not executable", state.BinaryPath)
	default:
		return "not installed"
	}
}

// Describe returns a one-line human description of the plan.
func Describe(p Plan) string {
	switch p.Kind {
	case KindSkip:
		return "skip: " + p.Reason
	case KindInstall:
		return "install " + FormatVersionDisplay(p.To)
	case KindReinstall:
		return fmt.Sprintf("reinstall %s", FormatVersionDisplay(p.To))
	case KindUpdate:
		return fmt.Sprintf("update %s -> %s (%s)", FormatVersionDisplay(p.From), FormatVersionDisplay(p.To), Direction(p.From, p.To))
	case KindCheck:
		return "check: " + p.Reason
	case KindDryRun:
		switch {
		case p.Next == nil:
			return "dry run"
		case p.Next.Kind == KindSkip:
			return "dry run: nothing to do (" + p.Next.Reason + ")"
		default:
			return "dry run: would " + Describe(*p.Next)
		}
	default:
		return string(p.Kind)
	}
}
