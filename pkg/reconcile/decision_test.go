package reconcile

import (
	"errors"
	"strings"
	"testing"
)

func installed(version string) InstallState {
	return InstallState{
		Present:          true,
		Version:          version,
		BinaryExecutable: true,
		BinaryExists:     true,
		VersionSource:    VersionSourceBinary,
		BinaryPath:       "/opt/tool/bin/tool",
	}
}

var notInstalled = InstallState{VersionSource: VersionSourceNone, BinaryPath: "/opt/tool/bin/tool"}

func TestDecideTable(t *testing.T) {
	tests := []struct {
		name     string
		target   Target
		state    InstallState
		flags    Flags
		wantKind Kind
		wantFrom string
		wantTo   string
		reason   string
	}{
		{"fresh install", ResolvedTarget("1.2.3"), notInstalled, Flags{}, KindInstall, "", "1.2.3", "installing"},
		{"same version skips", ResolvedTarget("v1.2.3"), installed("1.2.3"), Flags{}, KindSkip, "1.2.3", "1.2.3", "already at requested version"},
		{"force reinstalls same version", ResolvedTarget("1.2.3"), installed("1.2.3"), Flags{Force: true}, KindReinstall, "1.2.3", "1.2.3", "reinstalling"},
		{"update same version skips", ResolvedTarget("1.2.3"), installed("1.2.3"), Flags{UpdateOnly: true}, KindSkip, "1.2.3", "1.2.3", "already up to date"},
		{"update with force reinstalls", ResolvedTarget("1.2.3"), installed("1.2.3"), Flags{UpdateOnly: true, Force: true}, KindReinstall, "1.2.3", "1.2.3", ""},
		{"update to newer", ResolvedTarget("1.4.0"), installed("1.2.3"), Flags{UpdateOnly: true}, KindUpdate, "1.2.3", "1.4.0", "upgrade"},
		{"update to older", ResolvedTarget("1.0.0"), installed("1.2.3"), Flags{UpdateOnly: true}, KindUpdate, "1.2.3", "1.0.0", "downgrade"},
		{"update with force still updates", ResolvedTarget("1.4.0"), installed("1.2.3"), Flags{UpdateOnly: true, Force: true}, KindUpdate, "1.2.3", "1.4.0", ""},
		{"mismatch without force skips with advisory", ResolvedTarget("1.4.0"), installed("1.2.3"), Flags{}, KindSkip, "1.2.3", "1.4.0", "differs from requested"},
		{"mismatch with force reinstalls", ResolvedTarget("1.4.0"), installed("1.2.3"), Flags{Force: true}, KindReinstall, "1.2.3", "1.4.0", ""},
		{"update with nothing installed installs", ResolvedTarget("1.4.0"), notInstalled, Flags{UpdateOnly: true}, KindInstall, "", "1.4.0", ""},
		{"unknown installed version skips", ResolvedTarget("1.4.0"), installed(""), Flags{}, KindSkip, "", "1.4.0", "(unknown)"},
		{"unusable binary is replaced", ResolvedTarget("1.2.3"), InstallState{BinaryExists: true, BinaryPath: "/opt/tool/bin/tool"}, Flags{}, KindInstall, "", "1.2.3", "not executable"},
		{"unresolved keeps installed", UnresolvedTarget(), installed("1.2.3"), Flags{}, KindSkip, "1.2.3", "", "could not resolve"},
		{"unresolved keeps installed under force", UnresolvedTarget(), installed("1.2.3"), Flags{Force: true}, KindSkip, "1.2.3", "", "keeping installed v1.2.3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := Decide(tt.target, tt.state, tt.flags)
			if err != nil {
				t.Fatalf("Decide: %v", err)
			}
			if plan.Kind != tt.wantKind {
				t.Fatalf("kind: got %q want %q (reason %q)", plan.Kind, tt.wantKind, plan.Reason)
			}
			if plan.From != tt.wantFrom || plan.To != tt.wantTo {
				t.Fatalf("from/to: got %q/%q want %q/%q", plan.From, plan.To, tt.wantFrom, tt.wantTo)
			}
			if tt.reason != "" && !strings.Contains(plan.Reason, tt.reason) {
				t.Fatalf("reason: got %q want substring %q", plan.Reason, tt.reason)
			}
		})
	}
}

func TestDecideUnresolvedWithNothingInstalledFails(t *testing.T) {
	for _, flags := range []Flags{{}, {Force: true}, {UpdateOnly: true}, {DryRun: true}} {
		_, err := Decide(UnresolvedTarget(), notInstalled, flags)
		if !errors.Is(err, ErrUnresolved) {
			t.Fatalf("flags %+v: got err %v, want ErrUnresolved", flags, err)
		}
	}
}

func TestCheckAndDryRunNeverMutate(t *testing.T) {
	targets := []Target{ResolvedTarget("1.2.3"), ResolvedTarget("2.0.0"), UnresolvedTarget()}
	states := []InstallState{notInstalled, installed("1.2.3"), installed("")}

	for _, target := range targets {
		for _, state := range states {
			for mask := 0; mask < 4; mask++ {
				base := Flags{Force: mask&1 != 0, UpdateOnly: mask&2 != 0}

				check := base
				check.CheckOnly = true
				check.DryRun = mask%2 == 0
				plan, err := Decide(target, state, check)
				if err != nil {
					t.Fatalf("check: %v", err)
				}
				if plan.Kind != KindCheck || plan.Mutates() {
					t.Fatalf("check with %+v produced %q", check, plan.Kind)
				}

				dry := base
				dry.DryRun = true
				plan, err = Decide(target, state, dry)
				if err != nil {
					if !target.Resolved && !state.Present {
						continue
					}
					t.Fatalf("dry run: %v", err)
				}
				if plan.Kind != KindDryRun || plan.Mutates() || plan.Next == nil {
					t.Fatalf("dry run with %+v produced %+v", dry, plan)
				}
			}
		}
	}
}

func TestNotPresentNeverSkips(t *testing.T) {
	for _, v := range []string{"0.1.0", "1.2.3", "v2.0.0-rc1", "nightly"} {
		for mask := 0; mask < 4; mask++ {
			flags := Flags{Force: mask&1 != 0, UpdateOnly: mask&2 != 0}
			plan, err := Decide(ResolvedTarget(v), notInstalled, flags)
			if err != nil {
				t.Fatalf("Decide: %v", err)
			}
			if plan.Kind != KindInstall {
				t.Fatalf("version %q flags %+v: got %q want install", v, flags, plan.Kind)
			}
		}
	}
}

func TestUpdatePairs(t *testing.T) {
	versions := []string{"0.9.0", "1.2.3", "1.4.0", "2.0.0-rc1"}
	for _, a := range versions {
		for _, b := range versions {
			plan, err := Decide(ResolvedTarget(b), installed(a), Flags{UpdateOnly: true})
			if err != nil {
				t.Fatalf("Decide: %v", err)
			}
			if a == b {
				if plan.Kind != KindSkip {
					t.Fatalf("installed=%s requested=%s: got %q want skip", a, b, plan.Kind)
				}
				continue
			}
			if plan.Kind != KindUpdate || plan.From != a || plan.To != b {
				t.Fatalf("installed=%s requested=%s: got %+v", a, b, plan)
			}
		}
	}
}

func TestDescribe(t *testing.T) {
	plan, err := Decide(ResolvedTarget("1.4.0"), installed("1.2.3"), Flags{UpdateOnly: true, DryRun: true})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if got := Describe(plan); got != "dry run: would update v1.2.3 -> v1.4.0 (upgrade)" {
		t.Fatalf("Describe: got %q", got)
	}

	plan, err = Decide(ResolvedTarget("1.2.3"), installed("1.2.3"), Flags{DryRun: true})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if got := Describe(plan); !strings.HasPrefix(got, "dry run: nothing to do") {
		t.Fatalf("Describe: got %q", got)
	}

	plan, _ = Decide(ResolvedTarget("1.2.3"), notInstalled, Flags{CheckOnly: true})
	if got := Describe(plan); got != "check: not installed" {
		t.Fatalf("Describe: got %q", got)
	}
}
