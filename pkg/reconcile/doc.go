// Package reconcile decides what an installer run should do, given the version
// a user asked for and what is already installed.
//
// It performs no I/O. Callers resolve the requested version and inspect the
// install directory themselves, then hand both to Decide, which evaluates a
// fixed decision table and returns a Plan. Executing the plan is also the
// caller's job.
//
// Decision table (first match wins)
//   - check requested: CheckReport
//   - dry-run requested: DryRunReport wrapping the plan the remaining rows produce
//   - update mode, installed at the requested version, no force: Skip
//   - installed at the requested version, no force: Skip
//   - update mode, installed at another version: Update(from, to)
//   - installed at another version, no force: Skip with an advisory naming both
//   - otherwise: Reinstall when something is installed, else Install
//
// Version model
//   - Versions compare after trimming whitespace and a single leading "v", so
//     "v1.2.3" and "1.2.3" are the same version.
//   - Ordering (used only for messages) follows hashicorp/go-version; versions
//     it cannot parse are still compared for equality.
package reconcile
