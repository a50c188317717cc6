// Package resolve turns a user's version request into a concrete release version.
package resolve

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	goversion "github.com/hashicorp/go-version"
	"github.com/spf13/afero"

	toolerrors "github.com/3leaps/toolup/internal/errors"
	"github.com/3leaps/toolup/internal/logging"
	"github.com/3leaps/toolup/internal/model"
	"github.com/3leaps/toolup/pkg/reconcile"
)

// Kind tags a Spec.
type Kind int

const (
	Latest Kind = iota
	Stable
	Explicit
	FromFile
)

func (k Kind) String() string {
	switch k {
	case Latest:
		return "latest"
	case Stable:
		return "stable"
	case Explicit:
		return "explicit"
	case FromFile:
		return "file"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Spec is a parsed version request.
type Spec struct {
	Kind Kind
	// Value is the version for Explicit and the path for FromFile.
	Value string
}

func (s Spec) String() string {
	switch s.Kind {
	case Explicit:
		return s.Value
	case FromFile:
		return "file:" + s.Value
	default:
		return s.Kind.String()
	}
}

// ParseSpec interprets the --version and --version-file flags. A version file
// takes precedence; callers reject setting both explicitly.
func ParseSpec(version, versionFile string) (Spec, error) {
	if versionFile != "" {
		return Spec{Kind: FromFile, Value: versionFile}, nil
	}
	v := strings.TrimSpace(version)
	switch strings.ToLower(v) {
	case "", "latest":
		return Spec{Kind: Latest}, nil
	case "stable":
		return Spec{Kind: Stable}, nil
	}
	if reconcile.NormalizeVersion(v) == "" {
		return Spec{}, toolerrors.Newf(toolerrors.ErrConfig, "invalid version %q", version)
	}
	return Spec{Kind: Explicit, Value: v}, nil
}

// Resolved is the outcome of Resolve. Unresolved is only ever set for Latest
// and Stable requests whose release index could not be read.
type Resolved struct {
	Version    string `json:"version,omitempty" yaml:"version,omitempty"`
	Tag        string `json:"tag,omitempty" yaml:"tag,omitempty"`
	Unresolved bool   `json:"unresolved,omitempty" yaml:"unresolved,omitempty"`
	Cause      error  `json:"-" yaml:"-"`
}

// Target converts r into the planner's view.
func (r Resolved) Target() reconcile.Target {
	if r.Unresolved {
		return reconcile.UnresolvedTarget()
	}
	return reconcile.ResolvedTarget(r.Version)
}

// TagCandidates lists release tags to try for r, the known tag first.
func (r Resolved) TagCandidates() []string {
	var out []string
	seen := map[string]bool{}
	for _, tag := range []string{r.Tag, "v" + r.Version, r.Version} {
		if tag == "" || tag == "v" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}

// ReleaseIndex lists the releases of a repository, newest first.
type ReleaseIndex interface {
	Releases(ctx context.Context, repo string) ([]model.Release, error)
}

// Resolver resolves specs for one repository. Results are memoized so a run
// sees one consistent answer.
type Resolver struct {
	index ReleaseIndex
	repo  string
	fs    afero.Fs

	mu    sync.Mutex
	cache map[Spec]Resolved
}

// New creates a Resolver. fs is used to read version files.
func New(index ReleaseIndex, repo string, fs afero.Fs) *Resolver {
	return &Resolver{index: index, repo: repo, fs: fs, cache: make(map[Spec]Resolved)}
}

// Resolve returns the concrete version for spec. An unreachable index yields
// Resolved{Unresolved: true} and a nil error; configuration problems are errors.
func (r *Resolver) Resolve(ctx context.Context, spec Spec) (Resolved, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if res, ok := r.cache[spec]; ok {
		return res, nil
	}

	res, err := r.resolve(ctx, spec)
	if err != nil {
		return Resolved{}, err
	}
	r.cache[spec] = res
	return res, nil
}

func (r *Resolver) resolve(ctx context.Context, spec Spec) (Resolved, error) {
	logger := logging.Get("resolve")

	switch spec.Kind {
	case Explicit:
		v := reconcile.NormalizeVersion(spec.Value)
		if v == "" {
			return Resolved{}, toolerrors.Newf(toolerrors.ErrConfig, "invalid version %q", spec.Value)
		}
		return Resolved{Version: v}, nil

	case FromFile:
		v, err := readVersionFile(r.fs, spec.Value)
		if err != nil {
			return Resolved{}, err
		}
		logger.Debug().Str("file", spec.Value).Str("version", v).Msg("Read version file")
		return Resolved{Version: v}, nil

	case Latest, Stable:
		releases, err := r.index.Releases(ctx, r.repo)
		if err != nil {
			if ctx.Err() != nil {
				return Resolved{}, toolerrors.Wrap(ctx.Err(), toolerrors.ErrNetwork, "release lookup interrupted")
			}
			logger.Warn().Err(err).Str("repo", r.repo).Msg("Release index unreachable")
			return Resolved{Unresolved: true, Cause: err}, nil
		}
		rel, ok := pickRelease(releases, spec.Kind == Stable)
		if !ok {
			cause := fmt.Errorf("no %s release published for %s", spec.Kind, r.repo)
			logger.Warn().Err(cause).Msg("Release index has no candidates")
			return Resolved{Unresolved: true, Cause: cause}, nil
		}
		res := Resolved{Version: reconcile.NormalizeVersion(rel.TagName), Tag: rel.TagName}
		logger.Debug().Str("spec", spec.String()).Str("tag", res.Tag).Msg("Resolved release")
		return res, nil

	default:
		return Resolved{}, toolerrors.Newf(toolerrors.ErrInternal, "unknown version spec kind %d", spec.Kind)
	}
}

// pickRelease returns the highest-versioned non-draft release, skipping
// prereleases when stableOnly is set. Releases whose tags do not parse rank
// below parseable ones; ties keep index order.
func pickRelease(releases []model.Release, stableOnly bool) (model.Release, bool) {
	var (
		best       model.Release
		bestParsed *goversion.Version
		found      bool
	)
	for _, rel := range releases {
		if rel.Draft || (stableOnly && rel.Prerelease) {
			continue
		}
		if reconcile.NormalizeVersion(rel.TagName) == "" {
			continue
		}
		parsed, err := goversion.NewVersion(reconcile.NormalizeVersion(rel.TagName))
		if err != nil {
			parsed = nil
		}
		switch {
		case !found:
			best, bestParsed, found = rel, parsed, true
		case parsed != nil && (bestParsed == nil || parsed.GreaterThan(bestParsed)):
			best, bestParsed = rel, parsed
		}
	}
	return best, found
}

func readVersionFile(fs afero.Fs, path string) (string, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return "", toolerrors.Wrapf(err, toolerrors.ErrConfig, "read version file %s", path)
	}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if v := reconcile.NormalizeVersion(line); v != "" {
			return v, nil
		}
		break
	}
	return "", toolerrors.Newf(toolerrors.ErrConfig, "version file %s is empty", path)
}
