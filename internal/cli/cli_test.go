package cli

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/toolup/internal/config"
	"github.com/3leaps/toolup/internal/host/github"
	"github.com/3leaps/toolup/internal/hostenv"
	"github.com/3leaps/toolup/internal/lock"
	"github.com/3leaps/toolup/internal/model"
)

const assetName = "sfetch_linux_amd64.tar.gz"

type fakeSource struct {
	releases    []model.Release
	files       map[string][]byte
	indexErr    error
	downloads   int
	indexCalled int
}

func (f *fakeSource) publish(t *testing.T, version string) {
	t.Helper()
	archive := releaseArchive(t, version)
	tag := "v" + version
	sums := []byte(fmt.Sprintf("%x  %s\n", sha256.Sum256(archive), assetName))
	rel := model.Release{TagName: tag}
	for name, data := range map[string][]byte{assetName: archive, "SHA256SUMS": sums} {
		url := "https://dl.test/" + tag + "/" + name
		f.files[url] = data
		rel.Assets = append(rel.Assets, model.Asset{Name: name, BrowserDownloadUrl: url, Size: int64(len(data))})
	}
	f.releases = append([]model.Release{rel}, f.releases...)
}

func (f *fakeSource) Releases(context.Context, string) ([]model.Release, error) {
	f.indexCalled++
	if f.indexErr != nil {
		return nil, f.indexErr
	}
	return f.releases, nil
}

func (f *fakeSource) ReleaseByTag(_ context.Context, _, tag string) (*model.Release, error) {
	for i := range f.releases {
		if f.releases[i].TagName == tag {
			return &f.releases[i], nil
		}
	}
	return nil, &github.StatusError{URL: tag, StatusCode: 404}
}

func (f *fakeSource) Download(_ context.Context, url string, w io.Writer) (int64, error) {
	f.downloads++
	data, ok := f.files[url]
	if !ok {
		return 0, &github.StatusError{URL: url, StatusCode: 404}
	}
	n, err := w.Write(data)
	return int64(n), err
}

// scriptRunner "runs" a binary by echoing its contents, which for the test
// archives is a shell script mentioning its version. When build is set, a
// "make" tool is on PATH and running it returns build's result.
type scriptRunner struct {
	build func() ([]byte, error)
}

const makePath = "/usr/bin/make"

func (s scriptRunner) Run(_ context.Context, _, name string, _ ...string) ([]byte, error) {
	if name == makePath && s.build != nil {
		return s.build()
	}
	return os.ReadFile(name)
}

func (s scriptRunner) LookPath(file string) (string, error) {
	if file == "make" && s.build != nil {
		return makePath, nil
	}
	return "", fmt.Errorf("%s not found", file)
}

func releaseArchive(t *testing.T, version string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	body := "#!/bin/sh\necho sfetch " + version + "\n"
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "sfetch", Mode: 0o755, Size: int64(len(body)), Typeflag: tar.TypeReg}))
	_, err := tw.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gw.Close())
	return buf.Bytes()
}

type harness struct {
	t      *testing.T
	dir    string
	root   string
	bin    string
	source *fakeSource
	deps   Deps
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("exercises unix executable bits and symlinks")
	}
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))
	t.Setenv("XDG_BIN_HOME", filepath.Join(dir, "bin"))
	xdg.Reload()
	t.Cleanup(xdg.Reload)

	h := &harness{
		t:      t,
		dir:    dir,
		root:   filepath.Join(dir, "data", "toolup", "sfetch"),
		bin:    filepath.Join(dir, "bin"),
		source: &fakeSource{files: map[string][]byte{}},
	}
	h.deps = Deps{
		Fs:       afero.NewOsFs(),
		Runner:   scriptRunner{},
		Env:      hostenv.Env{Home: dir, Path: h.bin, GOOS: runtime.GOOS},
		Platform: model.Platform{OS: "linux", Arch: "amd64"},
		NewSource: func(*config.Config) Source {
			return h.source
		},
	}
	return h
}

func (h *harness) run(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := RunContext(context.Background(), h.deps, args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func (h *harness) marker() string {
	data, err := os.ReadFile(filepath.Join(h.root, ".toolup-version"))
	if err != nil {
		return ""
	}
	return string(data)
}

func TestFreshInstallIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.source.publish(t, "1.4.0")

	code, stdout, stderr := h.run()
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "3leaps/sfetch installed v1.4.0")
	assert.Equal(t, "1.4.0", h.marker())

	target, err := os.Readlink(filepath.Join(h.bin, "sfetch"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(h.root, "sfetch"), target)
	_, err = os.Stat(lock.Path(h.root))
	assert.NoError(t, err, "mutating runs take the install lock")

	downloads := h.source.downloads
	before := snapshotTree(t, h.dir)
	code, stdout, stderr = h.run()
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "already at requested version v1.4.0")
	assert.Equal(t, downloads, h.source.downloads, "second run must not download")
	assert.Equal(t, before, snapshotTree(t, h.dir), "second run must not write")
}

// snapshotTree records path, mode, mtime and content digest (or link target)
// for everything under dir.
func snapshotTree(t *testing.T, dir string) map[string]string {
	t.Helper()
	out := map[string]string{}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		info, err := os.Lstat(path)
		if err != nil {
			return err
		}
		entry := fmt.Sprintf("%s %s", info.Mode(), info.ModTime().Format(time.RFC3339Nano))
		switch {
		case info.Mode()&os.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			entry += " -> " + target
		case info.Mode().IsRegular():
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			entry += fmt.Sprintf(" %x", sha256.Sum256(data))
		}
		out[path] = entry
		return nil
	})
	require.NoError(t, err)
	return out
}

func TestSkipTakesNoLock(t *testing.T) {
	h := newHarness(t)
	h.source.publish(t, "1.4.0")

	code, _, stderr := h.run("--no-link")
	require.Equal(t, 0, code, stderr)
	require.NoError(t, os.Remove(lock.Path(h.root)))

	code, stdout, stderr := h.run("--no-link")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "already at requested version")
	_, err := os.Stat(lock.Path(h.root))
	assert.True(t, os.IsNotExist(err), "a skip must not create the lock file")
}

func TestBuildFailureShowsFullOutput(t *testing.T) {
	h := newHarness(t)
	h.source.publish(t, "1.4.0")
	t.Setenv("TOOLUP_TOOL__BUILD_COMMAND", "make install")

	var lines []string
	for i := 1; i <= 80; i++ {
		lines = append(lines, fmt.Sprintf("compiling-unit-%d", i))
	}
	lines = append(lines, "main.c:42: error: DIAG-42")
	output := strings.Join(lines, "\n") + "\n"
	h.deps.Runner = scriptRunner{build: func() ([]byte, error) {
		return []byte(output), &hostenv.CommandError{
			Command: makePath,
			Output:  output,
			Err:     errors.New("exit status 2"),
		}
	}}

	code, _, stderr := h.run("--no-link")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "BUILD")
	assert.Contains(t, stderr, "compiling-unit-1\n")
	assert.Contains(t, stderr, "main.c:42: error: DIAG-42")
	assert.Equal(t, 1, strings.Count(stderr, "DIAG-42"), "output is printed once, under the error line")

	code, stdout, _ := h.run("--no-link", "--format", "json")
	assert.Equal(t, 1, code)
	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.Equal(t, "BUILD", report["errorCode"])
	assert.Equal(t, output, report["output"])
}

func TestCheckExitCodes(t *testing.T) {
	h := newHarness(t)
	h.source.publish(t, "1.4.0")

	code, stdout, _ := h.run("--check")
	assert.Equal(t, 3, code)
	assert.Contains(t, stdout, "not installed")
	assert.Zero(t, h.source.indexCalled, "check stays offline")

	code, _, stderr := h.run("--no-link")
	require.Equal(t, 0, code, stderr)

	code, stdout, _ = h.run("--check", "--format", "json")
	assert.Equal(t, 0, code)
	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.Equal(t, "check", report["action"])
	state := report["state"].(map[string]any)
	assert.Equal(t, true, state["present"])
	assert.Equal(t, "1.4.0", state["version"])
}

func TestFlagConflicts(t *testing.T) {
	h := newHarness(t)
	h.source.publish(t, "1.4.0")

	code, _, stderr := h.run("--link", "--no-link")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "CONFIG")
	assert.Contains(t, stderr, "mutually exclusive")

	code, _, stderr = h.run("--version", "1.0.0", "--version-file", filepath.Join(h.dir, "v.txt"))
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "--version-file")

	code, _, _ = h.run("--format", "xml")
	assert.Equal(t, 1, code)

	code, _, stderr = h.run("--no-such-flag")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "unknown flag")

	assert.Zero(t, h.source.indexCalled)
	_, err := os.Stat(h.root)
	assert.True(t, os.IsNotExist(err))
}

func TestUnresolvedLatest(t *testing.T) {
	h := newHarness(t)
	h.source.publish(t, "1.4.0")
	h.source.indexErr = errors.New("dial tcp: connection refused")

	code, _, stderr := h.run()
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "NETWORK")

	code, stdout, stderr := h.run("--version", "1.4.0")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "installed v1.4.0")

	code, stdout, stderr = h.run()
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "keeping installed v1.4.0")
}

func TestDryRunDoesNotMutate(t *testing.T) {
	h := newHarness(t)
	h.source.publish(t, "1.4.0")

	code, stdout, stderr := h.run("--dry-run", "--format", "json")
	require.Equal(t, 0, code, stderr)

	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.Equal(t, "dry-run", report["action"])
	assert.Equal(t, "dry run: would install v1.4.0", report["reason"])
	assert.Zero(t, h.source.downloads)
	for _, p := range []string{h.root, lock.Path(h.root)} {
		_, err := os.Stat(p)
		assert.True(t, os.IsNotExist(err), p)
	}
}

func TestUpdateFlow(t *testing.T) {
	h := newHarness(t)
	h.source.publish(t, "1.2.3")

	code, _, stderr := h.run("--version", "v1.2.3", "--no-link")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "1.2.3", h.marker())

	h.source.publish(t, "1.4.0")
	code, stdout, stderr := h.run("--no-link")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "differs from requested")
	assert.Equal(t, "1.2.3", h.marker())

	code, stdout, stderr = h.run("--update", "--no-link", "--format", "yaml")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "action: update")
	assert.Equal(t, "1.4.0", h.marker())

	code, stdout, stderr = h.run("--update", "--no-link")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "already up to date")
}

func TestVersionFile(t *testing.T) {
	h := newHarness(t)
	h.source.publish(t, "1.2.3")
	h.source.publish(t, "1.4.0")
	file := filepath.Join(h.dir, ".sfetch-version")
	require.NoError(t, os.WriteFile(file, []byte("# pinned\nv1.2.3\n"), 0o644))

	code, _, stderr := h.run("--version-file", file, "--no-link")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "1.2.3", h.marker())
	assert.Zero(t, h.source.indexCalled)

	code, _, stderr = h.run("--version-file", filepath.Join(h.dir, "missing"))
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "CONFIG")
}

func TestRefusesUnmanagedDirectory(t *testing.T) {
	h := newHarness(t)
	h.source.publish(t, "1.4.0")
	dir := filepath.Join(h.dir, "precious")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("keep"), 0o644))

	code, _, stderr := h.run("--dir", dir)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "refusing to replace")
	_, err := os.Stat(filepath.Join(dir, "notes.txt"))
	assert.NoError(t, err)
}

func TestVersionCommand(t *testing.T) {
	h := newHarness(t)
	code, stdout, _ := h.run("version")
	assert.Equal(t, 0, code)
	assert.Equal(t, "toolup dev\n", stdout)
}
