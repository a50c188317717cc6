package ui

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/3leaps/toolup/pkg/reconcile"
)

func sampleReport() Report {
	return Report{
		Repo:      "3leaps/sfetch",
		Requested: "latest",
		Resolved:  "1.4.0",
		Action:    reconcile.KindUpdate,
		Reason:    "upgrade v1.2.3 -> v1.4.0",
		Root:      "/opt/sfetch",
		Installed: "1.4.0",
		State: reconcile.InstallState{
			Present:       true,
			Version:       "1.2.3",
			VersionSource: reconcile.VersionSourceBinary,
			BinaryPath:    "/opt/sfetch/sfetch",
		},
		Artifact: &Artifact{Name: "sfetch_linux_amd64.tar.gz", Size: 1024, Verified: []string{"sha256", "minisign"}},
		Link:     "/home/u/.local/bin/sfetch",
		Warnings: []string{"link dir not on PATH"},
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatText, "text": FormatText, "JSON": FormatJSON, " yaml ": FormatYAML} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, sampleReport()))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "update", got["action"])
	assert.Equal(t, "1.4.0", got["resolved"])
	assert.Equal(t, float64(0), got["exitCode"])
	state := got["state"].(map[string]any)
	assert.Equal(t, "binary", state["versionSource"])
	assert.NotContains(t, got, "error")
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatYAML, sampleReport()))

	var got map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "3leaps/sfetch", got["repo"])
	artifact := got["artifact"].(map[string]any)
	assert.Equal(t, "sfetch_linux_amd64.tar.gz", artifact["name"])
}

func TestRenderTextCompletion(t *testing.T) {
	ConfigureColor(&bytes.Buffer{})
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatText, sampleReport()))

	out := buf.String()
	assert.Contains(t, out, "3leaps/sfetch updated v1.4.0 at /opt/sfetch")
	assert.Contains(t, out, "verified sha256+minisign")
	assert.Contains(t, out, "linked /home/u/.local/bin/sfetch")
	assert.Contains(t, out, "link dir not on PATH")
	assert.NotContains(t, out, "\x1b[")
}

func TestRenderTextCheckBox(t *testing.T) {
	ConfigureColor(&bytes.Buffer{})
	r := Report{
		Repo:   "3leaps/sfetch",
		Action: reconcile.KindCheck,
		State:  reconcile.InstallState{BinaryPath: "/opt/sfetch/sfetch", BinaryExists: true, VersionSource: reconcile.VersionSourceNone},
	}
	out := RenderText(&bytes.Buffer{}, r)
	assert.Contains(t, out, "check")
	assert.Contains(t, out, "not installed (binary present but not executable)")
	assert.Contains(t, out, "╭")
}

func TestRenderTextDryRun(t *testing.T) {
	ConfigureColor(&bytes.Buffer{})
	r := Report{
		Repo:       "3leaps/sfetch",
		Requested:  "latest",
		Unresolved: true,
		Action:     reconcile.KindDryRun,
		Reason:     "dry run: nothing to do",
		State:      reconcile.InstallState{Present: true, Version: "1.2.3"},
	}
	out := RenderText(&bytes.Buffer{}, r)
	assert.Contains(t, out, "latest -> unresolved")
	assert.Contains(t, out, "v1.2.3")
	assert.Contains(t, out, "dry run: nothing to do")
}

func TestRenderTextError(t *testing.T) {
	ConfigureColor(&bytes.Buffer{})
	r := Report{Action: reconcile.KindInstall, Error: "download failed", ErrorCode: "NETWORK"}
	out := RenderText(&bytes.Buffer{}, r)
	assert.Contains(t, out, "NETWORK download failed")
	assert.NotContains(t, out, "installed")
}

func TestBuildOutputFollowsError(t *testing.T) {
	ConfigureColor(&bytes.Buffer{})
	output := "step 1\nstep 2\nmain.c:3: error: boom\n"
	r := Report{Action: reconcile.KindInstall, Error: "build command failed: exit status 2", ErrorCode: "BUILD", Output: output}

	out := RenderText(&bytes.Buffer{}, r)
	assert.Contains(t, out, "BUILD build command failed")
	assert.True(t, len(out) > len(output) && out[len(out)-len(output):] == output, "output is printed verbatim last")

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, r))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, output, decoded["output"])

	assert.Empty(t, OutputBlock("\n"))
	assert.Equal(t, "x\n", OutputBlock("x\n\n"))
}
