// Package ui renders run reports for humans (text) and machines (JSON, YAML).
package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/3leaps/toolup/pkg/reconcile"
)

// Format selects the report encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a --format value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unknown format %q (want text, json or yaml)", s)
	}
}

// Artifact describes the downloaded release asset.
type Artifact struct {
	Name     string   `json:"name" yaml:"name"`
	Size     int64    `json:"size" yaml:"size"`
	CacheHit bool     `json:"cacheHit" yaml:"cacheHit"`
	Verified []string `json:"verified,omitempty" yaml:"verified,omitempty"`
}

// Report is everything a run has to say.
type Report struct {
	Repo       string                 `json:"repo" yaml:"repo"`
	Requested  string                 `json:"requested" yaml:"requested"`
	Resolved   string                 `json:"resolved,omitempty" yaml:"resolved,omitempty"`
	Unresolved bool                   `json:"unresolved,omitempty" yaml:"unresolved,omitempty"`
	Action     reconcile.Kind         `json:"action" yaml:"action"`
	Reason     string                 `json:"reason,omitempty" yaml:"reason,omitempty"`
	Root       string                 `json:"root" yaml:"root"`
	State      reconcile.InstallState `json:"state" yaml:"state"`
	Installed  string                 `json:"installed,omitempty" yaml:"installed,omitempty"`
	Artifact   *Artifact              `json:"artifact,omitempty" yaml:"artifact,omitempty"`
	Link       string                 `json:"link,omitempty" yaml:"link,omitempty"`
	Warnings   []string               `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Error      string                 `json:"error,omitempty" yaml:"error,omitempty"`
	ErrorCode  string                 `json:"errorCode,omitempty" yaml:"errorCode,omitempty"`
	// Output is the full output of a failed build command.
	Output     string                 `json:"output,omitempty" yaml:"output,omitempty"`
	ExitCode   int                    `json:"exitCode" yaml:"exitCode"`
}

// Write renders r to w in format.
func Write(w io.Writer, format Format, r Report) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	default:
		_, err := io.WriteString(w, RenderText(w, r))
		return err
	}
}
