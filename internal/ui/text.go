package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/pterm/pterm"

	"github.com/3leaps/toolup/pkg/reconcile"
)

// RenderText formats r for a terminal. Styling follows w: boxes are drawn
// everywhere but colors only reach terminals.
func RenderText(w io.Writer, r Report) string {
	var b strings.Builder
	renderer := lipgloss.NewRenderer(w)

	switch r.Action {
	case reconcile.KindCheck:
		b.WriteString(box(renderer, "check", checkLines(r)))
	case reconcile.KindDryRun:
		b.WriteString(box(renderer, "dry run", dryRunLines(r)))
	case reconcile.KindSkip:
		b.WriteString(pterm.Info.Sprintln(r.Reason))
	case reconcile.KindInstall, reconcile.KindReinstall, reconcile.KindUpdate:
		if r.Error == "" {
			b.WriteString(pterm.Success.Sprintln(completion(r)))
		}
	}

	for _, warning := range r.Warnings {
		b.WriteString(pterm.Warning.Sprintln(warning))
	}
	if r.Error != "" {
		b.WriteString(ErrorLine(r.ErrorCode, r.Error))
		b.WriteString(OutputBlock(r.Output))
	}
	return b.String()
}

// OutputBlock returns command output verbatim, newline terminated, for
// printing under an error line.
func OutputBlock(output string) string {
	output = strings.TrimRight(output, "\n")
	if output == "" {
		return ""
	}
	return output + "\n"
}

// ErrorLine formats a fatal error for stderr.
func ErrorLine(code, msg string) string {
	if code == "" {
		return pterm.Error.Sprintln(msg)
	}
	return pterm.Error.Sprintln(pterm.Bold.Sprint(code) + " " + msg)
}

func completion(r Report) string {
	verb := map[reconcile.Kind]string{
		reconcile.KindInstall:   "installed",
		reconcile.KindReinstall: "reinstalled",
		reconcile.KindUpdate:    "updated",
	}[r.Action]
	msg := fmt.Sprintf("%s %s %s at %s", r.Repo, verb, reconcile.FormatVersionDisplay(r.Installed), r.Root)
	if r.Artifact != nil {
		msg += fmt.Sprintf(" (%s", r.Artifact.Name)
		if len(r.Artifact.Verified) > 0 {
			msg += ", verified " + strings.Join(r.Artifact.Verified, "+")
		}
		msg += ")"
	}
	if r.Link != "" {
		msg += "; linked " + r.Link
	}
	return msg
}

func checkLines(r Report) []string {
	s := r.State
	lines := []string{
		kv("repo", r.Repo),
		kv("binary", s.BinaryPath),
	}
	if s.Present {
		lines = append(lines, kv("status", "installed"), kv("version", reconcile.FormatVersionDisplay(s.Version)+" ("+string(s.VersionSource)+")"))
	} else {
		status := "not installed"
		if s.BinaryExists {
			status += " (binary present but not executable)"
		}
		lines = append(lines, kv("status", status))
	}
	if s.MarkerVersion != "" {
		lines = append(lines, kv("marker", reconcile.FormatVersionDisplay(s.MarkerVersion)))
	}
	return lines
}

func dryRunLines(r Report) []string {
	target := reconcile.FormatVersionDisplay(r.Resolved)
	if r.Unresolved {
		target = "unresolved"
	}
	installed := "none"
	if r.State.Present {
		installed = reconcile.FormatVersionDisplay(r.State.Version)
	}
	return []string{
		kv("repo", r.Repo),
		kv("requested", r.Requested+" -> "+target),
		kv("installed", installed),
		kv("root", r.Root),
		kv("plan", r.Reason),
	}
}

func kv(k, v string) string {
	return fmt.Sprintf("%-10s %s", k+":", v)
}

func box(renderer *lipgloss.Renderer, title string, lines []string) string {
	style := renderer.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Padding(0, 1)
	heading := renderer.NewStyle().Bold(true).Render(title)
	return style.Render(heading+"\n"+strings.Join(lines, "\n")) + "\n"
}
