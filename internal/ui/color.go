package ui

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/pterm/pterm"
)

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// ConfigureColor turns pterm styling on only when w is a terminal and
// NO_COLOR is unset.
func ConfigureColor(w io.Writer) {
	if IsTerminal(w) && os.Getenv("NO_COLOR") == "" {
		pterm.EnableColor()
		return
	}
	pterm.DisableColor()
}
