// Package ttyguard keeps terminal capability probes out of machine-readable
// output. Import it for side effects before anything that touches lipgloss.
package ttyguard

import (
	"os"
	"strings"
)

// init runs before the TUI acquires the terminal.
//
// Lipgloss/termenv background detection can write OSC/DSR control
// sequences to stdout. That is harmless in a terminal but corrupts the JSON
// printed by --dump when stdout is captured. Non-interactive invocations
// set CI=1, which makes termenv skip the probe.
func init() {
	if os.Getenv("CI") != "" {
		return
	}
	if !Suppress(os.Args, os.Getenv("CV_HEADLESS") == "1") {
		return
	}
	_ = os.Setenv("CI", "1")
}

// Suppress reports whether args describe a run that prints to stdout
// instead of drawing the TUI.
func Suppress(args []string, envHeadless bool) bool {
	if envHeadless {
		return true
	}
	for _, arg := range args {
		if !strings.HasPrefix(arg, "-") {
			continue
		}
		name, _, _ := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		switch name {
		case "dump", "export", "version", "help":
			return true
		}
	}
	return false
}
