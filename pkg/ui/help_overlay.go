package ui

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

const helpMarkdown = `# codeviz

Explore code metrics for a source tree. The backend computes one chart per
**category** and **extension**; pick a pair to see it.

## Selecting

| Key | Action |
|-----|--------|
| tab | Switch between the category and extension axis |
| ↑/k ↓/j | Move within the focused axis |
| c / l | Comments / Logs |
| 1 / 2 / 3 | All files / .py / .java |

## Data

| Key | Action |
|-----|--------|
| r | Recompute on the backend, then reload |
| R | Reload the last computed charts |
| + / - | Expand or collapse treemap levels |
| pgup/pgdn | Scroll the chart |

## Output

| Key | Action |
|-----|--------|
| y | Copy the chart document JSON to the clipboard |
| e | Export the chart to SVG |

Press **?** or **esc** to close this help.
`

// renderHelpMarkdown renders the help text for the given width. Rendering
// failures fall back to the raw markdown.
func renderHelpMarkdown(width int) string {
	wrap := width - 4
	if wrap < 40 {
		wrap = 40
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		return helpMarkdown
	}
	out, err := r.Render(helpMarkdown)
	if err != nil {
		return helpMarkdown
	}
	return strings.TrimRight(out, "\n")
}

func (m Model) renderHelpOverlay() string {
	footer := lipgloss.NewStyle().Foreground(ColorMuted).Italic(true).Render("↑/↓ scroll • ? or esc to close")
	return lipgloss.JoinVertical(lipgloss.Left, m.helpView.View(), footer)
}
