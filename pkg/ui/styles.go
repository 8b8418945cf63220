package ui

import (
	"github.com/charmbracelet/lipgloss"
)

// Spacing constants for consistent layout (in characters)
const (
	SpaceXS = 1
	SpaceSM = 2
	SpaceMD = 3
)

// Adaptive colors for light and dark terminals. Light mode values are
// darker for contrast on white backgrounds.
var (
	ColorBg          = lipgloss.AdaptiveColor{Light: "#FFFFFF", Dark: "#282A36"}
	ColorBgSubtle    = lipgloss.AdaptiveColor{Light: "#E8E8E8", Dark: "#363949"}
	ColorBgHighlight = lipgloss.AdaptiveColor{Light: "#D0D0D0", Dark: "#44475A"}
	ColorText        = lipgloss.AdaptiveColor{Light: "#1A1A1A", Dark: "#F8F8F2"}
	ColorSubtext     = lipgloss.AdaptiveColor{Light: "#555555", Dark: "#BFBFBF"}
	ColorMuted       = lipgloss.AdaptiveColor{Light: "#666666", Dark: "#6272A4"}

	ColorPrimary = lipgloss.AdaptiveColor{Light: "#6B47D9", Dark: "#BD93F9"}
	ColorInfo    = lipgloss.AdaptiveColor{Light: "#006080", Dark: "#8BE9FD"}
	ColorSuccess = lipgloss.AdaptiveColor{Light: "#007700", Dark: "#50FA7B"}
	ColorWarning = lipgloss.AdaptiveColor{Light: "#B06800", Dark: "#FFB86C"}
	ColorDanger  = lipgloss.AdaptiveColor{Light: "#CC0000", Dark: "#FF5555"}
)

var (
	// PanelStyle is the default style for unfocused panels
	PanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBgHighlight).
			Padding(0, SpaceXS)

	// FocusedPanelStyle is the style for the focused selector axis
	FocusedPanelStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(ColorPrimary).
				Padding(0, SpaceXS)

	headerStyle = lipgloss.NewStyle().
			Foreground(ColorText).
			Background(ColorBgSubtle).
			Bold(true).
			Padding(0, SpaceXS)

	optionStyle         = lipgloss.NewStyle().Foreground(ColorSubtext)
	optionSelectedStyle = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true)
	axisTitleStyle      = lipgloss.NewStyle().Foreground(ColorMuted).Bold(true)

	buttonStyle = lipgloss.NewStyle().
			Foreground(ColorBg).
			Background(ColorInfo).
			Bold(true).
			Padding(0, SpaceXS)
	buttonDisabledStyle = lipgloss.NewStyle().
				Foreground(ColorMuted).
				Background(ColorBgHighlight).
				Padding(0, SpaceXS)

	statusStyle      = lipgloss.NewStyle().Foreground(ColorSubtext)
	statusErrorStyle = lipgloss.NewStyle().Foreground(ColorDanger).Bold(true)
	statusOKStyle    = lipgloss.NewStyle().Foreground(ColorSuccess)
	placeholderStyle = lipgloss.NewStyle().Foreground(ColorMuted).Italic(true)
	spinnerStyle     = lipgloss.NewStyle().Foreground(ColorInfo).Bold(true)
)

// RenderOption renders one radio option, marking the selected one.
func RenderOption(label string, selected bool) string {
	if selected {
		return optionSelectedStyle.Render("(•) " + label)
	}
	return optionStyle.Render("( ) " + label)
}

// RenderButton renders a button that greys out when disabled.
func RenderButton(label string, enabled bool) string {
	if !enabled {
		return buttonDisabledStyle.Render(label)
	}
	return buttonStyle.Render(label)
}
