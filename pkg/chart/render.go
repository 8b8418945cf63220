package chart

import (
	"fmt"
	"image/color"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

// ramp is a dark-to-bright continuous colour scale.
var ramp = []color.RGBA{
	{R: 0x0d, G: 0x08, B: 0x87, A: 0xff},
	{R: 0x7e, G: 0x03, B: 0xa8, A: 0xff},
	{R: 0xcc, G: 0x47, B: 0x78, A: 0xff},
	{R: 0xf8, G: 0x95, B: 0x40, A: 0xff},
	{R: 0xf0, G: 0xf9, B: 0x21, A: 0xff},
}

// Ramp maps t in [0,1] onto the colour scale. Values outside are clamped.
func Ramp(t float64) color.RGBA {
	if math.IsNaN(t) || t <= 0 {
		return ramp[0]
	}
	if t >= 1 {
		return ramp[len(ramp)-1]
	}
	pos := t * float64(len(ramp)-1)
	i := int(pos)
	frac := pos - float64(i)
	a, b := ramp[i], ramp[i+1]
	mix := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + (float64(y)-float64(x))*frac))
	}
	return color.RGBA{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: 0xff}
}

// Hex formats c as #rrggbb.
func Hex(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// Normalize maps v onto [0,1] within the figure's colour range.
func (f Figure) Normalize(v float64) float64 {
	span := f.ColorMax - f.ColorMin
	if span <= 0 {
		return 0
	}
	return (v - f.ColorMin) / span
}

// NodeColor returns the fill for n, or the neutral fill when the figure has
// no colour dimension.
func (f Figure) NodeColor(n Node) color.RGBA {
	if !f.HasColor || !n.HasColor {
		return ramp[1]
	}
	return Ramp(f.Normalize(n.Color))
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	labelStyle = lipgloss.NewStyle()
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"})
)

const (
	labelFrac = 0.4
	minBar    = 4
	indent    = 2
)

// Lines renders fig into lines no wider than width. maxDepth limits how deep
// a treemap is expanded; zero means unlimited.
func Lines(fig Figure, width, maxDepth int) []string {
	if width < 20 {
		width = 20
	}
	var out []string
	if fig.Title != "" {
		out = append(out, titleStyle.Render(runewidth.Truncate(fig.Title, width, "…")), "")
	}

	if fig.Kind == KindRaw {
		for _, l := range strings.Split(fig.Raw, "\n") {
			out = append(out, runewidth.Truncate(l, width, "…"))
		}
		return out
	}
	if len(fig.Nodes) == 0 {
		return append(out, dimStyle.Render("(empty chart)"))
	}

	labelW := int(float64(width) * labelFrac)
	valueW := 9
	barW := width - labelW - valueW - 2
	if barW < minBar {
		barW = minBar
	}

	maxByDepth := map[int]float64{}
	for _, n := range fig.Nodes {
		if n.Value > maxByDepth[n.Depth] {
			maxByDepth[n.Depth] = n.Value
		}
	}

	for _, n := range fig.Nodes {
		if maxDepth > 0 && n.Depth >= maxDepth {
			continue
		}
		label := strings.Repeat(" ", n.Depth*indent) + n.Label
		if n.Children > 0 && maxDepth > 0 && n.Depth == maxDepth-1 {
			label += fmt.Sprintf(" (+%d)", n.Children)
		}
		label = padRight(runewidth.Truncate(label, labelW, "…"), labelW)

		bar := barCells(n.Value, maxByDepth[n.Depth], barW)
		barStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(Hex(fig.NodeColor(n))))
		value := fmt.Sprintf("%*s", valueW, formatValue(n.Value))

		out = append(out, labelStyle.Render(label)+" "+barStyle.Render(padRight(bar, barW))+" "+dimStyle.Render(value))
	}

	if fig.HasColor {
		out = append(out, "", Legend(fig, width))
	}
	return out
}

// Legend renders the colour scale with its bounds.
func Legend(fig Figure, width int) string {
	steps := width / 3
	if steps > 24 {
		steps = 24
	}
	if steps < 5 {
		steps = 5
	}
	var b strings.Builder
	for i := 0; i < steps; i++ {
		c := Ramp(float64(i) / float64(steps-1))
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(Hex(c))).Render("█"))
	}
	return fmt.Sprintf("%s %s %s", dimStyle.Render(formatValue(fig.ColorMin)), b.String(), dimStyle.Render(formatValue(fig.ColorMax)))
}

func barCells(v, max float64, width int) string {
	if max <= 0 || v <= 0 || width <= 0 {
		return ""
	}
	eighths := int(math.Round(v / max * float64(width*8)))
	if eighths < 1 {
		eighths = 1
	}
	full := eighths / 8
	rem := eighths % 8
	s := strings.Repeat("█", full)
	if rem > 0 {
		s += string([]rune("▏▎▍▌▋▊▉")[rem-1])
	}
	return s
}

func padRight(s string, width int) string {
	w := runewidth.StringWidth(s)
	if w >= width {
		return s
	}
	return s + strings.Repeat(" ", width-w)
}

func formatValue(v float64) string {
	switch {
	case v == math.Trunc(v) && math.Abs(v) < 1e9:
		return fmt.Sprintf("%d", int64(v))
	case math.Abs(v) >= 100:
		return fmt.Sprintf("%.0f", v)
	case math.Abs(v) >= 1:
		return fmt.Sprintf("%.2f", v)
	default:
		return fmt.Sprintf("%.3f", v)
	}
}
