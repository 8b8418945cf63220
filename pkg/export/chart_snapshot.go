// Package export writes static snapshots of a chart to SVG or PNG.
package export

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vanderheijden86/codeviz/pkg/chart"
	"github.com/vanderheijden86/codeviz/pkg/metrics"
	"github.com/vanderheijden86/codeviz/pkg/selection"

	"git.sr.ht/~sbinet/gg"
	"github.com/ajstarks/svgo"
	"golang.org/x/image/font/basicfont"
)

const (
	FormatSVG = "svg"
	FormatPNG = "png"

	defaultMaxBars = 25
)

// ErrNothingToDraw is returned for figures without bars or treemap nodes.
var ErrNothingToDraw = errors.New("chart has nothing to draw")

// SnapshotOptions controls chart snapshot export behaviour.
type SnapshotOptions struct {
	Path    string // Output path; format inferred from extension when Format empty
	Format  string // "svg" or "png" (case-insensitive)
	Figure  chart.Figure
	MaxBars int // Bars drawn at most; 0 means 25
}

// Save writes fig to path, picking the format from the extension.
func Save(path string, fig chart.Figure) error {
	return SaveChartSnapshot(SnapshotOptions{Path: path, Figure: fig})
}

// FileName builds a default export file name for a selection.
func FileName(sel selection.Selection, t time.Time, format string) string {
	ext := string(sel.Extension)
	if sel.Extension == selection.ExtensionAll {
		ext = "all"
	}
	return fmt.Sprintf("codeviz-%s-%s-%s.%s", sel.Category, ext, t.Format("20060102-150405"), format)
}

// SaveChartSnapshot renders the figure's top-level nodes as a bar chart
// with a title and colour legend.
func SaveChartSnapshot(opts SnapshotOptions) error {
	defer metrics.Timer(metrics.Export)()
	if opts.Path == "" {
		return fmt.Errorf("output path is required")
	}
	format := strings.ToLower(strings.TrimPrefix(opts.Format, "."))
	if format == "" {
		switch strings.ToLower(filepath.Ext(opts.Path)) {
		case ".png":
			format = FormatPNG
		default:
			format = FormatSVG
		}
	}
	if format != FormatSVG && format != FormatPNG {
		return fmt.Errorf("unsupported format %q (want svg or png)", format)
	}

	layout, err := buildLayout(opts)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}

	if format == FormatPNG {
		return renderPNG(opts.Path, layout)
	}
	file, err := os.Create(opts.Path)
	if err != nil {
		return err
	}
	if err := renderSVG(file, layout); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// WriteSVG renders fig as SVG to w.
func WriteSVG(w io.Writer, fig chart.Figure) error {
	layout, err := buildLayout(SnapshotOptions{Figure: fig})
	if err != nil {
		return err
	}
	return renderSVG(w, layout)
}

// --- layout computation ----------------------------------------------------

type bar struct {
	Label string
	Value float64
	Fill  color.RGBA
	X, Y  float64
	W, H  float64
}

type layoutResult struct {
	Width, Height int
	Title         string
	Subtitle      string
	Bars          []bar
	HasLegend     bool
	LegendMin     string
	LegendMax     string
}

const (
	canvasWidth = 960
	headerH     = 90.0
	rowH        = 22.0
	rowGap      = 6.0
	labelW      = 240.0
	marginX     = 32.0
	legendH     = 60.0
)

// topLevel picks the nodes to draw: the children of a single treemap root,
// or every root when there are several.
func topLevel(fig chart.Figure) []chart.Node {
	if fig.Kind == chart.KindBar {
		return fig.Nodes
	}
	roots := 0
	for _, n := range fig.Nodes {
		if n.Depth == 0 {
			roots++
		}
	}
	depth := 0
	if roots == 1 {
		depth = 1
	}
	var out []chart.Node
	for _, n := range fig.Nodes {
		if n.Depth == depth {
			out = append(out, n)
		}
	}
	if len(out) == 0 && depth == 1 {
		out = append(out, fig.Nodes[0])
	}
	return out
}

func buildLayout(opts SnapshotOptions) (layoutResult, error) {
	fig := opts.Figure
	if fig.Kind == chart.KindRaw || len(fig.Nodes) == 0 {
		return layoutResult{}, ErrNothingToDraw
	}
	maxBars := opts.MaxBars
	if maxBars <= 0 {
		maxBars = defaultMaxBars
	}

	nodes := topLevel(fig)
	hidden := 0
	if len(nodes) > maxBars {
		hidden = len(nodes) - maxBars
		nodes = nodes[:maxBars]
	}

	var max float64
	for _, n := range nodes {
		if n.Value > max {
			max = n.Value
		}
	}

	title := fig.Title
	if title == "" {
		title = "codeviz chart"
	}
	l := layoutResult{
		Width:    canvasWidth,
		Title:    title,
		Subtitle: fmt.Sprintf("%s • %d bars", fig.Kind, len(nodes)),
	}
	if hidden > 0 {
		l.Subtitle += fmt.Sprintf(" (+%d not shown)", hidden)
	}

	barSpace := float64(canvasWidth) - 2*marginX - labelW - 80
	y := headerH
	for _, n := range nodes {
		w := 0.0
		if max > 0 && n.Value > 0 {
			w = n.Value / max * barSpace
		}
		l.Bars = append(l.Bars, bar{
			Label: n.Label,
			Value: n.Value,
			Fill:  fig.NodeColor(n),
			X:     marginX + labelW,
			Y:     y,
			W:     w,
			H:     rowH,
		})
		y += rowH + rowGap
	}

	if fig.HasColor {
		l.HasLegend = true
		l.LegendMin = fmt.Sprintf("%.3g", fig.ColorMin)
		l.LegendMax = fmt.Sprintf("%.3g", fig.ColorMax)
		y += legendH
	}
	l.Height = int(y + 24)
	return l, nil
}

// --- rendering -------------------------------------------------------------

var (
	colorText     = color.RGBA{0x11, 0x11, 0x11, 0xff}
	colorSubtle   = color.RGBA{0x66, 0x66, 0x66, 0xff}
	colorStroke   = color.RGBA{0x22, 0x22, 0x22, 0xff}
	colorBackdrop = color.RGBA{0xf9, 0xfa, 0xfb, 0xff}
	colorHeaderBG = color.RGBA{0xf3, 0xf4, 0xf6, 0xff}
)

const legendSteps = 20

func renderPNG(path string, layout layoutResult) error {
	dc := gg.NewContext(layout.Width, layout.Height)
	dc.SetColor(colorBackdrop)
	dc.Clear()

	dc.SetColor(colorHeaderBG)
	dc.DrawRoundedRectangle(16, 16, float64(layout.Width)-32, headerH-32, 10)
	dc.Fill()

	dc.SetFontFace(basicfont.Face7x13)
	dc.SetColor(colorText)
	dc.DrawStringAnchored(layout.Title, marginX, 38, 0, 0.5)
	dc.SetColor(colorSubtle)
	dc.DrawStringAnchored(layout.Subtitle, marginX, 58, 0, 0.5)

	for _, b := range layout.Bars {
		dc.SetColor(colorText)
		dc.DrawStringAnchored(truncate(b.Label, 32), marginX, b.Y+b.H/2, 0, 0.5)
		if b.W > 0 {
			dc.SetColor(b.Fill)
			dc.DrawRoundedRectangle(b.X, b.Y, b.W, b.H, 4)
			dc.Fill()
		}
		dc.SetColor(colorSubtle)
		dc.DrawStringAnchored(fmt.Sprintf("%.2f", b.Value), b.X+b.W+8, b.Y+b.H/2, 0, 0.5)
	}

	if layout.HasLegend {
		x, y := marginX+labelW, float64(layout.Height)-legendH
		stepW := 12.0
		for i := 0; i < legendSteps; i++ {
			dc.SetColor(chart.Ramp(float64(i) / float64(legendSteps-1)))
			dc.DrawRectangle(x+float64(i)*stepW, y, stepW, 14)
			dc.Fill()
		}
		dc.SetColor(colorStroke)
		dc.DrawRectangle(x, y, stepW*legendSteps, 14)
		dc.Stroke()
		dc.SetColor(colorSubtle)
		dc.DrawStringAnchored(layout.LegendMin, x-8, y+7, 1, 0.5)
		dc.DrawStringAnchored(layout.LegendMax, x+stepW*legendSteps+8, y+7, 0, 0.5)
	}

	return dc.SavePNG(path)
}

func renderSVG(w io.Writer, layout layoutResult) error {
	canvas := svg.New(w)
	canvas.Start(layout.Width, layout.Height)
	canvas.Rect(0, 0, layout.Width, layout.Height, fmt.Sprintf("fill:%s", css(colorBackdrop)))
	canvas.Roundrect(16, 16, layout.Width-32, int(headerH-32), 10, 10, fmt.Sprintf("fill:%s", css(colorHeaderBG)))
	canvas.Text(int(marginX), 42, layout.Title, fmt.Sprintf("fill:%s;font-size:16px;font-family:monospace;font-weight:bold", css(colorText)))
	canvas.Text(int(marginX), 62, layout.Subtitle, fmt.Sprintf("fill:%s;font-size:13px;font-family:monospace", css(colorSubtle)))

	for _, b := range layout.Bars {
		y := int(b.Y)
		canvas.Text(int(marginX), y+15, truncate(b.Label, 32), fmt.Sprintf("fill:%s;font-size:12px;font-family:monospace", css(colorText)))
		if b.W > 0 {
			canvas.Roundrect(int(b.X), y, int(b.W), int(b.H), 4, 4, fmt.Sprintf("fill:%s", css(b.Fill)))
		}
		canvas.Text(int(b.X+b.W)+8, y+15, fmt.Sprintf("%.2f", b.Value), fmt.Sprintf("fill:%s;font-size:11px;font-family:monospace", css(colorSubtle)))
	}

	if layout.HasLegend {
		x, y := int(marginX+labelW), layout.Height-int(legendH)
		stepW := 12
		for i := 0; i < legendSteps; i++ {
			c := chart.Ramp(float64(i) / float64(legendSteps-1))
			canvas.Rect(x+i*stepW, y, stepW, 14, fmt.Sprintf("fill:%s", css(c)))
		}
		canvas.Rect(x, y, stepW*legendSteps, 14, fmt.Sprintf("fill:none;stroke:%s;stroke-width:1", css(colorStroke)))
		canvas.Text(x-8, y+11, layout.LegendMin, fmt.Sprintf("fill:%s;font-size:11px;font-family:monospace;text-anchor:end", css(colorSubtle)))
		canvas.Text(x+stepW*legendSteps+8, y+11, layout.LegendMax, fmt.Sprintf("fill:%s;font-size:11px;font-family:monospace", css(colorSubtle)))
	}

	canvas.End()
	return nil
}

// --- helpers ---------------------------------------------------------------

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

func css(c color.RGBA) string {
	return chart.Hex(c)
}
