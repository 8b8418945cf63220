package chart

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/vanderheijden86/codeviz/pkg/debug"
	"github.com/vanderheijden86/codeviz/pkg/metrics"
	"github.com/vanderheijden86/codeviz/pkg/payload"
)

// DefaultDepth is how many treemap levels are expanded initially.
const DefaultDepth = 3

// DrawnMsg is the widget's completion callback. It is emitted once per
// widget, after the first draw of its document.
type DrawnMsg struct {
	MountID uint64
	Figure  Figure
}

// Widget renders one document. A new widget is created for every mount; a
// widget never changes document.
type Widget struct {
	id       uint64
	doc      payload.Document
	fig      Figure
	drawn    bool
	width    int
	height   int
	maxDepth int
	vp       viewport.Model
}

// New returns an undrawn widget for doc.
func New(id uint64, doc payload.Document, width, height int) Widget {
	w := Widget{id: id, doc: doc, maxDepth: DefaultDepth}
	w.vp = viewport.New(width, height)
	w.width, w.height = width, height
	return w
}

// ID of the mount this widget belongs to.
func (w Widget) ID() uint64 { return w.id }

// Drawn reports whether the first draw has completed.
func (w Widget) Drawn() bool { return w.drawn }

// Figure is the parsed document, valid once drawn.
func (w Widget) Figure() Figure { return w.fig }

// Document the widget was created for.
func (w Widget) Document() payload.Document { return w.doc }

// Draw returns the command that lays the document out off the event loop
// and reports completion with a DrawnMsg. It must be issued once per
// widget.
func (w Widget) Draw() tea.Cmd {
	id, doc := w.id, w.doc
	return func() tea.Msg {
		defer debug.LogEnterExit("chart.Draw")()
		defer metrics.Timer(metrics.ChartDraw)()
		return DrawnMsg{MountID: id, Figure: Parse(doc)}
	}
}

// Update handles the widget's own DrawnMsg and scroll keys. Messages for
// other mounts are ignored.
func (w Widget) Update(msg tea.Msg) (Widget, tea.Cmd) {
	switch msg := msg.(type) {
	case DrawnMsg:
		if msg.MountID != w.id || w.drawn {
			return w, nil
		}
		w.fig = msg.Figure
		w.drawn = true
		w.refresh()
		return w, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "+", "=":
			return w.SetDepth(w.maxDepth + 1), nil
		case "-", "_":
			return w.SetDepth(w.maxDepth - 1), nil
		}
	}
	var cmd tea.Cmd
	w.vp, cmd = w.vp.Update(msg)
	return w, cmd
}

// SetSize resizes the drawing surface.
func (w Widget) SetSize(width, height int) Widget {
	w.width, w.height = width, height
	w.vp.Width, w.vp.Height = width, height
	w.refresh()
	return w
}

// Depth is the current treemap expansion depth.
func (w Widget) Depth() int { return w.maxDepth }

// SetDepth changes how many treemap levels are shown, minimum one.
func (w Widget) SetDepth(d int) Widget {
	if d < 1 {
		d = 1
	}
	w.maxDepth = d
	w.refresh()
	return w
}

func (w *Widget) refresh() {
	if !w.drawn {
		return
	}
	depth := w.maxDepth
	if w.fig.Kind != KindTreemap {
		depth = 0
	}
	w.vp.SetContent(strings.Join(Lines(w.fig, w.width, depth), "\n"))
}

// View renders the chart surface. An undrawn widget shows a placeholder.
func (w Widget) View() string {
	if !w.drawn {
		return ""
	}
	return w.vp.View()
}
