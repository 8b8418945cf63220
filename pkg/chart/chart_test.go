package chart

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vanderheijden86/codeviz/pkg/payload"
)

func treemapDoc(t *testing.T) payload.Document {
	t.Helper()
	doc, err := payload.DecodeDocument(`{
		"data": [{
			"type": "treemap",
			"ids": ["root", "root/src", "root/src/a.py", "root/src/b.py", "root/docs"],
			"labels": ["repo", "src", "a.py", "b.py", "docs"],
			"parents": ["", "root", "root/src", "root/src", "root"],
			"values": [3, 2.5, 2, 0.5, 0.5],
			"marker": {"colors": [10, 20, 5, 40, 0]}
		}],
		"layout": {"title": {"text": "Comment density"}, "coloraxis": {"cmin": 0, "cmax": 40}}
	}`)
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestParseTreemap(t *testing.T) {
	fig := Parse(treemapDoc(t))
	if fig.Kind != KindTreemap {
		t.Fatalf("kind = %s, want treemap", fig.Kind)
	}
	if fig.Title != "Comment density" {
		t.Errorf("title = %q", fig.Title)
	}

	var order []string
	for _, n := range fig.Nodes {
		order = append(order, n.Label)
	}
	want := "repo src a.py b.py docs"
	if strings.Join(order, " ") != want {
		t.Errorf("order = %v, want %s", order, want)
	}
	if fig.Nodes[2].Depth != 2 || fig.Nodes[1].Children != 2 {
		t.Errorf("unexpected depth/children: %+v", fig.Nodes[1:3])
	}
	if !fig.HasColor || fig.ColorMin != 0 || fig.ColorMax != 40 {
		t.Errorf("colour range = %v..%v (%v)", fig.ColorMin, fig.ColorMax, fig.HasColor)
	}
	if fig.MaxValue() != 3 {
		t.Errorf("MaxValue = %v", fig.MaxValue())
	}
}

func TestParseBarAndRaw(t *testing.T) {
	doc, _ := payload.DecodeDocument(`{"data":[{"type":"bar","x":["a","b"],"y":[1,4]}],"layout":{"title":"Bars"}}`)
	fig := Parse(doc)
	if fig.Kind != KindBar || len(fig.Nodes) != 2 || fig.Nodes[1].Value != 4 {
		t.Errorf("bar parse: %+v", fig)
	}
	if fig.Title != "Bars" {
		t.Errorf("string title not read: %q", fig.Title)
	}

	raw, _ := payload.DecodeDocument(`{"data":[1,"x"],"layout":{}}`)
	fig = Parse(raw)
	if fig.Kind != KindRaw || !strings.Contains(fig.Raw, `"x"`) {
		t.Errorf("raw fallback: %+v", fig)
	}
}

func TestRamp(t *testing.T) {
	if Ramp(-1) != ramp[0] || Ramp(2) != ramp[len(ramp)-1] {
		t.Error("ramp not clamped")
	}
	if Ramp(0.25) != ramp[1] {
		t.Errorf("Ramp(0.25) = %v, want %v", Ramp(0.25), ramp[1])
	}
	if Hex(ramp[0]) != "#0d0887" {
		t.Errorf("Hex = %s", Hex(ramp[0]))
	}
}

func TestLinesRespectDepth(t *testing.T) {
	fig := Parse(treemapDoc(t))
	shallow := strings.Join(Lines(fig, 60, 2), "\n")
	if strings.Contains(shallow, "a.py") {
		t.Error("depth 2 should hide leaf files")
	}
	if !strings.Contains(shallow, "(+2)") {
		t.Error("collapsed node should show hidden child count")
	}
	deep := strings.Join(Lines(fig, 60, 0), "\n")
	if !strings.Contains(deep, "b.py") {
		t.Error("unlimited depth should show every node")
	}
}

func TestWidgetDrawsOnce(t *testing.T) {
	w := New(7, treemapDoc(t), 60, 20)
	if w.Drawn() || w.View() != "" {
		t.Fatal("new widget should be undrawn")
	}

	msg := w.Draw()()
	drawn, ok := msg.(DrawnMsg)
	if !ok || drawn.MountID != 7 {
		t.Fatalf("Draw produced %#v", msg)
	}

	// A completion for another mount is ignored.
	other, _ := w.Update(DrawnMsg{MountID: 8, Figure: drawn.Figure})
	if other.Drawn() {
		t.Error("widget accepted another mount's completion")
	}

	w, _ = w.Update(drawn)
	if !w.Drawn() || !strings.Contains(w.View(), "src") {
		t.Errorf("widget not drawn: %q", w.View())
	}

	w = w.SetDepth(0)
	if w.Depth() != 1 {
		t.Errorf("depth floor = %d, want 1", w.Depth())
	}
	w, _ = w.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'+'}})
	if w.Depth() != 2 {
		t.Errorf("'+' depth = %d, want 2", w.Depth())
	}
}
