// Package chart is the terminal chart widget. It consumes the same
// declarative {data, layout} document a browser plotting library would
// and draws treemap and bar traces as coloured bar rows.
package chart

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/vanderheijden86/codeviz/pkg/payload"

	"gonum.org/v1/gonum/floats"
)

// Kind of figure the document was recognised as.
type Kind string

const (
	KindTreemap Kind = "treemap"
	KindBar     Kind = "bar"
	KindRaw     Kind = "raw"
)

// Node is one rectangle of a treemap, or one bar.
type Node struct {
	ID       string
	Label    string
	Parent   string
	Value    float64
	Color    float64
	HasColor bool
	Depth    int
	Children int
}

// Figure is the widget's interpretation of a document.
type Figure struct {
	Kind     Kind
	Title    string
	Nodes    []Node // treemap nodes in display order (depth-first, largest first)
	ColorMin float64
	ColorMax float64
	HasColor bool
	Raw      string // pretty JSON for documents that are not recognised
	Traces   int
}

// MaxValue returns the largest node value.
func (f Figure) MaxValue() float64 {
	if len(f.Nodes) == 0 {
		return 0
	}
	vals := make([]float64, len(f.Nodes))
	for i, n := range f.Nodes {
		vals[i] = n.Value
	}
	return floats.Max(vals)
}

// Parse interprets doc. Unknown shapes fall back to KindRaw.
func Parse(doc payload.Document) Figure {
	fig := Figure{Title: layoutTitle(doc.Layout), Traces: len(doc.Data)}

	for _, d := range doc.Data {
		trace, ok := d.(map[string]any)
		if !ok {
			continue
		}
		switch strings.ToLower(stringOf(trace["type"])) {
		case "treemap", "sunburst", "icicle":
			fig.Kind = KindTreemap
			fig.Nodes = treemapNodes(trace)
		case "bar", "scatter", "":
			if nodes := barNodes(trace); len(nodes) > 0 {
				fig.Kind = KindBar
				fig.Nodes = nodes
			}
		}
		if fig.Kind != "" {
			break
		}
	}

	if fig.Kind == "" {
		fig.Kind = KindRaw
		raw, err := doc.MarshalIndent()
		if err != nil {
			raw = []byte(fmt.Sprintf("%v", doc.Data))
		}
		fig.Raw = string(raw)
		return fig
	}

	fig.ColorMin, fig.ColorMax, fig.HasColor = colorRange(doc.Layout, fig.Nodes)
	return fig
}

func layoutTitle(layout map[string]any) string {
	switch t := layout["title"].(type) {
	case string:
		return t
	case map[string]any:
		return stringOf(t["text"])
	}
	return ""
}

func treemapNodes(trace map[string]any) []Node {
	ids := stringsOf(trace["ids"])
	labels := stringsOf(trace["labels"])
	parents := stringsOf(trace["parents"])
	values := floatsOf(trace["values"])
	var colors []float64
	if marker, ok := trace["marker"].(map[string]any); ok {
		colors = floatsOf(marker["colors"])
	}

	n := len(labels)
	if len(ids) > n {
		n = len(ids)
	}
	if n == 0 {
		return nil
	}
	if len(ids) == 0 {
		ids = labels
	}

	all := make([]Node, 0, n)
	for i := 0; i < n; i++ {
		node := Node{ID: at(ids, i), Label: at(labels, i), Parent: at(parents, i)}
		if node.Label == "" {
			node.Label = node.ID
		}
		if i < len(values) {
			node.Value = values[i]
		}
		if i < len(colors) && !math.IsNaN(colors[i]) {
			node.Color = colors[i]
			node.HasColor = true
		}
		all = append(all, node)
	}
	return flattenTree(all)
}

// flattenTree orders nodes depth-first from the roots, largest value first
// among siblings, and fills in Depth and Children.
func flattenTree(all []Node) []Node {
	byID := make(map[string]bool, len(all))
	for _, n := range all {
		byID[n.ID] = true
	}
	children := make(map[string][]Node)
	var roots []Node
	for _, n := range all {
		if n.Parent == "" || !byID[n.Parent] {
			roots = append(roots, n)
			continue
		}
		children[n.Parent] = append(children[n.Parent], n)
	}
	bySize := func(list []Node) {
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].Value != list[j].Value {
				return list[i].Value > list[j].Value
			}
			return list[i].Label < list[j].Label
		})
	}

	out := make([]Node, 0, len(all))
	visited := make(map[string]bool, len(all))
	var walk func(n Node, depth int)
	walk = func(n Node, depth int) {
		if visited[n.ID] {
			return
		}
		visited[n.ID] = true
		kids := children[n.ID]
		bySize(kids)
		n.Depth = depth
		n.Children = len(kids)
		out = append(out, n)
		for _, k := range kids {
			walk(k, depth+1)
		}
	}
	bySize(roots)
	for _, r := range roots {
		walk(r, 0)
	}
	return out
}

func barNodes(trace map[string]any) []Node {
	horizontal := stringOf(trace["orientation"]) == "h"
	labelKey, valueKey := "x", "y"
	if horizontal {
		labelKey, valueKey = "y", "x"
	}
	values := floatsOf(trace[valueKey])
	if len(values) == 0 {
		return nil
	}
	labels := stringsOf(trace[labelKey])
	var colors []float64
	if marker, ok := trace["marker"].(map[string]any); ok {
		colors = floatsOf(marker["color"])
	}

	nodes := make([]Node, len(values))
	for i, v := range values {
		label := at(labels, i)
		if label == "" {
			label = fmt.Sprintf("%d", i)
		}
		nodes[i] = Node{ID: label, Label: label, Value: v}
		if i < len(colors) {
			nodes[i].Color = colors[i]
			nodes[i].HasColor = true
		}
	}
	return nodes
}

// colorRange uses the layout's colour axis bounds when present and the
// observed colour values otherwise.
func colorRange(layout map[string]any, nodes []Node) (lo, hi float64, ok bool) {
	var observed []float64
	for _, n := range nodes {
		if n.HasColor {
			observed = append(observed, n.Color)
		}
	}
	if len(observed) == 0 {
		return 0, 0, false
	}
	lo, hi = floats.Min(observed), floats.Max(observed)
	if axis, isMap := layout["coloraxis"].(map[string]any); isMap {
		if v, has := numberOf(axis["cmin"]); has {
			lo = v
		}
		if v, has := numberOf(axis["cmax"]); has {
			hi = v
		}
	}
	return lo, hi, true
}

func at(list []string, i int) string {
	if i < len(list) {
		return list[i]
	}
	return ""
}

func stringOf(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}

func stringsOf(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, len(list))
	for i, x := range list {
		out[i] = stringOf(x)
	}
	return out
}

func numberOf(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}

func floatsOf(v any) []float64 {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]float64, len(list))
	for i, x := range list {
		f, ok := numberOf(x)
		if !ok {
			f = math.NaN()
		}
		out[i] = f
	}
	return out
}
