package analyzer

import (
	"fmt"
	"math"
	"path"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/vanderheijden86/codeviz/pkg/payload"
	"github.com/vanderheijden86/codeviz/pkg/selection"
)

// RootID is the id of the treemap root.
const RootID = "root"

// Treemap is a flattened hierarchy in the column form treemap traces use.
// Index i of every slice describes one node.
type Treemap struct {
	IDs     []string
	Names   []string
	Parents []string
	Counts  []Counts
}

// Len is the number of nodes.
func (t Treemap) Len() int { return len(t.IDs) }

type dirNode struct {
	children map[string]*dirNode
	counts   Counts
	file     bool
}

func (n *dirNode) child(name string) *dirNode {
	if n.children == nil {
		n.children = make(map[string]*dirNode)
	}
	c, ok := n.children[name]
	if !ok {
		c = &dirNode{}
		n.children[name] = c
	}
	return c
}

// Matches reports whether a file path belongs to the extension filter.
func Matches(p string, ext selection.Extension) bool {
	if ext == selection.ExtensionAll {
		return true
	}
	return strings.EqualFold(path.Ext(p), ext.Label())
}

// BuildTreemap arranges the stats matching ext into a hierarchy. Node ids
// are "<name>__<n>" where n counts earlier nodes with the same name, so
// repeated names (two "util" directories) stay distinct. Directory counts
// are the sums of their children. The root node is last.
func BuildTreemap(stats []FileStat, ext selection.Extension) Treemap {
	root := &dirNode{}
	for _, s := range stats {
		if !Matches(s.Path, ext) {
			continue
		}
		node := root
		for _, part := range strings.Split(s.Path, "/") {
			node = node.child(part)
		}
		node.file = true
		node.counts = s.Counts
	}

	var t Treemap
	seen := make(map[string]int)
	var walk func(n *dirNode, parentID string) Counts
	walk = func(n *dirNode, parentID string) Counts {
		names := make([]string, 0, len(n.children))
		for name := range n.children {
			names = append(names, name)
		}
		sort.Strings(names)

		var total Counts
		for _, name := range names {
			c := n.children[name]
			id := fmt.Sprintf("%s__%d", name, seen[name])
			seen[name]++

			counts := c.counts
			if !c.file {
				counts = walk(c, id)
			}
			t.IDs = append(t.IDs, id)
			t.Names = append(t.Names, name)
			t.Parents = append(t.Parents, parentID)
			t.Counts = append(t.Counts, counts)
			total = total.Add(counts)
		}
		return total
	}
	total := walk(root, RootID)

	t.IDs = append(t.IDs, RootID)
	t.Names = append(t.Names, RootID)
	t.Parents = append(t.Parents, "")
	t.Counts = append(t.Counts, total)
	return t
}

// ColorRange is the fixed colour axis for a category.
func ColorRange(cat selection.Category) (lo, hi float64) {
	if cat == selection.CategoryLogs {
		return 0, 0.1
	}
	return 0, 0.4
}

// Ratio is the colour value of a node: comment lines or log lines over all
// lines. Empty nodes are 0.
func Ratio(c Counts, cat selection.Category) float64 {
	total := c.Total()
	if total == 0 {
		return 0
	}
	if cat == selection.CategoryLogs {
		return float64(c.Logs) / float64(total)
	}
	return float64(c.Comment) / float64(total)
}

// Figure renders the treemap as a {data, layout} document. Sizes are
// log10(code+1) so single huge files do not swamp the view.
func Figure(t Treemap, cat selection.Category, ext selection.Extension) payload.Document {
	n := t.Len()
	values := make([]float64, n)
	colors := make([]float64, n)
	hover := make([]string, n)
	for i, c := range t.Counts {
		values[i] = math.Log10(float64(c.Code) + 1)
		colors[i] = Ratio(c, cat)
		hover[i] = fmt.Sprintf("%s<br>code: %d<br>comments: %d<br>blank: %d<br>logs: %d",
			t.Names[i], c.Code, c.Comment, c.Blank, c.Logs)
	}
	lo, hi := ColorRange(cat)

	label := "% Comments"
	if cat == selection.CategoryLogs {
		label = "% Log lines"
	}
	scope := "all files"
	if ext != selection.ExtensionAll {
		scope = ext.Label() + " files"
	}

	trace := map[string]any{
		"type":      "treemap",
		"ids":       toAny(t.IDs),
		"labels":    toAny(t.Names),
		"parents":   toAny(t.Parents),
		"values":    toAnyFloat(values),
		"hovertext": toAny(hover),
		"hoverinfo": "text",
		"marker": map[string]any{
			"colors":    toAnyFloat(colors),
			"coloraxis": "coloraxis",
		},
	}
	layout := map[string]any{
		"title": map[string]any{
			"text": fmt.Sprintf("%s (%s)", label, scope),
		},
		"coloraxis": map[string]any{
			"cmin":     lo,
			"cmax":     hi,
			"colorbar": map[string]any{"title": map[string]any{"text": label}},
		},
		"margin": map[string]any{"t": 50, "l": 25, "r": 25, "b": 25},
		"meta": map[string]any{
			"files":      countFiles(t),
			"mean_ratio": meanRatio(colors),
		},
	}
	return payload.Document{Data: []any{trace}, Layout: layout}
}

func countFiles(t Treemap) int {
	parents := make(map[string]bool, t.Len())
	for _, p := range t.Parents {
		parents[p] = true
	}
	files := 0
	for _, id := range t.IDs {
		if !parents[id] && id != RootID {
			files++
		}
	}
	return files
}

func meanRatio(colors []float64) float64 {
	if len(colors) == 0 {
		return 0
	}
	return floats.Sum(colors) / float64(len(colors))
}

func toAny(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}

func toAnyFloat(s []float64) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}
