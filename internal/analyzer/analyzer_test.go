package analyzer

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vanderheijden86/codeviz/pkg/payload"
	"github.com/vanderheijden86/codeviz/pkg/selection"
)

func TestCount_Python(t *testing.T) {
	src := `"""Module docstring
spanning lines.
"""
import logging

logger = logging.getLogger(__name__)


def f():
    # explain
    logger.info("hi")  # lowercase level is not a match
    logger.log(logger.DEBUG, "x")
    return 1
`
	c, err := Count("mod.py", strings.NewReader(src), LogInsight)
	if err != nil {
		t.Fatal(err)
	}
	want := Counts{Code: 6, Comment: 4, Blank: 3, Logs: 1}
	if c != want {
		t.Errorf("Count = %+v, want %+v", c, want)
	}
}

func TestCount_Java(t *testing.T) {
	src := `/*
 * License header
 */
package a;

// single line
class A {
    void run() {
        LOGGER.info("start"); /* trailing */
    }
}
`
	c, err := Count("A.java", strings.NewReader(src), LogInsight)
	if err != nil {
		t.Fatal(err)
	}
	want := Counts{Code: 6, Comment: 4, Blank: 1, Logs: 1}
	if c != want {
		t.Errorf("Count = %+v, want %+v", c, want)
	}
}

func TestCount_OneLineDocstringAndBlock(t *testing.T) {
	c, _ := Count("x.py", strings.NewReader("\"\"\"one line\"\"\"\nx = 1\n"))
	if c.Comment != 1 || c.Code != 1 {
		t.Errorf("one-line docstring: %+v", c)
	}
	c, _ = Count("x.go", strings.NewReader("/* closed */\nvar x = 1\n"))
	if c.Comment != 1 || c.Code != 1 {
		t.Errorf("one-line block: %+v", c)
	}
}

func TestSupported(t *testing.T) {
	for name, want := range map[string]bool{"a.py": true, "B.JAVA": true, "README.md": false, "notes.txt": false, "Makefile": false} {
		if got := Supported(name); got != want {
			t.Errorf("Supported(%q) = %v", name, got)
		}
	}
}

func stats() []FileStat {
	return []FileStat{
		{Path: "app/main.py", Counts: Counts{Code: 99, Comment: 1}},
		{Path: "app/util/io.py", Counts: Counts{Code: 9, Comment: 1, Logs: 1}},
		{Path: "lib/util/Io.java", Counts: Counts{Code: 10, Comment: 10}},
	}
}

func TestBuildTreemap_IDsAndSums(t *testing.T) {
	tm := BuildTreemap(stats(), selection.ExtensionAll)

	idx := map[string]int{}
	for i, id := range tm.IDs {
		if _, dup := idx[id]; dup {
			t.Fatalf("duplicate id %q", id)
		}
		idx[id] = i
	}
	if _, ok := idx["util__0"]; !ok {
		t.Error("missing util__0")
	}
	if _, ok := idx["util__1"]; !ok {
		t.Error("repeated directory name should get util__1")
	}

	last := tm.Len() - 1
	if tm.IDs[last] != RootID || tm.Parents[last] != "" {
		t.Errorf("root should be last with no parent: %q/%q", tm.IDs[last], tm.Parents[last])
	}
	if tm.Counts[last].Code != 118 || tm.Counts[last].Comment != 12 {
		t.Errorf("root counts = %+v", tm.Counts[last])
	}
	app := tm.Counts[idx["app__0"]]
	if app.Code != 108 || app.Logs != 1 {
		t.Errorf("app counts = %+v", app)
	}
	if tm.Parents[idx["main.py__0"]] != "app__0" {
		t.Errorf("main.py parent = %q", tm.Parents[idx["main.py__0"]])
	}
}

func TestBuildTreemap_ExtensionFilter(t *testing.T) {
	tm := BuildTreemap(stats(), selection.ExtensionJava)
	for _, name := range tm.Names {
		if name == "app" || strings.HasSuffix(name, ".py") {
			t.Errorf("python node %q leaked into java treemap", name)
		}
	}
	if tm.Counts[tm.Len()-1].Code != 10 {
		t.Errorf("java root code = %d", tm.Counts[tm.Len()-1].Code)
	}
}

func TestFigure_ValuesAndColors(t *testing.T) {
	tm := BuildTreemap(stats(), selection.ExtensionAll)
	doc := Figure(tm, selection.CategoryComments, selection.ExtensionAll)

	trace := doc.Data[0].(map[string]any)
	if trace["type"] != "treemap" {
		t.Fatalf("trace type = %v", trace["type"])
	}
	values := trace["values"].([]any)
	colors := trace["marker"].(map[string]any)["colors"].([]any)
	for i, c := range tm.Counts {
		if want := math.Log10(float64(c.Code) + 1); values[i].(float64) != want {
			t.Errorf("value[%d] = %v, want %v", i, values[i], want)
		}
		if want := Ratio(c, selection.CategoryComments); colors[i].(float64) != want {
			t.Errorf("color[%d] = %v, want %v", i, colors[i], want)
		}
	}
	axis := doc.Layout["coloraxis"].(map[string]any)
	if axis["cmin"] != 0.0 || axis["cmax"] != 0.4 {
		t.Errorf("comments colour axis = %v..%v", axis["cmin"], axis["cmax"])
	}

	logs := Figure(tm, selection.CategoryLogs, selection.ExtensionAll)
	if logs.Layout["coloraxis"].(map[string]any)["cmax"] != 0.1 {
		t.Error("logs colour axis should top out at 0.1")
	}
}

func TestRatio_Empty(t *testing.T) {
	if Ratio(Counts{}, selection.CategoryComments) != 0 {
		t.Error("empty counts should have ratio 0")
	}
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, body := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestCompute_FullMatrix(t *testing.T) {
	root := writeTree(t, map[string]string{
		"svc/app.py":                "# c\nx = 1\nlogger.WARNING\n",
		"svc/App.java":              "// c\nint x;\n",
		"node_modules/dep/index.js": "var x;\n",
		"skipme/gen.py":             "x = 2\n",
		"README.md":                 "# title\n",
	})

	a := New(root, WithExcludes("skipme"), WithWorkers(2))
	m, err := a.Compute(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("matrix incomplete: %v", err)
	}

	var paths []string
	for _, s := range a.LastScan() {
		paths = append(paths, s.Path)
	}
	if strings.Join(paths, ",") != "svc/App.java,svc/app.py" {
		t.Errorf("scanned %v", paths)
	}

	snap, err := payload.NewCache().Load(m)
	if err != nil {
		t.Fatal(err)
	}
	doc, err := snap.Derive(selection.Selection{Category: selection.CategoryLogs, Extension: selection.ExtensionPython})
	if err != nil {
		t.Fatal(err)
	}
	labels := doc.Data[0].(map[string]any)["labels"].([]any)
	for _, l := range labels {
		if l == "App.java" {
			t.Error("java file in python cell")
		}
	}
}

func TestCompute_MissingRoot(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "nope")).Compute(context.Background())
	if err == nil {
		t.Fatal("expected error for missing root")
	}
}

func TestCompute_Cancelled(t *testing.T) {
	root := writeTree(t, map[string]string{"a.py": "x = 1\n"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(root).Compute(ctx); err == nil {
		t.Error("expected cancellation error")
	}
}
