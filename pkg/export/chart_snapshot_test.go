package export

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vanderheijden86/codeviz/pkg/chart"
	"github.com/vanderheijden86/codeviz/pkg/payload"
	"github.com/vanderheijden86/codeviz/pkg/selection"
)

func testFigure(t *testing.T) chart.Figure {
	t.Helper()
	doc, err := payload.DecodeDocument(`{
		"data": [{
			"type": "treemap",
			"ids": ["r", "r/a", "r/b", "r/a/x.py"],
			"labels": ["repo", "alpha", "beta", "x.py"],
			"parents": ["", "r", "r", "r/a"],
			"values": [2, 1.5, 0.7, 1.5],
			"marker": {"colors": [0.1, 0.3, 0.05, 0.3]}
		}],
		"layout": {"title": {"text": "Comments ratio"}, "coloraxis": {"cmin": 0, "cmax": 0.4}}
	}`)
	if err != nil {
		t.Fatal(err)
	}
	return chart.Parse(doc)
}

func TestSaveChartSnapshot_SVGAndPNG(t *testing.T) {
	fig := testFigure(t)
	tmp := t.TempDir()

	for _, name := range []string{"chart.svg", "nested/chart.png"} {
		t.Run(name, func(t *testing.T) {
			out := filepath.Join(tmp, name)
			if err := Save(out, fig); err != nil {
				t.Fatalf("Save error: %v", err)
			}
			info, err := os.Stat(out)
			if err != nil {
				t.Fatalf("output not created: %v", err)
			}
			if info.Size() == 0 {
				t.Fatalf("output file is empty")
			}
		})
	}
}

func TestSaveChartSnapshot_InvalidFormat(t *testing.T) {
	err := SaveChartSnapshot(SnapshotOptions{Path: filepath.Join(t.TempDir(), "c.out"), Format: "gif", Figure: testFigure(t)})
	if err == nil || !strings.Contains(err.Error(), "unsupported format") {
		t.Fatalf("expected unsupported format error, got %v", err)
	}
}

func TestWriteSVG_TopLevelBarsAndLegend(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSVG(&buf, testFigure(t)); err != nil {
		t.Fatal(err)
	}
	svg := buf.String()
	for _, want := range []string{"<svg", "Comments ratio", "alpha", "beta", "0.4"} {
		if !strings.Contains(svg, want) {
			t.Errorf("svg missing %q", want)
		}
	}
	if strings.Contains(svg, "x.py") {
		t.Error("only top-level nodes should be drawn")
	}
}

func TestWriteSVG_RawFigure(t *testing.T) {
	doc, _ := payload.DecodeDocument(`{"data":[1,2],"layout":{}}`)
	err := WriteSVG(&bytes.Buffer{}, chart.Parse(doc))
	if !errors.Is(err, ErrNothingToDraw) {
		t.Errorf("expected ErrNothingToDraw, got %v", err)
	}
}

func TestFileName(t *testing.T) {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	got := FileName(selection.Default(), ts, FormatSVG)
	if got != "codeviz-comments-all-20260304-050607.svg" {
		t.Errorf("FileName = %q", got)
	}
	py := selection.Selection{Category: selection.CategoryLogs, Extension: selection.ExtensionPython}
	if got := FileName(py, ts, FormatPNG); got != "codeviz-logs-py-20260304-050607.png" {
		t.Errorf("FileName = %q", got)
	}
}
