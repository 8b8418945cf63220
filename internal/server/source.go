package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vanderheijden86/codeviz/internal/analyzer"
	"github.com/vanderheijden86/codeviz/pkg/payload"
	"github.com/vanderheijden86/codeviz/pkg/selection"
)

// Source produces a complete matrix on demand.
type Source interface {
	Name() string
	Compute(ctx context.Context) (payload.Matrix, error)
}

// AnalyzerSource computes the matrix by analyzing a source tree.
type AnalyzerSource struct {
	A *analyzer.Analyzer
}

func (s AnalyzerSource) Name() string { return "analyzer" }

func (s AnalyzerSource) Compute(ctx context.Context) (payload.Matrix, error) {
	return s.A.Compute(ctx)
}

// DirSource reads precomputed documents from <Dir>/<category>/<extension>.json.
type DirSource struct {
	Dir string
}

func (s DirSource) Name() string { return "dir" }

// CellPath is where a selection's document lives under dir.
func CellPath(dir string, sel selection.Selection) string {
	return filepath.Join(dir, string(sel.Category), string(sel.Extension)+".json")
}

// Compute reads every cell. A missing or undecodable file fails the whole
// read so a half-written data directory is never published.
func (s DirSource) Compute(ctx context.Context) (payload.Matrix, error) {
	m := make(payload.Matrix)
	for _, sel := range selection.All() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := CellPath(s.Dir, sel)
		raw, err := os.ReadFile(p)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", payload.ErrIncompleteMatrix, p)
			}
			return nil, err
		}
		if _, err := payload.DecodeDocument(string(raw)); err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		m.Set(sel, string(raw))
	}
	return m, nil
}
