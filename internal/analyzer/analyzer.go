// Package analyzer computes the code metrics matrix: it walks a source
// tree, counts code, comment, blank and log lines per file, and renders one
// treemap document per (category, extension) cell.
package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/vanderheijden86/codeviz/pkg/payload"
	"github.com/vanderheijden86/codeviz/pkg/selection"
)

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithExcludes adds directories to skip, by name or by path relative to
// the root.
func WithExcludes(dirs ...string) Option {
	return func(a *Analyzer) { a.excludes = append(a.excludes, dirs...) }
}

// WithInsights replaces the line insights counted as log lines.
func WithInsights(in ...Insight) Option {
	return func(a *Analyzer) { a.insights = in }
}

// WithWorkers bounds file counting concurrency.
func WithWorkers(n int) Option {
	return func(a *Analyzer) { a.workers = n }
}

// WithLogger sets the logger for progress messages.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) { a.log = l }
}

// Analyzer computes matrices for one source root.
type Analyzer struct {
	root     string
	excludes []string
	insights []Insight
	workers  int
	log      *slog.Logger

	mu       sync.Mutex
	lastScan []FileStat
}

// New returns an analyzer for root.
func New(root string, opts ...Option) *Analyzer {
	a := &Analyzer{
		root:     root,
		excludes: append([]string(nil), DefaultExcludes...),
		insights: []Insight{LogInsight},
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Root is the analyzed directory.
func (a *Analyzer) Root() string { return a.root }

// LastScan returns the file stats of the most recent Compute.
func (a *Analyzer) LastScan() []FileStat {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]FileStat(nil), a.lastScan...)
}

// Compute scans the tree once and builds every cell of the matrix
// concurrently.
func (a *Analyzer) Compute(ctx context.Context) (payload.Matrix, error) {
	start := time.Now()
	stats, err := scan(ctx, a.root, scanOptions{
		excludes: a.excludes,
		insights: a.insights,
		workers:  a.workers,
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", a.root, err)
	}
	a.log.Info("scanned source tree", "root", a.root, "files", len(stats), "elapsed", time.Since(start))

	a.mu.Lock()
	a.lastScan = stats
	a.mu.Unlock()

	cells := selection.All()
	docs := make([]string, len(cells))
	g, gctx := errgroup.WithContext(ctx)
	for i, sel := range cells {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			doc := Figure(BuildTreemap(stats, sel.Extension), sel.Category, sel.Extension)
			raw, err := json.Marshal(doc)
			if err != nil {
				return fmt.Errorf("encoding %s: %w", sel, err)
			}
			docs[i] = string(raw)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	m := make(payload.Matrix)
	for i, sel := range cells {
		m.Set(sel, docs[i])
	}
	a.log.Info("computed matrix", "cells", len(cells), "elapsed", time.Since(start))
	return m, nil
}
