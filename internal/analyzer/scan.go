package analyzer

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultExcludes are directory names never descended into.
var DefaultExcludes = []string{
	".git", ".hg", ".svn", "node_modules", "vendor", "__pycache__",
	".venv", "venv", ".idea", ".vscode", "build", "dist", "target",
}

// FileStat is the tally for one source file. Path is slash-separated and
// relative to the scanned root.
type FileStat struct {
	Path   string
	Counts Counts
}

// scanOptions controls a tree walk.
type scanOptions struct {
	excludes []string // directory names, or slash paths relative to root
	insights []Insight
	workers  int
}

// scan walks root and counts every supported file. Results are sorted by
// path.
func scan(ctx context.Context, root string, opts scanOptions) ([]FileStat, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("source root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source root %s is not a directory", root)
	}

	skipName := make(map[string]bool)
	var skipPaths []string
	for _, ex := range opts.excludes {
		ex = strings.Trim(filepath.ToSlash(ex), "/")
		if ex == "" {
			continue
		}
		if strings.Contains(ex, "/") {
			skipPaths = append(skipPaths, ex)
		} else {
			skipName[ex] = true
		}
	}

	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rel, _ := filepath.Rel(root, path)
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if path == root {
				return nil
			}
			if skipName[d.Name()] {
				return filepath.SkipDir
			}
			for _, p := range skipPaths {
				if rel == p || strings.HasPrefix(rel, p+"/") {
					return filepath.SkipDir
				}
			}
			return nil
		}
		if d.Type().IsRegular() && Supported(d.Name()) {
			paths = append(paths, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	workers := opts.workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	stats := make([]FileStat, 0, len(paths))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, rel := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			f, err := os.Open(filepath.Join(root, filepath.FromSlash(rel)))
			if err != nil {
				return err
			}
			defer f.Close()
			c, err := Count(rel, f, opts.insights...)
			if err != nil {
				return fmt.Errorf("counting %s: %w", rel, err)
			}
			mu.Lock()
			stats = append(stats, FileStat{Path: rel, Counts: c})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(stats, func(i, j int) bool { return stats[i].Path < stats[j].Path })
	return stats, nil
}
