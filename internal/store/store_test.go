package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/vanderheijden86/codeviz/pkg/payload"
	"github.com/vanderheijden86/codeviz/pkg/selection"
)

func matrix(tag string) payload.Matrix {
	m := make(payload.Matrix)
	for _, sel := range selection.All() {
		m.Set(sel, fmt.Sprintf(`{"data":[%q],"layout":{}}`, tag+sel.String()))
	}
	return m
}

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state", "codeviz.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLoadMatrix_Empty(t *testing.T) {
	s := openTemp(t)
	if _, _, err := s.LoadMatrix(context.Background()); !errors.Is(err, ErrEmpty) {
		t.Errorf("expected ErrEmpty, got %v", err)
	}
}

func TestSaveThenLoad(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	if _, err := s.SaveMatrix(ctx, matrix("a:"), "analyzer", 1500*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	second, err := s.SaveMatrix(ctx, matrix("b:"), "dir", time.Second)
	if err != nil {
		t.Fatal(err)
	}

	m, run, err := s.LoadMatrix(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if run.ID != second.ID || run.Source != "dir" || run.Duration != time.Second {
		t.Errorf("run = %+v, want %+v", run, second)
	}
	got, _ := m.Cell(selection.Default())
	if got != `{"data":["b:comments/*"],"layout":{}}` {
		t.Errorf("cell = %s", got)
	}

	runs, err := s.Runs(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].ID != second.ID {
		t.Errorf("runs = %+v", runs)
	}
}

func TestSaveMatrix_RejectsIncomplete(t *testing.T) {
	s := openTemp(t)
	partial := payload.Matrix{selection.CategoryLogs: {selection.ExtensionAll: "{}"}}
	if _, err := s.SaveMatrix(context.Background(), partial, "dir", 0); !errors.Is(err, payload.ErrIncompleteMatrix) {
		t.Errorf("expected ErrIncompleteMatrix, got %v", err)
	}
}

func TestReopenKeepsMatrix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codeviz.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.SaveMatrix(context.Background(), matrix("x"), "analyzer", 0); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, _, err := s.LoadMatrix(context.Background()); err != nil {
		t.Errorf("matrix lost across reopen: %v", err)
	}
}
