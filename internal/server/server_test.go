package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/vanderheijden86/codeviz/internal/store"
	"github.com/vanderheijden86/codeviz/pkg/backend"
	"github.com/vanderheijden86/codeviz/pkg/fetch"
	"github.com/vanderheijden86/codeviz/pkg/metrics"
	"github.com/vanderheijden86/codeviz/pkg/payload"
	"github.com/vanderheijden86/codeviz/pkg/selection"
)

type fakeSource struct {
	calls   atomic.Int32
	fail    atomic.Bool
	started chan struct{}
	release chan struct{}
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Compute(ctx context.Context) (payload.Matrix, error) {
	n := f.calls.Add(1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if f.fail.Load() {
		return nil, errors.New("analysis exploded")
	}
	m := make(payload.Matrix)
	for _, sel := range selection.All() {
		m.Set(sel, fmt.Sprintf(`{"data":[{"type":"bar","x":["n"],"y":[%d]}],"layout":{"title":%q}}`, n, sel.String()))
	}
	return m, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, src Source, st *store.Store) (*Server, *httptest.Server) {
	t.Helper()
	s, err := New(Options{Source: src, Store: st, Logger: quietLogger()})
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func TestNew_RequiresSource(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("expected error without a source")
	}
}

func TestGraphs_NotReady(t *testing.T) {
	_, ts := newTestServer(t, &fakeSource{}, nil)
	resp, err := http.Get(ts.URL + backend.PathGraphs)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestRefreshThenGraphs(t *testing.T) {
	_, ts := newTestServer(t, &fakeSource{}, nil)

	resp, err := http.Post(ts.URL+backend.PathRefresh, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	var st Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !st.Loaded || st.Version != 1 || st.Source != "fake" {
		t.Fatalf("refresh: %d %+v", resp.StatusCode, st)
	}

	resp, err = http.Get(ts.URL + backend.PathGraphs)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get("X-Matrix-Version"); got != "1" {
		t.Errorf("X-Matrix-Version = %q", got)
	}
	body, _ := io.ReadAll(resp.Body)
	m, err := payload.DecodeMatrix(body)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Validate(); err != nil {
		t.Errorf("served matrix incomplete: %v", err)
	}
}

func TestRecompute_Coalesces(t *testing.T) {
	src := &fakeSource{started: make(chan struct{}, 4), release: make(chan struct{})}
	s, _ := newTestServer(t, src, nil)

	var wg sync.WaitGroup
	results := make([]Status, 3)
	run := func(i int) {
		defer wg.Done()
		st, err := s.Recompute(context.Background())
		if err != nil {
			t.Error(err)
		}
		results[i] = st
	}

	wg.Add(1)
	go run(0)
	<-src.started
	wg.Add(2)
	go run(1)
	go run(2)
	time.Sleep(50 * time.Millisecond)
	close(src.release)
	wg.Wait()

	if n := src.calls.Load(); n != 1 {
		t.Errorf("source computed %d times, want 1", n)
	}
	for i, st := range results {
		if st.Version != 1 {
			t.Errorf("result %d version = %d", i, st.Version)
		}
	}
}

func TestRefreshFailure_KeepsPublishedMatrix(t *testing.T) {
	src := &fakeSource{}
	s, ts := newTestServer(t, src, nil)
	if _, err := s.Recompute(context.Background()); err != nil {
		t.Fatal(err)
	}
	before, _ := s.Body()

	src.fail.Store(true)
	resp, err := http.Post(ts.URL+backend.PathRefresh, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}

	after, err := s.Body()
	if err != nil || string(after) != string(before) {
		t.Error("failed refresh replaced the published matrix")
	}
	if s.Status().Version != 1 {
		t.Errorf("version = %d, want 1", s.Status().Version)
	}
}

func TestRecompute_CancelledCallerDoesNotWait(t *testing.T) {
	src := &fakeSource{started: make(chan struct{}, 1), release: make(chan struct{})}
	s, _ := newTestServer(t, src, nil)
	defer close(src.release)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := s.Recompute(ctx)
		errCh <- err
	}()
	<-src.started
	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestClose_WaitsForDetachedRecompute(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "codeviz.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	src := &fakeSource{started: make(chan struct{}, 1), release: make(chan struct{})}
	s, _ := newTestServer(t, src, st)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := s.Recompute(ctx)
		errCh <- err
	}()
	<-src.started
	cancel()
	<-errCh

	closed := make(chan struct{})
	go func() {
		s.Close()
		close(closed)
	}()
	select {
	case <-closed:
		t.Fatal("Close returned while a recompute was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(src.release)
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return after the recompute finished")
	}
	if _, _, err := st.LoadMatrix(context.Background()); err != nil {
		t.Errorf("detached recompute was not persisted before Close returned: %v", err)
	}

	if _, err := s.Recompute(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Recompute after Close = %v, want ErrClosed", err)
	}
	if n := src.calls.Load(); n != 1 {
		t.Errorf("source computed %d times after Close", n)
	}
}

func TestWarmAndPersist(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "codeviz.db")
	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	s, _ := newTestServer(t, &fakeSource{}, st)
	if err := s.Warm(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s.Status().Loaded {
		t.Fatal("empty store should not publish anything")
	}
	if _, err := s.Recompute(context.Background()); err != nil {
		t.Fatal(err)
	}

	restarted, ts := newTestServer(t, &fakeSource{}, st)
	if err := restarted.Warm(context.Background()); err != nil {
		t.Fatal(err)
	}
	status := restarted.Status()
	if !status.Loaded || !status.Restored || status.Source != "fake" {
		t.Errorf("restored status = %+v", status)
	}
	resp, err := http.Get(ts.URL + backend.PathGraphs)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("restored server answered %d", resp.StatusCode)
	}
}

func writeDataDir(t *testing.T, dir string, title string) {
	t.Helper()
	for _, sel := range selection.All() {
		p := CellPath(dir, sel)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		doc := fmt.Sprintf(`{"data":[],"layout":{"title":%q}}`, title)
		if err := os.WriteFile(p, []byte(doc), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestDirSource(t *testing.T) {
	dir := t.TempDir()
	writeDataDir(t, dir, "v1")

	m, err := DirSource{Dir: dir}.Compute(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Validate(); err != nil {
		t.Fatal(err)
	}
	if CellPath(dir, selection.Default()) != filepath.Join(dir, "comments", "*.json") {
		t.Errorf("cell path = %s", CellPath(dir, selection.Default()))
	}

	logsJava := selection.Selection{Category: selection.CategoryLogs, Extension: selection.ExtensionJava}
	if err := os.WriteFile(CellPath(dir, logsJava), []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := (DirSource{Dir: dir}).Compute(context.Background()); !errors.Is(err, payload.ErrDecode) {
		t.Errorf("expected ErrDecode, got %v", err)
	}

	os.Remove(CellPath(dir, logsJava))
	if _, err := (DirSource{Dir: dir}).Compute(context.Background()); !errors.Is(err, payload.ErrIncompleteMatrix) {
		t.Errorf("expected ErrIncompleteMatrix, got %v", err)
	}
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	t.Setenv("CV_FORCE_POLL", "")
	dir := t.TempDir()
	writeDataDir(t, dir, "v1")

	s, err := New(Options{Source: DirSource{Dir: dir}, Logger: quietLogger(), WatchDir: dir, Debounce: 20 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Recompute(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Watch(ctx); err != nil {
		t.Fatal(err)
	}

	writeDataDir(t, dir, "v2")

	deadline := time.Now().Add(5 * time.Second)
	for s.Status().Version < 2 {
		if time.Now().After(deadline) {
			t.Fatal("matrix was not reloaded after data change")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestCORSPreflight(t *testing.T) {
	_, ts := newTestServer(t, &fakeSource{}, nil)
	req, _ := http.NewRequest(http.MethodOptions, ts.URL+backend.PathRefresh, nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.Header.Get("Access-Control-Allow-Origin") == "" {
		t.Error("preflight missing Access-Control-Allow-Origin")
	}
}

// TestEndToEnd drives the server through the client-side fetch controller.
func TestEndToEnd(t *testing.T) {
	src := &fakeSource{}
	_, ts := newTestServer(t, src, nil)

	client, err := backend.NewClient(ts.URL)
	if err != nil {
		t.Fatal(err)
	}
	ctrl := fetch.NewController(client, payload.NewCache())

	// Soft refresh before anything was computed fails and leaves the cache empty.
	if _, err := ctrl.Refresh(context.Background(), false); !errors.Is(err, fetch.ErrFetchFailed) {
		t.Fatalf("expected ErrFetchFailed, got %v", err)
	}
	if ctrl.Loading() || ctrl.Cache().Loaded() {
		t.Fatal("failed refresh should clear loading and keep the cache empty")
	}

	snap, err := ctrl.Refresh(context.Background(), true)
	if err != nil {
		t.Fatal(err)
	}
	doc, err := snap.Derive(selection.Default())
	if err != nil {
		t.Fatal(err)
	}
	if doc.Layout["title"] != "comments/*" {
		t.Errorf("title = %v", doc.Layout["title"])
	}
	if src.calls.Load() != 1 {
		t.Errorf("recompute calls = %d", src.calls.Load())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	metrics.ResetAll()
	s, ts := newTestServer(t, &fakeSource{}, nil)
	if _, err := s.Recompute(context.Background()); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var report metrics.Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatal(err)
	}
	found := false
	for _, tm := range report.Timings {
		if tm.Name == "compute_matrix" && tm.Count == 1 {
			found = true
		}
	}
	if !found {
		t.Errorf("compute_matrix timing missing: %+v", report.Timings)
	}
}
