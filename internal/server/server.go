// Package server is the codeviz backend: it serves the payload matrix over
// HTTP and recomputes it on request.
//
//	GET  /get_graphs  the whole matrix, {category: {extension: "<document>"}}
//	POST /refresh     recompute, then answer with the new status
//	GET  /status      version, source and timing of the published matrix
//	GET  /metrics     in-process timing and cache counters
//	GET  /health      liveness
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/sync/singleflight"

	"github.com/vanderheijden86/codeviz/internal/store"
	"github.com/vanderheijden86/codeviz/pkg/metrics"
	"github.com/vanderheijden86/codeviz/pkg/payload"
	"github.com/vanderheijden86/codeviz/pkg/watcher"
)

var (
	// ErrNotReady is returned while no matrix has been published.
	ErrNotReady = errors.New("matrix not computed yet")
	// ErrClosed is returned by Recompute after Close.
	ErrClosed = errors.New("server closed")
)

// Options configures a Server.
type Options struct {
	Source      Source
	Store       *store.Store // optional
	CORSOrigins []string
	Logger      *slog.Logger
	// WatchDir, when set, triggers a recompute whenever a .json file below
	// it changes.
	WatchDir string
	Debounce time.Duration
}

// Status describes the published matrix.
type Status struct {
	Loaded     bool      `json:"loaded"`
	Version    uint64    `json:"version"`
	Source     string    `json:"source,omitempty"`
	ComputedAt time.Time `json:"computed_at,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	Restored   bool      `json:"restored,omitempty"`
}

// published is swapped in whole; handlers never see a partial update.
type published struct {
	body   []byte
	status Status
}

// Server owns the current matrix.
type Server struct {
	src      Source
	store    *store.Store
	origins  []string
	log      *slog.Logger
	watchDir string
	debounce time.Duration

	current atomic.Pointer[published]
	version atomic.Uint64
	sf      singleflight.Group
	watch   *watcher.Watcher

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// New returns a server for opts. Nothing is computed until Warm or
// Recompute is called.
func New(opts Options) (*Server, error) {
	if opts.Source == nil {
		return nil, errors.New("server: no matrix source")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	return &Server{
		src:      opts.Source,
		store:    opts.Store,
		origins:  opts.CORSOrigins,
		log:      opts.Logger,
		watchDir: opts.WatchDir,
		debounce: opts.Debounce,
	}, nil
}

// Status returns the status of the published matrix.
func (s *Server) Status() Status {
	if p := s.current.Load(); p != nil {
		return p.status
	}
	return Status{Source: s.src.Name()}
}

// Body returns the encoded matrix, or ErrNotReady.
func (s *Server) Body() ([]byte, error) {
	p := s.current.Load()
	if p == nil {
		return nil, ErrNotReady
	}
	return p.body, nil
}

func (s *Server) publish(m payload.Matrix, st Status) error {
	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding matrix: %w", err)
	}
	st.Loaded = true
	st.Version = s.version.Add(1)
	s.current.Store(&published{body: body, status: st})
	return nil
}

// Warm publishes the stored matrix, if any, so /get_graphs answers before
// the first recompute. A missing store or an empty one is not an error.
func (s *Server) Warm(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	m, run, err := s.store.LoadMatrix(ctx)
	if errors.Is(err, store.ErrEmpty) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading stored matrix: %w", err)
	}
	s.log.Info("restored stored matrix", "run", run.ID, "saved_at", run.SavedAt, "source", run.Source)
	return s.publish(m, Status{
		Source:     run.Source,
		ComputedAt: run.SavedAt,
		DurationMS: run.Duration.Milliseconds(),
		Restored:   true,
	})
}

// Recompute rebuilds the matrix from the source and publishes it.
// Concurrent calls share one computation. The computation is detached from
// ctx so a caller going away does not fail the others waiting on it; ctx
// only bounds how long this caller waits.
func (s *Server) Recompute(ctx context.Context) (Status, error) {
	ch := s.sf.DoChan("recompute", func() (any, error) {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return Status{}, ErrClosed
		}
		s.inflight.Add(1)
		s.mu.Unlock()
		defer s.inflight.Done()
		return s.recompute(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return Status{}, res.Err
		}
		if res.Shared {
			s.log.Debug("recompute shared with concurrent caller")
		}
		return res.Val.(Status), nil
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

func (s *Server) recompute(ctx context.Context) (Status, error) {
	defer metrics.Timer(metrics.Compute)()
	start := time.Now()
	m, err := s.src.Compute(ctx)
	if err != nil {
		s.log.Error("recompute failed", "source", s.src.Name(), "err", err)
		return Status{}, err
	}
	if err := m.Validate(); err != nil {
		return Status{}, err
	}
	took := time.Since(start)

	if err := s.publish(m, Status{Source: s.src.Name(), ComputedAt: time.Now().UTC(), DurationMS: took.Milliseconds()}); err != nil {
		return Status{}, err
	}
	st := s.Status()
	s.log.Info("published matrix", "version", st.Version, "source", st.Source, "elapsed", took)

	if s.store != nil {
		if _, err := s.store.SaveMatrix(ctx, m, s.src.Name(), took); err != nil {
			s.log.Warn("persisting matrix failed", "err", err)
		}
	}
	return st, nil
}

// Watch starts the data directory watcher, if configured. It stops when
// ctx is done.
func (s *Server) Watch(ctx context.Context) error {
	if s.watchDir == "" {
		return nil
	}
	opts := []watcher.WatcherOption{
		watcher.WithSuffix(".json"),
		watcher.WithOnChange(func() {
			s.log.Info("data directory changed, reloading", "dir", s.watchDir)
			if _, err := s.Recompute(ctx); err != nil && !errors.Is(err, ErrClosed) && ctx.Err() == nil {
				s.log.Warn("reload after change failed", "err", err)
			}
		}),
		watcher.WithOnError(func(err error) {
			s.log.Warn("watcher error", "err", err)
		}),
	}
	if s.debounce > 0 {
		opts = append(opts, watcher.WithDebounceDuration(s.debounce))
	}
	w, err := watcher.NewWatcher(s.watchDir, opts...)
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return fmt.Errorf("watching %s: %w", s.watchDir, err)
	}
	s.mu.Lock()
	s.watch = w
	s.mu.Unlock()
	s.log.Info("watching data directory", "dir", w.Root(), "polling", w.IsPolling())

	go func() {
		<-ctx.Done()
		w.Stop()
	}()
	return nil
}

// Close stops the watcher and waits for running recomputes, so a store
// passed in Options can be closed afterwards. Later Recompute calls fail
// with ErrClosed.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	w := s.watch
	s.mu.Unlock()

	if w != nil {
		w.Stop()
	}
	s.inflight.Wait()
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // recompute on a large tree
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
