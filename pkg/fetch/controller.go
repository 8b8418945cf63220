// Package fetch orchestrates a refresh: optionally ask the backend to
// recompute, then retrieve the full matrix and publish it to the payload
// cache. It is the only writer of the loading flag.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/vanderheijden86/codeviz/pkg/debug"
	"github.com/vanderheijden86/codeviz/pkg/metrics"
	"github.com/vanderheijden86/codeviz/pkg/payload"
)

var (
	// ErrFetchFailed wraps every backend or decode failure of a refresh.
	ErrFetchFailed = errors.New("fetch failed")
	// ErrBusy is returned by Refresh when a refresh is already in flight.
	ErrBusy = errors.New("refresh already in progress")
)

// Backend is the pair of backend operations a refresh needs.
type Backend interface {
	TriggerRecompute(ctx context.Context) error
	RetrieveMatrix(ctx context.Context) (payload.Matrix, error)
}

// Step names the phase a refresh failed in.
type Step string

const (
	StepRecompute Step = "recompute"
	StepRetrieve  Step = "retrieve"
	StepLoad      Step = "load"
)

// Error describes a failed refresh. It matches ErrFetchFailed with
// errors.Is and unwraps to the underlying cause.
type Error struct {
	Step  Step
	Hard  bool
	Cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("refresh %s failed: %v", e.Step, e.Cause)
}

func (e *Error) Unwrap() []error {
	return []error{ErrFetchFailed, e.Cause}
}

// Controller runs refreshes against one backend and one cache. The caller
// must not start overlapping refreshes; Begin enforces that.
type Controller struct {
	backend Backend
	cache   *payload.Cache
	loading atomic.Bool

	lastDuration atomic.Int64
}

// NewController wires a backend to a cache.
func NewController(b Backend, c *payload.Cache) *Controller {
	return &Controller{backend: b, cache: c}
}

// Cache returns the cache this controller publishes to.
func (c *Controller) Cache() *payload.Cache {
	return c.cache
}

// Loading reports whether a refresh is in flight.
func (c *Controller) Loading() bool {
	return c.loading.Load()
}

// LastDuration is how long the most recent completed refresh took.
func (c *Controller) LastDuration() time.Duration {
	return time.Duration(c.lastDuration.Load())
}

// Begin claims the loading flag. It returns false if a refresh is already
// in flight, in which case the caller must not call Run.
func (c *Controller) Begin() bool {
	return c.loading.CompareAndSwap(false, true)
}

// Run performs a refresh previously claimed with Begin. When hard is true
// the backend recompute is awaited before the matrix is retrieved. The
// loading flag stays set across both steps and is cleared on every exit
// path. On failure the cache is left untouched.
func (c *Controller) Run(ctx context.Context, hard bool) (*payload.Snapshot, error) {
	defer c.loading.Store(false)
	defer metrics.Timer(metrics.Refresh)()
	start := time.Now()
	defer func() {
		d := time.Since(start)
		c.lastDuration.Store(int64(d))
		debug.LogTiming(fmt.Sprintf("refresh(hard=%v)", hard), d)
	}()

	if hard {
		if err := c.backend.TriggerRecompute(ctx); err != nil {
			return nil, &Error{Step: StepRecompute, Hard: hard, Cause: err}
		}
	}

	m, err := c.backend.RetrieveMatrix(ctx)
	if err != nil {
		return nil, &Error{Step: StepRetrieve, Hard: hard, Cause: err}
	}

	snap, err := c.cache.Load(m)
	if err != nil {
		return nil, &Error{Step: StepLoad, Hard: hard, Cause: err}
	}
	return snap, nil
}

// Refresh is Begin followed by Run, for callers that are not driving the
// loading state themselves.
func (c *Controller) Refresh(ctx context.Context, hard bool) (*payload.Snapshot, error) {
	if !c.Begin() {
		return nil, ErrBusy
	}
	return c.Run(ctx, hard)
}
