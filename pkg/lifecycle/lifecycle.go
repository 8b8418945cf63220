// Package lifecycle decides when the chart widget is mounted and tracks
// whether the mounted instance has finished its first draw.
//
// State is an immutable value and every transition goes through Reduce.
// Each (selection, matrix version) pair gets its own mount with a fresh
// ID; a mount is never reused for a different document, and completion
// callbacks carrying an old ID are dropped.
package lifecycle

import (
	"errors"
	"fmt"

	"github.com/vanderheijden86/codeviz/pkg/payload"
	"github.com/vanderheijden86/codeviz/pkg/selection"
)

// Phase of the chart surface.
type Phase int

const (
	// PhaseIdle means no document is mounted and no chart surface is shown.
	PhaseIdle Phase = iota
	// PhaseMounting means a widget has been handed a document and has not
	// reported its first draw yet.
	PhaseMounting
	// PhaseRendered means the mounted widget finished its first draw.
	PhaseRendered
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseMounting:
		return "mounting"
	case PhaseRendered:
		return "rendered"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Mount is one widget instance and the document it was created for.
type Mount struct {
	ID        uint64
	Selection selection.Selection
	Version   uint64
	Document  payload.Document
}

// Key identifies the widget instance, e.g. for keyed rendering.
func (m Mount) Key() string {
	return fmt.Sprintf("%s@v%d#%d", m.Selection, m.Version, m.ID)
}

// State of the coordinator.
type State struct {
	phase  Phase
	mount  *Mount
	lastID uint64
	err    error
}

// Phase returns the current phase.
func (s State) Phase() Phase { return s.phase }

// Rendering is the isRendering flag: true while a mounted widget has not
// signaled its first draw.
func (s State) Rendering() bool { return s.phase == PhaseMounting }

// Mount returns the mounted instance, if any.
func (s State) Mount() (Mount, bool) {
	if s.mount == nil {
		return Mount{}, false
	}
	return *s.mount, true
}

// MountID returns the ID of the mounted instance, or 0 when idle.
func (s State) MountID() uint64 {
	if s.mount == nil {
		return 0
	}
	return s.mount.ID
}

// Err is the derivation error that left the coordinator idle, if any.
// ErrNotLoaded is not reported: having nothing yet is not an error.
func (s State) Err() error { return s.err }

// Event is an input to Reduce.
type Event interface {
	event()
}

// Sync reports the current selection and matrix snapshot. It is sent
// whenever either may have changed.
type Sync struct {
	Selection selection.Selection
	Snapshot  *payload.Snapshot
	// Cache, when set, is the cache that published Snapshot; documents are
	// then derived through its memo.
	Cache *payload.Cache
}

// DrawCompleted is the widget's one-shot completion callback.
type DrawCompleted struct {
	MountID uint64
}

func (Sync) event()          {}
func (DrawCompleted) event() {}

// Reduce applies ev to s and returns the next state. It has no side
// effects.
func Reduce(s State, ev Event) State {
	switch ev := ev.(type) {
	case Sync:
		return reduceSync(s, ev)
	case DrawCompleted:
		if s.phase == PhaseMounting && s.mount != nil && ev.MountID == s.mount.ID {
			s.phase = PhaseRendered
		}
		return s
	default:
		return s
	}
}

func reduceSync(s State, ev Sync) State {
	if ev.Snapshot == nil {
		s.phase = PhaseIdle
		s.mount = nil
		s.err = nil
		return s
	}

	version := ev.Snapshot.Version()
	if s.mount != nil && s.mount.Selection == ev.Selection && s.mount.Version == version {
		return s
	}

	doc, err := derive(ev)
	if err != nil {
		s.phase = PhaseIdle
		s.mount = nil
		if errors.Is(err, payload.ErrNotLoaded) {
			err = nil
		}
		s.err = err
		return s
	}

	s.lastID++
	s.mount = &Mount{
		ID:        s.lastID,
		Selection: ev.Selection,
		Version:   version,
		Document:  doc,
	}
	s.phase = PhaseMounting
	s.err = nil
	return s
}

func derive(ev Sync) (payload.Document, error) {
	if ev.Cache != nil {
		return ev.Cache.DeriveAt(ev.Snapshot, ev.Selection)
	}
	return ev.Snapshot.Derive(ev.Selection)
}

// Remounted reports whether next mounted a different widget instance than
// prev.
func Remounted(prev, next State) bool {
	return next.mount != nil && next.MountID() != prev.MountID()
}
