// Package payload holds the selection matrix returned by the backend and
// derives render documents from it.
//
// The matrix is published as an immutable Snapshot behind an atomic
// pointer. Load swaps the whole snapshot in one step, so a reader sees
// either the old matrix or the new one, never a mix.
package payload

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/vanderheijden86/codeviz/pkg/debug"
	"github.com/vanderheijden86/codeviz/pkg/metrics"
	"github.com/vanderheijden86/codeviz/pkg/selection"

	json "github.com/goccy/go-json"
	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	// ErrNotLoaded is returned by Derive before the first successful Load.
	ErrNotLoaded = errors.New("payload not loaded")
	// ErrMissingCell is returned when a loaded matrix lacks the requested cell.
	ErrMissingCell = errors.New("payload cell missing")
	// ErrIncompleteMatrix is returned by Load for a matrix that does not
	// cover every selection.
	ErrIncompleteMatrix = errors.New("payload matrix incomplete")
	// ErrDecode is returned when a cell is not a {data, layout} document.
	ErrDecode = errors.New("payload cell is not a render document")
)

// Matrix maps category -> extension -> serialized render document. This is
// the wire shape of GET /get_graphs.
type Matrix map[selection.Category]map[selection.Extension]string

// Cell returns the serialized document for sel.
func (m Matrix) Cell(sel selection.Selection) (string, bool) {
	row, ok := m[sel.Category]
	if !ok {
		return "", false
	}
	raw, ok := row[sel.Extension]
	return raw, ok
}

// Set stores raw at sel, allocating the row as needed.
func (m Matrix) Set(sel selection.Selection, raw string) {
	row, ok := m[sel.Category]
	if !ok {
		row = make(map[selection.Extension]string)
		m[sel.Category] = row
	}
	row[sel.Extension] = raw
}

// Missing lists the selections m has no cell for.
func (m Matrix) Missing() []selection.Selection {
	var out []selection.Selection
	for _, sel := range selection.All() {
		if _, ok := m.Cell(sel); !ok {
			out = append(out, sel)
		}
	}
	return out
}

// Validate returns ErrIncompleteMatrix if any selection has no cell.
func (m Matrix) Validate() error {
	missing := m.Missing()
	if len(missing) == 0 {
		return nil
	}
	names := make([]string, len(missing))
	for i, sel := range missing {
		names[i] = sel.String()
	}
	sort.Strings(names)
	return fmt.Errorf("%w: missing %s", ErrIncompleteMatrix, strings.Join(names, ", "))
}

// DecodeMatrix parses a GET /get_graphs body.
func DecodeMatrix(body []byte) (Matrix, error) {
	var m Matrix
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("decoding matrix: %w", err)
	}
	if m == nil {
		return nil, fmt.Errorf("decoding matrix: %w: null body", ErrIncompleteMatrix)
	}
	return m, nil
}

// Document is a decoded cell: the chart traces and the presentation
// metadata, passed through untouched to the chart widget.
type Document struct {
	Data   []any          `json:"data"`
	Layout map[string]any `json:"layout"`
}

// DecodeDocument parses one serialized cell. The cell must be a JSON object
// carrying a data or layout key; anything else is ErrDecode.
func DecodeDocument(raw string) (Document, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if envelope == nil {
		return Document{}, fmt.Errorf("%w: not an object", ErrDecode)
	}
	data, hasData := envelope["data"]
	layout, hasLayout := envelope["layout"]
	if !hasData && !hasLayout {
		return Document{}, fmt.Errorf("%w: no data or layout", ErrDecode)
	}

	var doc Document
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, &doc.Data); err != nil {
			return Document{}, fmt.Errorf("%w: data: %v", ErrDecode, err)
		}
	}
	if len(layout) > 0 && string(layout) != "null" {
		if err := json.Unmarshal(layout, &doc.Layout); err != nil {
			return Document{}, fmt.Errorf("%w: layout: %v", ErrDecode, err)
		}
	}
	return doc, nil
}

// MarshalIndent encodes the document for display or the clipboard.
func (d Document) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// Clone returns a deep copy of d.
func (d Document) Clone() Document {
	out := Document{}
	if d.Data != nil {
		out.Data = cloneValue(d.Data).([]any)
	}
	if d.Layout != nil {
		out.Layout = cloneValue(d.Layout).(map[string]any)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, vv := range x {
			m[k] = cloneValue(vv)
		}
		return m
	case []any:
		s := make([]any, len(x))
		for i, vv := range x {
			s[i] = cloneValue(vv)
		}
		return s
	default:
		return x
	}
}

// Snapshot is one immutable, complete matrix load.
type Snapshot struct {
	version uint64
	cells   map[selection.Selection]string
}

// Version increases by one with every successful Load on the same Cache.
func (s *Snapshot) Version() uint64 {
	if s == nil {
		return 0
	}
	return s.version
}

// Raw returns the serialized cell for sel.
func (s *Snapshot) Raw(sel selection.Selection) (string, error) {
	if s == nil {
		return "", ErrNotLoaded
	}
	raw, ok := s.cells[sel]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingCell, sel)
	}
	return raw, nil
}

// Derive decodes the cell for sel. It is a pure function of the snapshot
// and the selection.
func (s *Snapshot) Derive(sel selection.Selection) (Document, error) {
	defer metrics.Timer(metrics.Decode)()
	raw, err := s.Raw(sel)
	if err != nil {
		return Document{}, err
	}
	doc, err := DecodeDocument(raw)
	if err != nil {
		return Document{}, fmt.Errorf("%s: %w", sel, err)
	}
	return doc, nil
}

// Matrix returns a copy of the snapshot in wire shape.
func (s *Snapshot) Matrix() Matrix {
	if s == nil {
		return nil
	}
	m := make(Matrix)
	for sel, raw := range s.cells {
		m.Set(sel, raw)
	}
	return m
}

type memoKey struct {
	version uint64
	sel     selection.Selection
}

const memoSize = 32

// Cache owns the current matrix. Load has a single writer (the fetch
// controller); Derive and Snapshot may be called from anywhere.
type Cache struct {
	current atomic.Pointer[Snapshot]
	nextVer atomic.Uint64
	memo    *lru.Cache[memoKey, Document]
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	memo, err := lru.New[memoKey, Document](memoSize)
	if err != nil {
		// Only fails for a non-positive size.
		panic(err)
	}
	return &Cache{memo: memo}
}

// Load validates m and publishes it as the new snapshot. On error the
// previously published snapshot is kept.
func (c *Cache) Load(m Matrix) (*Snapshot, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	cells := make(map[selection.Selection]string, len(selection.All()))
	for cat, row := range m {
		for ext, raw := range row {
			sel := selection.Selection{Category: cat, Extension: ext}
			if !sel.Valid() {
				continue
			}
			cells[sel] = raw
		}
	}
	snap := &Snapshot{version: c.nextVer.Add(1), cells: cells}
	c.current.Store(snap)
	debug.Log("payload: loaded snapshot v%d (%d cells)", snap.version, len(cells))
	return snap, nil
}

// Snapshot returns the current snapshot, or nil before the first Load.
func (c *Cache) Snapshot() *Snapshot {
	return c.current.Load()
}

// Loaded reports whether any matrix has been loaded.
func (c *Cache) Loaded() bool {
	return c.current.Load() != nil
}

// Derive decodes the cell for sel from the current snapshot. Each call
// returns a fresh Document; decoded cells are memoized per snapshot
// version and copied on the way out.
func (c *Cache) Derive(sel selection.Selection) (Document, error) {
	return c.DeriveAt(c.current.Load(), sel)
}

// DeriveAt is Derive against snap, which must have been published by this
// cache. It lets a caller holding a snapshot decode from exactly that
// version even after a newer Load.
func (c *Cache) DeriveAt(snap *Snapshot, sel selection.Selection) (Document, error) {
	if snap == nil {
		return Document{}, ErrNotLoaded
	}
	key := memoKey{version: snap.version, sel: sel}
	if doc, ok := c.memo.Get(key); ok {
		metrics.DocumentMemo.Hit()
		return doc.Clone(), nil
	}
	metrics.DocumentMemo.Miss()
	doc, err := snap.Derive(sel)
	if err != nil {
		return Document{}, err
	}
	c.memo.Add(key, doc)
	return doc.Clone(), nil
}
