// Package selection holds the two selection axes of the viewer and the
// currently selected (category, extension) pair.
package selection

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidSelection is returned when an axis is set to a value outside
// its enumeration.
var ErrInvalidSelection = errors.New("invalid selection")

// Category is what is being analyzed.
type Category string

const (
	CategoryComments Category = "comments"
	CategoryLogs     Category = "logs"
)

// Extension filters the analyzed files by extension. ExtensionAll keeps
// every file.
type Extension string

const (
	ExtensionAll    Extension = "*"
	ExtensionPython Extension = "py"
	ExtensionJava   Extension = "java"
)

var (
	allCategories = []Category{CategoryComments, CategoryLogs}
	allExtensions = []Extension{ExtensionAll, ExtensionPython, ExtensionJava}
)

// Categories returns the category enumeration in display order.
func Categories() []Category {
	return append([]Category(nil), allCategories...)
}

// Extensions returns the extension enumeration in display order.
func Extensions() []Extension {
	return append([]Extension(nil), allExtensions...)
}

// Valid reports whether c is a member of the enumeration.
func (c Category) Valid() bool {
	for _, v := range allCategories {
		if v == c {
			return true
		}
	}
	return false
}

// Valid reports whether e is a member of the enumeration.
func (e Extension) Valid() bool {
	for _, v := range allExtensions {
		if v == e {
			return true
		}
	}
	return false
}

// Label returns the extension as shown in the selector (".py", ".*").
func (e Extension) Label() string {
	return "." + string(e)
}

// ParseCategory validates a category name. Matching is case-insensitive.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: category %q (want one of %v)", ErrInvalidSelection, s, allCategories)
	}
	return c, nil
}

// ParseExtension validates an extension filter. A leading dot is accepted,
// and "all" is an alias for "*".
func ParseExtension(s string) (Extension, error) {
	v := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "."))
	if v == "all" || v == "" {
		v = string(ExtensionAll)
	}
	e := Extension(v)
	if !e.Valid() {
		return "", fmt.Errorf("%w: extension %q (want one of %v)", ErrInvalidSelection, s, allExtensions)
	}
	return e, nil
}

// Selection is one cell of the selection matrix.
type Selection struct {
	Category  Category
	Extension Extension
}

// Default is the selection shown at startup.
func Default() Selection {
	return Selection{Category: CategoryComments, Extension: ExtensionAll}
}

func (s Selection) String() string {
	return string(s.Category) + "/" + string(s.Extension)
}

// Valid reports whether both components are enumeration members.
func (s Selection) Valid() bool {
	return s.Category.Valid() && s.Extension.Valid()
}

// All enumerates every selection, categories first.
func All() []Selection {
	out := make([]Selection, 0, len(allCategories)*len(allExtensions))
	for _, c := range allCategories {
		for _, e := range allExtensions {
			out = append(out, Selection{Category: c, Extension: e})
		}
	}
	return out
}

// Model owns the current selection. It is a value type: setters return an
// updated copy and never perform I/O.
type Model struct {
	current Selection
}

// New returns a Model positioned at initial, or an error if initial is
// outside the enumerations.
func New(initial Selection) (Model, error) {
	if !initial.Valid() {
		return Model{}, fmt.Errorf("%w: %s", ErrInvalidSelection, initial)
	}
	return Model{current: initial}, nil
}

// Current returns the current selection. The zero Model reports Default().
func (m Model) Current() Selection {
	if m.current == (Selection{}) {
		return Default()
	}
	return m.current
}

// SetCategory returns m with the category axis set to raw.
func (m Model) SetCategory(raw string) (Model, error) {
	c, err := ParseCategory(raw)
	if err != nil {
		return m, err
	}
	return m.WithCategory(c)
}

// SetExtension returns m with the extension axis set to raw.
func (m Model) SetExtension(raw string) (Model, error) {
	e, err := ParseExtension(raw)
	if err != nil {
		return m, err
	}
	return m.WithExtension(e)
}

// WithCategory is SetCategory for an already typed value.
func (m Model) WithCategory(c Category) (Model, error) {
	if !c.Valid() {
		return m, fmt.Errorf("%w: category %q", ErrInvalidSelection, c)
	}
	cur := m.Current()
	cur.Category = c
	m.current = cur
	return m, nil
}

// WithExtension is SetExtension for an already typed value.
func (m Model) WithExtension(e Extension) (Model, error) {
	if !e.Valid() {
		return m, fmt.Errorf("%w: extension %q", ErrInvalidSelection, e)
	}
	cur := m.Current()
	cur.Extension = e
	m.current = cur
	return m, nil
}

// CycleCategory moves the category axis by delta positions, wrapping.
func (m Model) CycleCategory(delta int) Model {
	cur := m.Current()
	cur.Category = allCategories[cycle(indexOf(allCategories, cur.Category), delta, len(allCategories))]
	m.current = cur
	return m
}

// CycleExtension moves the extension axis by delta positions, wrapping.
func (m Model) CycleExtension(delta int) Model {
	cur := m.Current()
	cur.Extension = allExtensions[cycle(indexOf(allExtensions, cur.Extension), delta, len(allExtensions))]
	m.current = cur
	return m
}

func indexOf[T comparable](list []T, v T) int {
	for i, x := range list {
		if x == v {
			return i
		}
	}
	return 0
}

func cycle(i, delta, n int) int {
	return ((i+delta)%n + n) % n
}
