package selection

import (
	"errors"
	"testing"

	"pgregory.net/rapid"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in      string
		want    Category
		wantErr bool
	}{
		{"comments", CategoryComments, false},
		{"LOGS", CategoryLogs, false},
		{" logs ", CategoryLogs, false},
		{"metrics", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseCategory(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidSelection) {
				t.Errorf("ParseCategory(%q) err = %v, want ErrInvalidSelection", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseCategory(%q) unexpected error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseCategory(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseExtension(t *testing.T) {
	tests := []struct {
		in      string
		want    Extension
		wantErr bool
	}{
		{"*", ExtensionAll, false},
		{"all", ExtensionAll, false},
		{"", ExtensionAll, false},
		{".py", ExtensionPython, false},
		{"JAVA", ExtensionJava, false},
		{"go", "", true},
	}
	for _, tt := range tests {
		got, err := ParseExtension(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidSelection) {
				t.Errorf("ParseExtension(%q) err = %v, want ErrInvalidSelection", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseExtension(%q) unexpected error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseExtension(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestModel_SetInvalidKeepsCurrent(t *testing.T) {
	m, err := New(Selection{Category: CategoryLogs, Extension: ExtensionJava})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	m2, err := m.SetCategory("bogus")
	if !errors.Is(err, ErrInvalidSelection) {
		t.Fatalf("expected ErrInvalidSelection, got %v", err)
	}
	if m2.Current() != m.Current() {
		t.Errorf("selection changed on invalid set: %v", m2.Current())
	}

	m3, err := m.SetExtension("rb")
	if !errors.Is(err, ErrInvalidSelection) {
		t.Fatalf("expected ErrInvalidSelection, got %v", err)
	}
	if m3.Current() != m.Current() {
		t.Errorf("selection changed on invalid set: %v", m3.Current())
	}
}

func TestModel_SetersAreIndependent(t *testing.T) {
	var m Model
	if m.Current() != Default() {
		t.Fatalf("zero model should report default, got %v", m.Current())
	}

	m, err := m.SetExtension("py")
	if err != nil {
		t.Fatal(err)
	}
	m, err = m.SetCategory("logs")
	if err != nil {
		t.Fatal(err)
	}
	want := Selection{Category: CategoryLogs, Extension: ExtensionPython}
	if m.Current() != want {
		t.Errorf("got %v, want %v", m.Current(), want)
	}
}

func TestNew_RejectsInvalid(t *testing.T) {
	_, err := New(Selection{Category: "x", Extension: ExtensionAll})
	if !errors.Is(err, ErrInvalidSelection) {
		t.Errorf("expected ErrInvalidSelection, got %v", err)
	}
}

func TestAll_CoversMatrix(t *testing.T) {
	all := All()
	if len(all) != 6 {
		t.Fatalf("expected 6 selections, got %d", len(all))
	}
	seen := make(map[Selection]bool)
	for _, s := range all {
		if !s.Valid() {
			t.Errorf("invalid selection enumerated: %v", s)
		}
		seen[s] = true
	}
	if len(seen) != 6 {
		t.Errorf("duplicate selections in All(): %v", all)
	}
}

func TestCycle_StaysInEnumeration(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := Model{}
		steps := rapid.SliceOf(rapid.IntRange(-5, 5)).Draw(t, "steps")
		for i, d := range steps {
			if i%2 == 0 {
				m = m.CycleCategory(d)
			} else {
				m = m.CycleExtension(d)
			}
			if !m.Current().Valid() {
				t.Fatalf("cycled out of enumeration: %v", m.Current())
			}
		}
	})
}

func TestCycleExtension_Wraps(t *testing.T) {
	m := Model{}
	m = m.CycleExtension(-1)
	if m.Current().Extension != ExtensionJava {
		t.Errorf("expected wrap to java, got %q", m.Current().Extension)
	}
	m = m.CycleExtension(1)
	if m.Current().Extension != ExtensionAll {
		t.Errorf("expected wrap to *, got %q", m.Current().Extension)
	}
}
