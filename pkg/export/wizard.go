package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/vanderheijden86/codeviz/pkg/selection"
)

// WizardChoices is what the export wizard collects.
type WizardChoices struct {
	Category  selection.Category
	Extension selection.Extension
	Format    string
	Dir       string
	// Name is the output file name. Empty means FileName for the selection.
	Name string
}

// Selection is the chosen (category, extension) pair.
func (c WizardChoices) Selection() selection.Selection {
	return selection.Selection{Category: c.Category, Extension: c.Extension}
}

// OutputPath resolves the file the chart is written to. A name without an
// extension gets the chosen format's.
func (c WizardChoices) OutputPath(now time.Time) (string, error) {
	if !c.Selection().Valid() {
		return "", fmt.Errorf("%w: %s", selection.ErrInvalidSelection, c.Selection())
	}
	format := strings.ToLower(c.Format)
	if format != FormatSVG && format != FormatPNG {
		return "", fmt.Errorf("unsupported export format %q", c.Format)
	}
	name := strings.TrimSpace(c.Name)
	switch {
	case name == "":
		name = FileName(c.Selection(), now, format)
	case filepath.Ext(name) == "":
		name += "." + format
	}
	dir := strings.TrimSpace(c.Dir)
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, name), nil
}

// Wizard asks for the chart to export and where to write it. It runs before
// any TUI starts.
type Wizard struct {
	choices WizardChoices
	in      io.Reader
	out     io.Writer
}

// NewWizard starts from sel, SVG output and dir.
func NewWizard(sel selection.Selection, dir string) *Wizard {
	return &Wizard{
		choices: WizardChoices{
			Category:  sel.Category,
			Extension: sel.Extension,
			Format:    FormatSVG,
			Dir:       dir,
		},
		in:  os.Stdin,
		out: os.Stdout,
	}
}

// Choices returns the current answers.
func (w *Wizard) Choices() WizardChoices { return w.choices }

// Run shows the form and returns the answers.
func (w *Wizard) Run() (WizardChoices, error) {
	if err := w.form().Run(); err != nil {
		return WizardChoices{}, err
	}
	return w.choices, nil
}

func (w *Wizard) form() *huh.Form {
	cats := make([]huh.Option[selection.Category], 0, len(selection.Categories()))
	for _, c := range selection.Categories() {
		cats = append(cats, huh.NewOption(string(c), c))
	}
	exts := make([]huh.Option[selection.Extension], 0, len(selection.Extensions()))
	for _, e := range selection.Extensions() {
		exts = append(exts, huh.NewOption(e.Label(), e))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[selection.Category]().
				Title("Category").
				Options(cats...).
				Value(&w.choices.Category),
			huh.NewSelect[selection.Extension]().
				Title("Extension").
				Options(exts...).
				Value(&w.choices.Extension),
			huh.NewSelect[string]().
				Title("Format").
				Options(
					huh.NewOption("SVG (vector)", FormatSVG),
					huh.NewOption("PNG (image)", FormatPNG),
				).
				Value(&w.choices.Format),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Output directory").
				Value(&w.choices.Dir).
				Placeholder("."),
			huh.NewInput().
				Title("File name (optional)").
				Description("Leave empty for a timestamped name").
				Value(&w.choices.Name).
				Validate(validFileName),
		),
	).WithTheme(huh.ThemeDracula()).WithInput(w.in).WithOutput(w.out)

	if f, ok := w.in.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		form = form.WithAccessible(true)
	}
	return form
}

func validFileName(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if strings.ContainsRune(s, filepath.Separator) {
		return fmt.Errorf("file name must not contain %q; use the directory field", filepath.Separator)
	}
	switch strings.TrimPrefix(strings.ToLower(filepath.Ext(s)), ".") {
	case "", FormatSVG, FormatPNG:
		return nil
	default:
		return fmt.Errorf("file name must end in .svg or .png")
	}
}
