package ui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/vanderheijden86/codeviz/pkg/chart"
	"github.com/vanderheijden86/codeviz/pkg/debug"
	"github.com/vanderheijden86/codeviz/pkg/export"
	"github.com/vanderheijden86/codeviz/pkg/fetch"
	"github.com/vanderheijden86/codeviz/pkg/lifecycle"
	"github.com/vanderheijden86/codeviz/pkg/selection"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	defaultWidth  = 100
	defaultHeight = 30

	// selector panels: three option rows plus title and border
	selectorHeight = 6
	chromeHeight   = 1 + selectorHeight + 2 // header, selector, status, help
)

// focus represents which selector axis has keyboard focus
type focus int

const (
	focusCategory focus = iota
	focusExtension
)

// SnapshotLoadedMsg reports a successful refresh.
type SnapshotLoadedMsg struct {
	Version  uint64
	Hard     bool
	Duration time.Duration
}

// FetchFailedMsg reports a failed refresh. The cache is unchanged.
type FetchFailedMsg struct {
	Err  error
	Hard bool
}

// ExportDoneMsg reports the result of a chart export.
type ExportDoneMsg struct {
	Path string
	Err  error
}

// Option configures a Model.
type Option func(*Model)

// WithContext sets the context backend calls run under.
func WithContext(ctx context.Context) Option {
	return func(m *Model) { m.ctx = ctx }
}

// WithClipboard replaces the clipboard writer.
func WithClipboard(fn func(string) error) Option {
	return func(m *Model) { m.copyFn = fn }
}

// WithExportDir sets where exported charts are written.
func WithExportDir(dir string) Option {
	return func(m *Model) { m.exportDir = dir }
}

// WithBackendLabel sets the backend address shown in the header.
func WithBackendLabel(label string) Option {
	return func(m *Model) { m.backendLabel = label }
}

// WithSize sets the initial terminal size.
func WithSize(width, height int) Option {
	return func(m *Model) { m.width, m.height = width, height }
}

// Model is the main bubbletea model. All state transitions happen in
// Update; backend calls and chart drawing run as commands.
type Model struct {
	ctx  context.Context
	ctrl *fetch.Controller
	sel  selection.Model
	life lifecycle.State

	widget    chart.Widget
	hasWidget bool

	focus    focus
	keys     keyMap
	help     help.Model
	spinner  spinner.Model
	helpView viewport.Model
	showHelp bool

	width  int
	height int

	statusMsg     string
	statusIsError bool
	deriveErr     string // status set by the last failed derivation

	backendLabel string
	exportDir    string
	copyFn       func(string) error
	now          func() time.Time
}

// NewModel builds the view over a fetch controller. The controller's cache
// is the matrix the view reads from.
func NewModel(ctrl *fetch.Controller, sel selection.Model, opts ...Option) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	m := Model{
		ctx:     context.Background(),
		ctrl:    ctrl,
		sel:     sel,
		keys:    defaultKeyMap(),
		help:    help.New(),
		spinner: sp,
		width:   defaultWidth,
		height:  defaultHeight,
		copyFn:  clipboard.WriteAll,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.helpView = viewport.New(m.width, m.height-1)
	m.helpView.SetContent(renderHelpMarkdown(m.width))
	return m
}

// Init starts the spinner and the initial soft refresh.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.refreshCmd(false))
}

// refreshCmd claims the loading flag and returns the command that runs the
// refresh. It returns nil when a refresh is already in flight.
func (m Model) refreshCmd(hard bool) tea.Cmd {
	if !m.ctrl.Begin() {
		return nil
	}
	ctrl, ctx := m.ctrl, m.ctx
	return func() tea.Msg {
		snap, err := ctrl.Run(ctx, hard)
		if err != nil {
			return FetchFailedMsg{Err: err, Hard: hard}
		}
		return SnapshotLoadedMsg{Version: snap.Version(), Hard: hard, Duration: ctrl.LastDuration()}
	}
}

// sync feeds the current selection and snapshot to the lifecycle reducer
// and mounts a fresh widget when it asks for one.
func (m Model) sync() (Model, tea.Cmd) {
	prev := m.life
	cache := m.ctrl.Cache()
	m.life = lifecycle.Reduce(m.life, lifecycle.Sync{
		Selection: m.sel.Current(),
		Snapshot:  cache.Snapshot(),
		Cache:     cache,
	})

	if err := m.life.Err(); err != nil {
		m.deriveErr = fmt.Sprintf("Cannot show %s: %v", m.sel.Current(), err)
		m.setStatus(m.deriveErr, true)
	}

	mount, ok := m.life.Mount()
	if !ok {
		m.hasWidget = false
		m.widget = chart.Widget{}
		return m, nil
	}
	if !lifecycle.Remounted(prev, m.life) {
		return m, nil
	}

	if m.deriveErr != "" && m.statusMsg == m.deriveErr {
		m.setStatus("", false)
	}
	m.deriveErr = ""
	debug.Log("mount %s", mount.Key())
	m.widget = chart.New(mount.ID, mount.Document, m.width, m.chartHeight())
	m.hasWidget = true
	return m, m.widget.Draw()
}

func (m *Model) setStatus(msg string, isErr bool) {
	m.statusMsg = msg
	m.statusIsError = isErr
}

func (m Model) chartHeight() int {
	h := m.height - chromeHeight - 1
	if h < 3 {
		h = 3
	}
	return h
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.helpView = viewport.New(msg.Width, msg.Height-1)
		m.helpView.SetContent(renderHelpMarkdown(msg.Width))
		if m.hasWidget {
			m.widget = m.widget.SetSize(msg.Width, m.chartHeight())
		}

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case SnapshotLoadedMsg:
		label := "Reloaded"
		if msg.Hard {
			label = "Recomputed"
		}
		m.setStatus(fmt.Sprintf("%s charts (v%d) in %s", label, msg.Version, msg.Duration.Round(time.Millisecond)), false)
		m, cmd = m.sync()
		cmds = append(cmds, cmd)

	case FetchFailedMsg:
		m.setStatus(describeFetchError(msg.Err), true)

	case chart.DrawnMsg:
		if m.hasWidget {
			m.widget, cmd = m.widget.Update(msg)
			cmds = append(cmds, cmd)
		}
		m.life = lifecycle.Reduce(m.life, lifecycle.DrawCompleted{MountID: msg.MountID})

	case ExportDoneMsg:
		if msg.Err != nil {
			m.setStatus(fmt.Sprintf("Export failed: %v", msg.Err), true)
		} else {
			m.setStatus(fmt.Sprintf("Exported chart to %s", msg.Path), false)
		}

	case tea.KeyMsg:
		if m.showHelp {
			return m.handleHelpKeys(msg)
		}
		return m.handleKeys(msg)
	}

	return m, tea.Batch(cmds...)
}

func (m Model) handleHelpKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "?", "esc", "q":
		m.showHelp = false
		return m, nil
	case "ctrl+c":
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.helpView, cmd = m.helpView.Update(msg)
	return m, cmd
}

func (m Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		m.helpView.GotoTop()
		return m, nil

	case key.Matches(msg, m.keys.SwitchAxis):
		if m.focus == focusCategory {
			m.focus = focusExtension
		} else {
			m.focus = focusCategory
		}
		return m, nil

	case key.Matches(msg, m.keys.Up):
		return m.moveFocused(-1)

	case key.Matches(msg, m.keys.Down):
		return m.moveFocused(1)

	case key.Matches(msg, m.keys.Comments):
		return m.selectCategory(selection.CategoryComments)

	case key.Matches(msg, m.keys.Logs):
		return m.selectCategory(selection.CategoryLogs)

	case key.Matches(msg, m.keys.Ext):
		exts := selection.Extensions()
		i := int(msg.Runes[0] - '1')
		if i < 0 || i >= len(exts) {
			return m, nil
		}
		next, err := m.sel.WithExtension(exts[i])
		if err != nil {
			m.setStatus(err.Error(), true)
			return m, nil
		}
		m.sel = next
		m.focus = focusExtension
		return m.sync()

	case key.Matches(msg, m.keys.HardRefresh):
		return m.startRefresh(true)

	case key.Matches(msg, m.keys.SoftRefresh):
		return m.startRefresh(false)

	case key.Matches(msg, m.keys.Copy):
		return m.copyDocument()

	case key.Matches(msg, m.keys.Export):
		return m.exportChart()
	}

	if m.hasWidget {
		var cmd tea.Cmd
		m.widget, cmd = m.widget.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) moveFocused(delta int) (tea.Model, tea.Cmd) {
	if m.focus == focusCategory {
		m.sel = m.sel.CycleCategory(delta)
	} else {
		m.sel = m.sel.CycleExtension(delta)
	}
	return m.sync()
}

func (m Model) selectCategory(c selection.Category) (tea.Model, tea.Cmd) {
	next, err := m.sel.WithCategory(c)
	if err != nil {
		m.setStatus(err.Error(), true)
		return m, nil
	}
	m.sel = next
	m.focus = focusCategory
	return m.sync()
}

func (m Model) startRefresh(hard bool) (tea.Model, tea.Cmd) {
	cmd := m.refreshCmd(hard)
	if cmd == nil {
		m.setStatus("Refresh already in progress", false)
		return m, nil
	}
	if hard {
		m.setStatus("Recomputing on the backend…", false)
	} else {
		m.setStatus("Reloading charts…", false)
	}
	return m, tea.Batch(cmd, m.spinner.Tick)
}

func (m Model) copyDocument() (tea.Model, tea.Cmd) {
	mount, ok := m.life.Mount()
	if !ok {
		m.setStatus("Nothing to copy", true)
		return m, nil
	}
	raw, err := mount.Document.MarshalIndent()
	if err == nil {
		err = m.copyFn(string(raw))
	}
	if err != nil {
		m.setStatus(fmt.Sprintf("Clipboard error: %v", err), true)
		return m, nil
	}
	m.setStatus(fmt.Sprintf("📋 Copied %s chart JSON to clipboard", mount.Selection), false)
	return m, nil
}

func (m Model) exportChart() (tea.Model, tea.Cmd) {
	if !m.hasWidget || !m.widget.Drawn() {
		m.setStatus("Nothing to export yet", true)
		return m, nil
	}
	fig := m.widget.Figure()
	path := filepath.Join(m.exportDir, export.FileName(m.sel.Current(), m.now(), export.FormatSVG))
	return m, func() tea.Msg {
		return ExportDoneMsg{Path: path, Err: export.Save(path, fig)}
	}
}

func describeFetchError(err error) string {
	var fe *fetch.Error
	if errors.As(err, &fe) {
		return fmt.Sprintf("Refresh failed during %s: %v (showing previous charts)", fe.Step, fe.Cause)
	}
	return fmt.Sprintf("Refresh failed: %v", err)
}

// Loading reports the fetch controller's loading flag.
func (m Model) Loading() bool { return m.ctrl.Loading() }

// Rendering reports whether a mounted chart has not finished drawing.
func (m Model) Rendering() bool { return m.life.Rendering() }

// Phase is the chart lifecycle phase.
func (m Model) Phase() lifecycle.Phase { return m.life.Phase() }

// Selection is the current selection.
func (m Model) Selection() selection.Selection { return m.sel.Current() }

// HasChart reports whether a chart surface is shown.
func (m Model) HasChart() bool { return m.hasWidget && m.life.Phase() != lifecycle.PhaseIdle }

// ChartID is the mounted widget's ID, or 0.
func (m Model) ChartID() uint64 {
	if !m.HasChart() {
		return 0
	}
	return m.widget.ID()
}

// Status returns the status line text and whether it reports an error.
func (m Model) Status() (string, bool) { return m.statusMsg, m.statusIsError }

func (m Model) View() string {
	if m.showHelp {
		return m.renderHelpOverlay()
	}

	sections := []string{
		m.renderHeader(),
		m.renderSelector(),
		m.renderChart(),
		m.renderStatus(),
		m.renderShortHelp(),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// renderShortHelp clamps the key bar to the terminal; help.Model's own
// truncation can overshoot by a separator.
func (m Model) renderShortHelp() string {
	return lipgloss.NewStyle().MaxWidth(m.width).Render(m.help.View(m.keys))
}

func (m Model) renderHeader() string {
	title := "codeviz"
	if m.backendLabel != "" {
		title += " • " + m.backendLabel
	}
	if snap := m.ctrl.Cache().Snapshot(); snap != nil {
		title += fmt.Sprintf(" • v%d", snap.Version())
	}
	return headerStyle.Width(m.width).Render(truncateRunesHelper(title, m.width-2, "…"))
}

func (m Model) renderSelector() string {
	cur := m.sel.Current()

	var cats []string
	for _, c := range selection.Categories() {
		cats = append(cats, RenderOption(titleCase(string(c)), c == cur.Category))
	}
	var exts []string
	for _, e := range selection.Extensions() {
		label := "All files"
		if e != selection.ExtensionAll {
			label = e.Label()
		}
		exts = append(exts, RenderOption(label, e == cur.Extension))
	}

	catPanel, extPanel := PanelStyle, PanelStyle
	if m.focus == focusCategory {
		catPanel = FocusedPanelStyle
	} else {
		extPanel = FocusedPanelStyle
	}

	loading := m.ctrl.Loading()
	button := RenderButton("⟳ Refresh", !loading)
	if loading {
		button = lipgloss.JoinHorizontal(lipgloss.Center, button, " ", m.spinner.View())
	}

	return lipgloss.JoinHorizontal(lipgloss.Top,
		catPanel.Render(axisTitleStyle.Render("Category")+"\n"+strings.Join(cats, "\n")),
		" ",
		extPanel.Render(axisTitleStyle.Render("Extension")+"\n"+strings.Join(exts, "\n")),
		"  ",
		lipgloss.NewStyle().PaddingTop(SpaceXS).Render(button),
	)
}

func (m Model) renderChart() string {
	h := m.chartHeight()
	box := lipgloss.NewStyle().Width(m.width).Height(h)

	if !m.HasChart() {
		text := "No chart loaded yet."
		switch {
		case m.ctrl.Loading():
			text = "Loading charts…"
		case m.life.Err() != nil:
			text = fmt.Sprintf("Nothing to show for %s.", m.sel.Current())
		}
		return box.Render(placeholderStyle.Render(text))
	}
	if !m.widget.Drawn() {
		return box.Render(placeholderStyle.Render("Drawing " + m.sel.Current().String() + "…"))
	}
	return box.Render(m.widget.View())
}

func (m Model) renderStatus() string {
	if m.statusMsg == "" {
		return statusStyle.Render(" ")
	}
	text := truncateRunesHelper(m.statusMsg, m.width, "…")
	switch {
	case m.statusIsError:
		return statusErrorStyle.Render(text)
	case strings.HasPrefix(m.statusMsg, "Recomputed") || strings.HasPrefix(m.statusMsg, "Reloaded"):
		return statusOKStyle.Render(text)
	default:
		return statusStyle.Render(text)
	}
}
