package ui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	SwitchAxis  key.Binding
	Up          key.Binding
	Down        key.Binding
	Comments    key.Binding
	Logs        key.Binding
	Ext         key.Binding
	HardRefresh key.Binding
	SoftRefresh key.Binding
	Deeper      key.Binding
	Shallower   key.Binding
	Copy        key.Binding
	Export      key.Binding
	Help        key.Binding
	Quit        key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		SwitchAxis:  key.NewBinding(key.WithKeys("tab", "shift+tab"), key.WithHelp("tab", "switch axis")),
		Up:          key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "prev")),
		Down:        key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "next")),
		Comments:    key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "comments")),
		Logs:        key.NewBinding(key.WithKeys("l"), key.WithHelp("l", "logs")),
		Ext:         key.NewBinding(key.WithKeys("1", "2", "3"), key.WithHelp("1-3", "extension")),
		HardRefresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		SoftRefresh: key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "reload")),
		Deeper:      key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+/-", "depth")),
		Shallower:   key.NewBinding(key.WithKeys("-", "_")),
		Copy:        key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "copy json")),
		Export:      key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "export svg")),
		Help:        key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:        key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.SwitchAxis, k.Up, k.HardRefresh, k.SoftRefresh, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.SwitchAxis, k.Up, k.Down, k.Comments, k.Logs, k.Ext},
		{k.HardRefresh, k.SoftRefresh, k.Deeper, k.Copy, k.Export},
		{k.Help, k.Quit},
	}
}
