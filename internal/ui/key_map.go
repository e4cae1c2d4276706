package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the player.
type keyMap struct {
	next    key.Binding
	prev    key.Binding
	left    key.Binding
	right   key.Binding
	submit  key.Binding
	toggle  key.Binding
	refresh key.Binding
	help    key.Binding
	quit    key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		next:    key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next")),
		prev:    key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("shift+tab", "back")),
		left:    key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "lower")),
		right:   key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "higher")),
		submit:  key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "answer")),
		toggle:  key.NewBinding(key.WithKeys(" ", "x"), key.WithHelp("space", "toggle")),
		refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.next, k.prev, k.help, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.next, k.prev, k.submit},
		{k.left, k.right, k.toggle},
		{k.refresh, k.help, k.quit},
	}
}
