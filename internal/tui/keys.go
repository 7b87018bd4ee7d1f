package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the console key bindings.
type KeyMap struct {
	// Login.
	Submit key.Binding
	Resend key.Binding
	Back   key.Binding

	// Shell.
	NextTab key.Binding
	PrevTab key.Binding
	Refresh key.Binding
	Logout  key.Binding

	Quit key.Binding
}

// DefaultKeyMap is the built-in key binding set.
var DefaultKeyMap = KeyMap{
	Submit: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "submit"),
	),
	Resend: key.NewBinding(
		key.WithKeys("ctrl+r"),
		key.WithHelp("C-r", "resend code"),
	),
	Back: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "change contact"),
	),
	NextTab: key.NewBinding(
		key.WithKeys("tab", "right", "l"),
		key.WithHelp("tab", "next"),
	),
	PrevTab: key.NewBinding(
		key.WithKeys("shift+tab", "left", "h"),
		key.WithHelp("S-tab", "previous"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
	Logout: key.NewBinding(
		key.WithKeys("ctrl+l"),
		key.WithHelp("C-l", "log out"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("C-c", "quit"),
	),
}
