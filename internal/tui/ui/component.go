package ui

import "github.com/rivo/tview"

// MenuHint describes a keyboard shortcut for display in the menu bar.
type MenuHint struct {
	Key         string
	Description string
}

// Component is a screen of the TUI. Start runs when the screen becomes
// visible and Stop when it is left.
type Component interface {
	tview.Primitive
	Name() string
	Start()
	Stop()
	// FocusTarget returns the primitive that takes input when the screen is shown.
	FocusTarget() tview.Primitive
}
