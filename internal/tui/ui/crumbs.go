package ui

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Crumbs is a breadcrumb bar showing the current page stack.
type Crumbs struct {
	*tview.TextView
	theme  *Theme
	titles map[string]string
}

// NewCrumbs creates a new breadcrumb bar. titles maps page names to the label
// shown; pages without one are shown by name.
func NewCrumbs(theme *Theme, titles map[string]string) *Crumbs {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)

	return &Crumbs{
		TextView: tv,
		theme:    theme,
		titles:   titles,
	}
}

// Update renders the trail.
func (c *Crumbs) Update(stack []string) {
	c.Clear()
	_, _ = fmt.Fprint(c, c.format(stack))
}

func (c *Crumbs) format(stack []string) string {
	parts := make([]string, 0, len(stack))
	for i, name := range stack {
		if t, ok := c.titles[name]; ok {
			name = t
		}
		fg, bg, attr := c.theme.CrumbInactiveFg, c.theme.CrumbInactiveBg, ""
		if i == len(stack)-1 {
			fg, bg, attr = c.theme.CrumbActiveFg, c.theme.CrumbActiveBg, "b"
		}
		parts = append(parts, fmt.Sprintf("[%s:%s:%s] %s [-:-:-]",
			colorName(fg), colorName(bg), attr, tview.Escape(name)))
	}
	return strings.Join(parts, " > ")
}

// colorName returns a tview-compatible color name string.
func colorName(c tcell.Color) string {
	for name, val := range tcell.ColorNames {
		if val == c {
			return name
		}
	}
	return fmt.Sprintf("#%06x", c.Hex())
}
