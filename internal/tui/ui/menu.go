package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
)

// menuRows is how many hints stack in one column.
const menuRows = 5

// Menu displays keyboard shortcut hints in columns.
type Menu struct {
	*tview.TextView
	theme *Theme
}

// NewMenu creates a new menu hint bar.
func NewMenu(theme *Theme) *Menu {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 2, 0)

	return &Menu{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders hints column-major, menuRows per column.
func (m *Menu) Update(hints []MenuHint) {
	m.Clear()
	_, _ = fmt.Fprint(m, m.format(hints))
}

func (m *Menu) format(hints []MenuHint) string {
	keyColor := colorName(m.theme.MenuKeyColor)

	width := 0
	for _, h := range hints {
		if w := len(h.Key) + len(h.Description) + 3; w > width {
			width = w
		}
	}

	var sb strings.Builder
	for row := 0; row < menuRows && row < len(hints); row++ {
		for i := row; i < len(hints); i += menuRows {
			h := hints[i]
			pad := width - len(h.Key) - len(h.Description) - 3
			fmt.Fprintf(&sb, "[%s::b]<%s>[-:-:-] %s%s  ", keyColor, h.Key,
				tview.Escape(h.Description), strings.Repeat(" ", pad))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
