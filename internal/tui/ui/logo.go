package ui

import (
	"fmt"

	"github.com/rivo/tview"
)

// Logo is the header banner.
type Logo struct {
	*tview.TextView
	theme *Theme
}

// NewLogo creates a new logo component.
func NewLogo(theme *Theme) *Logo {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(1, 0, 1, 0)

	l := &Logo{
		TextView: tv,
		theme:    theme,
	}
	l.render("")
	return l
}

// SetTagline replaces the line under the banner. Empty restores the default.
func (l *Logo) SetTagline(s string) {
	l.Clear()
	l.render(s)
}

func (l *Logo) render(tagline string) {
	if tagline == "" {
		tagline = "group chat"
	}
	titleColor := colorName(l.theme.TitleColor)
	fgColor := colorName(l.theme.FgColor)

	_, _ = fmt.Fprintf(l,
		"[%s::b] ┌─┐┬ ┬┬┌┬┐┌─┐┬ ┬┌─┐┌┬┐[-:-:-]\n"+
			"[%s::b] │  ├─┤│ │ │  ├─┤├─┤ │ [-:-:-]\n"+
			"[%s::b] └─┘┴ ┴┴ ┴ └─┘┴ ┴┴ ┴ ┴ [-:-:-]\n"+
			"[%s]%s[-:-:-]",
		titleColor, titleColor, titleColor, fgColor, tview.Escape(tagline),
	)
}
