package views

import (
	"fmt"

	"github.com/rivo/tview"

	"github.com/matheus3301/chitchat/internal/tui/ui"
)

// LandingView is shown until the session state is known.
type LandingView struct {
	*tview.TextView
}

// NewLandingView creates the landing screen.
func NewLandingView(theme *ui.Theme) *LandingView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	_, _ = fmt.Fprintf(tv, "\n\n\n[%s::b]chitchat[-:-:-]\n\n[::d]Restoring session...[-:-:-]", ui.Tag(theme.TitleColor))
	return &LandingView{TextView: tv}
}

// Name implements Component.
func (lv *LandingView) Name() string { return "Loading" }

// Start implements Component.
func (lv *LandingView) Start() {}

// Stop implements Component.
func (lv *LandingView) Stop() {}

// FocusTarget implements Component.
func (lv *LandingView) FocusTarget() tview.Primitive { return lv.TextView }
