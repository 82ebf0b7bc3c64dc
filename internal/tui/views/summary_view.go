package views

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/chitchat/internal/tui/ui"
)

// SummaryView is the overlay showing a discussion summary.
type SummaryView struct {
	*tview.TextView
	theme   *ui.Theme
	onClose func()
}

// NewSummaryView creates the summary overlay.
func NewSummaryView(theme *ui.Theme) *SummaryView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderFocusColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Summary (Esc to close) ")
	tv.SetTitleColor(theme.TitleColor)
	tv.SetBorderPadding(1, 1, 2, 2)

	sv := &SummaryView{TextView: tv, theme: theme}
	tv.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEscape && sv.onClose != nil {
			sv.onClose()
		}
	})
	return sv
}

// SetOnClose sets the callback for Esc.
func (sv *SummaryView) SetOnClose(fn func()) { sv.onClose = fn }

// ShowPending indicates a summary is being generated.
func (sv *SummaryView) ShowPending() {
	sv.Clear()
	_, _ = fmt.Fprintf(sv, "[%s]Summarizing the discussion...[-]", ui.Tag(sv.theme.MutedColor))
}

// ShowSummary displays the generated text.
func (sv *SummaryView) ShowSummary(text string) {
	sv.Clear()
	_, _ = fmt.Fprint(sv, tview.Escape(text))
	sv.ScrollToBeginning()
}
