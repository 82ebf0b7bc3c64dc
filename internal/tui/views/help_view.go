package views

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/chitchat/internal/tui/ui"
)

// HelpSection is a titled group of key or command descriptions.
type HelpSection struct {
	Title string
	Hints []ui.MenuHint
}

// Commands lists the prompt commands.
var Commands = []ui.MenuHint{
	{Key: ":attach <path>", Description: "Attach a file (10 MiB max)"},
	{Key: ":detach", Description: "Drop the attached file"},
	{Key: ":summarize", Description: "Summarize the discussion"},
	{Key: ":signout", Description: "Sign out of this session"},
	{Key: ":help", Description: "Show this help"},
	{Key: ":quit", Description: "Quit the TUI (the daemon keeps running)"},
}

// HelpView displays the key and command reference.
type HelpView struct {
	*tview.TextView
	theme   *ui.Theme
	onClose func()
}

// NewHelpView creates a new help view.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	hv := &HelpView{
		TextView: tv,
		theme:    theme,
	}
	tv.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEscape && hv.onClose != nil {
			hv.onClose()
		}
	})
	return hv
}

// SetOnClose sets the callback for Esc.
func (hv *HelpView) SetOnClose(fn func()) { hv.onClose = fn }

// Show renders the given sections.
func (hv *HelpView) Show(sections []HelpSection) {
	hv.Clear()
	_, _ = fmt.Fprint(hv, hv.format(sections))
	hv.ScrollToBeginning()
}

func (hv *HelpView) format(sections []HelpSection) string {
	kc := ui.Tag(hv.theme.MenuKeyColor)
	var sb strings.Builder
	for _, s := range sections {
		fmt.Fprintf(&sb, "\n  [::b]%s[-:-:-]\n\n", s.Title)
		for _, h := range s.Hints {
			fmt.Fprintf(&sb, "  [%s]%-16s[-:-:-] %s\n", kc, tview.Escape(h.Key), tview.Escape(h.Description))
		}
	}
	return sb.String()
}
