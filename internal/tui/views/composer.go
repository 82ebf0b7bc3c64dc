package views

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/chitchat/internal/tui/model"
	"github.com/matheus3301/chitchat/internal/tui/ui"
)

// Composer is the message input. It never clears itself: the caller clears it
// once the daemon accepted the message, so a failed send keeps the text.
type Composer struct {
	*tview.InputField
	theme   *ui.Theme
	sending bool
	onSend  func(text string)
}

// NewComposer creates a new message composer.
func NewComposer(theme *ui.Theme) *Composer {
	input := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	input.SetBorder(true)
	input.SetBorderColor(theme.BorderColor)
	input.SetBackgroundColor(theme.BgColor)
	input.SetFieldBackgroundColor(theme.BgColor)
	input.SetFieldTextColor(theme.FgColor)
	input.SetLabelColor(theme.MenuKeyColor)
	input.SetTitleColor(theme.TitleColor)
	input.SetTitleAlign(tview.AlignLeft)

	c := &Composer{InputField: input, theme: theme}
	c.SetDraft(model.Draft{}, false)

	input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter && c.onSend != nil && !c.sending {
			c.onSend(c.GetText())
		}
	})
	input.SetFocusFunc(func() { input.SetBorderColor(theme.BorderFocusColor) })
	input.SetBlurFunc(func() { input.SetBorderColor(theme.BorderColor) })

	return c
}

// SetOnSend sets the callback for Enter. It receives the current text, which
// may be empty when only a file is attached.
func (c *Composer) SetOnSend(fn func(text string)) {
	c.onSend = fn
}

// SetDraft reflects the attachment and sending state in the title.
func (c *Composer) SetDraft(d model.Draft, sending bool) {
	c.sending = sending
	c.SetTitle(composerTitle(d, sending))
}

func composerTitle(d model.Draft, sending bool) string {
	title := " Message (i to focus) "
	if d.FilePath != "" {
		title = fmt.Sprintf(" Message + %s (%s) ", tview.Escape(d.FileName), humanize.IBytes(uint64(d.FileSize)))
	}
	if sending {
		title += "sending... "
	}
	return title
}
