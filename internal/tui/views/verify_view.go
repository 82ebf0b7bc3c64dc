package views

import (
	"fmt"
	"unicode"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/chitchat/internal/tui/ui"
)

// VerifyView collects the six-digit code sent by SMS. Esc abandons the
// verification and returns to the login screen.
type VerifyView struct {
	*tview.Flex
	theme *ui.Theme
	form  *tview.Form
	code  *tview.InputField
	info  *tview.TextView
	busy  bool

	onCode    func(code string)
	onAbandon func()
}

// NewVerifyView creates the verification screen.
func NewVerifyView(theme *ui.Theme) *VerifyView {
	vv := &VerifyView{theme: theme}

	vv.code = tview.NewInputField().
		SetLabel("Code ").
		SetFieldWidth(8).
		SetAcceptanceFunc(func(text string, r rune) bool {
			return unicode.IsDigit(r) && len(text) <= 6
		})
	vv.code.SetFieldBackgroundColor(theme.BgColor)
	vv.code.SetFieldTextColor(theme.FgColor)
	vv.code.SetLabelColor(theme.MenuKeyColor)
	vv.code.SetDoneFunc(func(key tcell.Key) {
		switch key {
		case tcell.KeyEnter:
			vv.submit()
		case tcell.KeyEscape:
			vv.abandon()
		}
	})

	vv.form = tview.NewForm().
		AddFormItem(vv.code).
		AddButton("Verify", vv.submit).
		AddButton("Back", vv.abandon)
	vv.form.SetBackgroundColor(theme.BgColor)
	vv.form.SetButtonBackgroundColor(theme.BorderColor)
	vv.form.SetBorder(true)
	vv.form.SetBorderColor(theme.BorderColor)
	vv.form.SetTitle(" Verify phone ")
	vv.form.SetTitleColor(theme.TitleColor)
	vv.form.SetCancelFunc(vv.abandon)

	vv.info = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	vv.info.SetBackgroundColor(theme.BgColor)
	vv.info.SetTextColor(theme.FgColor)

	vv.Flex = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(vv.info, 3, 0, false).
		AddItem(ui.Centered(vv.form, 40, 7), 7, 0, true).
		AddItem(nil, 0, 1, false)
	return vv
}

// Name implements Component.
func (vv *VerifyView) Name() string { return "Verify" }

// Start implements Component.
func (vv *VerifyView) Start() {
	vv.code.SetText("")
	vv.SetBusy(false)
}

// Stop implements Component.
func (vv *VerifyView) Stop() {}

// FocusTarget implements Component.
func (vv *VerifyView) FocusTarget() tview.Primitive { return vv.form }

// SetPhone shows where the code was sent.
func (vv *VerifyView) SetPhone(phone string) {
	vv.info.Clear()
	if phone == "" {
		_, _ = fmt.Fprint(vv.info, "\nEnter the code we sent you")
		return
	}
	_, _ = fmt.Fprintf(vv.info, "\nEnter the code sent to [%s::b]%s[-:-:-]",
		ui.Tag(vv.theme.CounterColor), tview.Escape(phone))
}

// SetOnCode sets the callback for a submitted code.
func (vv *VerifyView) SetOnCode(fn func(code string)) { vv.onCode = fn }

// SetOnAbandon sets the callback for leaving the screen.
func (vv *VerifyView) SetOnAbandon(fn func()) { vv.onAbandon = fn }

// SetBusy blocks further submissions while a request is in flight.
func (vv *VerifyView) SetBusy(busy bool) {
	vv.busy = busy
	vv.code.SetDisabled(busy)
}

// ClearCode empties the input after a rejected code.
func (vv *VerifyView) ClearCode() { vv.code.SetText("") }

func (vv *VerifyView) submit() {
	if vv.busy || vv.onCode == nil {
		return
	}
	vv.onCode(vv.code.GetText())
}

func (vv *VerifyView) abandon() {
	if vv.onAbandon != nil {
		vv.onAbandon()
	}
}
