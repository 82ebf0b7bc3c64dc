package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/matheus3301/chitchat/internal/auth"
	"github.com/matheus3301/chitchat/internal/tui/ui"
)

// LoginView offers phone sign-in and federated sign-in. While a federated
// sign-in runs it shows the device code and a QR code of the approval URL.
type LoginView struct {
	*tview.Flex
	theme *ui.Theme
	form  *tview.Form
	phone *tview.InputField
	info  *tview.TextView
	busy  bool

	onPhone     func(phone string)
	onFederated func()
}

// NewLoginView creates the login screen.
func NewLoginView(theme *ui.Theme) *LoginView {
	lv := &LoginView{theme: theme}

	lv.phone = tview.NewInputField().
		SetLabel("Phone number ").
		SetPlaceholder("0812 3456 789 or +62812...").
		SetFieldWidth(24).
		SetAcceptanceFunc(func(text string, r rune) bool {
			return strings.ContainsRune("+0123456789 -()", r)
		})
	lv.phone.SetFieldBackgroundColor(theme.BgColor)
	lv.phone.SetFieldTextColor(theme.FgColor)
	lv.phone.SetLabelColor(theme.MenuKeyColor)
	lv.phone.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter {
			lv.submitPhone()
		}
	})

	lv.form = tview.NewForm().
		AddFormItem(lv.phone).
		AddButton("Send code", lv.submitPhone).
		AddButton("Sign in with SSO", func() {
			if lv.onFederated != nil && !lv.busy {
				lv.onFederated()
			}
		})
	lv.form.SetBackgroundColor(theme.BgColor)
	lv.form.SetButtonBackgroundColor(theme.BorderColor)
	lv.form.SetBorder(true)
	lv.form.SetBorderColor(theme.BorderColor)
	lv.form.SetTitle(" Sign in ")
	lv.form.SetTitleColor(theme.TitleColor)

	lv.info = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	lv.info.SetBackgroundColor(theme.BgColor)
	lv.info.SetTextColor(theme.FgColor)

	lv.Flex = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(ui.Centered(lv.form, 60, 9), 9, 0, true).
		AddItem(lv.info, 0, 1, false)
	return lv
}

// Name implements Component.
func (lv *LoginView) Name() string { return "Login" }

// Start implements Component.
func (lv *LoginView) Start() {
	lv.SetBusy(false)
	lv.info.Clear()
}

// Stop implements Component.
func (lv *LoginView) Stop() {}

// FocusTarget implements Component.
func (lv *LoginView) FocusTarget() tview.Primitive { return lv.form }

// SetOnPhone sets the callback for a submitted phone number.
func (lv *LoginView) SetOnPhone(fn func(phone string)) { lv.onPhone = fn }

// SetOnFederated sets the callback for the SSO button.
func (lv *LoginView) SetOnFederated(fn func()) { lv.onFederated = fn }

// SetBusy blocks further submissions while a request is in flight.
func (lv *LoginView) SetBusy(busy bool) {
	lv.busy = busy
	lv.phone.SetDisabled(busy)
}

func (lv *LoginView) submitPhone() {
	if lv.busy || lv.onPhone == nil {
		return
	}
	if text := strings.TrimSpace(lv.phone.GetText()); text != "" {
		lv.onPhone(text)
	}
}

// ShowPrompt renders the device code and a scannable QR code of the
// approval URL.
func (lv *LoginView) ShowPrompt(p auth.DevicePrompt) {
	lv.info.Clear()
	_, _ = fmt.Fprint(lv.info, formatPrompt(p, lv.theme))
}

// ShowMessage displays a status line under the form.
func (lv *LoginView) ShowMessage(msg string) {
	lv.info.Clear()
	_, _ = fmt.Fprintf(lv.info, "\n%s", tview.Escape(msg))
}

func formatPrompt(p auth.DevicePrompt, theme *ui.Theme) string {
	var sb strings.Builder
	kc := ui.Tag(theme.MenuKeyColor)
	fmt.Fprintf(&sb, "\nOpen [%s::u]%s[-:-:-] and enter [%s::b]%s[-:-:-]\n",
		kc, tview.Escape(p.VerificationURI), kc, tview.Escape(p.UserCode))
	if p.VerificationURIComplete != "" {
		sb.WriteString("or scan:\n\n")
		sb.WriteString(renderQR(p.VerificationURIComplete))
	}
	if !p.ExpiresAt.IsZero() {
		fmt.Fprintf(&sb, "\n[::d]Expires at %s. Waiting for approval...[-:-:-]", p.ExpiresAt.Local().Format(time.Kitchen))
	}
	return sb.String()
}

// renderQR converts a string to a compact QR code using Unicode half-block
// characters, two modules per cell.
func renderQR(content string) string {
	qr, err := qrcode.New(content, qrcode.Low)
	if err != nil {
		return "(QR unavailable: " + err.Error() + ")\n"
	}
	bitmap := qr.Bitmap()

	var sb strings.Builder
	for y := 0; y < len(bitmap); y += 2 {
		for x := range bitmap[y] {
			top := bitmap[y][x]
			bot := y+1 < len(bitmap) && bitmap[y+1][x]
			switch {
			case top && bot:
				sb.WriteRune('█')
			case top:
				sb.WriteRune('▀')
			case bot:
				sb.WriteRune('▄')
			default:
				sb.WriteRune(' ')
			}
		}
		sb.WriteRune('\n')
	}
	return sb.String()
}
