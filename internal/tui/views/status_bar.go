package views

import (
	"fmt"
	"time"

	"github.com/rivo/tview"

	"github.com/matheus3301/chitchat/internal/status"
	"github.com/matheus3301/chitchat/internal/tui/ui"
)

// StatusBar is the bottom line: session, auth state, stream health and clock.
type StatusBar struct {
	*tview.TextView
	theme    *ui.Theme
	session  string
	state    status.State
	degraded bool
	sending  bool
	now      func() time.Time
}

// NewStatusBar creates a new status bar.
func NewStatusBar(theme *ui.Theme, session string) *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	sb := &StatusBar{TextView: tv, theme: theme, session: session, state: status.Loading, now: time.Now}
	sb.render()
	return sb
}

// SetState updates the auth state.
func (sb *StatusBar) SetState(s status.State) {
	sb.state = s
	sb.render()
}

// SetDegraded marks the live streams as failing.
func (sb *StatusBar) SetDegraded(degraded bool) {
	sb.degraded = degraded
	sb.render()
}

// SetSending shows the send indicator.
func (sb *StatusBar) SetSending(sending bool) {
	sb.sending = sending
	sb.render()
}

// Tick redraws the clock.
func (sb *StatusBar) Tick() { sb.render() }

func (sb *StatusBar) render() {
	sb.Clear()
	_, _ = fmt.Fprint(sb, sb.format())
}

func (sb *StatusBar) format() string {
	stateColor := ui.Tag(sb.theme.FlashWarnColor)
	if sb.state == status.Authenticated {
		stateColor = ui.Tag(sb.theme.OnlineColor)
	}
	line := fmt.Sprintf(" [::b]%s[-:-:-] | [%s]%s[-]", tview.Escape(sb.session), stateColor, sb.state)
	if sb.degraded {
		line += fmt.Sprintf(" | [%s]reconnecting[-]", ui.Tag(sb.theme.FlashErrColor))
	}
	if sb.sending {
		line += " | sending"
	}
	return line + " | " + sb.now().Format("15:04")
}
