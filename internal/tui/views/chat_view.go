package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rivo/tview"

	"github.com/matheus3301/chitchat/internal/api"
	"github.com/matheus3301/chitchat/internal/tui/model"
	"github.com/matheus3301/chitchat/internal/tui/ui"
)

// ChatView is the group conversation: messages on the left with the composer
// under them, members on the right.
type ChatView struct {
	*tview.Flex
	theme    *ui.Theme
	messages *tview.TextView
	composer *Composer
	roster   *RosterList
	self     string
}

// NewChatView creates the chat screen.
func NewChatView(theme *ui.Theme) *ChatView {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitle(" Messages ")
	messages.SetTitleColor(theme.TitleColor)

	cv := &ChatView{
		theme:    theme,
		messages: messages,
		composer: NewComposer(theme),
		roster:   NewRosterList(theme),
	}

	left := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messages, 0, 1, false).
		AddItem(cv.composer, 3, 0, true)

	cv.Flex = tview.NewFlex().
		AddItem(left, 0, 3, true).
		AddItem(cv.roster, 0, 1, false)
	return cv
}

// Name implements Component.
func (cv *ChatView) Name() string { return "Chat" }

// Start implements Component.
func (cv *ChatView) Start() {
	cv.UpdateMessages(nil)
	cv.roster.Update(nil)
}

// Stop implements Component.
func (cv *ChatView) Stop() {}

// FocusTarget implements Component.
func (cv *ChatView) FocusTarget() tview.Primitive { return cv.composer }

// Composer returns the message input.
func (cv *ChatView) Composer() *Composer { return cv.composer }

// Messages returns the message pane.
func (cv *ChatView) Messages() *tview.TextView { return cv.messages }

// Roster returns the member list.
func (cv *ChatView) Roster() *RosterList { return cv.roster }

// SetSelf marks the signed-in user's messages.
func (cv *ChatView) SetSelf(email string) { cv.self = email }

// UpdateMessages renders the message list, oldest first.
func (cv *ChatView) UpdateMessages(m *api.Messages) {
	cv.messages.Clear()
	if m == nil || !m.Ready {
		_, _ = fmt.Fprintf(cv.messages, "[%s]loading messages...[-]", ui.Tag(cv.theme.MutedColor))
		return
	}

	title := fmt.Sprintf(" Messages (%d) ", len(m.Messages))
	if m.Error != "" {
		title += "[stale] "
	}
	cv.messages.SetTitle(title)

	if len(m.Messages) == 0 {
		_, _ = fmt.Fprintf(cv.messages, "[%s]No messages yet. Say hi![-]", ui.Tag(cv.theme.MutedColor))
		return
	}
	now := time.Now()
	var sb strings.Builder
	for _, msg := range m.Messages {
		sb.WriteString(formatMessage(msg, cv.self, cv.theme, now))
	}
	_, _ = fmt.Fprint(cv.messages, sb.String())
	cv.messages.ScrollToEnd()
}

// UpdateRoster renders the member list.
func (cv *ChatView) UpdateRoster(r *api.Roster) {
	cv.roster.Update(r)
}

// SetDraft reflects the composer state.
func (cv *ChatView) SetDraft(d model.Draft, sending bool) {
	cv.composer.SetDraft(d, sending)
}

func formatMessage(m api.Message, self string, theme *ui.Theme, now time.Time) string {
	author := m.Author
	if author == "" {
		author = "unknown"
	}
	if self != "" && m.AuthorEmail == self {
		author += " (you)"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s::b]%s[-:-:-]", ui.Tag(theme.AuthorColor), tview.Escape(sanitizeForTerminal(author)))
	if m.Admin {
		fmt.Fprintf(&sb, " [%s]admin[-]", ui.Tag(theme.AdminColor))
	}
	fmt.Fprintf(&sb, " [%s]%s[-]\n", ui.Tag(theme.MutedColor), formatTimestamp(m.Timestamp, now))
	if m.Body != "" {
		sb.WriteString(tview.Escape(sanitizeForTerminal(m.Body)))
		sb.WriteString("\n")
	}
	if a := m.Attachment; a != nil {
		label := fmt.Sprintf("[file: %s, %s]", sanitizeForTerminal(a.Name), humanize.IBytes(uint64(a.Size)))
		fmt.Fprintf(&sb, "[%s]%s[-] %s\n", ui.Tag(theme.AttachmentColor), tview.Escape(label), tview.Escape(a.URL))
	}
	sb.WriteString("\n")
	return sb.String()
}

// formatTimestamp shows the time of day for today's messages and the date
// otherwise.
func formatTimestamp(ms int64, now time.Time) string {
	if ms == 0 {
		return ""
	}
	t := time.UnixMilli(ms).In(now.Location())
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("Jan 2 15:04")
}
