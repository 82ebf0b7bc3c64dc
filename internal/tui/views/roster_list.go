package views

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/chitchat/internal/api"
	"github.com/matheus3301/chitchat/internal/tui/ui"
)

// RosterList shows group members split into online and offline sections.
type RosterList struct {
	*tview.Table
	theme *ui.Theme
	rows  []string // profile ID per row, empty for headers
}

// NewRosterList creates a new roster table.
func NewRosterList(theme *ui.Theme) *RosterList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitle(" Members ")
	table.SetTitleColor(theme.TitleColor)

	return &RosterList{
		Table: table,
		theme: theme,
	}
}

// Update renders the roster.
func (rl *RosterList) Update(r *api.Roster) {
	rl.Clear()
	rl.rows = rl.rows[:0]
	if r == nil || !r.Ready {
		rl.SetCell(0, 0, tview.NewTableCell(" loading...").
			SetSelectable(false).
			SetTextColor(rl.theme.MutedColor))
		rl.SetTitle(" Members ")
		return
	}

	rl.section(fmt.Sprintf(" ONLINE (%d)", len(r.Online)), r.Online, rl.theme.OnlineColor, "●")
	rl.section(fmt.Sprintf(" OFFLINE (%d)", len(r.Offline)), r.Offline, rl.theme.OfflineColor, "○")

	title := fmt.Sprintf(" Members %d/%d ", len(r.Online), len(r.Online)+len(r.Offline))
	if r.Error != "" {
		title += "[stale] "
	}
	rl.SetTitle(title)
}

func (rl *RosterList) section(header string, profiles []api.Profile, dot tcell.Color, glyph string) {
	row := len(rl.rows)
	rl.SetCell(row, 0, tview.NewTableCell(header).
		SetSelectable(false).
		SetTextColor(rl.theme.TableHeaderFg).
		SetBackgroundColor(rl.theme.TableHeaderBg).
		SetAttributes(tcell.AttrBold).
		SetExpansion(1))
	rl.rows = append(rl.rows, "")

	for _, p := range profiles {
		row = len(rl.rows)
		name := p.Name
		if name == "" {
			name = p.ID
		}
		rl.SetCell(row, 0, tview.NewTableCell(" "+glyph+" "+tview.Escape(sanitizeForTerminal(name))).
			SetTextColor(dot).
			SetExpansion(1))
		badge := ""
		if p.Admin {
			badge = "admin"
		}
		rl.SetCell(row, 1, tview.NewTableCell(badge).
			SetTextColor(rl.theme.AdminColor).
			SetAlign(tview.AlignRight))
		rl.rows = append(rl.rows, p.ID)
	}
}

// Selected returns the profile ID under the cursor, or empty on a header.
func (rl *RosterList) Selected() string {
	row, _ := rl.GetSelection()
	if row < 0 || row >= len(rl.rows) {
		return ""
	}
	return rl.rows[row]
}
