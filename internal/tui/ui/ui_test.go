package ui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rivo/tview"

	"github.com/matheus3301/chitchat/internal/api"
	"github.com/matheus3301/chitchat/internal/auth"
	"github.com/matheus3301/chitchat/internal/outbox"
)

func TestFlashReportLevels(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		level FlashLevel
		text  string
		none  bool
	}{
		{name: "validation", err: api.StatusError(auth.ErrInvalidCodeFormat), level: FlashWarn, text: "6 digits"},
		{name: "transport", err: api.StatusError(outbox.ErrSendFailed), level: FlashErr, text: "(try again)"},
		{name: "contract", err: api.StatusError(auth.ErrNoActiveChallenge), level: FlashErr, text: "no verification"},
		{name: "canceled", err: context.Canceled, none: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFlashModel()
			f.Report(tt.err)
			got := f.Current()
			if tt.none {
				if got != nil {
					t.Fatalf("Current() = %+v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Fatal("Current() = nil")
			}
			if got.Level != tt.level {
				t.Errorf("level = %d, want %d", got.Level, tt.level)
			}
			if !strings.Contains(got.Text, tt.text) {
				t.Errorf("text = %q, want it to contain %q", got.Text, tt.text)
			}
		})
	}
}

func TestFlashExpires(t *testing.T) {
	f := NewFlashModel()
	now := time.Now()
	f.now = func() time.Time { return now }
	f.Info("hello")
	if f.Current() == nil {
		t.Fatal("flash missing before expiry")
	}
	now = now.Add(6 * time.Second)
	if f.Current() != nil {
		t.Fatal("flash still shown after expiry")
	}
	select {
	case m := <-f.Watch():
		if m.Text != "hello" {
			t.Errorf("watched %q", m.Text)
		}
	default:
		t.Error("nothing on watch channel")
	}
}

func TestFlashReportNil(t *testing.T) {
	f := NewFlashModel()
	f.Report(nil)
	f.Err(errors.New("boom"))
	if got := f.Current(); got == nil || got.Level != FlashErr {
		t.Fatalf("Current() = %+v", got)
	}
}

func TestPagesStack(t *testing.T) {
	p := NewPages()
	for _, name := range []string{"login", "chat", "help"} {
		p.AddPage(name, tview.NewBox(), true, false)
	}
	var changes [][]string
	p.SetOnChange(func(s []string) { changes = append(changes, s) })

	p.Reset("login")
	p.Push("help", true)
	if p.Current() != "help" || p.Base() != "login" {
		t.Fatalf("current=%q base=%q", p.Current(), p.Base())
	}
	if got := p.Pop(); got != "help" {
		t.Fatalf("Pop() = %q", got)
	}
	if got := p.Pop(); got != "" {
		t.Fatalf("Pop() on base = %q, want empty", got)
	}

	p.Push("help", true)
	p.Reset("chat")
	if s := p.Stack(); len(s) != 1 || s[0] != "chat" {
		t.Fatalf("stack after Reset = %v", s)
	}
	if len(changes) != 5 {
		t.Errorf("onChange fired %d times, want 5", len(changes))
	}
}

func TestPromptHistory(t *testing.T) {
	p := NewPrompt(DefaultTheme())
	p.Activate(PromptCommand)
	p.remember("help")
	p.remember("summarize")
	p.remember("summarize")

	if got := p.step(-1); got != "summarize" {
		t.Errorf("step(-1) = %q", got)
	}
	if got := p.step(-1); got != "help" {
		t.Errorf("step(-1) = %q", got)
	}
	if got := p.step(-1); got != "help" {
		t.Errorf("step past oldest = %q", got)
	}
	if got := p.step(1); got != "summarize" {
		t.Errorf("step(1) = %q", got)
	}
	if got := p.step(1); got != "" {
		t.Errorf("step past newest = %q", got)
	}

	p.Activate(PromptFile)
	if got := p.step(-1); got != "" {
		t.Errorf("file history leaked command entry %q", got)
	}
}

func TestMenuColumns(t *testing.T) {
	m := NewMenu(DefaultTheme())
	hints := make([]MenuHint, 7)
	for i := range hints {
		hints[i] = MenuHint{Key: string(rune('a' + i)), Description: "x"}
	}
	lines := strings.Split(strings.TrimRight(m.format(hints), "\n"), "\n")
	if len(lines) != menuRows {
		t.Fatalf("got %d lines, want %d", len(lines), menuRows)
	}
	if !strings.Contains(lines[0], "<a>") || !strings.Contains(lines[0], "<f>") {
		t.Errorf("first row = %q, want a and f", lines[0])
	}
	if strings.Contains(lines[4], "<f>") {
		t.Errorf("last row = %q", lines[4])
	}
}

func TestCrumbsTitles(t *testing.T) {
	c := NewCrumbs(DefaultTheme(), map[string]string{"chat": "Group"})
	got := c.format([]string{"chat", "help"})
	if !strings.Contains(got, " Group ") || !strings.Contains(got, " help ") {
		t.Errorf("format = %q", got)
	}
	if strings.Count(got, " > ") != 1 {
		t.Errorf("format = %q, want one separator", got)
	}
}

func TestSessionInfoFormat(t *testing.T) {
	si := NewSessionInfo(DefaultTheme())
	got := si.format(&SessionData{Session: "default", Status: "AUTHENTICATED", Online: 2, Members: 5, Uptime: 90 * time.Minute})
	for _, want := range []string{"default", "AUTHENTICATED", "2/5", "1h30m", "User:"} {
		if !strings.Contains(got, want) {
			t.Errorf("format missing %q: %s", want, got)
		}
	}
}
