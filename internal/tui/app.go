package tui

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/chitchat/internal/api"
	"github.com/matheus3301/chitchat/internal/auth"
	"github.com/matheus3301/chitchat/internal/nav"
	"github.com/matheus3301/chitchat/internal/status"
	"github.com/matheus3301/chitchat/internal/tui/keys"
	"github.com/matheus3301/chitchat/internal/tui/model"
	"github.com/matheus3301/chitchat/internal/tui/ui"
	"github.com/matheus3301/chitchat/internal/tui/views"
)

const (
	pageHelp    = "help"
	pageSummary = "summary"

	retryMin = time.Second
	retryMax = 15 * time.Second
)

// Daemon is what the TUI needs from chitchatd. *client.Client implements it.
type Daemon interface {
	model.Backend
	WatchStatus(ctx context.Context, fn func(*api.Status)) error
	WatchMessages(ctx context.Context, fn func(*api.Messages)) error
	WatchRoster(ctx context.Context, fn func(*api.Roster)) error
}

// App is the main TUI application shell.
type App struct {
	app      *tview.Application
	theme    *ui.Theme
	daemon   Daemon
	vm       *model.ViewModel
	nav      *nav.Navigator
	registry *keys.Registry
	flash    *ui.FlashModel
	session  string

	root        *tview.Flex
	pages       *ui.Pages
	logo        *ui.Logo
	sessionInfo *ui.SessionInfo
	menu        *ui.Menu
	crumbs      *ui.Crumbs
	flashBar    *ui.FlashBar
	prompt      *ui.Prompt
	statusBar   *views.StatusBar

	screens map[nav.Screen]ui.Component
	landing *views.LandingView
	login   *views.LoginView
	verify  *views.VerifyView
	chat    *views.ChatView
	help    *views.HelpView
	summary *views.SummaryView

	// UI goroutine only.
	promptOpen    bool
	chatCancel    context.CancelFunc
	signInCancel  context.CancelFunc
	lastStatus    *api.Status
	lastStatusAt  time.Time
	streamsFailed map[string]bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewApp creates the TUI application.
func NewApp(d Daemon, sessionName string) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:           tview.NewApplication(),
		theme:         theme,
		daemon:        d,
		vm:            model.NewViewModel(d),
		registry:      keys.NewRegistry(),
		flash:         ui.NewFlashModel(),
		session:       sessionName,
		pages:         ui.NewPages(),
		logo:          ui.NewLogo(theme),
		sessionInfo:   ui.NewSessionInfo(theme),
		menu:          ui.NewMenu(theme),
		flashBar:      ui.NewFlashBar(theme),
		prompt:        ui.NewPrompt(theme),
		statusBar:     views.NewStatusBar(theme, sessionName),
		landing:       views.NewLandingView(theme),
		login:         views.NewLoginView(theme),
		verify:        views.NewVerifyView(theme),
		chat:          views.NewChatView(theme),
		help:          views.NewHelpView(theme),
		summary:       views.NewSummaryView(theme),
		streamsFailed: make(map[string]bool),
		ctx:           ctx,
		cancel:        cancel,
	}
	a.screens = map[nav.Screen]ui.Component{
		nav.Landing: a.landing,
		nav.Login:   a.login,
		nav.Verify:  a.verify,
		nav.Chat:    a.chat,
	}
	a.crumbs = ui.NewCrumbs(theme, map[string]string{
		string(nav.Landing): a.landing.Name(),
		string(nav.Login):   a.login.Name(),
		string(nav.Verify):  a.verify.Name(),
		string(nav.Chat):    a.chat.Name(),
		pageHelp:            "Help",
		pageSummary:         "Summary",
	})
	a.nav = nav.NewNavigator(a.show)

	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()
	a.show(a.nav.Route())

	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: ':', Label: ":", Description: "Command", Visible: true,
		Handler: func() { a.openPrompt(ui.PromptCommand) },
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: '?', Label: "?", Description: "Help", Visible: true,
		Handler: a.showHelp,
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: 'q', Label: "q", Description: "Quit", Visible: true,
		Handler: a.Stop,
	})

	chat := string(nav.Chat)
	a.registry.AddView(chat, &keys.Action{
		Key: tcell.KeyRune, Rune: 'i', Label: "i", Description: "Compose", Visible: true,
		Handler: func() { a.app.SetFocus(a.chat.Composer()) },
	})
	a.registry.AddView(chat, &keys.Action{
		Key: tcell.KeyCtrlA, Label: "Ctrl-A", Description: "Attach file", Visible: true,
		Handler: func() { a.openPrompt(ui.PromptFile) },
	})
	a.registry.AddView(chat, &keys.Action{
		Key: tcell.KeyCtrlX, Label: "Ctrl-X", Description: "Detach file", Visible: true,
		Handler: a.vm.DetachFile,
	})
	a.registry.AddView(chat, &keys.Action{
		Key: tcell.KeyRune, Rune: 's', Label: "s", Description: "Summarize", Visible: true,
		Handler: a.showSummary,
	})
	a.registry.AddView(chat, &keys.Action{
		Key: tcell.KeyRune, Rune: 'm', Label: "m", Description: "Members", Visible: true,
		Handler: func() { a.app.SetFocus(a.chat.Roster()) },
	})
	a.registry.AddView(chat, &keys.Action{
		Key: tcell.KeyEscape, Label: "Esc", Description: "Scroll messages", Visible: true,
		Handler: func() { a.app.SetFocus(a.chat.Messages()) },
	})
	a.registry.AddView(string(nav.Verify), &keys.Action{
		Key: tcell.KeyEscape, Label: "Esc", Description: "Back to login", Visible: true,
		Handler: a.abandonVerification,
	})
}

func (a *App) setupCallbacks() {
	a.login.SetOnPhone(a.beginPhone)
	a.login.SetOnFederated(a.signInFederated)
	a.verify.SetOnCode(a.confirmCode)
	a.verify.SetOnAbandon(a.abandonVerification)
	a.chat.Composer().SetOnSend(a.send)
	a.help.SetOnClose(a.closeOverlay)
	a.summary.SetOnClose(a.closeOverlay)

	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.closePrompt()
		switch mode {
		case ui.PromptFile:
			a.attach(text)
		default:
			a.runCommand(ParseCommand(text))
		}
	})
	a.prompt.SetOnCancel(a.closePrompt)

	a.pages.SetOnChange(func(stack []string) {
		a.crumbs.Update(stack)
		a.menu.Update(a.registry.Hints(a.pages.Base()))
	})
}

func (a *App) setupLayout() {
	for screen, c := range a.screens {
		a.pages.AddPage(string(screen), c, true, false)
	}
	a.pages.AddPage(pageHelp, ui.Centered(a.help, 72, 24), true, false)
	a.pages.AddPage(pageSummary, ui.Centered(a.summary, 80, 20), true, false)

	header := tview.NewFlex().
		AddItem(a.sessionInfo, 34, 0, false).
		AddItem(a.menu, 0, 1, false).
		AddItem(a.logo, 26, 0, false)

	a.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 7, 0, false).
		AddItem(a.crumbs, 1, 0, false).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.flashBar, 1, 0, false).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(a.root, true)
	a.app.SetInputCapture(a.handleKey)
}

func (a *App) handleKey(ev *tcell.EventKey) *tcell.EventKey {
	if a.promptOpen {
		return ev
	}
	screen := a.pages.Base()
	if a.pages.Current() != screen {
		if ev.Key() == tcell.KeyEscape || (ev.Key() == tcell.KeyRune && ev.Rune() == 'q') {
			a.closeOverlay()
			return nil
		}
		return ev
	}
	// Printable keys belong to the focused input field.
	if _, typing := a.app.GetFocus().(*tview.InputField); typing && ev.Key() == tcell.KeyRune {
		return ev
	}
	if a.registry.HandleEvent(screen, ev) {
		return nil
	}
	return ev
}

// show makes r the visible screen. It runs on the UI goroutine and is the
// navigator's redirect callback.
func (a *App) show(r nav.Route) {
	name := string(r.Screen)
	if r.Screen == nav.Verify {
		a.verify.SetPhone(r.PhoneNumber)
	}
	if a.pages.Base() == name {
		return
	}
	if prev, ok := a.screens[nav.Screen(a.pages.Base())]; ok {
		prev.Stop()
	}
	a.leaveScreen(nav.Screen(a.pages.Base()))

	c := a.screens[r.Screen]
	a.pages.Reset(name)
	c.Start()
	a.app.SetFocus(c.FocusTarget())

	if r.Screen == nav.Chat {
		a.enterChat()
	}
}

func (a *App) navigate(r nav.Route) {
	a.nav.Go(r)
	a.show(a.nav.Route())
}

func (a *App) leaveScreen(s nav.Screen) {
	switch s {
	case nav.Chat:
		if a.chatCancel != nil {
			a.chatCancel()
			a.chatCancel = nil
		}
		a.streamsFailed = make(map[string]bool)
		a.statusBar.SetDegraded(false)
	case nav.Login:
		if a.signInCancel != nil {
			a.signInCancel()
			a.signInCancel = nil
		}
	}
}

// enterChat subscribes to messages and the roster for as long as the chat
// screen is shown.
func (a *App) enterChat() {
	ctx, cancel := context.WithCancel(a.ctx)
	a.chatCancel = cancel
	a.chat.SetDraft(a.vm.Draft(), a.vm.Sending())

	a.watch(ctx, "messages", func(ctx context.Context) error {
		return a.daemon.WatchMessages(ctx, func(m *api.Messages) {
			a.vm.SetMessages(m)
			a.app.QueueUpdateDraw(func() {
				if ctx.Err() != nil {
					return
				}
				a.chat.UpdateMessages(m)
				a.setStreamFailed("messages", m.Error != "")
			})
		})
	})
	a.watch(ctx, "roster", func(ctx context.Context) error {
		return a.daemon.WatchRoster(ctx, func(r *api.Roster) {
			a.vm.SetRoster(r)
			a.app.QueueUpdateDraw(func() {
				if ctx.Err() != nil {
					return
				}
				a.chat.UpdateRoster(r)
				a.setStreamFailed("roster", r.Error != "")
				a.updateSessionInfo()
			})
		})
	})
}

func (a *App) setStreamFailed(name string, failed bool) {
	a.streamsFailed[name] = failed
	degraded := false
	for _, f := range a.streamsFailed {
		degraded = degraded || f
	}
	a.statusBar.SetDegraded(degraded)
}

// watch runs fn until ctx ends, restarting it with backoff when the
// connection to the daemon drops.
func (a *App) watch(ctx context.Context, name string, fn func(context.Context) error) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		delay := retryMin
		for {
			started := time.Now()
			err := fn(ctx)
			if ctx.Err() != nil {
				return
			}
			if time.Since(started) > retryMax {
				delay = retryMin
			}
			// A signed-out session ends the chat streams; the status watch
			// moves the screen, so there is nothing to report.
			if kind, _ := api.Describe(err); kind != api.KindAuth {
				a.app.QueueUpdateDraw(func() {
					a.setStreamFailed(name, true)
					a.flash.Report(err)
				})
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay = min(delay*2, retryMax)
		}
	}()
}

func (a *App) applyStatus(s *api.Status) {
	a.lastStatus, a.lastStatusAt = s, time.Now()
	state := status.State(s.State)
	a.statusBar.SetState(state)
	a.setStreamFailed("status", false)
	if s.Identity != nil {
		a.chat.SetSelf(s.Identity.Email)
		a.logo.SetTagline(s.Identity.DisplayName)
	} else {
		a.logo.SetTagline("")
	}
	a.updateSessionInfo()
	a.nav.SetState(state)
}

func (a *App) updateSessionInfo() {
	data := &ui.SessionData{Session: a.session, Status: string(status.Loading)}
	if s := a.lastStatus; s != nil {
		data.Status = s.State
		data.Phone = s.PhoneNumber
		data.Uptime = time.Duration(s.UptimeMs)*time.Millisecond + time.Since(a.lastStatusAt)
		if s.Identity != nil {
			data.Name = s.Identity.DisplayName
		}
	}
	if r := a.vm.Roster(); r != nil {
		data.Online = len(r.Online)
		data.Members = len(r.Online) + len(r.Offline)
	}
	a.sessionInfo.Update(data)
}

func (a *App) beginPhone(phone string) {
	a.login.SetBusy(true)
	a.login.ShowMessage("Sending code...")
	a.async(func(ctx context.Context) func() {
		e164, err := a.vm.BeginPhone(ctx, phone)
		return func() {
			a.login.SetBusy(false)
			if err != nil {
				a.login.ShowMessage("")
				a.flash.Report(err)
				return
			}
			a.flash.Info("Code sent to " + e164)
			a.navigate(nav.Route{Screen: nav.Verify, PhoneNumber: e164})
		}
	})
}

func (a *App) signInFederated() {
	if a.signInCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(a.ctx)
	a.signInCancel = cancel
	a.login.SetBusy(true)
	a.login.ShowMessage("Contacting identity provider...")

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		err := a.vm.SignInFederated(ctx, func(p auth.DevicePrompt) {
			a.app.QueueUpdateDraw(func() { a.login.ShowPrompt(p) })
		})
		cancel()
		a.app.QueueUpdateDraw(func() {
			a.signInCancel = nil
			a.login.SetBusy(false)
			if err != nil {
				a.login.ShowMessage("")
				a.flash.Report(err)
			}
		})
	}()
}

func (a *App) confirmCode(code string) {
	a.verify.SetBusy(true)
	a.async(func(ctx context.Context) func() {
		err := a.vm.ConfirmCode(ctx, code)
		return func() {
			a.verify.SetBusy(false)
			if err != nil {
				a.verify.ClearCode()
				a.flash.Report(err)
			}
		}
	})
}

func (a *App) abandonVerification() {
	a.async(func(ctx context.Context) func() {
		err := a.vm.AbandonVerification(ctx)
		return func() {
			a.flash.Report(err)
			a.navigate(nav.Route{Screen: nav.Login})
		}
	})
}

func (a *App) send(text string) {
	a.vm.SetBody(text)
	if a.vm.Draft().Empty() {
		return
	}
	a.async(func(ctx context.Context) func() {
		_, err := a.vm.Send(ctx)
		return func() {
			if err != nil {
				a.flash.Report(err)
				return
			}
			// Keep anything typed while the send was in flight.
			if a.chat.Composer().GetText() == text {
				a.chat.Composer().SetText("")
			}
		}
	})
}

func (a *App) attach(path string) {
	if err := a.vm.AttachFile(path); err != nil {
		a.flash.Report(err)
		return
	}
	d := a.vm.Draft()
	a.flash.Info(fmt.Sprintf("Attached %s", d.FileName))
}

func (a *App) runCommand(cmd Command) {
	switch cmd.Name {
	case "attach":
		if cmd.Args == "" {
			a.openPrompt(ui.PromptFile)
			return
		}
		a.attach(cmd.Args)
	case "detach":
		a.vm.DetachFile()
	case "summarize":
		a.showSummary()
	case "signout":
		a.async(func(ctx context.Context) func() {
			err := a.vm.SignOut(ctx)
			return func() { a.flash.Report(err) }
		})
	case "help":
		a.showHelp()
	case "quit":
		a.Stop()
	default:
		a.flash.Warn(fmt.Sprintf("unknown command %q, try :help", cmd.Name))
	}
}

func (a *App) showSummary() {
	if a.pages.Base() != string(nav.Chat) {
		a.flash.Warn("summaries are available in the chat")
		return
	}
	a.summary.ShowPending()
	a.pages.Push(pageSummary, true)
	a.app.SetFocus(a.summary)
	a.async(func(ctx context.Context) func() {
		text, err := a.vm.Summarize(ctx)
		return func() {
			if a.pages.Current() != pageSummary {
				return
			}
			if err != nil {
				a.closeOverlay()
				a.flash.Report(err)
				return
			}
			a.summary.ShowSummary(text)
		}
	})
}

func (a *App) showHelp() {
	screen := a.pages.Base()
	sections := []views.HelpSection{
		{Title: "Keys", Hints: a.registry.Hints(screen)},
		{Title: "Commands", Hints: views.Commands},
	}
	a.help.Show(sections)
	a.pages.Push(pageHelp, true)
	a.app.SetFocus(a.help)
}

func (a *App) closeOverlay() {
	if a.pages.Pop() == "" {
		return
	}
	if c, ok := a.screens[nav.Screen(a.pages.Base())]; ok {
		a.app.SetFocus(c.FocusTarget())
	}
}

func (a *App) openPrompt(mode ui.PromptMode) {
	a.promptOpen = true
	a.prompt.Activate(mode)
	a.root.ResizeItem(a.prompt, 3, 0)
	a.app.SetFocus(a.prompt)
}

func (a *App) closePrompt() {
	a.promptOpen = false
	a.root.ResizeItem(a.prompt, 0, 0)
	if c, ok := a.screens[nav.Screen(a.pages.Base())]; ok {
		a.app.SetFocus(c.FocusTarget())
	}
}

// async runs fn off the UI goroutine and applies the returned update on it.
func (a *App) async(fn func(ctx context.Context) func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		update := fn(a.ctx)
		if a.ctx.Err() != nil {
			return
		}
		a.app.QueueUpdateDraw(update)
	}()
}

// Run starts the TUI application and blocks until it exits.
func (a *App) Run() error {
	a.watch(a.ctx, "status", func(ctx context.Context) error {
		return a.daemon.WatchStatus(ctx, func(s *api.Status) {
			a.vm.SetStatus(s)
			a.app.QueueUpdateDraw(func() { a.applyStatus(s) })
		})
	})

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.refreshLoop()
	}()

	err := a.app.Run()
	a.cancel()
	a.wg.Wait()
	return err
}

// refreshLoop mirrors view model and flash changes into the widgets and keeps
// the clock ticking.
func (a *App) refreshLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-a.vm.RefreshCh():
			a.app.QueueUpdateDraw(func() {
				a.chat.SetDraft(a.vm.Draft(), a.vm.Sending())
				a.statusBar.SetSending(a.vm.Sending())
			})
		case <-a.flash.Watch():
			a.app.QueueUpdateDraw(func() { a.flashBar.Update(a.flash.Current()) })
		case <-ticker.C:
			a.app.QueueUpdateDraw(func() {
				a.flashBar.Update(a.flash.Current())
				a.statusBar.Tick()
				a.updateSessionInfo()
			})
		}
	}
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
