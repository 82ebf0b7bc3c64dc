package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	qrcode "github.com/skip2/go-qrcode"
	"golang.org/x/term"

	"github.com/matheus3301/chitchat/internal/api"
	"github.com/matheus3301/chitchat/internal/auth"
	"github.com/matheus3301/chitchat/internal/session"
	"github.com/matheus3301/chitchat/internal/tui/client"
)

const callTimeout = 30 * time.Second

// exitError carries the process exit code for a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

type ctl struct {
	c       *client.Client
	jsonOut bool
	out     io.Writer
}

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Usage = printUsage
	flag.Parse()

	sessionName, err := session.ResolveValid(*sessionFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	c, err := client.New(session.SocketPath(sessionName))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot connect to daemon for session %q: %v\n", sessionName, err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	t := &ctl{c: c, jsonOut: *jsonFlag, out: os.Stdout}
	if err := t.run(ctx, args[0], args[1:]); err != nil {
		os.Exit(report(err))
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: chitchatctl [--session <name>] [--json] <command> [args]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                    Show session status")
	fmt.Fprintln(os.Stderr, "  signin                    Sign in with the identity provider")
	fmt.Fprintln(os.Stderr, "  phone <number>            Send a verification code by SMS")
	fmt.Fprintln(os.Stderr, "  verify [code]             Confirm the code (prompted when omitted)")
	fmt.Fprintln(os.Stderr, "  abandon                   Drop a pending verification")
	fmt.Fprintln(os.Stderr, "  send [-file <path>] text  Send a message")
	fmt.Fprintln(os.Stderr, "  messages [-n <count>]     Print recent messages")
	fmt.Fprintln(os.Stderr, "  watch                     Follow new messages")
	fmt.Fprintln(os.Stderr, "  roster                    Show who is online")
	fmt.Fprintln(os.Stderr, "  summarize [text|-]        Summarize text, stdin, or the current discussion")
	fmt.Fprintln(os.Stderr, "  signout                   Sign out")
}

// report prints err and returns the exit code: 2 for bad input, 1 otherwise.
func report(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		fmt.Fprintf(os.Stderr, "error: %v\n", ee.err)
		return ee.code
	}
	kind, msg := api.Describe(err)
	fmt.Fprintf(os.Stderr, "error: %s: %s\n", kind, msg)
	if kind == api.KindValidation {
		return 2
	}
	return 1
}

func usageErr(format string, a ...any) error {
	return &exitError{code: 2, err: fmt.Errorf(format, a...)}
}

func (t *ctl) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "status":
		return t.status(ctx)
	case "signin":
		return t.signIn(ctx)
	case "phone":
		if len(args) != 1 {
			return usageErr("usage: chitchatctl phone <number>")
		}
		return t.phone(ctx, args[0])
	case "verify":
		return t.verify(ctx, args)
	case "abandon":
		return t.unary(ctx, t.c.AbandonVerification, "Verification abandoned.")
	case "send":
		return t.send(ctx, args)
	case "messages":
		return t.messages(ctx, args)
	case "watch":
		return t.watch(ctx)
	case "roster":
		return t.roster(ctx)
	case "summarize":
		return t.summarize(ctx, args)
	case "signout":
		return t.unary(ctx, t.c.SignOut, "Signed out.")
	default:
		printUsage()
		return usageErr("unknown command: %s", cmd)
	}
}

func (t *ctl) unary(ctx context.Context, fn func(context.Context) error, done string) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		return err
	}
	fmt.Fprintln(t.out, done)
	return nil
}

func (t *ctl) status(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	s, err := t.c.Status(ctx)
	if err != nil {
		return err
	}
	if t.jsonOut {
		return t.outputJSON(s)
	}
	fmt.Fprintf(t.out, "Session: %s\n", s.Session)
	fmt.Fprintf(t.out, "State:   %s\n", s.State)
	if s.Identity != nil {
		fmt.Fprintf(t.out, "User:    %s\n", describeIdentity(s.Identity))
	}
	if s.PhoneNumber != "" {
		fmt.Fprintf(t.out, "Phone:   %s\n", s.PhoneNumber)
	}
	fmt.Fprintf(t.out, "Uptime:  %s\n", (time.Duration(s.UptimeMs) * time.Millisecond).Round(time.Second))
	return nil
}

func (t *ctl) signIn(ctx context.Context) error {
	id, err := t.c.SignInFederated(ctx, func(p auth.DevicePrompt) {
		if t.jsonOut {
			_ = t.outputJSON(p)
			return
		}
		fmt.Fprintf(t.out, "Open %s and enter code %s\n", p.VerificationURI, p.UserCode)
		if p.VerificationURIComplete != "" {
			if qr, err := qrcode.New(p.VerificationURIComplete, qrcode.Low); err == nil {
				fmt.Fprintln(t.out, qr.ToSmallString(false))
			}
		}
		fmt.Fprintln(t.out, "Waiting for approval...")
	})
	if err != nil {
		return err
	}
	return t.signedIn(id)
}

func (t *ctl) phone(ctx context.Context, number string) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	if err := t.c.AttachChallenge(ctx); err != nil {
		return err
	}
	e164, err := t.c.BeginPhoneSignIn(ctx, number)
	if err != nil {
		return err
	}
	if t.jsonOut {
		return t.outputJSON(api.PhoneResponse{PhoneNumber: e164})
	}
	fmt.Fprintf(t.out, "Code sent to %s. Run: chitchatctl verify\n", e164)
	return nil
}

func (t *ctl) verify(ctx context.Context, args []string) error {
	var code string
	switch len(args) {
	case 0:
		var err error
		if code, err = readCode(); err != nil {
			return &exitError{code: 1, err: err}
		}
	case 1:
		code = args[0]
	default:
		return usageErr("usage: chitchatctl verify [code]")
	}
	code = strings.TrimSpace(code)
	if !auth.ValidCode(code) {
		return auth.ErrInvalidCodeFormat
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	id, err := t.c.ConfirmPhoneCode(ctx, code)
	if err != nil {
		return err
	}
	return t.signedIn(id)
}

// readCode reads the code without echo when stdin is a terminal.
func readCode() (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, "Verification code: ")
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		return string(b), err
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return line, nil
}

func (t *ctl) signedIn(id *auth.Identity) error {
	if t.jsonOut {
		return t.outputJSON(api.IdentityResponse{Identity: id})
	}
	fmt.Fprintf(t.out, "Signed in as %s\n", describeIdentity(id))
	return nil
}

func (t *ctl) send(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	file := fs.String("file", "", "attach a file (10 MiB max)")
	if err := fs.Parse(args); err != nil {
		return usageErr("%v", err)
	}
	body := strings.Join(fs.Args(), " ")
	if strings.TrimSpace(body) == "" && *file == "" {
		return usageErr("usage: chitchatctl send [-file <path>] <text>")
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	id, err := t.c.Send(ctx, body, absPath(*file))
	if err != nil {
		return err
	}
	if t.jsonOut {
		return t.outputJSON(api.SendResponse{ID: id})
	}
	fmt.Fprintf(t.out, "Sent %s\n", id)
	return nil
}

func (t *ctl) messages(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("messages", flag.ContinueOnError)
	n := fs.Int("n", 20, "number of messages to show, 0 for all")
	if err := fs.Parse(args); err != nil {
		return usageErr("%v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	m, err := t.c.Messages(ctx)
	if err != nil {
		return err
	}
	if *n > 0 && len(m.Messages) > *n {
		m.Messages = m.Messages[len(m.Messages)-*n:]
	}
	if t.jsonOut {
		return t.outputJSON(m)
	}
	if m.Error != "" {
		fmt.Fprintf(os.Stderr, "warning: message stream failing: %s\n", m.Error)
	}
	if len(m.Messages) == 0 {
		fmt.Fprintln(t.out, "No messages.")
	}
	for _, msg := range m.Messages {
		t.printMessage(msg)
	}
	return nil
}

func (t *ctl) watch(ctx context.Context) error {
	seen := make(map[string]bool)
	first := true
	err := t.c.WatchMessages(ctx, func(m *api.Messages) {
		for _, msg := range m.Messages {
			if seen[msg.ID] {
				continue
			}
			seen[msg.ID] = true
			if first {
				continue
			}
			if t.jsonOut {
				_ = t.outputJSON(msg)
			} else {
				t.printMessage(msg)
			}
		}
		first = first && !m.Ready
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (t *ctl) printMessage(m api.Message) {
	when := humanize.Time(time.UnixMilli(m.Timestamp))
	author := m.Author
	if m.Admin {
		author += " [admin]"
	}
	fmt.Fprintf(t.out, "%s (%s)\n", author, when)
	if m.Body != "" {
		fmt.Fprintf(t.out, "  %s\n", strings.ReplaceAll(m.Body, "\n", "\n  "))
	}
	if a := m.Attachment; a != nil {
		fmt.Fprintf(t.out, "  [file: %s, %s] %s\n", a.Name, humanize.IBytes(uint64(a.Size)), a.URL)
	}
}

func (t *ctl) roster(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	r, err := t.c.Roster(ctx)
	if err != nil {
		return err
	}
	if t.jsonOut {
		return t.outputJSON(r)
	}
	printSection := func(title string, ps []api.Profile) {
		fmt.Fprintf(t.out, "%s (%d)\n", title, len(ps))
		for _, p := range ps {
			line := "  " + p.Name
			if p.Admin {
				line += " [admin]"
			}
			fmt.Fprintln(t.out, line)
		}
	}
	printSection("Online", r.Online)
	printSection("Offline", r.Offline)
	return nil
}

func (t *ctl) summarize(ctx context.Context, args []string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*callTimeout)
	defer cancel()

	var (
		summary string
		err     error
	)
	switch {
	case len(args) == 0:
		summary, err = t.c.SummarizeDiscussion(ctx)
	case len(args) == 1 && args[0] == "-":
		b, rerr := io.ReadAll(os.Stdin)
		if rerr != nil {
			return &exitError{code: 1, err: rerr}
		}
		summary, err = t.c.Summarize(ctx, string(b))
	default:
		summary, err = t.c.Summarize(ctx, strings.Join(args, " "))
	}
	if err != nil {
		return err
	}
	if t.jsonOut {
		return t.outputJSON(api.SummarizeResponse{Summary: summary})
	}
	fmt.Fprintln(t.out, summary)
	return nil
}

func (t *ctl) outputJSON(v any) error {
	enc := json.NewEncoder(t.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func describeIdentity(id *auth.Identity) string {
	if id == nil {
		return "-"
	}
	name := id.DisplayName
	if name == "" {
		name = id.ID
	}
	switch {
	case id.Email != "":
		return fmt.Sprintf("%s <%s>", name, id.Email)
	case id.PhoneNumber != "":
		return fmt.Sprintf("%s (%s)", name, id.PhoneNumber)
	}
	return name
}
